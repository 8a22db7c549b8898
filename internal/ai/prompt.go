package ai

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rf-checker/rf-checker-go/internal/domain"
)

// DefaultValidationInstruction used when no prompts file is available
const DefaultValidationInstruction = "Analyse the data without Markdown. Return a short plain-text verdict on whether the game or site has ties to Russia, citing the evidence found."

// Prompts instruction texts loaded from the prompts file
type Prompts struct {
	InstructionValidation string `json:"instruction_validation"`
}

// LoadPrompts reads path; a missing or broken file yields the built-in
// instruction together with the read error.
func LoadPrompts(path string) (*Prompts, error) {
	fallback := &Prompts{InstructionValidation: DefaultValidationInstruction}
	if path == "" {
		return fallback, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fallback, fmt.Errorf("failed to read prompts file: %w", err)
	}

	var p Prompts
	if err := json.Unmarshal(data, &p); err != nil {
		return fallback, fmt.Errorf("failed to parse prompts file: %w", err)
	}
	if strings.TrimSpace(p.InstructionValidation) == "" {
		return fallback, fmt.Errorf("prompts file %s has no instruction_validation", path)
	}
	return &p, nil
}

// BuildPrompt prefixes the formatted metadata with the validation instruction.
func (p *Prompts) BuildPrompt(formatted string) string {
	return fmt.Sprintf("Instruction: %s Text: %s", p.InstructionValidation, formatted)
}

// FormatMetadata renders the check context as the readable summary the
// model is asked to judge.
func FormatMetadata(cc *domain.CheckContext) string {
	if cc == nil {
		return ""
	}

	var b strings.Builder
	if cc.GameName != "" {
		fmt.Fprintf(&b, "Game: %s\n", cc.GameName)
	}

	if cc.SteamInfo != nil {
		b.WriteString("\nSteam Info:\n")
		fmt.Fprintf(&b, "  Developers: %s\n", listOrNA(cc.SteamInfo.Developers))
		fmt.Fprintf(&b, "  Publishers: %s\n", listOrNA(cc.SteamInfo.Publishers))
		if cc.SteamInfo.Website != "" {
			fmt.Fprintf(&b, "  Website: %s\n", cc.SteamInfo.Website)
		}
	}

	if cc.Text != "" {
		fmt.Fprintf(&b, "\nText: %s\n", cc.Text)
	}

	if len(cc.URLResults) > 0 {
		fmt.Fprintf(&b, "\nURL Analysis (%d URLs):\n", len(cc.URLResults))
		for i, r := range cc.URLResults {
			if r == nil {
				continue
			}
			fmt.Fprintf(&b, "\n  URL %d: %s\n", i+1, r.InputURL)
			fmt.Fprintf(&b, "    Domain: %s\n", r.Domain)
			fmt.Fprintf(&b, "    Country: %s\n", firstOf(r.RegistrantCountry, r.Country, "Unknown"))
			fmt.Fprintf(&b, "    Registrar: %s\n", firstOf(r.Registrar, "Unknown"))
			fmt.Fprintf(&b, "    Russian traces: %s\n", strings.Join(r.Evidence, ", "))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func listOrNA(items []string) string {
	if len(items) == 0 {
		return "N/A"
	}
	return strings.Join(items, ", ")
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
