package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// missing renders an absent key dimension
const missing = "-"

// KeyContext semantic dimensions of one generation request.
//
// The composite string is built in a fixed order per scope:
//
//	scope=domain-check;domain=<d>;game=<g|->;prompt=<sha256>
//	scope=general-check;text=<sha256>;prompt=<sha256>
//	scope=no-context;prompt=<sha256>
//
// Domain wins over Text. Absent dimensions are written as "-" so that
// requests with and without a game never share a key.
type KeyContext struct {
	Domain   string
	GameName string
	Text     string
	Prompt   string
}

// Scope names the branch Composite takes.
func (k KeyContext) Scope() string {
	switch {
	case strings.TrimSpace(k.Domain) != "":
		return "domain-check"
	case strings.TrimSpace(k.Text) != "":
		return "general-check"
	default:
		return "no-context"
	}
}

// Composite the unhashed context string.
func (k KeyContext) Composite() string {
	var b strings.Builder
	b.WriteString("scope=")
	b.WriteString(k.Scope())

	switch k.Scope() {
	case "domain-check":
		b.WriteString(";domain=")
		b.WriteString(strings.ToLower(strings.TrimSpace(k.Domain)))
		b.WriteString(";game=")
		b.WriteString(orMissing(strings.TrimSpace(k.GameName)))
	case "general-check":
		b.WriteString(";text=")
		b.WriteString(digest(k.Text))
	}

	b.WriteString(";prompt=")
	b.WriteString(digest(k.Prompt))
	return b.String()
}

// Key hex SHA-256 of the composite string.
func (k KeyContext) Key() string {
	return digest(k.Composite())
}

func orMissing(s string) string {
	if s == "" {
		return missing
	}
	return s
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
