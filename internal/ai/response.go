package ai

import "strings"

// ResponseKind which shape the backend answered with
type ResponseKind int

const (
	// KindText a single direct text field (chat completions)
	KindText ResponseKind = iota
	// KindCandidates candidates -> content -> parts (Gemini)
	KindCandidates
)

func (k ResponseKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindCandidates:
		return "candidates"
	default:
		return "unknown"
	}
}

// Response a backend answer. Call sites read it only through Normalize.
type Response struct {
	Kind       ResponseKind
	Text       string
	Candidates []Candidate
}

// Candidate one generated alternative
type Candidate struct {
	Content Content `json:"content"`
}

// Content parts of a candidate
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part a text fragment
type Part struct {
	Text string `json:"text"`
}

// TextResponse wraps a direct text answer.
func TextResponse(text string) *Response {
	return &Response{Kind: KindText, Text: text}
}

// CandidatesResponse wraps a candidate list answer.
func CandidatesResponse(candidates []Candidate) *Response {
	return &Response{Kind: KindCandidates, Candidates: candidates}
}

// Normalize returns the canonical text of r: the direct text, or the
// first non-empty part of the first candidate that has one. "" means the
// backend produced no usable payload.
func (r *Response) Normalize() string {
	if r == nil {
		return ""
	}

	switch r.Kind {
	case KindText:
		return strings.TrimSpace(r.Text)
	case KindCandidates:
		for _, c := range r.Candidates {
			for _, p := range c.Content.Parts {
				if text := strings.TrimSpace(p.Text); text != "" {
					return text
				}
			}
		}
	}
	return ""
}

// isEmptyResponse payload check for retry.Call; markup-only text counts as empty
func isEmptyResponse(r *Response) bool {
	return SanitizePlainText(r.Normalize()) == ""
}
