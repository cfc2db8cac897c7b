package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tinkerbelle-io/kube-medic/internal/policy"
)

// FixProposal is the structured second-stage LLM output.
type FixProposal struct {
	Analysis       string `json:"analysis"`
	FixDescription string `json:"fix_description"`
	FixCode        string `json:"fix_code"`
	FixFile        string `json:"fix_file"`
	PRTitle        string `json:"pr_title"`
	PRBody         string `json:"pr_body"`
}

// ParseError reports LLM output that is not a valid FixProposal. It is
// recovered with fallbackProposal and never ends a run.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse fix proposal: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// stripCodeFences drops markdown fence lines such as "```" or "```python".
func stripCodeFences(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, ln := range lines {
		if strings.HasPrefix(strings.TrimSpace(ln), "```") {
			continue
		}
		out = append(out, ln)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// parseProposal decodes the JSON object in raw, tolerating code fences and
// surrounding prose.
func parseProposal(raw string) (FixProposal, error) {
	text := stripCodeFences(raw)
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		text = text[start : end+1]
	}

	// fix_code is sometimes null; decode loosely and keep strings only.
	var fields map[string]any
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return FixProposal{}, &ParseError{Raw: raw, Err: err}
	}
	str := func(k string) string {
		s, _ := fields[k].(string)
		return s
	}
	return FixProposal{
		Analysis:       str("analysis"),
		FixDescription: str("fix_description"),
		FixCode:        str("fix_code"),
		FixFile:        str("fix_file"),
		PRTitle:        str("pr_title"),
		PRBody:         str("pr_body"),
	}, nil
}

// fallbackProposal stands in for unparseable LLM output.
func fallbackProposal(is policy.Issue) FixProposal {
	return FixProposal{
		Analysis:       "Failed to parse analysis result",
		FixDescription: "Unknown",
		FixFile:        "Unknown",
		PRTitle:        fmt.Sprintf("Fix high %s usage in %s", is.Type, is.PodName),
		PRBody:         "Failed to generate PR body",
	}
}
