package llm

import (
	"context"
	"errors"
	"sync"
)

// Scripted returns a pre-defined sequence of completions and records the
// prompts it was given.
type Scripted struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	Prompts   []string
}

// NewScripted creates a completer that replies with responses in order.
func NewScripted(responses ...string) *Scripted {
	return &Scripted{Responses: responses}
}

// Complete pops the next scripted response or returns the configured error.
func (s *Scripted) Complete(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Prompts = append(s.Prompts, prompt)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.Err != nil {
		return "", s.Err
	}
	if len(s.Responses) == 0 {
		return "", errors.New("scripted completer: no more responses available")
	}
	content := s.Responses[0]
	s.Responses = s.Responses[1:]
	return content, nil
}

// Calls returns how many prompts were received.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Prompts)
}
