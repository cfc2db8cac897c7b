package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "local-model" {
			t.Errorf("model = %q", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[1].Content != "fix it" {
			t.Errorf("messages = %+v", req.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"local-model",
			"choices":[{"index":0,"message":{"role":"assistant","content":"def handler(): pass"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":5,"completion_tokens":4,"total_tokens":9}}`))
	}))
	defer srv.Close()

	c, err := NewOpenAI(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Model: "local-model"})
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Complete(context.Background(), "fix it")
	if err != nil {
		t.Fatal(err)
	}
	if out != "def handler(): pass" {
		t.Errorf("out = %q", out)
	}
}

func TestOpenAISendsNearZeroTemperature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		temp, ok := body["temperature"].(float64)
		if !ok {
			t.Errorf("temperature missing from request: %v", body["temperature"])
		} else if temp <= 0 || temp > 1e-6 {
			t.Errorf("temperature = %v, want a near-zero positive value", temp)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion",
			"choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAI(Config{APIKey: "sk-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Complete(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
}

func TestOpenAINoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	c, _ := NewOpenAI(Config{APIKey: "sk-test", BaseURL: srv.URL})
	if _, err := c.Complete(context.Background(), "x"); err == nil {
		t.Error("expected error when no choices are returned")
	}
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	if _, err := NewOpenAI(Config{}); err == nil {
		t.Error("expected error without API key")
	}
}

func TestScripted(t *testing.T) {
	s := NewScripted("one", "two")
	ctx := context.Background()

	if out, _ := s.Complete(ctx, "a"); out != "one" {
		t.Errorf("first = %q", out)
	}
	if out, _ := s.Complete(ctx, "b"); out != "two" {
		t.Errorf("second = %q", out)
	}
	if _, err := s.Complete(ctx, "c"); err == nil {
		t.Error("exhausted script should fail")
	}
	if s.Calls() != 3 || s.Prompts[1] != "b" {
		t.Errorf("prompts = %v", s.Prompts)
	}
}
