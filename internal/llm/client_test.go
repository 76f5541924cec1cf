package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNormalizeBaseURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"http://host:1234", "http://host:1234"},
		{"http://host:1234/", "http://host:1234"},
		{"http://host:1234/v1", "http://host:1234"},
		{"http://host:1234/v1/chat", "http://host:1234"},
		{"http://host:1234/chat", "http://host:1234"},
		{"http://host:1234/api/v1", "http://host:1234/api"},
	}
	for _, c := range cases {
		if got := NormalizeBaseURL(c.in); got != c.want {
			t.Errorf("NormalizeBaseURL(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestComplete(t *testing.T) {
	var gotPath string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"has_vulnerability": false}`}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient("mistral", srv.URL+"/v1", "mistral:7b", "", 5*time.Second)
	text, err := c.Complete(context.Background(), "analyze this")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != `{"has_vulnerability": false}` {
		t.Errorf("unexpected content %q", text)
	}
	if gotPath != "/v1/chat/completions" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotReq.Model != "mistral:7b" || gotReq.Temperature != 0.1 || gotReq.MaxTokens != 120 {
		t.Errorf("unexpected wire payload: %+v", gotReq)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[1].Role != "user" {
		t.Errorf("unexpected messages: %+v", gotReq.Messages)
	}
}

func TestCompleteStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient("qwen", srv.URL, "qwen", "", 5*time.Second)
	_, err := c.Complete(context.Background(), "x")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != 500 {
		t.Fatalf("expected StatusError 500, got %v", err)
	}
}

func TestCompleteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient("qwen", srv.URL, "qwen", "", 20*time.Millisecond)
	if _, err := c.Complete(context.Background(), "x"); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestValidatorFallback(t *testing.T) {
	var models []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		models = append(models, req.Model)
		if req.Model != "model-c" {
			http.Error(w, "model not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "ok"}}},
		})
	}))
	defer srv.Close()

	v := NewValidator(srv.URL, []string{"model-a", "model-b", "model-c"}, "key", time.Second)

	text, err := v.Complete(context.Background(), "validate")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "ok" {
		t.Errorf("unexpected text %q", text)
	}
	if len(models) != 3 {
		t.Fatalf("expected 3 attempts, got %v", models)
	}

	// Second call reuses the cached model without walking the list again.
	models = nil
	if _, err := v.Complete(context.Background(), "again"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(models) != 1 || models[0] != "model-c" {
		t.Errorf("expected cached model-c only, got %v", models)
	}
}

func TestValidatorExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	v := NewValidator(srv.URL, []string{"a", "b"}, "key", time.Second)
	if !v.Available() {
		t.Fatal("validator should start available")
	}

	if _, err := v.Complete(context.Background(), "x"); !errors.Is(err, ErrValidatorUnavailable) {
		t.Fatalf("expected ErrValidatorUnavailable, got %v", err)
	}
	if v.Available() {
		t.Error("validator should be disabled after exhausting its model list")
	}

	// Disabled for the remaining process lifetime.
	if _, err := v.Complete(context.Background(), "x"); !errors.Is(err, ErrValidatorUnavailable) {
		t.Errorf("expected permanent unavailability, got %v", err)
	}
}

func TestValidatorWithoutCredential(t *testing.T) {
	v := NewValidator("http://unused", []string{"a"}, "", time.Second)
	if v.Available() {
		t.Error("validator without credential should be unavailable")
	}
}

func TestValidatorNonNotFoundErrorDoesNotExhaust(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	v := NewValidator(srv.URL, []string{"a", "b"}, "key", time.Second)
	if _, err := v.Complete(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
	if !v.Available() {
		t.Error("a transient error must not exhaust the validator")
	}
}
