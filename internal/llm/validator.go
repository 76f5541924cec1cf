package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sentinelai/sentinel/internal/logging"
)

// Validator is the optional cloud backend that arbitrates reviewer
// disagreements. It is disabled when no credential is configured and
// disables itself permanently once its model fallback list is exhausted.
type Validator struct {
	client *Client
	models []string

	mu          sync.Mutex
	activeModel string // first model that succeeded; process-scoped cache
	exhausted   bool
}

// NewValidator creates the validator. An empty API key yields a validator
// that reports itself unavailable, so wiring code never branches.
func NewValidator(baseURL string, models []string, apiKey string, timeout time.Duration) *Validator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	v := &Validator{
		client: NewClient("gemini", baseURL, "", apiKey, timeout),
		models: models,
	}
	if apiKey == "" || len(models) == 0 {
		v.exhausted = true
	}
	return v
}

// Available reports whether the validator can still be consulted.
func (v *Validator) Available() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return !v.exhausted
}

// Name returns the backend's display name.
func (v *Validator) Name() string { return v.client.Name() }

// Complete runs a validation completion. On a not-found class error for the
// current model it advances through the fallback list, caching the first
// model that answers. When the list runs out the validator marks itself
// unavailable for the rest of the process lifetime.
func (v *Validator) Complete(ctx context.Context, prompt string) (string, error) {
	v.mu.Lock()
	if v.exhausted {
		v.mu.Unlock()
		return "", ErrValidatorUnavailable
	}
	model := v.activeModel
	candidates := v.models
	v.mu.Unlock()

	if model != "" {
		return v.client.complete(ctx, model, prompt)
	}

	for i, candidate := range candidates {
		text, err := v.client.complete(ctx, candidate, prompt)
		if err == nil {
			v.mu.Lock()
			v.activeModel = candidate
			v.mu.Unlock()
			return text, nil
		}
		if !isModelNotFound(err) {
			return "", err
		}
		logging.Op().Warn("validator model not found, trying next",
			"model", candidate, "remaining", len(candidates)-i-1)
	}

	v.mu.Lock()
	v.exhausted = true
	v.mu.Unlock()
	logging.Op().Warn("validator model list exhausted, disabling for process lifetime")
	return "", ErrValidatorUnavailable
}

// ErrValidatorUnavailable is returned once the validator is disabled.
var ErrValidatorUnavailable = errors.New("validator unavailable")

// isModelNotFound matches the 404 / "not found" error class that means the
// model name (not the request) was rejected.
func isModelNotFound(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		if se.Code == 404 {
			return true
		}
		return strings.Contains(strings.ToLower(se.Body), "not found")
	}
	return false
}
