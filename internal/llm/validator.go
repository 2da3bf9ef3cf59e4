package llm

import (
	"context"
	"sync"

	"github.com/ashureev/coach60/internal/domain"
	"github.com/ashureev/coach60/internal/identity"
)

// probeMessage is the one-message request used to check that a credential
// actually works against the completion API.
const probeMessage = "Just say OK"

// ValidationResult is the cached outcome of a credential probe.
type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Detail string `json:"detail"`
}

// Validator probes credentials against the completion API and caches the
// result for the process lifetime, keyed by (credential digest, model), so
// repeated page loads do not produce repeated billable calls.
type Validator struct {
	client CompletionClient

	mu    sync.Mutex
	cache map[string]ValidationResult
}

// NewValidator creates a validator backed by the given completion client.
func NewValidator(client CompletionClient) *Validator {
	return &Validator{
		client: client,
		cache:  make(map[string]ValidationResult),
	}
}

func cacheKey(credential, model string) string {
	return identity.Derive(credential) + ":" + model
}

// Validate probes the credential against the given model, returning the
// cached result when one exists.
func (v *Validator) Validate(ctx context.Context, credential, model string) ValidationResult {
	key := cacheKey(credential, model)

	v.mu.Lock()
	if result, ok := v.cache[key]; ok {
		v.mu.Unlock()
		return result
	}
	v.mu.Unlock()

	result := ValidationResult{Valid: true, Detail: "credential accepted"}
	_, err := v.client.Complete(ctx, credential, model, 0,
		[]domain.Message{{Role: domain.RoleUser, Content: probeMessage}})
	if err != nil {
		result = ValidationResult{Valid: false, Detail: err.Error()}
	}

	v.mu.Lock()
	v.cache[key] = result
	v.mu.Unlock()

	return result
}

// Invalidate drops the cached result for a (credential, model) pair, forcing
// the next Validate call to probe again.
func (v *Validator) Invalidate(credential, model string) {
	v.mu.Lock()
	delete(v.cache, cacheKey(credential, model))
	v.mu.Unlock()
}
