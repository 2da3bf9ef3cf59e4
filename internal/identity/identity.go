// Package identity derives stable anonymous user identities from
// learner-supplied API credentials.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// CredentialHeaderName carries the learner's completion-API key.
const CredentialHeaderName = "X-Coach-Key"

type contextKey int

const (
	userIDKey contextKey = iota
	credentialKey
)

// Derive maps a credential to a stable, one-way user identity.
// SHA-256 hex: deterministic across processes and practically injective,
// unlike a general-purpose builtin hash.
func Derive(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

// UserIDFromContext extracts the derived user identity from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// CredentialFromContext extracts the raw credential from the request context.
// It is never persisted; only its digest is.
func CredentialFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(credentialKey).(string); ok {
		return v
	}
	return ""
}

func credentialFromRequest(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(CredentialHeaderName)); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

// Middleware injects the credential and its derived identity into the
// request context. Requests without a credential are rejected; every other
// handler can assume both values are present.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := credentialFromRequest(r)
			if credential == "" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"missing API credential"}`))
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, Derive(credential))
			ctx = context.WithValue(ctx, credentialKey, credential)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
