package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sakif/petadopt/internal/model"
	"github.com/sakif/petadopt/internal/response"
)

// contextKey is an unexported type used for context keys in this package.
// Only this package can build a key of this type, so nobody else can read
// or shadow the snapshot stored in the request context.
type contextKey string

const snapshotKey contextKey = "snapshot"

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// It reads "Authorization: Bearer <token>", verifies it, and stores the
// decoded snapshot in the request context. On failure it writes the error
// envelope and the wrapped handler never runs:
//   - no token       → 401 "Access token required"
//   - bad or expired → 403 "Invalid or expired token"
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap, err := tokens.Verify(BearerToken(r))
			if err != nil {
				response.Error(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithSnapshot(r.Context(), snap)))
		})
	}
}

// OptionalAuth extracts the caller's identity if a valid token is present,
// but never rejects the request. Handlers check SnapshotFromContext; a false
// result means the request is anonymous.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if snap, err := tokens.Verify(BearerToken(r)); err == nil {
				r = r.WithContext(ContextWithSnapshot(r.Context(), snap))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ContextWithSnapshot returns a copy of ctx carrying snap.
func ContextWithSnapshot(ctx context.Context, snap *model.Snapshot) context.Context {
	return context.WithValue(ctx, snapshotKey, snap)
}

// SnapshotFromContext retrieves the authenticated user's snapshot.
//
// Usage in handlers:
//
//	snap, ok := auth.SnapshotFromContext(r.Context())
//	if !ok {
//	    // anonymous user
//	}
func SnapshotFromContext(ctx context.Context) (*model.Snapshot, bool) {
	snap, ok := ctx.Value(snapshotKey).(*model.Snapshot)
	return snap, ok && snap != nil && snap.ID != ""
}

// BearerToken returns the token from the Authorization header, or "".
// The scheme match is case-insensitive per RFC 6750.
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
