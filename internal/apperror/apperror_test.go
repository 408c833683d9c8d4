package apperror

import (
	"errors"
	"fmt"
	"testing"
)

// TABLE-DRIVEN TESTS:
// Each case pairs a constructor with the sentinel it must (or must not) match.
// Adding a new error kind = adding rows here.

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("user", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("email", "Email is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("email", "Email already registered"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "Unauthorized wraps ErrUnauthorized",
			err:       Unauthorized("Access token required"),
			target:    ErrUnauthorized,
			wantMatch: true,
		},
		{
			name:      "Forbidden wraps ErrForbidden",
			err:       Forbidden("Invalid or expired token"),
			target:    ErrForbidden,
			wantMatch: true,
		},
		{
			name:      "RateLimited wraps ErrRateLimited",
			err:       RateLimited(),
			target:    ErrRateLimited,
			wantMatch: true,
		},
		{
			name:      "Upstream wraps ErrUpstream",
			err:       Upstream("database unavailable", errors.New("dial tcp: refused")),
			target:    ErrUpstream,
			wantMatch: true,
		},
		{
			name:      "wrapped with fmt.Errorf still matches",
			err:       fmt.Errorf("service/identity: registering: %w", Conflict("email", "taken")),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "Unauthorized does NOT match ErrForbidden",
			err:       Unauthorized("Access token required"),
			target:    ErrForbidden,
			wantMatch: false,
		},
		{
			name:      "ValidationFailed does NOT match ErrNotFound",
			err:       ValidationFailed("username", "too short"),
			target:    ErrNotFound,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestUpstream_CauseIsReachable(t *testing.T) {
	cause := errors.New("connection reset")
	err := Upstream("storing avatar", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	if got, want := err.Error(), "storing avatar: connection reset"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("user", "abc123"),
			wantMessage: "user not found with id abc123",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("password", "Password must be at least 6 characters"),
			wantMessage: "Password must be at least 6 characters",
		},
		{
			name:        "Conflict uses custom message",
			err:         Conflict("username", "Username already taken"),
			wantMessage: "Username already taken",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestIsAuth(t *testing.T) {
	if !IsAuth(Unauthorized("x")) {
		t.Error("IsAuth(Unauthorized) = false")
	}
	if !IsAuth(fmt.Errorf("wrapped: %w", Forbidden("x"))) {
		t.Error("IsAuth(wrapped Forbidden) = false")
	}
	if IsAuth(ValidationFailed("email", "x")) {
		t.Error("IsAuth(ValidationFailed) = true")
	}
}

func TestIsConflictOn(t *testing.T) {
	err := fmt.Errorf("sqldb: inserting user: %w", Conflict("email", "Email already registered"))

	if !IsConflictOn(err, "email") {
		t.Error("IsConflictOn(err, email) = false")
	}
	if !IsConflictOn(err, "") {
		t.Error("IsConflictOn(err, \"\") = false")
	}
	if IsConflictOn(err, "username") {
		t.Error("IsConflictOn(err, username) = true")
	}
	if IsConflictOn(NotFound("user", "1"), "") {
		t.Error("IsConflictOn(NotFound) = true")
	}
}
