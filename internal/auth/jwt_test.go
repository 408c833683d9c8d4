package auth

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/petadopt/internal/apperror"
	"github.com/sakif/petadopt/internal/model"
)

const testSecret = "test-secret-at-least-16-chars!!"

// newTestTokenService creates a TokenService with a fixed, known secret.
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService(testSecret, 0)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

func testSnapshot() model.Snapshot {
	return model.Snapshot{
		ID:        "cv37rs3pp9olc6atsptg",
		Email:     "a@x.com",
		Username:  "a417",
		FirstName: "Ada",
		LastName:  "Lovelace",
		AvatarURL: model.DefaultAvatar,
	}
}

// =========================================================================
// TOKEN SERVICE CONSTRUCTION TESTS
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short", 0)
	if err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestNewTokenService_DefaultTTL(t *testing.T) {
	ts := newTestTokenService(t)
	if ts.TTL() != 7*24*time.Hour {
		t.Errorf("TTL() = %v, want 168h", ts.TTL())
	}
}

// =========================================================================
// ISSUE TESTS
// =========================================================================

func TestIssue_LooksLikeJWT(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Issue(testSnapshot())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if got := strings.Count(token, "."); got != 2 {
		t.Errorf("Issue() token has %d dots, want 2", got)
	}
}

func TestIssue_RejectsSnapshotWithoutID(t *testing.T) {
	ts := newTestTokenService(t)

	if _, err := ts.Issue(model.Snapshot{Email: "a@x.com"}); err == nil {
		t.Fatal("Issue() should reject a snapshot without id")
	}
}

func TestIssue_ExpiresAfterSevenDays(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Issue(testSnapshot())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	var c claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		t.Fatalf("ParseUnverified() error = %v", err)
	}
	lifetime := c.ExpiresAt.Sub(c.IssuedAt.Time)
	if lifetime != DefaultTokenTTL {
		t.Errorf("token lifetime = %v, want %v", lifetime, DefaultTokenTTL)
	}
}

// =========================================================================
// VERIFY TESTS
// =========================================================================

func TestVerify_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)
	want := testSnapshot()
	want.ProfileSetupCompleted = true

	token, err := ts.Issue(want)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	got, err := ts.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if *got != want {
		t.Errorf("Verify() = %+v, want %+v", *got, want)
	}
}

func TestVerify_RoundTripFromUserDropsCredential(t *testing.T) {
	ts := newTestTokenService(t)
	u := &model.User{
		ID:           "u-1",
		Email:        "b@x.com",
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuv",
		GoogleID:     "g-1",
	}

	token, err := ts.Issue(u.Snapshot())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.Split(token, ".")[1])
	if err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if strings.Contains(string(payload), "$2a$") || strings.Contains(string(payload), "g-1") {
		t.Errorf("token payload leaks secrets: %s", payload)
	}

	got, err := ts.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if *got != u.Snapshot() {
		t.Errorf("Verify() = %+v, want %+v", *got, u.Snapshot())
	}
}

func TestVerify_EmptyTokenIsUnauthorized(t *testing.T) {
	ts := newTestTokenService(t)

	_, err := ts.Verify("")
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Fatalf("Verify(\"\") error = %v, want ErrUnauthorized", err)
	}
}

func TestVerify_ExpiredToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.IssueWithDuration(testSnapshot(), -1*time.Second)
	if err != nil {
		t.Fatalf("IssueWithDuration() error = %v", err)
	}

	_, err = ts.Verify(token)
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("Verify() error = %v, want ErrForbidden", err)
	}
	if !apperror.IsAuth(err) {
		t.Error("expired token error should be in the auth class")
	}
}

func TestVerify_TamperedPayload(t *testing.T) {
	ts := newTestTokenService(t)

	token, _ := ts.Issue(testSnapshot())
	parts := strings.Split(token, ".")

	// Rewrite the payload to claim a different email, keep the old signature.
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	forged := strings.Replace(string(payload), "a@x.com", "z@x.com", 1)
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(forged))

	_, err = ts.Verify(strings.Join(parts, "."))
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("Verify() error = %v, want ErrForbidden", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	ts1, _ := NewTokenService("correct-secret-32-chars-long!!!!", 0)
	ts2, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!", 0)

	token, _ := ts1.Issue(testSnapshot())

	if _, err := ts2.Verify(token); !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("Verify() with a different secret error = %v, want ErrForbidden", err)
	}
}

func TestVerify_RejectsNoneAlgorithm(t *testing.T) {
	ts := newTestTokenService(t)

	c := claims{
		User: testSnapshot(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   testSnapshot().ID,
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, c).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing with none: %v", err)
	}

	if _, err := ts.Verify(unsigned); !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("Verify() on alg=none error = %v, want ErrForbidden", err)
	}
}

func TestVerify_GarbageString(t *testing.T) {
	ts := newTestTokenService(t)

	if _, err := ts.Verify("not.a.jwt.token"); !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("Verify() on garbage error = %v, want ErrForbidden", err)
	}
}
