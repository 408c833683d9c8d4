package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/petadopt/internal/apperror"
	"github.com/sakif/petadopt/internal/auth"
	"github.com/sakif/petadopt/internal/metrics"
	"github.com/sakif/petadopt/internal/model"
)

// AuthService pairs every successful identity resolution with a session token.
//
// DEPENDENCIES (injected via NewAuthService):
//   - identities *IdentityResolver   → find/create the canonical user
//   - tokens     *auth.TokenService  → sign the snapshot into a JWT
//   - metrics    metrics.Recorder    → auth attempt counters (may be Noop)
//   - logger     *slog.Logger
type AuthService struct {
	identities *IdentityResolver
	tokens     *auth.TokenService
	metrics    metrics.Recorder
	logger     *slog.Logger
}

func NewAuthService(
	identities *IdentityResolver,
	tokens *auth.TokenService,
	rec metrics.Recorder,
	logger *slog.Logger,
) *AuthService {
	if rec == nil {
		rec = metrics.NewNoopMetrics()
	}
	return &AuthService{
		identities: identities,
		tokens:     tokens,
		metrics:    rec,
		logger:     logger,
	}
}

// AuthResult bundles the user record and the issued JWT so the handler can
// respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// Register creates a password account and signs it in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	return s.run("register", func() (*model.User, error) {
		return s.identities.RegisterWithPassword(ctx, in)
	})
}

// Login checks an email/password pair.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	return s.run("password", func() (*model.User, error) {
		return s.identities.AuthenticateWithPassword(ctx, email, password)
	})
}

// LoginWithProvider resolves a profile the provider has already vouched for.
func (s *AuthService) LoginWithProvider(ctx context.Context, profile *auth.Profile) (*AuthResult, error) {
	method := "provider"
	if profile != nil {
		method = string(profile.Provider)
	}
	return s.run(method, func() (*model.User, error) {
		return s.identities.ResolveProviderIdentity(ctx, profile)
	})
}

// SetupProfile completes profile setup and issues a fresh token, since the
// old token's snapshot no longer matches the row.
func (s *AuthService) SetupProfile(ctx context.Context, userID string, in ProfileSetupInput) (*AuthResult, error) {
	return s.run("profile_setup", func() (*model.User, error) {
		return s.identities.CompleteProfileSetup(ctx, userID, in)
	})
}

func (s *AuthService) run(method string, resolve func() (*model.User, error)) (*AuthResult, error) {
	start := time.Now()
	user, err := resolve()
	s.metrics.RecordAuthAttempt(method, err == nil, time.Since(start))
	if err != nil {
		if apperror.IsAuth(err) {
			s.logger.Info("authentication rejected",
				slog.String("method", method),
				slog.String("reason", err.Error()),
			)
		}
		return nil, err
	}

	token, err := s.tokens.Issue(user.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for user %s: %w", user.ID, err)
	}
	s.metrics.RecordTokenIssued(method)

	s.logger.Info("session issued",
		slog.String("userID", user.ID),
		slog.String("method", method),
	)
	return &AuthResult{User: user, Token: token}, nil
}
