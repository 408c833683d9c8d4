// Package service holds the business rules of the auth API.
//
//	AuthHandler (HTTP) → AuthService → IdentityResolver → UserRepository (DB)
//	                               ↘ TokenService (JWT)      ↘ AvatarStore (blobs)
//
// IdentityResolver turns a credential assertion (email+password, or a
// provider profile) into exactly one canonical User row. AuthService adds
// the session token and metrics on top. Neither knows about HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"

	"github.com/sakif/petadopt/internal/apperror"
	"github.com/sakif/petadopt/internal/auth"
	"github.com/sakif/petadopt/internal/model"
	"github.com/sakif/petadopt/internal/repository"
	"github.com/sakif/petadopt/internal/storage"
)

const (
	// maxUsernameAttempts bounds generate-check-insert rounds for a new account.
	maxUsernameAttempts = 8
	// maxResolveAttempts bounds lookups restarted after losing an insert race.
	maxResolveAttempts = 3

	usernameBaseLen   = 16
	minUsernameLen    = 3
	maxUsernameLen    = 20
	minPasswordLen    = 6
	MaxAvatarBytes    = 5 << 20
	msgBadCredentials = "Invalid credentials"
	msgUseProvider    = "Please use provider login"
)

// RegisterInput is the body of POST /api/auth/register.
type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (in RegisterInput) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Email,
			validation.Required.Error("Email and password are required"),
			is.Email.Error("Email address is invalid"),
		),
		validation.Field(&in.Password,
			validation.Required.Error("Email and password are required"),
			validation.RuneLength(minPasswordLen, 0).
				Error(fmt.Sprintf("Password must be at least %d characters", minPasswordLen)),
			// bcrypt reads at most 72 bytes, not characters.
			validation.Length(0, auth.MaxPasswordBytes).
				Error(fmt.Sprintf("Password must be at most %d bytes", auth.MaxPasswordBytes)),
		),
		validation.Field(&in.FirstName, validation.RuneLength(0, 100)),
		validation.Field(&in.LastName, validation.RuneLength(0, 100)),
	)
	return fieldError(err, "email", "password", "first_name", "last_name")
}

// LoginInput is the body of POST /api/auth/login.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in LoginInput) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required.Error("Email and password are required")),
		validation.Field(&in.Password, validation.Required.Error("Email and password are required")),
	)
	return fieldError(err, "email", "password")
}

// AvatarUpload is an uploaded image file. Data is already read in full;
// the handler caps the request body before parsing.
type AvatarUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ProfileSetupInput is the body of POST /api/auth/setup-profile.
// When Upload is set, AvatarType is ignored.
type ProfileSetupInput struct {
	Username   string        `json:"username"`
	AvatarType string        `json:"avatarType"`
	Upload     *AvatarUpload `json:"-"`
}

func (in ProfileSetupInput) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Username,
			validation.Required.Error("Username is required"),
			validation.RuneLength(minUsernameLen, maxUsernameLen).
				Error(fmt.Sprintf("Username must be between %d and %d characters", minUsernameLen, maxUsernameLen)),
		),
	)
	return fieldError(err, "username")
}

// IdentityResolver maps credential assertions to canonical user rows.
//
// Uniqueness of email, username and provider ids is checked in Go first
// and enforced by the database's UNIQUE constraints; a lost race comes back
// as apperror.Conflict and is treated as "someone else just created it".
type IdentityResolver struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	avatars   storage.AvatarStore
	logger    *slog.Logger

	// suffix returns the random part of generated usernames; replaced in tests.
	suffix func() int
}

func NewIdentityResolver(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	avatars storage.AvatarStore,
	logger *slog.Logger,
) *IdentityResolver {
	return &IdentityResolver{
		users:     users,
		passwords: passwords,
		avatars:   avatars,
		logger:    logger,
		suffix:    func() int { return rand.IntN(1000) },
	}
}

// =========================================================================
// PASSWORD ACCOUNTS
// =========================================================================

// RegisterWithPassword creates a password account.
func (r *IdentityResolver) RegisterWithPassword(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Email = normalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if err := in.Validate(); err != nil {
		return nil, err
	}

	_, err := r.users.GetByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return nil, apperror.Conflict("email", "Email already registered")
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/identity: checking email: %w", err)
	}

	hash, err := r.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/identity: hashing password: %w", err)
	}

	user := &model.User{
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		AvatarURL:    model.DefaultAvatar,
	}
	if err := r.createWithUsername(ctx, user); err != nil {
		return nil, err
	}

	r.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// AuthenticateWithPassword checks an email/password pair. It never writes.
//
// Unknown email and wrong password produce the same error so the response
// does not reveal which accounts exist.
func (r *IdentityResolver) AuthenticateWithPassword(ctx context.Context, email, password string) (*model.User, error) {
	in := LoginInput{Email: normalizeEmail(email), Password: password}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	user, err := r.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized(msgBadCredentials)
		}
		return nil, fmt.Errorf("service/identity: loading user: %w", err)
	}

	if !user.HasPassword() {
		return nil, apperror.Unauthorized(msgUseProvider)
	}

	if err := r.passwords.Verify(user.PasswordHash, in.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.Unauthorized(msgBadCredentials)
		}
		return nil, fmt.Errorf("service/identity: verifying password for %s: %w", user.ID, err)
	}

	return user, nil
}

// =========================================================================
// PROVIDER ACCOUNTS
// =========================================================================

// ResolveProviderIdentity finds or creates the user behind a provider profile.
//
// Lookup order:
//  1. a row already linked to the provider id
//  2. a row with the same email, which gets the provider id linked
//  3. a new row
//
// Two first logins racing for the same identity both reach step 3; the
// loser's insert hits a UNIQUE constraint and its next round finds the
// winner's row at step 1 or 2.
func (r *IdentityResolver) ResolveProviderIdentity(ctx context.Context, p *auth.Profile) (*model.User, error) {
	if p == nil || p.ID == "" {
		return nil, apperror.ValidationFailed("provider", "Provider profile is missing an id")
	}
	column, ok := repository.ProviderColumn(p.Provider)
	if !ok {
		return nil, apperror.ValidationFailed("provider", fmt.Sprintf("Unsupported provider %q", p.Provider))
	}

	email := normalizeEmail(p.Email)
	if email == "" {
		email = fmt.Sprintf("%s@%s.com", p.ID, p.Provider)
	}

	var lastErr error
	for attempt := 1; attempt <= maxResolveAttempts; attempt++ {
		user, err := r.resolveOnce(ctx, p, email)
		if err == nil {
			return user, nil
		}
		if !apperror.IsConflictOn(err, "email") && !apperror.IsConflictOn(err, column) {
			return nil, err
		}
		r.logger.Debug("provider identity race, retrying",
			slog.String("provider", string(p.Provider)),
			slog.Int("attempt", attempt),
		)
		lastErr = err
	}

	return nil, fmt.Errorf("service/identity: resolving %s identity after %d attempts: %w",
		p.Provider, maxResolveAttempts, lastErr)
}

func (r *IdentityResolver) resolveOnce(ctx context.Context, p *auth.Profile, email string) (*model.User, error) {
	user, err := r.users.GetByProviderID(ctx, p.Provider, p.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/identity: looking up %s id: %w", p.Provider, err)
	}

	user, err = r.users.GetByEmail(ctx, email)
	if err == nil {
		if prev := user.ProviderID(p.Provider); prev != "" && prev != p.ID {
			r.logger.Warn("replacing provider linkage",
				slog.String("userID", user.ID),
				slog.String("provider", string(p.Provider)),
			)
		}
		if err := r.users.LinkProvider(ctx, user.ID, p.Provider, p.ID); err != nil {
			return nil, fmt.Errorf("service/identity: linking %s: %w", p.Provider, err)
		}
		user.SetProviderID(p.Provider, p.ID)
		r.logger.Info("provider linked to existing account",
			slog.String("userID", user.ID),
			slog.String("provider", string(p.Provider)),
		)
		return user, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/identity: looking up email: %w", err)
	}

	first, last := profileNames(p)
	avatar := p.PhotoURL
	if avatar == "" {
		avatar = model.DefaultAvatar
	}
	user = &model.User{
		Email:     email,
		FirstName: first,
		LastName:  last,
		AvatarURL: avatar,
	}
	user.SetProviderID(p.Provider, p.ID)

	if err := r.createWithUsername(ctx, user); err != nil {
		return nil, err
	}

	r.logger.Info("user created from provider login",
		slog.String("userID", user.ID),
		slog.String("provider", string(p.Provider)),
	)
	return user, nil
}

// profileNames prefers the structured names, then splits the display name
// on its first space, then falls back to "User".
func profileNames(p *auth.Profile) (first, last string) {
	display := strings.TrimSpace(p.DisplayName)
	if display == "" {
		display = strings.TrimSpace(p.GivenName)
	}
	if display == "" {
		display = "User"
	}
	head, tail, _ := strings.Cut(display, " ")

	first = strings.TrimSpace(p.GivenName)
	if first == "" {
		first = head
	}
	last = strings.TrimSpace(p.FamilyName)
	if last == "" {
		last = strings.TrimSpace(tail)
	}
	return first, last
}

// =========================================================================
// USERNAMES
// =========================================================================

// createWithUsername inserts user with a generated username, regenerating
// when the candidate is taken. Other conflicts are returned as-is.
func (r *IdentityResolver) createWithUsername(ctx context.Context, user *model.User) error {
	for range maxUsernameAttempts {
		candidate := r.generateUsername(user.Email)

		taken, err := r.users.UsernameTaken(ctx, candidate, "")
		if err != nil {
			return fmt.Errorf("service/identity: checking username: %w", err)
		}
		if taken {
			continue
		}

		user.Username = candidate
		err = r.users.Create(ctx, user)
		if err == nil {
			return nil
		}
		if !apperror.IsConflictOn(err, "username") {
			return err
		}
	}
	user.Username = ""
	return fmt.Errorf("service/identity: no free username after %d attempts", maxUsernameAttempts)
}

// generateUsername builds "<local-part><0..999>" from an email address.
// The local part keeps only letters, digits, '.', '_' and '-', and is cut
// so the result never exceeds the username length limit.
func (r *IdentityResolver) generateUsername(email string) string {
	local, _, _ := strings.Cut(email, "@")

	var b strings.Builder
	for _, c := range local {
		if b.Len() >= usernameBaseLen {
			break
		}
		if c < unicode.MaxASCII && (unicode.IsLetter(c) || unicode.IsDigit(c) || strings.ContainsRune("._-", c)) {
			b.WriteRune(c)
		}
	}
	base := b.String()
	if base == "" {
		base = "user"
	}
	return fmt.Sprintf("%s%d", base, r.suffix())
}

// =========================================================================
// PROFILE SETUP
// =========================================================================

// CompleteProfileSetup sets the username and avatar of userID and marks the
// profile as set up.
//
// Avatar precedence: an upload, then a preset named by AvatarType, then
// the avatar the account already has.
func (r *IdentityResolver) CompleteProfileSetup(ctx context.Context, userID string, in ProfileSetupInput) (*model.User, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("Authentication required")
	}
	in.Username = strings.TrimSpace(in.Username)
	in.AvatarType = strings.TrimSpace(in.AvatarType)
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.Upload == nil && in.AvatarType != "" && !model.IsPresetAvatar(in.AvatarType) {
		return nil, apperror.ValidationFailed("avatarType", "Unknown avatar")
	}

	current, err := r.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/identity: loading user: %w", err)
	}

	// Checked before the upload so a taken name does not leave an orphan file.
	taken, err := r.users.UsernameTaken(ctx, in.Username, userID)
	if err != nil {
		return nil, fmt.Errorf("service/identity: checking username: %w", err)
	}
	if taken {
		return nil, apperror.Conflict("username", "Username already taken")
	}

	avatarURL := current.AvatarURL
	switch {
	case in.Upload != nil:
		avatarURL, err = r.storeAvatar(ctx, userID, in.Upload)
		if err != nil {
			return nil, err
		}
	case in.AvatarType != "":
		avatarURL = in.AvatarType
	}
	if avatarURL == "" {
		avatarURL = model.DefaultAvatar
	}

	user, err := r.users.CompleteProfile(ctx, userID, in.Username, avatarURL)
	if err != nil {
		if in.Upload != nil {
			r.discardAvatar(ctx, userID, avatarURL)
		}
		return nil, fmt.Errorf("service/identity: completing profile: %w", err)
	}

	r.logger.Info("profile setup completed",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// storeAvatar checks an upload and hands it to the avatar store.
// The content type is sniffed; the client-declared one is not trusted.
func (r *IdentityResolver) storeAvatar(ctx context.Context, userID string, up *AvatarUpload) (string, error) {
	if len(up.Data) == 0 {
		return "", apperror.ValidationFailed("avatar", "Avatar file is empty")
	}
	if len(up.Data) > MaxAvatarBytes {
		return "", apperror.ValidationFailed("avatar", "Avatar must be 5 MB or smaller")
	}

	// The extension always follows the sniffed type, never the client's
	// filename: the file server picks Content-Type from the extension.
	contentType := http.DetectContentType(up.Data)
	ext := extensionFor(contentType)
	if ext == "" {
		return "", apperror.ValidationFailed("avatar", "Avatar must be a PNG, JPEG, GIF, WebP or BMP image")
	}
	name := fmt.Sprintf("avatar_%s_%s%s", userID, uuid.NewString(), ext)

	url, err := r.avatars.Store(ctx, name, contentType, up.Data)
	if err != nil {
		r.logger.Error("storing avatar failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return "", apperror.Upstream("storing avatar", err)
	}
	r.logger.Debug("avatar stored",
		slog.String("userID", userID),
		slog.String("client_filename", up.Filename),
		slog.String("content_type", contentType),
		slog.String("url", url),
	)
	return url, nil
}

// discardAvatar removes an avatar stored for a profile update that then
// failed. A failure here only leaves an unreferenced file, so it is logged.
func (r *IdentityResolver) discardAvatar(ctx context.Context, userID, url string) {
	// The request context may already be done; the cleanup still runs.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := r.avatars.Delete(ctx, url); err != nil {
		r.logger.Warn("removing orphaned avatar failed",
			slog.String("userID", userID),
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
	}
}

// extensionFor maps the image types DetectContentType recognizes to a file
// extension. Anything else is not accepted as an avatar.
func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	}
	return ""
}
