// Package handler contains the HTTP handlers of the auth API.
//
// Handlers parse the request, call a service, and write the JSON envelope
// from internal/response. They hold no business rules.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"

	"github.com/sakif/petadopt/internal/apperror"
	"github.com/sakif/petadopt/internal/auth"
	"github.com/sakif/petadopt/internal/response"
	"github.com/sakif/petadopt/internal/service"
)

const (
	stateCookieName = "oauth_state"
	stateCookieAge  = 600 // seconds

	maxJSONBody  = 1 << 20
	maxSetupBody = service.MaxAvatarBytes + 1<<20 // file plus form fields
)

// AuthHandler serves the /api/auth routes.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister / HandleLogin       → password accounts, JSON or form bodies
//   - HandleProviderLogin                → redirect to Google or Facebook
//   - HandleProviderCallback             → exchange the code, redirect to the client with a token
//   - HandleSetupProfile                 → username + avatar (multipart upload or preset)
//   - HandleProfile                      → the snapshot carried by the caller's token
//
// The handler only parses requests and writes responses; every rule lives
// in service.AuthService.
type AuthHandler struct {
	auth         *service.AuthService
	providers    auth.Providers
	clientURL    string
	cookieSecure bool
	logger       *slog.Logger
}

// AuthHandlerConfig holds the HTTP-only settings of AuthHandler.
type AuthHandlerConfig struct {
	// ClientURL is the browser app that provider callbacks redirect to.
	ClientURL string
	// CookieSecure marks the OAuth state cookie Secure (HTTPS deployments).
	CookieSecure bool
}

func NewAuthHandler(
	svc *service.AuthService,
	providers auth.Providers,
	cfg AuthHandlerConfig,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:         svc,
		providers:    providers,
		clientURL:    strings.TrimRight(cfg.ClientURL, "/"),
		cookieSecure: cfg.CookieSecure,
		logger:       logger,
	}
}

// sessionData is the "data" of every response that issues a token.
type sessionData struct {
	Token string `json:"token"`
	User  any    `json:"user"`
}

// =========================================================================
// PASSWORD ACCOUNTS
// =========================================================================

// HandleRegister creates a password account.
//
// HTTP: POST /api/auth/register
// Body: JSON or urlencoded {email, password, first_name?, last_name?}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	err := decodeBody(w, r, &in, func(form url.Values) {
		in = service.RegisterInput{
			Email:     form.Get("email"),
			Password:  form.Get("password"),
			FirstName: form.Get("first_name"),
			LastName:  form.Get("last_name"),
		}
	})
	if err != nil {
		response.Error(w, err)
		return
	}

	result, err := h.auth.Register(r.Context(), in)
	if err != nil {
		h.fail(w, "register", err)
		return
	}

	response.JSON(w, http.StatusCreated, "Registration successful", sessionData{
		Token: result.Token,
		User:  result.User.Snapshot(),
	})
}

// HandleLogin checks an email/password pair.
//
// HTTP: POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	err := decodeBody(w, r, &in, func(form url.Values) {
		in = service.LoginInput{Email: form.Get("email"), Password: form.Get("password")}
	})
	if err != nil {
		response.Error(w, err)
		return
	}

	result, err := h.auth.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		h.fail(w, "login", err)
		return
	}

	response.JSON(w, http.StatusOK, "Login successful", sessionData{
		Token: result.Token,
		User:  result.User.Snapshot(),
	})
}

// =========================================================================
// PROFILE
// =========================================================================

// HandleSetupProfile sets the username and avatar of the caller.
//
// HTTP: POST /api/auth/setup-profile
// Auth: Required
// Body: multipart/form-data {username, avatarType?, avatar? (file)},
// or JSON {username, avatarType}.
//
// The response carries a new token: the old one embeds the pre-setup snapshot.
func (h *AuthHandler) HandleSetupProfile(w http.ResponseWriter, r *http.Request) {
	snap, ok := auth.SnapshotFromContext(r.Context())
	if !ok {
		response.Error(w, apperror.Unauthorized("Authentication required"))
		return
	}

	in, err := decodeProfileSetup(w, r)
	if err != nil {
		response.Error(w, err)
		return
	}

	result, err := h.auth.SetupProfile(r.Context(), snap.ID, in)
	if err != nil {
		h.fail(w, "setup profile", err)
		return
	}

	response.JSON(w, http.StatusOK, "Profile setup completed", sessionData{
		Token: result.Token,
		User:  result.User.Snapshot(),
	})
}

// HandleProfile returns the snapshot embedded in the caller's token.
// Storage is not consulted.
//
// HTTP: GET /api/auth/profile
// Auth: Required
func (h *AuthHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	snap, ok := auth.SnapshotFromContext(r.Context())
	if !ok {
		response.Error(w, apperror.Unauthorized("Access token required"))
		return
	}
	response.JSON(w, http.StatusOK, "Profile data", map[string]any{"user": snap})
}

// =========================================================================
// PROVIDER LOGIN
// =========================================================================

// HandleProviderLogin redirects the browser to the provider's consent page.
//
// HTTP: GET /api/auth/{provider}
//
// CSRF PROTECTION VIA STATE:
// A random state value goes into a short-lived HttpOnly cookie and into the
// authorization URL. The callback only proceeds when both match.
func (h *AuthHandler) HandleProviderLogin(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	p, ok := h.providers.Get(name)
	if !ok {
		response.Error(w, apperror.NotFound("provider", name))
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/api/auth",
		MaxAge:   stateCookieAge,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, p.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleProviderCallback completes a provider login.
//
// HTTP: GET /api/auth/{provider}/callback?code=xxx&state=yyy
//
// The browser is always redirected to the client app:
//
//	success → {CLIENT_URL}/auth/callback?token=<jwt>
//	failure → {CLIENT_URL}/login?error=<reason>
func (h *AuthHandler) HandleProviderCallback(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	p, ok := h.providers.Get(name)
	if !ok {
		h.redirectError(w, r, "unknown_provider")
		return
	}

	q := r.URL.Query()
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || q.Get("state") != stateCookie.Value {
		h.logger.Warn("provider callback: state mismatch", slog.String("provider", name))
		h.redirectError(w, r, "invalid_state")
		return
	}

	// Single use.
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/api/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	if errParam := q.Get("error"); errParam != "" {
		h.logger.Info("provider callback: authorization denied",
			slog.String("provider", name),
			slog.String("error", errParam),
		)
		h.redirectError(w, r, "access_denied")
		return
	}

	code := q.Get("code")
	if code == "" {
		h.redirectError(w, r, "missing_code")
		return
	}

	profile, err := p.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("provider callback: exchange failed",
			slog.String("provider", name),
			slog.String("error", err.Error()),
		)
		h.redirectError(w, r, "provider_error")
		return
	}

	result, err := h.auth.LoginWithProvider(r.Context(), profile)
	if err != nil {
		h.logger.Error("provider callback: resolving identity failed",
			slog.String("provider", name),
			slog.String("error", err.Error()),
		)
		h.redirectError(w, r, "login_failed")
		return
	}

	target := h.clientURL + "/auth/callback?token=" + url.QueryEscape(result.Token)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *AuthHandler) redirectError(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r, h.clientURL+"/login?error="+url.QueryEscape(reason), http.StatusSeeOther)
}

// fail logs server-side failures and sends the error envelope.
// Client errors (4xx) are expected traffic and are not logged here.
func (h *AuthHandler) fail(w http.ResponseWriter, op string, err error) {
	if response.StatusOf(err) >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", slog.String("error", err.Error()))
	}
	response.Error(w, err)
}

// =========================================================================
// REQUEST DECODING
// =========================================================================

var errBadBody = apperror.ValidationFailed("body", "Invalid request body")

func mediaType(r *http.Request) string {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}

// decodeBody reads a JSON body into dst, or a urlencoded/multipart form via
// fromForm. Any other content type is treated as JSON.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, fromForm func(url.Values)) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	switch mediaType(r) {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return errBadBody
		}
		fromForm(r.PostForm)
		return nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxJSONBody); err != nil {
			return errBadBody
		}
		fromForm(r.PostForm)
		return nil
	}

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.ValidationFailed("body", "Request body is empty")
		}
		return errBadBody
	}
	return nil
}

// decodeProfileSetup accepts multipart (with an optional "avatar" file),
// urlencoded, or JSON bodies.
func decodeProfileSetup(w http.ResponseWriter, r *http.Request) (service.ProfileSetupInput, error) {
	var in service.ProfileSetupInput

	if mediaType(r) != "multipart/form-data" {
		err := decodeBody(w, r, &in, func(form url.Values) {
			in = service.ProfileSetupInput{Username: form.Get("username"), AvatarType: form.Get("avatarType")}
		})
		return in, err
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxSetupBody)
	if err := r.ParseMultipartForm(maxJSONBody); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return in, apperror.ValidationFailed("avatar", "Avatar must be 5 MB or smaller")
		}
		return in, errBadBody
	}
	in.Username = r.PostFormValue("username")
	in.AvatarType = r.PostFormValue("avatarType")

	file, header, err := r.FormFile("avatar")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return in, nil
	case err != nil:
		return in, errBadBody
	}
	defer file.Close()

	// One byte over the limit is enough for the service to reject it.
	data, err := io.ReadAll(io.LimitReader(file, service.MaxAvatarBytes+1))
	if err != nil {
		return in, errBadBody
	}
	in.Upload = &service.AvatarUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}
	return in, nil
}
