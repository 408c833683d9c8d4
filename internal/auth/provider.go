package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/sakif/petadopt/internal/apperror"
	"github.com/sakif/petadopt/internal/model"
)

const (
	googleUserInfoURL   = "https://www.googleapis.com/oauth2/v3/userinfo"
	facebookUserInfoURL = "https://graph.facebook.com/me?fields=id,name,email,first_name,last_name,picture.type(large)"
)

// Profile is the identity an external provider asserts after a successful
// code exchange. Email may be empty (Facebook accounts registered by phone).
type Profile struct {
	Provider    model.Provider
	ID          string
	Email       string
	DisplayName string
	GivenName   string
	FamilyName  string
	PhotoURL    string
}

// Provider is an external identity service using the Authorization Code flow.
type Provider interface {
	Name() model.Provider
	// AuthURL is where the browser is sent to approve the login.
	AuthURL(state string) string
	// Exchange trades the callback code for the user's profile.
	Exchange(ctx context.Context, code string) (*Profile, error)
}

// ProviderConfig carries the credentials registered with a provider.
//
// Endpoint and UserInfoURL are optional; when zero, the provider's public
// URLs are used. Tests point them at an httptest server.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Endpoint     oauth2.Endpoint
	UserInfoURL  string
}

// OAuthProvider wraps golang.org/x/oauth2 for one provider.
//
// OAUTH 2.0 AUTHORIZATION CODE FLOW:
//  1. Redirect the browser to AuthURL(state).
//  2. The user approves on the provider's site.
//  3. The provider redirects to CallbackURL with ?code=...&state=...
//  4. Exchange trades the code for an access token (server-to-server, uses ClientSecret).
//  5. The token is used to fetch the userinfo document.
type OAuthProvider struct {
	name        model.Provider
	config      *oauth2.Config
	userInfoURL string
	decode      func(io.Reader) (*Profile, error)
}

var _ Provider = (*OAuthProvider)(nil)

// NewGoogleProvider creates a Google OpenID Connect provider.
// Scopes: "openid", "profile", "email" (userinfo v3 document).
func NewGoogleProvider(cfg ProviderConfig) *OAuthProvider {
	return newOAuthProvider(model.ProviderGoogle, cfg,
		endpoints.Google, googleUserInfoURL,
		[]string{"openid", "profile", "email"},
		decodeGoogleProfile,
	)
}

// NewFacebookProvider creates a Facebook Login provider backed by the Graph API.
func NewFacebookProvider(cfg ProviderConfig) *OAuthProvider {
	return newOAuthProvider(model.ProviderFacebook, cfg,
		endpoints.Facebook, facebookUserInfoURL,
		[]string{"public_profile", "email"},
		decodeFacebookProfile,
	)
}

func newOAuthProvider(
	name model.Provider,
	cfg ProviderConfig,
	endpoint oauth2.Endpoint,
	userInfoURL string,
	scopes []string,
	decode func(io.Reader) (*Profile, error),
) *OAuthProvider {
	if cfg.Endpoint.AuthURL != "" {
		endpoint = cfg.Endpoint
	}
	if cfg.UserInfoURL != "" {
		userInfoURL = cfg.UserInfoURL
	}
	return &OAuthProvider{
		name: name,
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		userInfoURL: userInfoURL,
		decode:      decode,
	}
}

func (p *OAuthProvider) Name() model.Provider {
	return p.name
}

// AuthURL returns the provider authorization URL.
// The caller stores state in a cookie and compares it on callback (CSRF check).
func (p *OAuthProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange completes the flow: code → access token → userinfo → Profile.
// All failures are apperror.Upstream; the request context bounds both calls.
func (p *OAuthProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, apperror.Upstream(fmt.Sprintf("%s: exchanging OAuth code", p.name), err)
	}

	// Client adds "Authorization: Bearer <access token>" to every request.
	client := p.config.Client(ctx, oauthToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, apperror.Upstream(fmt.Sprintf("%s: building userinfo request", p.name), err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, apperror.Upstream(fmt.Sprintf("%s: calling userinfo", p.name), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperror.Upstream(
			fmt.Sprintf("%s: userinfo returned status %d", p.name, resp.StatusCode),
			fmt.Errorf("%s", body),
		)
	}

	profile, err := p.decode(resp.Body)
	if err != nil {
		return nil, apperror.Upstream(fmt.Sprintf("%s: decoding userinfo", p.name), err)
	}
	if profile.ID == "" {
		return nil, apperror.Upstream(fmt.Sprintf("%s: userinfo has no subject", p.name), nil)
	}

	profile.Provider = p.name
	return profile, nil
}

// googleUser is the subset of the OpenID userinfo v3 document we read.
type googleUser struct {
	Sub        string `json:"sub"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Picture    string `json:"picture"`
}

func decodeGoogleProfile(r io.Reader) (*Profile, error) {
	var u googleUser
	if err := json.NewDecoder(r).Decode(&u); err != nil {
		return nil, err
	}
	return &Profile{
		ID:          u.Sub,
		Email:       u.Email,
		DisplayName: u.Name,
		GivenName:   u.GivenName,
		FamilyName:  u.FamilyName,
		PhotoURL:    u.Picture,
	}, nil
}

type facebookUser struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Picture   struct {
		Data struct {
			URL          string `json:"url"`
			IsSilhouette bool   `json:"is_silhouette"`
		} `json:"data"`
	} `json:"picture"`
}

func decodeFacebookProfile(r io.Reader) (*Profile, error) {
	var u facebookUser
	if err := json.NewDecoder(r).Decode(&u); err != nil {
		return nil, err
	}
	p := &Profile{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.Name,
		GivenName:   u.FirstName,
		FamilyName:  u.LastName,
	}
	// The default silhouette is not a real photo; fall back to our preset.
	if !u.Picture.Data.IsSilhouette {
		p.PhotoURL = u.Picture.Data.URL
	}
	return p, nil
}

// Providers is the set of configured providers, keyed by name.
// It is built once in the composition root and passed in; nothing registers
// itself at import time.
type Providers map[model.Provider]Provider

// NewProviders indexes ps by Name. Nil entries are skipped.
func NewProviders(ps ...Provider) Providers {
	out := make(Providers, len(ps))
	for _, p := range ps {
		if p != nil {
			out[p.Name()] = p
		}
	}
	return out
}

// Get looks up a provider by its URL name, e.g. "google".
func (ps Providers) Get(name string) (Provider, bool) {
	p, ok := ps[model.Provider(name)]
	return p, ok
}

// Names returns the configured provider names in sorted order.
func (ps Providers) Names() []string {
	names := make([]string, 0, len(ps))
	for n := range ps {
		names = append(names, string(n))
	}
	sort.Strings(names)
	return names
}
