// Package google implements the federated bridge for Google sign-in. The
// code exchange returns an OIDC id_token, which is verified locally
// against Google's JWKS instead of a userinfo round trip.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/encorehq/go-identity/federated"
)

const (
	defaultAuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultTokenURL = "https://oauth2.googleapis.com/token"
	defaultJWKSURL  = "https://www.googleapis.com/oauth2/v3/certs"
)

// Google signs id_tokens under either issuer form.
var validIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

// Config holds Google OAuth configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	AuthURL  string
	TokenURL string
	JWKSURL  string

	// KeyFunc overrides JWKS resolution, used by tests to supply a
	// local signing key.
	KeyFunc jwt.Keyfunc

	HTTPClient *http.Client
}

// DefaultScopes returns the default Google scopes.
func DefaultScopes() []string {
	return []string{"openid", "email", "profile"}
}

// Provider implements federated.Provider for Google.
type Provider struct {
	config     Config
	httpClient *http.Client

	jwksOnce sync.Once
	keyFunc  jwt.Keyfunc
	jwksErr  error
}

var _ federated.Provider = (*Provider)(nil)

// New creates a new Google provider.
func New(cfg Config) *Provider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.JWKSURL == "" {
		cfg.JWKSURL = defaultJWKSURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Provider{
		config:     cfg,
		httpClient: client,
	}
}

// Name implements federated.Provider.
func (p *Provider) Name() string {
	return "google"
}

// AuthCodeURL implements federated.Provider.
func (p *Provider) AuthCodeURL(state string) string {
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.CallbackURL},
		"response_type": {"code"},
		"scope":         {strings.Join(p.config.Scopes, " ")},
		"state":         {state},
	}

	return p.config.AuthURL + "?" + params.Encode()
}

// Exchange implements federated.Provider. It redeems the code, verifies
// the returned id_token, and maps its claims. The access and refresh
// tokens in the response are read and discarded here.
func (p *Provider) Exchange(ctx context.Context, code string) (*federated.Claims, error) {
	data := url.Values{
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"code":          {code},
		"redirect_uri":  {p.config.CallbackURL},
		"grant_type":    {"authorization_code"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var tokenResp googleTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("google: failed to decode token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || tokenResp.Error != "" {
		msg := tokenResp.ErrorDesc
		if msg == "" {
			msg = tokenResp.Error
		}
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return nil, fmt.Errorf("google: exchange failed (%d): %s", resp.StatusCode, msg)
	}

	if tokenResp.IDToken == "" {
		return nil, fmt.Errorf("google: token response missing id_token")
	}

	return p.verifyIDToken(tokenResp.IDToken)
}

func (p *Provider) verifyIDToken(raw string) (*federated.Claims, error) {
	kf, err := p.keyfunc()
	if err != nil {
		return nil, err
	}

	claims := &idTokenClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, kf,
		jwt.WithAudience(p.config.ClientID),
		jwt.WithValidMethods([]string{"RS256"}),
	)
	if err != nil {
		return nil, fmt.Errorf("google: id_token rejected: %w", err)
	}

	issuerOK := false
	for _, iss := range validIssuers {
		if claims.Issuer == iss {
			issuerOK = true
			break
		}
	}
	if !issuerOK {
		return nil, fmt.Errorf("google: unexpected issuer %q", claims.Issuer)
	}

	return &federated.Claims{
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		AvatarURL:     claims.Picture,
	}, nil
}

func (p *Provider) keyfunc() (jwt.Keyfunc, error) {
	if p.config.KeyFunc != nil {
		return p.config.KeyFunc, nil
	}

	p.jwksOnce.Do(func() {
		jwks, err := keyfunc.Get(p.config.JWKSURL, keyfunc.Options{
			RefreshInterval:   time.Hour,
			RefreshRateLimit:  time.Minute * 5,
			RefreshTimeout:    time.Second * 10,
			RefreshUnknownKID: true,
		})
		if err != nil {
			p.jwksErr = fmt.Errorf("google: failed to get JWKS: %w", err)
			return
		}
		p.keyFunc = jwks.Keyfunc
	})

	if p.jwksErr != nil {
		return nil, p.jwksErr
	}

	return p.keyFunc, nil
}

type googleTokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	IDToken      string `json:"id_token"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

type idTokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}
