package oauth

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/google"

	"github.com/dataplunge/dataplunge/internal/config"
	"github.com/dataplunge/dataplunge/internal/models"
)

// Scopes requested per provider. Google data scopes are read-only; the
// sign-in scopes only identify the user.
var (
	signInScopes    = []string{"openid", "email", "profile"}
	googleAdsScopes = []string{"https://www.googleapis.com/auth/adwords"}
	analyticsScopes = []string{"https://www.googleapis.com/auth/analytics.readonly"}
	metaScopes      = []string{"ads_read"}
)

// ConfigSource resolves the oauth2 client configuration for a provider.
// The token refresh manager depends on this interface so tests can point
// it at a fake token endpoint.
type ConfigSource interface {
	Config(provider models.Provider) (*oauth2.Config, error)
}

// Providers holds the oauth2 client configuration for Google sign-in and
// each connectable data provider.
type Providers struct {
	signIn  *oauth2.Config
	configs map[models.Provider]*oauth2.Config
}

// NewProviders builds provider configurations from application config.
func NewProviders(cfg config.OAuthConfig) *Providers {
	return &Providers{
		signIn: &oauth2.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
			Scopes:       signInScopes,
			Endpoint:     google.Endpoint,
		},
		configs: map[models.Provider]*oauth2.Config{
			models.ProviderGoogleAds: {
				ClientID:     cfg.GoogleAds.ClientID,
				ClientSecret: cfg.GoogleAds.ClientSecret,
				RedirectURL:  cfg.GoogleAds.RedirectURL,
				Scopes:       googleAdsScopes,
				Endpoint:     google.Endpoint,
			},
			models.ProviderAnalytics: {
				ClientID:     cfg.Analytics.ClientID,
				ClientSecret: cfg.Analytics.ClientSecret,
				RedirectURL:  cfg.Analytics.RedirectURL,
				Scopes:       analyticsScopes,
				Endpoint:     google.Endpoint,
			},
			models.ProviderMeta: {
				ClientID:     cfg.Meta.ClientID,
				ClientSecret: cfg.Meta.ClientSecret,
				RedirectURL:  cfg.Meta.RedirectURL,
				Scopes:       metaScopes,
				Endpoint:     facebook.Endpoint,
			},
		},
	}
}

// SignIn returns the Google sign-in configuration.
func (p *Providers) SignIn() *oauth2.Config {
	return p.signIn
}

// Config returns the oauth2 configuration for a data provider.
func (p *Providers) Config(provider models.Provider) (*oauth2.Config, error) {
	cfg, ok := p.configs[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	return cfg, nil
}

// AuthURL builds the consent URL for connecting a data provider. Google
// providers need offline access and forced consent to be guaranteed a
// refresh token; Meta's long-lived tokens come from the code exchange
// directly.
func (p *Providers) AuthURL(provider models.Provider, state string) (string, error) {
	cfg, err := p.Config(provider)
	if err != nil {
		return "", err
	}
	if provider == models.ProviderMeta {
		return cfg.AuthCodeURL(state), nil
	}
	return cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	), nil
}

// NewState generates the CSRF state token for an authorization redirect.
func NewState() string {
	return uuid.NewString()
}
