package models

import "time"

// Provider identifies an external ad/analytics platform.
type Provider string

const (
	ProviderGoogleAds Provider = "google_ads"
	ProviderAnalytics Provider = "google_analytics"
	ProviderMeta      Provider = "meta"
)

// KnownProviders lists every provider the system can connect.
var KnownProviders = []Provider{ProviderGoogleAds, ProviderAnalytics, ProviderMeta}

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderGoogleAds, ProviderAnalytics, ProviderMeta:
		return true
	}
	return false
}

// SourceName is the datasource label stored for this provider.
func (p Provider) SourceName() string {
	switch p {
	case ProviderGoogleAds:
		return "Google Ads"
	case ProviderAnalytics:
		return "Google Analytics"
	case ProviderMeta:
		return "Meta Ads"
	}
	return string(p)
}

// OAuthToken is the stored credential for one (user, provider) pair.
// At most one live row exists per pair; an upsert replaces the
// access/refresh token and expiry in place.
//
// Token values are sensitive and must never be logged or serialized
// into API responses.
type OAuthToken struct {
	UserID       int64      `json:"-"`
	Provider     Provider   `json:"provider"`
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	Expiry       *time.Time `json:"expiry,omitempty"`
	// ExternalAccountID is the provider-side account the token is
	// scoped to (Google Ads customer ID, GA4 property, Meta ad account).
	ExternalAccountID string    `json:"external_account_id,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Expired reports whether the access token is past its expiry. Tokens
// without a recorded expiry are treated as still valid; the provider is
// the final authority.
func (t *OAuthToken) Expired(now time.Time) bool {
	return t.Expiry != nil && now.After(*t.Expiry)
}
