package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/dataplunge/dataplunge/internal/apperror"
	"github.com/dataplunge/dataplunge/internal/models"
	"github.com/dataplunge/dataplunge/internal/storage"
)

// fakeConfigSource points every provider at a test token endpoint.
type fakeConfigSource struct {
	tokenURL string
}

func (f fakeConfigSource) Config(provider models.Provider) (*oauth2.Config, error) {
	return &oauth2.Config{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:  f.tokenURL + "/auth",
			TokenURL: f.tokenURL + "/token",
		},
	}, nil
}

func newTestManager(t *testing.T, handler http.HandlerFunc) (*Manager, *storage.InMemoryStore, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	store := storage.NewInMemoryStore()
	mgr := NewManager(store.Tokens(), fakeConfigSource{tokenURL: srv.URL}, zap.NewNop())
	return mgr, store, srv
}

func storeToken(t *testing.T, store *storage.InMemoryStore, userID int64, provider models.Provider, access, refresh string, expiry time.Time) {
	t.Helper()
	tok := &models.OAuthToken{
		UserID:       userID,
		Provider:     provider,
		AccessToken:  access,
		RefreshToken: refresh,
	}
	if !expiry.IsZero() {
		tok.Expiry = &expiry
	}
	if err := store.Tokens().Store(context.Background(), tok); err != nil {
		t.Fatalf("store token: %v", err)
	}
}

func TestAccessToken_NoStoredCredential(t *testing.T) {
	mgr, _, _ := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no network call expected")
	})

	_, err := mgr.AccessToken(context.Background(), 1, models.ProviderGoogleAds)
	if !errors.Is(err, apperror.ErrReauthRequired) {
		t.Fatalf("expected ErrReauthRequired, got %v", err)
	}
}

func TestAccessToken_ValidTokenServedWithoutRefresh(t *testing.T) {
	mgr, store, _ := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no refresh expected for a valid token")
	})
	storeToken(t, store, 1, models.ProviderGoogleAds, "live-token", "refresh-1", time.Now().Add(time.Hour))

	got, err := mgr.AccessToken(context.Background(), 1, models.ProviderGoogleAds)
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if got != "live-token" {
		t.Fatalf("expected cached access token, got %q", got)
	}
}

func TestAccessToken_ExpiredTokenRefreshes(t *testing.T) {
	mgr, store, _ := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.Form.Get("refresh_token"); got != "refresh-1" {
			t.Fatalf("expected refresh_token=refresh-1, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"fresh-token","token_type":"Bearer","expires_in":3600}`)
	})
	storeToken(t, store, 1, models.ProviderGoogleAds, "stale-token", "refresh-1", time.Now().Add(-time.Hour))

	got, err := mgr.AccessToken(context.Background(), 1, models.ProviderGoogleAds)
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if got != "fresh-token" {
		t.Fatalf("expected refreshed token, got %q", got)
	}

	stored, err := store.Tokens().Get(context.Background(), 1, models.ProviderGoogleAds)
	if err != nil {
		t.Fatalf("get stored token: %v", err)
	}
	if stored == nil || stored.AccessToken != "fresh-token" {
		t.Fatalf("refreshed token not persisted: %+v", stored)
	}
	if stored.RefreshToken != "refresh-1" {
		t.Fatalf("refresh token should be unchanged, got %q", stored.RefreshToken)
	}
}

func TestAccessToken_RotatedRefreshTokenPersisted(t *testing.T) {
	mgr, store, _ := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"fresh-token","token_type":"Bearer","expires_in":3600,"refresh_token":"refresh-2"}`)
	})
	storeToken(t, store, 1, models.ProviderMeta, "stale-token", "refresh-1", time.Now().Add(-time.Minute))

	if _, err := mgr.AccessToken(context.Background(), 1, models.ProviderMeta); err != nil {
		t.Fatalf("AccessToken: %v", err)
	}

	stored, err := store.Tokens().Get(context.Background(), 1, models.ProviderMeta)
	if err != nil {
		t.Fatalf("get stored token: %v", err)
	}
	if stored == nil || stored.RefreshToken != "refresh-2" {
		t.Fatalf("rotated refresh token not persisted: %+v", stored)
	}
}

func TestAccessToken_InvalidGrantDeletesCredential(t *testing.T) {
	mgr, store, _ := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`)
	})
	storeToken(t, store, 1, models.ProviderGoogleAds, "stale-token", "revoked-refresh", time.Now().Add(-time.Hour))

	_, err := mgr.AccessToken(context.Background(), 1, models.ProviderGoogleAds)
	if !errors.Is(err, apperror.ErrReauthRequired) {
		t.Fatalf("expected ErrReauthRequired, got %v", err)
	}

	stored, err := store.Tokens().Get(context.Background(), 1, models.ProviderGoogleAds)
	if err != nil {
		t.Fatalf("get stored token: %v", err)
	}
	if stored != nil {
		t.Fatalf("credential should be deleted after invalid_grant, got %+v", stored)
	}
}

func TestAccessToken_TransientFailureKeepsCredential(t *testing.T) {
	mgr, store, _ := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "upstream overloaded")
	})
	storeToken(t, store, 1, models.ProviderAnalytics, "stale-token", "refresh-1", time.Now().Add(-time.Hour))

	_, err := mgr.AccessToken(context.Background(), 1, models.ProviderAnalytics)
	if !errors.Is(err, apperror.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if !apperror.IsRetryable(err) {
		t.Fatal("transient failure should be retryable")
	}

	stored, err := store.Tokens().Get(context.Background(), 1, models.ProviderAnalytics)
	if err != nil {
		t.Fatalf("get stored token: %v", err)
	}
	if stored == nil || stored.RefreshToken != "refresh-1" {
		t.Fatalf("credential must survive a transient failure, got %+v", stored)
	}
}

func TestAccessToken_MissingRefreshTokenRequiresReauth(t *testing.T) {
	mgr, store, _ := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no network call expected without a refresh token")
	})
	storeToken(t, store, 1, models.ProviderGoogleAds, "stale-token", "", time.Now().Add(-time.Hour))

	_, err := mgr.AccessToken(context.Background(), 1, models.ProviderGoogleAds)
	if !errors.Is(err, apperror.ErrReauthRequired) {
		t.Fatalf("expected ErrReauthRequired, got %v", err)
	}

	stored, err := store.Tokens().Get(context.Background(), 1, models.ProviderGoogleAds)
	if err != nil {
		t.Fatalf("get stored token: %v", err)
	}
	if stored != nil {
		t.Fatal("unusable credential should be removed")
	}
}

func TestExchange_StoresCredential(t *testing.T) {
	mgr, store, _ := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"new-access","token_type":"Bearer","expires_in":3600,"refresh_token":"new-refresh"}`)
	})

	tok, err := mgr.Exchange(context.Background(), 7, models.ProviderGoogleAds, "auth-code")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if tok.AccessToken != "new-access" || tok.RefreshToken != "new-refresh" {
		t.Fatalf("unexpected token: %+v", tok)
	}

	stored, err := store.Tokens().Get(context.Background(), 7, models.ProviderGoogleAds)
	if err != nil {
		t.Fatalf("get stored token: %v", err)
	}
	if stored == nil || stored.AccessToken != "new-access" {
		t.Fatalf("credential not persisted: %+v", stored)
	}
}

func TestExchange_KeepsPreviousRefreshTokenWhenOmitted(t *testing.T) {
	mgr, store, _ := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"new-access","token_type":"Bearer","expires_in":3600}`)
	})
	storeToken(t, store, 7, models.ProviderGoogleAds, "old-access", "old-refresh", time.Now().Add(time.Hour))

	tok, err := mgr.Exchange(context.Background(), 7, models.ProviderGoogleAds, "auth-code")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if tok.RefreshToken != "old-refresh" {
		t.Fatalf("expected previous refresh token carried forward, got %q", tok.RefreshToken)
	}
}

func TestIsPermanentRefreshError(t *testing.T) {
	tests := []struct {
		name      string
		errText   string
		permanent bool
	}{
		{name: "invalid grant", errText: `oauth2: cannot fetch token: 400 Bad Request {"error":"invalid_grant"}`, permanent: true},
		{name: "invalid client", errText: `oauth2: "invalid_client" "Unauthorized"`, permanent: true},
		{name: "revoked", errText: "Token has been expired or revoked.", permanent: true},
		{name: "timeout", errText: "context deadline exceeded", permanent: false},
		{name: "server error", errText: "oauth2: cannot fetch token: 503 Service Unavailable", permanent: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isPermanentRefreshError(errors.New(tt.errText)); got != tt.permanent {
				t.Fatalf("expected %v, got %v", tt.permanent, got)
			}
		})
	}
}

func TestDisconnect(t *testing.T) {
	mgr, store, _ := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {})
	storeToken(t, store, 1, models.ProviderMeta, "access", "refresh", time.Now().Add(time.Hour))

	if err := mgr.Disconnect(context.Background(), 1, models.ProviderMeta); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	stored, err := store.Tokens().Get(context.Background(), 1, models.ProviderMeta)
	if err != nil {
		t.Fatalf("get stored token: %v", err)
	}
	if stored != nil {
		t.Fatal("credential should be gone after disconnect")
	}
}
