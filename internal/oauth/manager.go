package oauth

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/dataplunge/dataplunge/internal/apperror"
	"github.com/dataplunge/dataplunge/internal/metrics"
	"github.com/dataplunge/dataplunge/internal/models"
	"github.com/dataplunge/dataplunge/internal/storage"
)

// refreshSkew refreshes access tokens slightly before their recorded
// expiry so an in-flight vendor call never races the deadline.
const refreshSkew = time.Minute

// Manager owns the stored-credential lifecycle for data providers:
// exchanging authorization codes, serving valid access tokens, and
// refreshing or retiring credentials as providers accept or reject
// them.
type Manager struct {
	tokens  storage.TokenRepo
	configs ConfigSource
	logger  *zap.Logger
	now     func() time.Time
}

// NewManager creates a token lifecycle manager.
func NewManager(tokens storage.TokenRepo, configs ConfigSource, logger *zap.Logger) *Manager {
	return &Manager{
		tokens:  tokens,
		configs: configs,
		logger:  logger,
		now:     time.Now,
	}
}

// Exchange trades an authorization code for provider credentials and
// stores them, replacing any previous credential for the pair. When the
// provider omits a refresh token on re-consent, the previously stored
// one is carried forward.
func (m *Manager) Exchange(ctx context.Context, userID int64, provider models.Provider, code string) (*models.OAuthToken, error) {
	cfg, err := m.configs.Config(provider)
	if err != nil {
		return nil, apperror.ValidationFailed("provider", err.Error())
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		m.logger.Warn("oauth code exchange failed",
			zap.String("provider", string(provider)),
			zap.Int64("user_id", userID),
			zap.Error(err))
		return nil, apperror.ProviderUnavailable(provider.SourceName(), err)
	}

	stored := &models.OAuthToken{
		UserID:       userID,
		Provider:     provider,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry.UTC()
		stored.Expiry = &expiry
	}
	if stored.RefreshToken == "" {
		prev, err := m.tokens.Get(ctx, userID, provider)
		if err != nil {
			return nil, err
		}
		if prev != nil {
			stored.RefreshToken = prev.RefreshToken
			stored.ExternalAccountID = prev.ExternalAccountID
		}
	}

	if err := m.tokens.Store(ctx, stored); err != nil {
		return nil, err
	}
	m.logger.Info("provider connected",
		zap.String("provider", string(provider)),
		zap.Int64("user_id", userID))
	return stored, nil
}

// AccessToken returns a provider access token that is valid for at
// least refreshSkew, refreshing through the stored refresh token when
// the cached one has expired.
//
// Failure contract: a missing credential or a permanently rejected
// refresh token yields ErrReauthRequired, and in the rejected case the
// stored row is deleted so the pair returns to the disconnected state.
// Transient refresh failures yield ErrProviderUnavailable and leave the
// stored credential untouched for a later retry.
func (m *Manager) AccessToken(ctx context.Context, userID int64, provider models.Provider) (string, error) {
	stored, err := m.tokens.Get(ctx, userID, provider)
	if err != nil {
		return "", err
	}
	if stored == nil {
		return "", apperror.ReauthRequired(provider.SourceName())
	}

	if stored.AccessToken != "" && !stored.Expired(m.now().Add(refreshSkew)) {
		return stored.AccessToken, nil
	}

	refreshed, err := m.Refresh(ctx, stored)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// Refresh exchanges the stored refresh token for a new access token and
// persists the result, including a rotated refresh token when the
// provider returns one.
func (m *Manager) Refresh(ctx context.Context, stored *models.OAuthToken) (*models.OAuthToken, error) {
	if stored.RefreshToken == "" {
		// Nothing to refresh with; the credential is unusable.
		recordRefresh(stored.Provider, "reauth_required")
		if err := m.tokens.Delete(ctx, stored.UserID, stored.Provider); err != nil {
			return nil, err
		}
		return nil, apperror.ReauthRequired(stored.Provider.SourceName())
	}

	cfg, err := m.configs.Config(stored.Provider)
	if err != nil {
		return nil, apperror.ValidationFailed("provider", err.Error())
	}

	src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: stored.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		if isPermanentRefreshError(err) {
			recordRefresh(stored.Provider, "reauth_required")
			m.logger.Warn("refresh token permanently rejected, credential removed",
				zap.String("provider", string(stored.Provider)),
				zap.Int64("user_id", stored.UserID),
				zap.Error(err))
			if delErr := m.tokens.Delete(ctx, stored.UserID, stored.Provider); delErr != nil {
				return nil, delErr
			}
			return nil, apperror.ReauthRequired(stored.Provider.SourceName())
		}
		recordRefresh(stored.Provider, "unavailable")
		m.logger.Warn("transient token refresh failure, credential kept",
			zap.String("provider", string(stored.Provider)),
			zap.Int64("user_id", stored.UserID),
			zap.Error(err))
		return nil, apperror.ProviderUnavailable(stored.Provider.SourceName(), err)
	}

	stored.AccessToken = tok.AccessToken
	if tok.Expiry.IsZero() {
		stored.Expiry = nil
	} else {
		expiry := tok.Expiry.UTC()
		stored.Expiry = &expiry
	}
	if tok.RefreshToken != "" && tok.RefreshToken != stored.RefreshToken {
		m.logger.Info("refresh token rotated",
			zap.String("provider", string(stored.Provider)),
			zap.Int64("user_id", stored.UserID))
		stored.RefreshToken = tok.RefreshToken
	}
	if err := m.tokens.Store(ctx, stored); err != nil {
		return nil, err
	}
	recordRefresh(stored.Provider, "refreshed")
	return stored, nil
}

func recordRefresh(provider models.Provider, outcome string) {
	if metrics.DefaultMetrics != nil {
		metrics.DefaultMetrics.RecordTokenRefresh(string(provider), outcome)
	}
}

// Disconnect removes the stored credential for (user, provider).
func (m *Manager) Disconnect(ctx context.Context, userID int64, provider models.Provider) error {
	return m.tokens.Delete(ctx, userID, provider)
}

// Status reports whether a credential is stored for each known
// provider.
func (m *Manager) Status(ctx context.Context, userID int64) (map[models.Provider]bool, error) {
	res := make(map[models.Provider]bool, len(models.KnownProviders))
	for _, p := range models.KnownProviders {
		tok, err := m.tokens.Get(ctx, userID, p)
		if err != nil {
			return nil, err
		}
		res[p] = tok != nil
	}
	return res, nil
}

// isPermanentRefreshError distinguishes refresh failures no retry can
// recover from (revoked or expired grants, bad client credentials) from
// transient transport and rate-limit failures.
func isPermanentRefreshError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	markers := []string{
		"invalid_grant",
		"invalid_client",
		"unauthorized_client",
		"token has been expired or revoked",
		"revoked",
	}
	for _, marker := range markers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
