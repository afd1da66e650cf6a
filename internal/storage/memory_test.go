package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataplunge/dataplunge/internal/apperror"
	"github.com/dataplunge/dataplunge/internal/models"
)

func TestTokenRoundTrip(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	tok, err := store.GetToken(ctx, 1, models.ProviderMeta)
	require.NoError(t, err)
	assert.Nil(t, tok, "absent credential must be nil, nil")

	require.NoError(t, store.StoreToken(ctx, &models.OAuthToken{
		UserID:      1,
		Provider:    models.ProviderMeta,
		AccessToken: "tok-1",
	}))

	tok, err = store.GetToken(ctx, 1, models.ProviderMeta)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "tok-1", tok.AccessToken)

	// One credential per (user, provider): a second store replaces.
	require.NoError(t, store.StoreToken(ctx, &models.OAuthToken{
		UserID:      1,
		Provider:    models.ProviderMeta,
		AccessToken: "tok-2",
	}))
	tok, err = store.GetToken(ctx, 1, models.ProviderMeta)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok.AccessToken)

	require.NoError(t, store.DeleteToken(ctx, 1, models.ProviderMeta))
	tok, err = store.GetToken(ctx, 1, models.ProviderMeta)
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestDatasourceGetOrCreateIsIdempotent(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	first, err := store.GetOrCreateDatasource(ctx, 1, "Google Ads")
	require.NoError(t, err)
	second, err := store.GetOrCreateDatasource(ctx, 1, "Google Ads")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Same source name under another user is a distinct datasource.
	other, err := store.GetOrCreateDatasource(ctx, 2, "Google Ads")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestCampaignExternalIDTakesPriority(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	dsID, err := store.GetOrCreateDatasource(ctx, 1, "Google Ads")
	require.NoError(t, err)

	id1, err := store.GetOrCreateCampaign(ctx, &models.Campaign{
		DatasourceID: dsID, Name: "Spring Sale", ExternalID: "111",
	})
	require.NoError(t, err)

	// A renamed campaign with the same external ID resolves to the
	// same registry entry.
	id2, err := store.GetOrCreateCampaign(ctx, &models.Campaign{
		DatasourceID: dsID, Name: "Spring Sale 2.0", ExternalID: "111",
	})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	// Same name without an external ID is a different identity.
	id3, err := store.GetOrCreateCampaign(ctx, &models.Campaign{
		DatasourceID: dsID, Name: "Spring Sale",
	})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

func TestCampaignNameDefaultsToExternalID(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	dsID, err := store.GetOrCreateDatasource(ctx, 1, "Meta Ads")
	require.NoError(t, err)

	c := &models.Campaign{DatasourceID: dsID, ExternalID: "act-42"}
	_, err = store.GetOrCreateCampaign(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, "act-42", c.Name)
}

func TestUpsertMetricsReplacesKeyedRow(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	dsID, err := store.GetOrCreateDatasource(ctx, 1, "Google Ads")
	require.NoError(t, err)
	cID, err := store.GetOrCreateCampaign(ctx, &models.Campaign{
		DatasourceID: dsID, Name: "Spring Sale", ExternalID: "111",
	})
	require.NoError(t, err)

	row := &models.PerformanceRow{
		DatasourceID: dsID, CampaignID: cID, Date: "2026-08-01",
		Costs: 100, Clicks: 50,
	}
	require.NoError(t, store.UpsertMetrics(ctx, row))
	require.NoError(t, store.UpsertMetrics(ctx, row))
	assert.Equal(t, 1, store.MetricCount(), "same key must not duplicate")

	row.Costs = 150
	require.NoError(t, store.UpsertMetrics(ctx, row))

	got, err := store.GetMetrics(ctx, dsID, cID, "2026-08-01")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 150.0, got.Costs)
	assert.Equal(t, 1, store.MetricCount())
}

func TestUpsertMetricsRejectsMalformedDate(t *testing.T) {
	store := NewInMemoryStore()

	err := store.UpsertMetrics(context.Background(), &models.PerformanceRow{
		DatasourceID: 1, CampaignID: 1, Date: "01.08.2026",
	})
	assert.Error(t, err)
}

func TestDeleteDatasourceCascades(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	dsID, err := store.GetOrCreateDatasource(ctx, 1, "Google Ads")
	require.NoError(t, err)
	cID, err := store.GetOrCreateCampaign(ctx, &models.Campaign{
		DatasourceID: dsID, Name: "Spring Sale", ExternalID: "111",
	})
	require.NoError(t, err)
	require.NoError(t, store.UpsertMetrics(ctx, &models.PerformanceRow{
		DatasourceID: dsID, CampaignID: cID, Date: "2026-08-01", Costs: 10,
	}))

	require.NoError(t, store.DeleteDatasource(ctx, 1, dsID))

	assert.Equal(t, 0, store.MetricCount())
	campaigns, err := store.ListCampaignsByDatasource(ctx, dsID)
	require.NoError(t, err)
	assert.Empty(t, campaigns)
	sources, err := store.ListDatasources(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestDeleteDatasourceScopedToOwner(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	dsID, err := store.GetOrCreateDatasource(ctx, 1, "Google Ads")
	require.NoError(t, err)

	err = store.DeleteDatasource(ctx, 2, dsID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	sources, err := store.ListDatasources(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, sources, 1)
}

func TestGetUserByEmailAbsent(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	u, err := store.GetUserByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, u)

	require.NoError(t, store.CreateUser(ctx, &models.User{Email: "ana@example.com"}))
	u, err = store.GetUserByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.NotZero(t, u.ID)
}

func TestLinkGoogleID(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	u := &models.User{Email: "ana@example.com"}
	require.NoError(t, store.CreateUser(ctx, u))
	require.NoError(t, store.LinkGoogleID(ctx, u.ID, "google-sub-1"))

	got, err := store.GetUserByGoogleID(ctx, "google-sub-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
}
