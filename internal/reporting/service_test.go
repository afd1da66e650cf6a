package reporting

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dataplunge/dataplunge/internal/apperror"
	"github.com/dataplunge/dataplunge/internal/models"
	"github.com/dataplunge/dataplunge/internal/storage"
)

func seedStore(t *testing.T) *storage.InMemoryStore {
	t.Helper()
	ctx := context.Background()
	store := storage.NewInMemoryStore()

	adsID, err := store.Datasources().GetOrCreate(ctx, 1, "Google Ads")
	if err != nil {
		t.Fatalf("datasource: %v", err)
	}
	gaID, err := store.Datasources().GetOrCreate(ctx, 1, "Google Analytics")
	if err != nil {
		t.Fatalf("datasource: %v", err)
	}

	adsCampaign, err := store.Campaigns().GetOrCreate(ctx, &models.Campaign{
		DatasourceID: adsID, Name: "Spring Sale", ExternalID: "111",
	})
	if err != nil {
		t.Fatalf("campaign: %v", err)
	}
	gaCampaign, err := store.Campaigns().GetOrCreate(ctx, &models.Campaign{
		DatasourceID: gaID, Name: "summer_push",
	})
	if err != nil {
		t.Fatalf("campaign: %v", err)
	}

	rows := []*models.PerformanceRow{
		{DatasourceID: adsID, CampaignID: adsCampaign, Date: "2026-08-01",
			Costs: 100, Impressions: 1000, Clicks: 50, Sessions: 60, Conversions: 5},
		{DatasourceID: adsID, CampaignID: adsCampaign, Date: "2026-08-02",
			Costs: 200, Impressions: 2000, Clicks: 100, Sessions: 120, Conversions: 4},
		{DatasourceID: gaID, CampaignID: gaCampaign, Date: "2026-08-01",
			Sessions: 42},
	}
	if err := store.Metrics().UpsertBatch(ctx, rows); err != nil {
		t.Fatalf("seed rows: %v", err)
	}
	return store
}

func newTestReporting(t *testing.T) (*Service, *storage.InMemoryStore) {
	t.Helper()
	store := seedStore(t)
	cache := NewCache(nil, time.Minute, nil, zap.NewNop())
	return NewService(store.Reporting(), cache, zap.NewNop()), store
}

func TestDailyPerformance_SumsAcrossSources(t *testing.T) {
	svc, _ := newTestReporting(t)

	days, err := svc.DailyPerformance(context.Background(), 1, "2026-08-01", "2026-08-31")
	if err != nil {
		t.Fatalf("DailyPerformance: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("expected 2 days, got %d", len(days))
	}

	first := days[0]
	if first.Date != "2026-08-01" {
		t.Fatalf("expected days ordered by date, got %q first", first.Date)
	}
	if first.Sessions != 102 {
		t.Fatalf("expected sessions summed across sources (60+42), got %d", first.Sessions)
	}
	// Ratios come from summed numerator and denominator.
	if first.CostPerClick != 100.0/50 {
		t.Fatalf("unexpected cost per click %v", first.CostPerClick)
	}
	if first.CostPerConversion != 100.0/5 {
		t.Fatalf("unexpected cost per conversion %v", first.CostPerConversion)
	}
}

func TestChannelPerformance_ZeroGuard(t *testing.T) {
	svc, _ := newTestReporting(t)

	channels, err := svc.ChannelPerformance(context.Background(), 1, "2026-08-01", "2026-08-31")
	if err != nil {
		t.Fatalf("ChannelPerformance: %v", err)
	}
	if len(channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(channels))
	}

	byName := make(map[string]*storage.ChannelSummary)
	for _, c := range channels {
		byName[c.Source] = c
	}

	ads := byName["Google Ads"]
	if ads == nil || ads.Costs != 300 || ads.Clicks != 150 {
		t.Fatalf("unexpected Google Ads summary: %+v", ads)
	}
	if ads.CostPerConversion != 300.0/9 {
		t.Fatalf("unexpected Google Ads cost per conversion %v", ads.CostPerConversion)
	}

	// A channel with zero clicks and conversions reports zero ratios.
	ga := byName["Google Analytics"]
	if ga == nil || ga.CostPerClick != 0 || ga.CostPerConversion != 0 {
		t.Fatalf("expected guarded ratios for sessions-only channel: %+v", ga)
	}
}

func TestCampaignPerformance_OrderedBySpend(t *testing.T) {
	svc, _ := newTestReporting(t)

	campaigns, err := svc.CampaignPerformance(context.Background(), 1, "2026-08-01", "2026-08-31")
	if err != nil {
		t.Fatalf("CampaignPerformance: %v", err)
	}
	if len(campaigns) != 2 {
		t.Fatalf("expected 2 campaigns, got %d", len(campaigns))
	}
	if campaigns[0].CampaignName != "Spring Sale" {
		t.Fatalf("expected highest spend first, got %q", campaigns[0].CampaignName)
	}
	if campaigns[0].CostPerSession != 300.0/180 {
		t.Fatalf("unexpected cost per session %v", campaigns[0].CostPerSession)
	}
}

func TestMonthlyPerformance(t *testing.T) {
	svc, _ := newTestReporting(t)

	months, err := svc.MonthlyPerformance(context.Background(), 1, "2026-08-01", "2026-08-31")
	if err != nil {
		t.Fatalf("MonthlyPerformance: %v", err)
	}
	if len(months) != 1 || months[0].Month != "2026-08" {
		t.Fatalf("unexpected months: %+v", months)
	}
	if months[0].Costs != 300 || months[0].Conversions != 9 {
		t.Fatalf("unexpected monthly totals: %+v", months[0])
	}
}

func TestFilterPerformance(t *testing.T) {
	svc, _ := newTestReporting(t)
	ctx := context.Background()

	day, err := svc.FilterPerformance(ctx, 1, "day", "2026-08-01")
	if err != nil {
		t.Fatalf("FilterPerformance day: %v", err)
	}
	if len(day) != 2 {
		t.Fatalf("expected 2 raw rows for the day, got %d", len(day))
	}

	ranged, err := svc.FilterPerformance(ctx, 1, "range", "2026-08-01|2026-08-31")
	if err != nil {
		t.Fatalf("FilterPerformance range: %v", err)
	}
	if len(ranged) != 3 {
		t.Fatalf("expected 3 raw rows for the range, got %d", len(ranged))
	}

	if _, err := svc.FilterPerformance(ctx, 1, "week", "2026-08-01"); err == nil {
		t.Fatal("expected invalid range kind to be rejected")
	}
	if _, err := svc.FilterPerformance(ctx, 1, "range", "2026-08-01"); err == nil {
		t.Fatal("expected missing separator to be rejected")
	}
}

func TestValidateRange(t *testing.T) {
	svc, _ := newTestReporting(t)
	ctx := context.Background()

	_, err := svc.DailyPerformance(ctx, 1, "2026-08-31", "2026-08-01")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("expected inverted range to be rejected, got %v", err)
	}

	if _, err := svc.DailyPerformance(ctx, 1, "not-a-date", "2026-08-01"); err == nil {
		t.Fatal("expected malformed start date to be rejected")
	}
}

func TestReportingIsUserScoped(t *testing.T) {
	svc, _ := newTestReporting(t)

	channels, err := svc.ChannelPerformance(context.Background(), 2, "2026-08-01", "2026-08-31")
	if err != nil {
		t.Fatalf("ChannelPerformance: %v", err)
	}
	if len(channels) != 0 {
		t.Fatalf("another user's datasources must not leak: %+v", channels)
	}
}

func TestInsights(t *testing.T) {
	svc, _ := newTestReporting(t)

	insights, err := svc.Insights(context.Background(), 1, "2026-08-01", "2026-08-31")
	if err != nil {
		t.Fatalf("Insights: %v", err)
	}
	// Highest costs, average CPA, trend, most conversions, best CPA.
	if len(insights) != 5 {
		t.Fatalf("expected 5 insights, got %d", len(insights))
	}
	if insights[0].Date != "2026-08-02" || !strings.Contains(insights[0].Message, "200.00") {
		t.Fatalf("unexpected highest-cost insight: %+v", insights[0])
	}
	if !strings.Contains(insights[2].Message, "+100.00%") {
		t.Fatalf("unexpected trend insight: %+v", insights[2])
	}
	// Day 1 had 5 conversions at CHF 20 each; day 2 had 4 at CHF 50.
	if insights[4].Date != "2026-08-01" || !strings.Contains(insights[4].Message, "20.00") {
		t.Fatalf("unexpected best-CPA insight: %+v", insights[4])
	}
}

func TestInsights_EmptyPeriod(t *testing.T) {
	svc, _ := newTestReporting(t)

	insights, err := svc.Insights(context.Background(), 1, "2025-01-01", "2025-01-31")
	if err != nil {
		t.Fatalf("Insights: %v", err)
	}
	if len(insights) != 0 {
		t.Fatalf("expected no insights for an empty period, got %d", len(insights))
	}
}
