package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dataplunge/dataplunge/internal/apperror"
	"github.com/dataplunge/dataplunge/internal/models"
)

// staticTokens serves a fixed access token for every pair.
type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) AccessToken(ctx context.Context, userID int64, provider models.Provider) (string, error) {
	return s.token, s.err
}

func TestGoogleAdsFetchMetrics_NormalizesMicros(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("developer-token"); got != "dev-token" {
			t.Fatalf("expected developer token header, got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer access-1" {
			t.Fatalf("expected bearer token, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"results":[{
			"campaign":{"id":"111","name":"Spring Sale"},
			"metrics":{
				"impressions":"1000",
				"clicks":"50",
				"costMicros":"12500000",
				"averageCpc":"250000",
				"interactions":"60",
				"conversions":2.5,
				"costPerConversion":"5000000"
			},
			"segments":{"date":"2026-08-01"}
		}]}]`))
	}))
	defer srv.Close()

	client := NewGoogleAdsClient(srv.Client(), staticTokens{token: "access-1"}, "dev-token")
	client.baseURL = srv.URL

	rows, err := client.FetchMetrics(context.Background(), 1, "123", 30)
	if err != nil {
		t.Fatalf("FetchMetrics: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}

	row := rows[0]
	if row.CampaignExternalID != "111" || row.CampaignName != "Spring Sale" {
		t.Fatalf("unexpected campaign identity: %+v", row)
	}
	if row.Date != "2026-08-01" {
		t.Fatalf("unexpected date %q", row.Date)
	}
	if row.Costs != 12.5 {
		t.Fatalf("expected costs 12.5, got %v", row.Costs)
	}
	if row.CostPerClick != 0.25 {
		t.Fatalf("expected cost per click 0.25, got %v", row.CostPerClick)
	}
	if row.Sessions != 60 {
		t.Fatalf("expected interactions mapped to sessions, got %d", row.Sessions)
	}
	if row.Conversions != 2.5 {
		t.Fatalf("expected conversions 2.5, got %v", row.Conversions)
	}
	if row.CostPerConversion != 5 {
		t.Fatalf("expected cost per conversion 5, got %v", row.CostPerConversion)
	}
}

func TestGoogleAdsListAccessibleCustomers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"resourceNames":["customers/123","customers/456","accounts/999"]}`))
	}))
	defer srv.Close()

	client := NewGoogleAdsClient(srv.Client(), staticTokens{token: "access-1"}, "dev-token")
	client.baseURL = srv.URL

	ids, err := client.ListAccessibleCustomers(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListAccessibleCustomers: %v", err)
	}
	if len(ids) != 2 || ids[0] != "123" || ids[1] != "456" {
		t.Fatalf("unexpected customer ids: %v", ids)
	}
}

func TestGoogleAds_UnauthorizedMapsToReauth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewGoogleAdsClient(srv.Client(), staticTokens{token: "access-1"}, "dev-token")
	client.baseURL = srv.URL

	_, err := client.FetchMetrics(context.Background(), 1, "123", 30)
	if !errors.Is(err, apperror.ErrReauthRequired) {
		t.Fatalf("expected ErrReauthRequired, got %v", err)
	}
}

func TestGoogleAds_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewGoogleAdsClient(srv.Client(), staticTokens{token: "access-1"}, "dev-token")
	client.baseURL = srv.URL

	_, err := client.FetchMetrics(context.Background(), 1, "123", 30)
	if !apperror.IsRetryable(err) {
		t.Fatalf("expected retryable provider error, got %v", err)
	}
}

func TestAnalyticsFetchMetrics_ConvertsDatesAndUnsetCampaigns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"rows":[
			{"dimensionValues":[{"value":"20260801"},{"value":"summer_push"}],
			 "metricValues":[{"value":"42"},{"value":"30"},{"value":"0.5"}]},
			{"dimensionValues":[{"value":"20260802"},{"value":""}],
			 "metricValues":[{"value":"7"},{"value":"6"},{"value":"0.1"}]}
		]}`))
	}))
	defer srv.Close()

	client := NewAnalyticsClient(srv.Client(), staticTokens{token: "access-1"})
	client.dataBaseURL = srv.URL

	rows, err := client.FetchMetrics(context.Background(), 1, "999", 30)
	if err != nil {
		t.Fatalf("FetchMetrics: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	if rows[0].Date != "2026-08-01" || rows[0].CampaignName != "summer_push" || rows[0].Sessions != 42 {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if rows[1].CampaignName != unattributedCampaign {
		t.Fatalf("empty campaign should map to %q, got %q", unattributedCampaign, rows[1].CampaignName)
	}
	if rows[0].Costs != 0 || rows[0].Clicks != 0 {
		t.Fatalf("GA rows must not carry spend fields: %+v", rows[0])
	}
}

func TestAnalyticsListProperties(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"accountSummaries":[{"propertySummaries":[
			{"property":"properties/101","displayName":"Main site"},
			{"property":"properties/102","displayName":"Blog"}
		]}]}`))
	}))
	defer srv.Close()

	client := NewAnalyticsClient(srv.Client(), staticTokens{token: "access-1"})
	client.adminBaseURL = srv.URL

	props, err := client.ListProperties(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListProperties: %v", err)
	}
	if len(props) != 2 || props[0].PropertyID != "101" || props[1].DisplayName != "Blog" {
		t.Fatalf("unexpected properties: %+v", props)
	}
}

func TestMetaFetchMetrics_MapsActions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/v21.0/act_1/campaigns":
			w.Write([]byte(`{"data":[{"id":"777","name":"Retargeting","status":"ACTIVE"}]}`))
		case r.URL.Path == "/v21.0/777/insights":
			w.Write([]byte(`{"data":[{
				"date_start":"2026-08-01",
				"spend":"100.20",
				"impressions":"5000",
				"clicks":"200",
				"actions":[
					{"action_type":"onsite_conversion.lead_grouped","value":"4"},
					{"action_type":"onsite_conversion.lead_grouped","value":"1"},
					{"action_type":"link_click","value":"150"},
					{"action_type":"video_view","value":"900"}
				]
			},{
				"date_start":"2026-08-02",
				"spend":"50.00",
				"impressions":"1000",
				"clicks":"0",
				"actions":[]
			}]}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewMetaClient(srv.Client(), staticTokens{token: "access-1"}, "v21.0")
	client.baseURL = srv.URL

	rows, err := client.FetchMetrics(context.Background(), 1, "act_1", 30)
	if err != nil {
		t.Fatalf("FetchMetrics: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	first := rows[0]
	if first.Conversions != 5 {
		t.Fatalf("expected lead actions summed to 5 conversions, got %v", first.Conversions)
	}
	if first.Sessions != 150 {
		t.Fatalf("expected link clicks mapped to sessions, got %d", first.Sessions)
	}
	if first.CostPerClick != 100.20/200 {
		t.Fatalf("unexpected cost per click %v", first.CostPerClick)
	}
	if first.CostPerConversion != 100.20/5 {
		t.Fatalf("unexpected cost per conversion %v", first.CostPerConversion)
	}

	// Zero denominators must guard to zero, never divide.
	second := rows[1]
	if second.CostPerClick != 0 || second.CostPerConversion != 0 {
		t.Fatalf("expected guarded ratios, got cpc=%v cpa=%v", second.CostPerClick, second.CostPerConversion)
	}
}

func TestMetaListAdAccounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"id":"act_1","name":"Primary","account_status":1}]}`))
	}))
	defer srv.Close()

	client := NewMetaClient(srv.Client(), staticTokens{token: "access-1"}, "v21.0")
	client.baseURL = srv.URL

	accounts, err := client.ListAdAccounts(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListAdAccounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0].ID != "act_1" {
		t.Fatalf("unexpected accounts: %+v", accounts)
	}
}
