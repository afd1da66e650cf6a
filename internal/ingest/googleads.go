package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dataplunge/dataplunge/internal/models"
)

const (
	googleAdsBaseURL    = "https://googleads.googleapis.com"
	googleAdsAPIVersion = "v17"
	// Google Ads money fields are expressed in micros.
	microsPerUnit = 1e6
)

// GoogleAdsClient fetches campaign performance over the Google Ads
// REST API.
type GoogleAdsClient struct {
	http           *http.Client
	tokens         TokenSource
	developerToken string
	baseURL        string
	apiVersion     string
}

// NewGoogleAdsClient creates a Google Ads fetcher.
func NewGoogleAdsClient(httpClient *http.Client, tokens TokenSource, developerToken string) *GoogleAdsClient {
	return &GoogleAdsClient{
		http:           httpClient,
		tokens:         tokens,
		developerToken: developerToken,
		baseURL:        googleAdsBaseURL,
		apiVersion:     googleAdsAPIVersion,
	}
}

func (c *GoogleAdsClient) authedRequest(ctx context.Context, userID int64, method, url string, body []byte) (*http.Request, error) {
	token, err := c.tokens.AccessToken(ctx, userID, models.ProviderGoogleAds)
	if err != nil {
		return nil, err
	}
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("developer-token", c.developerToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// ListAccessibleCustomers returns the customer IDs the connected
// account can query.
func (c *GoogleAdsClient) ListAccessibleCustomers(ctx context.Context, userID int64) ([]string, error) {
	url := fmt.Sprintf("%s/%s/customers:listAccessibleCustomers", c.baseURL, c.apiVersion)
	req, err := c.authedRequest(ctx, userID, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		ResourceNames []string `json:"resourceNames"`
	}
	if err := doJSON(c.http, req, models.ProviderGoogleAds, &out); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(out.ResourceNames))
	for _, rn := range out.ResourceNames {
		if rest, ok := strings.CutPrefix(rn, "customers/"); ok {
			ids = append(ids, rest)
		}
	}
	return ids, nil
}

// searchStream response shape. The REST transport serializes int64
// metric fields as JSON strings, so everything numeric is decoded as
// json.Number.
type googleAdsBatch struct {
	Results []struct {
		Campaign struct {
			ID   json.Number `json:"id"`
			Name string      `json:"name"`
		} `json:"campaign"`
		Metrics struct {
			Impressions       json.Number `json:"impressions"`
			Clicks            json.Number `json:"clicks"`
			CostMicros        json.Number `json:"costMicros"`
			AverageCpc        json.Number `json:"averageCpc"`
			Interactions      json.Number `json:"interactions"`
			Conversions       json.Number `json:"conversions"`
			CostPerConversion json.Number `json:"costPerConversion"`
		} `json:"metrics"`
		Segments struct {
			Date string `json:"date"`
		} `json:"segments"`
	} `json:"results"`
}

// FetchMetrics pulls per-campaign daily performance for the trailing
// window and normalizes it. Costs arrive in micros and are converted to
// currency units; vendor interactions are recorded as sessions.
func (c *GoogleAdsClient) FetchMetrics(ctx context.Context, userID int64, customerID string, windowDays int) ([]*models.MetricRow, error) {
	start, end := fetchWindow(windowDays)
	query := fmt.Sprintf(`
		SELECT
			campaign.id,
			campaign.name,
			metrics.impressions,
			metrics.clicks,
			metrics.cost_micros,
			metrics.average_cpc,
			metrics.interactions,
			metrics.conversions,
			metrics.cost_per_conversion,
			segments.date
		FROM campaign
		WHERE segments.date BETWEEN '%s' AND '%s'
		ORDER BY campaign.id, segments.date`, start, end)

	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s/customers/%s/googleAds:searchStream", c.baseURL, c.apiVersion, customerID)
	req, err := c.authedRequest(ctx, userID, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}

	var batches []googleAdsBatch
	if err := doJSON(c.http, req, models.ProviderGoogleAds, &batches); err != nil {
		return nil, err
	}

	var rows []*models.MetricRow
	for _, batch := range batches {
		for _, res := range batch.Results {
			m := res.Metrics
			rows = append(rows, &models.MetricRow{
				CampaignExternalID: res.Campaign.ID.String(),
				CampaignName:       res.Campaign.Name,
				Date:               res.Segments.Date,
				Costs:              asFloat(m.CostMicros) / microsPerUnit,
				Impressions:        asInt(m.Impressions),
				Clicks:             asInt(m.Clicks),
				CostPerClick:       asFloat(m.AverageCpc) / microsPerUnit,
				Sessions:           asInt(m.Interactions),
				Conversions:        asFloat(m.Conversions),
				CostPerConversion:  asFloat(m.CostPerConversion) / microsPerUnit,
			})
		}
	}
	return rows, nil
}

func asFloat(n json.Number) float64 {
	f, _ := n.Float64()
	return f
}

func asInt(n json.Number) int64 {
	i, _ := n.Int64()
	return i
}
