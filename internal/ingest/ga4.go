package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dataplunge/dataplunge/internal/models"
)

const (
	analyticsDataBaseURL  = "https://analyticsdata.googleapis.com"
	analyticsAdminBaseURL = "https://analyticsadmin.googleapis.com"
	// GA4 reports rows under this label when a session has no campaign.
	unattributedCampaign = "(not set)"
)

// AnalyticsClient fetches GA4 session data over the Analytics Data and
// Admin REST APIs.
type AnalyticsClient struct {
	http         *http.Client
	tokens       TokenSource
	dataBaseURL  string
	adminBaseURL string
}

// NewAnalyticsClient creates a GA4 fetcher.
func NewAnalyticsClient(httpClient *http.Client, tokens TokenSource) *AnalyticsClient {
	return &AnalyticsClient{
		http:         httpClient,
		tokens:       tokens,
		dataBaseURL:  analyticsDataBaseURL,
		adminBaseURL: analyticsAdminBaseURL,
	}
}

// Property is one GA4 property the connected account can read.
type Property struct {
	PropertyID  string `json:"property_id"`
	DisplayName string `json:"display_name"`
}

// ListProperties returns the GA4 properties visible to the connected
// account, via the account summaries endpoint.
func (c *AnalyticsClient) ListProperties(ctx context.Context, userID int64) ([]Property, error) {
	token, err := c.tokens.AccessToken(ctx, userID, models.ProviderAnalytics)
	if err != nil {
		return nil, err
	}

	url := c.adminBaseURL + "/v1beta/accountSummaries?pageSize=200"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	var out struct {
		AccountSummaries []struct {
			PropertySummaries []struct {
				Property    string `json:"property"` // "properties/123"
				DisplayName string `json:"displayName"`
			} `json:"propertySummaries"`
		} `json:"accountSummaries"`
	}
	if err := doJSON(c.http, req, models.ProviderAnalytics, &out); err != nil {
		return nil, err
	}

	var props []Property
	for _, acc := range out.AccountSummaries {
		for _, p := range acc.PropertySummaries {
			id := p.Property
			if rest, ok := strings.CutPrefix(id, "properties/"); ok {
				id = rest
			}
			props = append(props, Property{PropertyID: id, DisplayName: p.DisplayName})
		}
	}
	return props, nil
}

type runReportResponse struct {
	Rows []struct {
		DimensionValues []struct {
			Value string `json:"value"`
		} `json:"dimensionValues"`
		MetricValues []struct {
			Value string `json:"value"`
		} `json:"metricValues"`
	} `json:"rows"`
}

// FetchMetrics runs a daily sessions-per-campaign report for the
// trailing window. GA4 knows nothing about spend, so only sessions are
// populated; the upsert engine zeroes the cost fields.
func (c *AnalyticsClient) FetchMetrics(ctx context.Context, userID int64, propertyID string, windowDays int) ([]*models.MetricRow, error) {
	token, err := c.tokens.AccessToken(ctx, userID, models.ProviderAnalytics)
	if err != nil {
		return nil, err
	}

	reqBody := map[string]any{
		"dimensions": []map[string]string{{"name": "date"}, {"name": "sessionCampaignName"}},
		"metrics":    []map[string]string{{"name": "sessions"}, {"name": "totalUsers"}, {"name": "bounceRate"}},
		"dateRanges": []map[string]string{{
			"startDate": fmt.Sprintf("%ddaysAgo", windowDays),
			"endDate":   "today",
		}},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1beta/properties/%s:runReport", c.dataBaseURL, propertyID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	var out runReportResponse
	if err := doJSON(c.http, req, models.ProviderAnalytics, &out); err != nil {
		return nil, err
	}

	var rows []*models.MetricRow
	for _, row := range out.Rows {
		if len(row.DimensionValues) < 2 || len(row.MetricValues) < 1 {
			continue
		}
		date, err := parseGADate(row.DimensionValues[0].Value)
		if err != nil {
			continue
		}
		name := row.DimensionValues[1].Value
		if name == "" {
			name = unattributedCampaign
		}
		sessions, _ := strconv.ParseInt(row.MetricValues[0].Value, 10, 64)

		rows = append(rows, &models.MetricRow{
			CampaignName: name,
			Date:         date,
			Sessions:     sessions,
		})
	}
	return rows, nil
}

// parseGADate converts GA4's YYYYMMDD date dimension to the canonical
// day key.
func parseGADate(raw string) (string, error) {
	t, err := time.Parse("20060102", raw)
	if err != nil {
		return "", fmt.Errorf("invalid GA4 date %q", raw)
	}
	return t.Format(models.DateFormat), nil
}
