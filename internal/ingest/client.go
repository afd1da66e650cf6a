// Package ingest fetches campaign performance from the connected ad
// and analytics vendors and reconciles it into the metrics store. Each
// vendor client normalizes its response into models.MetricRow; nothing
// vendor-shaped crosses the package boundary.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dataplunge/dataplunge/internal/apperror"
	"github.com/dataplunge/dataplunge/internal/metrics"
	"github.com/dataplunge/dataplunge/internal/models"
)

// TokenSource serves valid provider access tokens. Implemented by the
// oauth token manager.
type TokenSource interface {
	AccessToken(ctx context.Context, userID int64, provider models.Provider) (string, error)
}

// decodeResponse classifies the vendor response and decodes its JSON
// body into out. A 401 means the access token the vendor just received
// is not acceptable, which only a new consent flow can fix. Everything
// else non-2xx is treated as a transient vendor failure.
func decodeResponse(resp *http.Response, provider models.Provider, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return apperror.ReauthRequired(provider.SourceName())
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return apperror.ProviderUnavailable(provider.SourceName(),
			fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.ProviderUnavailable(provider.SourceName(),
			fmt.Errorf("malformed response: %w", err))
	}
	return nil
}

// doJSON performs the request and decodes the response, wrapping
// transport failures as transient provider errors.
func doJSON(client *http.Client, req *http.Request, provider models.Provider, out any) error {
	started := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		observeRequest(provider, "error", time.Since(started))
		return apperror.ProviderUnavailable(provider.SourceName(), err)
	}
	err = decodeResponse(resp, provider, out)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observeRequest(provider, outcome, time.Since(started))
	return err
}

func observeRequest(provider models.Provider, outcome string, elapsed time.Duration) {
	if metrics.DefaultMetrics != nil {
		metrics.DefaultMetrics.RecordProviderRequest(string(provider), outcome, elapsed)
	}
}

// fetchWindow returns the [start, end] day strings for a trailing
// window ending today (UTC).
func fetchWindow(windowDays int) (start, end string) {
	now := time.Now().UTC()
	return now.AddDate(0, 0, -windowDays).Format(models.DateFormat),
		now.Format(models.DateFormat)
}
