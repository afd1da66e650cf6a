package httpserver

import (
	"net/http"
	"time"

	"github.com/dataplunge/dataplunge/internal/models"
)

// dateRange reads start_date/end_date query parameters, defaulting to
// the trailing 30 days when both are absent.
func dateRange(r *http.Request) (string, string) {
	start := r.URL.Query().Get("start_date")
	end := r.URL.Query().Get("end_date")
	if start == "" && end == "" {
		now := time.Now().UTC()
		end = now.Format(models.DateFormat)
		start = now.AddDate(0, 0, -30).Format(models.DateFormat)
	}
	return start, end
}

func (s *Server) handleFilterPerformance(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	rows, err := s.reportingService.FilterPerformance(r.Context(), userID,
		r.URL.Query().Get("range"), r.URL.Query().Get("value"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": rows})
}

func (s *Server) handleDailyPerformance(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	start, end := dateRange(r)
	rows, err := s.reportingService.DailyPerformance(r.Context(), userID, start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": rows})
}

func (s *Server) handleAggregatedPerformance(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	start, end := dateRange(r)
	rows, err := s.reportingService.ChannelPerformance(r.Context(), userID, start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": rows})
}

func (s *Server) handleCampaignPerformance(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	start, end := dateRange(r)
	rows, err := s.reportingService.CampaignPerformance(r.Context(), userID, start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": rows})
}

func (s *Server) handleMonthlyPerformance(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	start, end := dateRange(r)
	rows, err := s.reportingService.MonthlyPerformance(r.Context(), userID, start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": rows})
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	start, end := dateRange(r)
	insights, err := s.reportingService.Insights(r.Context(), userID, start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"insights": insights})
}
