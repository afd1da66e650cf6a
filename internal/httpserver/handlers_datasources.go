package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dataplunge/dataplunge/internal/apperror"
)

type datasourceResponse struct {
	ID         int64  `json:"id"`
	SourceName string `json:"source_name"`
	CreatedAt  string `json:"created_at"`
	Status     string `json:"status"`
}

func (s *Server) handleListDatasources(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	sources, err := s.datasources.ListByUser(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := make([]datasourceResponse, 0, len(sources))
	for _, ds := range sources {
		resp = append(resp, datasourceResponse{
			ID:         ds.ID,
			SourceName: ds.SourceName,
			CreatedAt:  ds.CreatedAt.Format("2006-01-02 15:04:05"),
			Status:     "connected",
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasources": resp})
}

// handleDeleteDatasource removes a datasource the caller owns together
// with its campaigns and metrics. Someone else's datasource ID is a 404
// rather than a 403 so IDs are not probeable.
func (s *Server) handleDeleteDatasource(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, r, apperror.ValidationFailed("id", "datasource id must be an integer"))
		return
	}

	if err := s.datasources.Delete(r.Context(), userID, id); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.reportingService.InvalidateUser(r.Context(), userID); err != nil {
		s.logger.Warn("reporting cache invalidation failed after datasource delete")
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
