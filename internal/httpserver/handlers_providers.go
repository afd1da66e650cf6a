package httpserver

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/dataplunge/dataplunge/internal/apperror"
	"github.com/dataplunge/dataplunge/internal/middleware"
	"github.com/dataplunge/dataplunge/internal/models"
	"github.com/dataplunge/dataplunge/internal/oauth"
)

type selectAccountRequest struct {
	AccountID string `json:"account_id"`
}

type selectPropertyRequest struct {
	PropertyID string `json:"property_id"`
}

type fetchRequest struct {
	AccountID  string `json:"account_id,omitempty"`
	PropertyID string `json:"property_id,omitempty"`
}

type fetchResponse struct {
	Rows int `json:"rows"`
}

// requireUser extracts the authenticated user ID; the auth middleware
// guarantees it is present on these routes.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		s.writeError(w, r, apperror.Unauthorized("missing session"))
		return 0, false
	}
	return userID, true
}

func (s *Server) handleConnect(provider models.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := oauth.NewState()
		url, err := s.providers.AuthURL(provider, state)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, authURLResponse{AuthURL: url, State: state})
	}
}

func (s *Server) handleGoogleAdsConnect(w http.ResponseWriter, r *http.Request) {
	s.handleConnect(models.ProviderGoogleAds)(w, r)
}

func (s *Server) handleAnalyticsConnect(w http.ResponseWriter, r *http.Request) {
	s.handleConnect(models.ProviderAnalytics)(w, r)
}

func (s *Server) handleMetaConnect(w http.ResponseWriter, r *http.Request) {
	s.handleConnect(models.ProviderMeta)(w, r)
}

// exchangeCode runs the shared part of every provider callback: decode
// the code, exchange and store the credential.
func (s *Server) exchangeCode(w http.ResponseWriter, r *http.Request, provider models.Provider) (int64, bool) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return 0, false
	}

	var req callbackRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return 0, false
	}
	if req.Code == "" {
		s.writeError(w, r, apperror.ValidationFailed("code", "code is required"))
		return 0, false
	}

	if _, err := s.tokenManager.Exchange(r.Context(), userID, provider, req.Code); err != nil {
		s.writeError(w, r, err)
		return 0, false
	}
	return userID, true
}

// handleGoogleAdsCallback additionally resolves the accessible customer
// and kicks off an initial fetch so the dashboard has data right after
// connecting. A failed initial fetch does not fail the connect.
func (s *Server) handleGoogleAdsCallback(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.exchangeCode(w, r, models.ProviderGoogleAds)
	if !ok {
		return
	}

	resp := map[string]any{"connected": true}
	customerID, err := s.ingestService.ResolveGoogleAdsCustomer(r.Context(), userID)
	if err != nil {
		s.logger.Warn("google ads customer resolution failed",
			zap.Int64("user_id", userID), zap.Error(err))
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp["customer_id"] = customerID

	rows, err := s.ingestService.FetchGoogleAds(r.Context(), userID)
	if err != nil {
		s.logger.Warn("initial google ads fetch failed",
			zap.Int64("user_id", userID), zap.Error(err))
	} else {
		resp["rows"] = rows
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnalyticsCallback(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.exchangeCode(w, r, models.ProviderAnalytics); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connected": true})
}

func (s *Server) handleMetaCallback(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.exchangeCode(w, r, models.ProviderMeta); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connected": true})
}

func (s *Server) handleGoogleAdsAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	ids, err := s.ingestService.GoogleAds().ListAccessibleCustomers(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer_ids": ids})
}

func (s *Server) handleAnalyticsProperties(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	props, err := s.ingestService.Analytics().ListProperties(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"properties": props})
}

func (s *Server) handleMetaAdAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	accounts, err := s.ingestService.Meta().ListAdAccounts(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ad_accounts": accounts})
}

func (s *Server) handleAnalyticsSelectProperty(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var req selectPropertyRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.PropertyID == "" {
		s.writeError(w, r, apperror.ValidationFailed("property_id", "property_id is required"))
		return
	}

	if err := s.ingestService.SelectAccount(r.Context(), userID, models.ProviderAnalytics, req.PropertyID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"property_id": req.PropertyID})
}

func (s *Server) handleMetaSelectAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var req selectAccountRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.AccountID == "" {
		s.writeError(w, r, apperror.ValidationFailed("account_id", "account_id is required"))
		return
	}

	if err := s.ingestService.SelectAccount(r.Context(), userID, models.ProviderMeta, req.AccountID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"account_id": req.AccountID})
}

func (s *Server) handleGoogleAdsFetch(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	rows, err := s.ingestService.FetchGoogleAds(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fetchResponse{Rows: rows})
}

func (s *Server) handleAnalyticsFetch(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var req fetchRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	rows, err := s.ingestService.FetchAnalytics(r.Context(), userID, req.PropertyID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fetchResponse{Rows: rows})
}

func (s *Server) handleMetaFetch(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var req fetchRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	rows, err := s.ingestService.FetchMeta(r.Context(), userID, req.AccountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fetchResponse{Rows: rows})
}

func (s *Server) handleDisconnect(provider models.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.requireUser(w, r)
		if !ok {
			return
		}
		if err := s.tokenManager.Disconnect(r.Context(), userID, provider); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"disconnected": true})
	}
}

func (s *Server) handleGoogleAdsDisconnect(w http.ResponseWriter, r *http.Request) {
	s.handleDisconnect(models.ProviderGoogleAds)(w, r)
}

func (s *Server) handleAnalyticsDisconnect(w http.ResponseWriter, r *http.Request) {
	s.handleDisconnect(models.ProviderAnalytics)(w, r)
}

func (s *Server) handleMetaDisconnect(w http.ResponseWriter, r *http.Request) {
	s.handleDisconnect(models.ProviderMeta)(w, r)
}

// handleProviderStatus reports which providers hold a stored credential.
func (s *Server) handleProviderStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	status, err := s.tokenManager.Status(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
