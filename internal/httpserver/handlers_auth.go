package httpserver

import (
	"net/http"

	"github.com/dataplunge/dataplunge/internal/apperror"
	"github.com/dataplunge/dataplunge/internal/middleware"
	"github.com/dataplunge/dataplunge/internal/models"
	"github.com/dataplunge/dataplunge/internal/oauth"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

type authURLResponse struct {
	AuthURL string `json:"auth_url"`
	State   string `json:"state"`
}

type callbackRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, token, err := s.authService.Register(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Token: token, User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, token, err := s.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: token, User: user})
}

// handleGoogleLogin hands the frontend the Google consent URL. The
// frontend completes the redirect and posts the code back to the
// callback endpoint.
func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := oauth.NewState()
	writeJSON(w, http.StatusOK, authURLResponse{
		AuthURL: s.googleVerifier.AuthURL(state),
		State:   state,
	})
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Code == "" {
		s.writeError(w, r, apperror.ValidationFailed("code", "code is required"))
		return
	}

	profile, err := s.googleVerifier.Exchange(r.Context(), req.Code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	user, token, err := s.authService.GoogleSignIn(r.Context(), profile)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: token, User: user})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		s.writeError(w, r, apperror.Unauthorized("missing session"))
		return
	}

	user, err := s.authService.CurrentUser(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
