package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"salonfront/internal/salonclient"
	"salonfront/internal/session"
	"salonfront/internal/util"
	"salonfront/pkg/domain"
)

type loginRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleLogin exchanges credentials with the backend and persists the
// resulting session for this visitor.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.handleAuth(w, r, false)
}

// handleRegister creates an account and signs the visitor in.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	s.handleAuth(w, r, true)
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request, register bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if !s.loginLimiter.Allow(util.ClientIP(r, s.trusted)) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts, slow down")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "email and password are required")
		return
	}

	var (
		profile domain.Session
		token   string
		err     error
	)
	if register {
		profile, token, err = s.salon.Register(r.Context(), strings.TrimSpace(req.Name), req.Email, req.Password)
	} else {
		profile, token, err = s.salon.Login(r.Context(), req.Email, req.Password)
	}
	if err != nil {
		writeBackendError(w, err)
		return
	}

	// Stamp the sign-in moment; it drives the seven-day expiry rule.
	profile.IssuedAt = s.now()
	vid := s.visitorID(w, r)
	if err := s.sessions.Save(r.Context(), vid, session.Record{Token: token, Profile: profile}); err != nil {
		util.LoggerFromContext(r.Context()).Error("save session", "err", err)
		writeError(w, http.StatusInternalServerError, "session_store", "could not persist session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": profile})
}

// handleLogout clears the persisted session; signing out twice is fine.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	vid := s.visitorID(w, r)
	if err := s.sessions.Clear(r.Context(), vid); err != nil {
		util.LoggerFromContext(r.Context()).Error("clear session", "err", err)
		writeError(w, http.StatusInternalServerError, "session_store", "could not clear session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleProfile returns the session's profile plus the subject's
// appointment history from the backend.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	rec, vid, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	appointments, err := s.salon.MyAppointments(r.Context(), rec.Token)
	if err != nil {
		if salonclient.KindOf(err) == salonclient.KindAuth {
			_ = s.sessions.Clear(r.Context(), vid)
		}
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":         rec.Profile,
		"appointments": appointments,
	})
}
