// Package server exposes the storefront HTTP API: the booking surfaces
// (modal and page presenters over one shared form engine), authentication
// passthrough, the catalog, and the visitor profile.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"salonfront/internal/catalog"
	"salonfront/internal/ratelimit"
	"salonfront/internal/salonclient"
	"salonfront/internal/session"
	"salonfront/internal/util"
)

const visitorCookie = "salonfront_visitor"

// Config wires required dependencies for the HTTP server.
type Config struct {
	Salon    *salonclient.Client
	Sessions session.Store
	Slots    catalog.Provider

	RedisAddr     string
	RedisPassword string

	LoginRateLimitPerMinute  int
	SubmitRateLimitPerMinute int
	TrustedProxyCIDRs        []string

	// ConfirmationDelay is how long a succeeded surface stays visible
	// before its presenter closes or navigates away.
	ConfirmationDelay time.Duration
}

// Server is the storefront gateway HTTP layer.
type Server struct {
	salon    *salonclient.Client
	sessions session.Store
	slots    catalog.Provider
	mux      *http.ServeMux

	surfaces     *surfaceSet
	confirmDelay time.Duration

	loginLimiter  *ratelimit.FixedWindowLimiter
	submitLimiter *ratelimit.FixedWindowLimiter
	trusted       *util.TrustedProxies

	now func() time.Time
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	loginLimit := cfg.LoginRateLimitPerMinute
	if loginLimit <= 0 {
		loginLimit = 10
	}
	submitLimit := cfg.SubmitRateLimitPerMinute
	if submitLimit <= 0 {
		submitLimit = 30
	}
	loginLimiter, err := ratelimit.NewRedisFixedWindowLimiter(
		cfg.RedisAddr, cfg.RedisPassword, "salonfront:ratelimit:login", loginLimit, time.Minute)
	if err != nil {
		return nil, fmt.Errorf("init login limiter: %w", err)
	}
	submitLimiter, err := ratelimit.NewRedisFixedWindowLimiter(
		cfg.RedisAddr, cfg.RedisPassword, "salonfront:ratelimit:submit", submitLimit, time.Minute)
	if err != nil {
		return nil, fmt.Errorf("init submit limiter: %w", err)
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	delay := cfg.ConfirmationDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}

	s := &Server{
		salon:         cfg.Salon,
		sessions:      cfg.Sessions,
		slots:         cfg.Slots,
		mux:           http.NewServeMux(),
		surfaces:      newSurfaceSet(),
		confirmDelay:  delay,
		loginLimiter:  loginLimiter,
		submitLimiter: submitLimiter,
		trusted:       trusted,
		now:           time.Now,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = util.WithRequestLog(h)
	h = util.WithRequestID(h)
	h = util.WithCORS(h)
	return util.WithSecurityHeaders(h)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth passthrough
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/register", s.handleRegister)
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)
	s.mux.HandleFunc("/api/profile", s.handleProfile)

	// catalog
	s.mux.HandleFunc("/api/catalog", s.handleCatalog)
	s.mux.HandleFunc("/api/booking/slots", s.handleSlots)

	// booking surfaces
	s.mux.HandleFunc("/api/booking/surfaces", s.handleSurfaces)
	s.mux.HandleFunc("/api/booking/surfaces/", s.handleSurfaceByID)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// visitorID returns the visitor cookie value, minting and setting one when
// absent. The cookie only links a browser to its persisted session record.
func (s *Server) visitorID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(visitorCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := util.NewID()
	http.SetCookie(w, &http.Cookie{
		Name:     visitorCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int((180 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// requireSession loads the visitor's persisted session, enforcing the
// credential's own expiry on top of the store's max-age rule.
func (s *Server) requireSession(w http.ResponseWriter, r *http.Request) (session.Record, string, bool) {
	vid := s.visitorID(w, r)
	rec, ok, err := s.sessions.Load(r.Context(), vid)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("load session", "err", err)
		writeError(w, http.StatusInternalServerError, "session_store", "session store unavailable")
		return session.Record{}, vid, false
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, "auth_required", "authentication required")
		return session.Record{}, vid, false
	}
	if session.TokenExpired(rec.Token, s.now()) {
		_ = s.sessions.Clear(r.Context(), vid)
		writeError(w, http.StatusUnauthorized, "session_expired", "session expired, please sign in again")
		return session.Record{}, vid, false
	}
	return rec, vid, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

// writeBackendError maps a classified salonclient failure onto the
// storefront's response contract.
func writeBackendError(w http.ResponseWriter, err error) {
	switch salonclient.KindOf(err) {
	case salonclient.KindValidation:
		writeError(w, http.StatusBadRequest, "backend_rejected", err.Error())
	case salonclient.KindAuth:
		writeError(w, http.StatusUnauthorized, "session_expired", "session expired, please sign in again")
	case salonclient.KindNetwork:
		writeError(w, http.StatusBadGateway, "backend_unreachable", "salon backend unreachable")
	default:
		writeError(w, http.StatusBadGateway, "backend_error", "salon backend error")
	}
}
