package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"salonfront/internal/catalog"
	"salonfront/internal/config"
	"salonfront/internal/salonclient"
	"salonfront/internal/server"
	"salonfront/internal/session"
	"salonfront/internal/util"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	backendTimeout, err := config.ParseDurationOr(cfg.BackendTimeout, 10*time.Second)
	if err != nil {
		log.Fatalf("failed to parse backend timeout: %v", err)
	}
	confirmDelay, err := config.ParseDurationOr(cfg.ConfirmationDelay, 2*time.Second)
	if err != nil {
		log.Fatalf("failed to parse confirmation delay: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	sessions, err := newSessionStore(cfg)
	if err != nil {
		log.Fatalf("failed to init session store: %v", err)
	}

	salon := salonclient.NewClient(cfg.SalonAPIURL, backendTimeout, salonclient.AuthHeader(cfg.AuthHeader))
	slots := catalog.NewStaticProvider(cfg.SlotDayStartHour, cfg.SlotDayEndHour)

	httpServer, err := server.New(server.Config{
		Salon:                    salon,
		Sessions:                 sessions,
		Slots:                    slots,
		RedisAddr:                cfg.RedisAddr,
		RedisPassword:            cfg.RedisPassword,
		LoginRateLimitPerMinute:  cfg.LoginRateLimitPerMinute,
		SubmitRateLimitPerMinute: cfg.SubmitRateLimitPerMinute,
		TrustedProxyCIDRs:        cfg.TrustedProxyCIDRs,
		ConfirmationDelay:        confirmDelay,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("server listening", "addr", addr, "backend", cfg.SalonAPIURL)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

func newSessionStore(cfg config.FileConfig) (session.Store, error) {
	switch cfg.SessionBackend {
	case "redis":
		return session.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.SessionMaxAge()), nil
	default:
		dir := cfg.SessionDir
		if dir == "" {
			dir = "data/sessions"
		}
		return session.NewFileStore(dir, cfg.SessionMaxAge())
	}
}
