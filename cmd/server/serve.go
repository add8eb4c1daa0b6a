package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkwell/internal/auth"
	"github.com/inkwell/internal/db"
	"github.com/inkwell/internal/handler"
	"github.com/inkwell/internal/logger"
	"github.com/inkwell/internal/metrics"
	"github.com/inkwell/internal/router"
	"github.com/inkwell/internal/storage"
	"github.com/spf13/cobra"
)

const shutdownGrace = 10 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, log := opts.cfg, opts.log

	gin.SetMode(cfg.GinMode)

	// 初始化数据库
	if err := db.Init(cfg.DatabasePath, logger.GormLevel(cfg.LogLevel)); err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return fmt.Errorf("configure tokens: %w", err)
	}

	uploads, err := storage.NewLocalStore(storage.Config{
		Dir:      cfg.UploadDir,
		URLPath:  cfg.UploadURLPath,
		BaseURL:  cfg.PublicBaseURL,
		Secret:   cfg.UploadSecret,
		TTL:      cfg.UploadURLTTL,
		MaxBytes: cfg.UploadMaxBytes,
	})
	if err != nil {
		return fmt.Errorf("configure uploads: %w", err)
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	api := handler.NewAPI(db.DB, tokens, uploads, m, handler.Options{Development: cfg.IsDevelopment()})
	routerOpts := router.Options{
		SessionName:    cfg.SessionName,
		SessionSecret:  cfg.SessionSecret,
		SessionMaxAge:  cfg.TokenTTL,
		SecureCookies:  !cfg.IsDevelopment(),
		RequestTimeout: cfg.RequestTimeout,
		Logger:         log,
		Metrics:        m,
	}
	r := router.SetupRouter(api, routerOpts)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.WithTimeout(r, routerOpts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Str("environment", cfg.Environment).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("run server: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}
