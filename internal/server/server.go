// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package server wires the application together and runs the HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"

	"codeberg.org/oliverandrich/go-otp-login/internal/config"
	"codeberg.org/oliverandrich/go-otp-login/internal/database"
	"codeberg.org/oliverandrich/go-otp-login/internal/delivery"
	"codeberg.org/oliverandrich/go-otp-login/internal/engine"
	"codeberg.org/oliverandrich/go-otp-login/internal/handlers"
	"codeberg.org/oliverandrich/go-otp-login/internal/otp"
	"codeberg.org/oliverandrich/go-otp-login/internal/repository"
	"codeberg.org/oliverandrich/go-otp-login/internal/session"
	"codeberg.org/oliverandrich/go-otp-login/internal/templates"
)

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	// Database
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	repo := repository.New(db)

	// Code delivery: SMTP when configured, log spool otherwise.
	var codeDelivery delivery.CodeDelivery
	if cfg.SMTP.Host != "" {
		codeDelivery, err = delivery.NewSMTP(&cfg.SMTP)
		if err != nil {
			return fmt.Errorf("failed to set up SMTP delivery: %w", err)
		}
	} else {
		slog.Warn("SMTP not configured, codes are written to the log")
		codeDelivery = &delivery.Log{SpoolPath: cfg.OTP.SpoolPath}
	}

	// OTP engine and lifecycle flow
	eng := engine.New(repo, codeDelivery, time.Duration(cfg.OTP.CodeExpirySeconds)*time.Second)
	flow := otp.NewFlow(eng, otp.Config{
		MinResendIntervalSeconds: cfg.OTP.ResendIntervalSeconds,
		MaxCodeAttempts:          cfg.OTP.MaxCodeAttempts,
		EncryptionKey:            cfg.OTP.EncryptionKey,
	})

	// Sessions
	sessions, err := session.NewManager(&cfg.Session, cfg.CookieSecure())
	if err != nil {
		return fmt.Errorf("failed to set up sessions: %w", err)
	}

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	renderer, err := templates.New()
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}
	e.Renderer = renderer

	e.Use(requestLogger())

	setupRoutes(e, cfg, flow, sessions)

	// Start server
	return startWithGracefulShutdown(ctx, e, cfg)
}

func setupRoutes(e *echo.Echo, cfg *config.Config, flow *otp.Flow, sessions *session.Manager) {
	h := handlers.New(sessions)
	auth := handlers.NewAuth(flow, sessions, cfg.CookieSecure())

	e.GET("/health", h.Health)
	e.GET("/", h.Home)
	e.GET("/protected", h.Protected)

	e.GET("/auth/sign-in", auth.SignInPage)
	e.POST("/auth/start-otp", auth.StartOTP)
	e.GET("/auth/await-code", auth.AwaitCodePage)
	e.POST("/auth/finish-otp", auth.FinishOTP)
	e.POST("/auth/resend-code", auth.ResendCode)
	e.GET("/auth/cancel-otp", auth.CancelOTP)
	e.POST("/auth/sign-out", auth.SignOut)
}

func startWithGracefulShutdown(ctx context.Context, e *echo.Echo, cfg *config.Config) error {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	errChan := make(chan error, 1)
	go func() {
		slog.Info("Server running", "url", cfg.Server.BaseURL)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Wait for interrupt signal, context cancellation or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.Info("shutting down server")
	case <-ctx.Done():
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}
