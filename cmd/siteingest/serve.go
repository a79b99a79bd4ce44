package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/siteingest/internal/api"
	"github.com/JakeFAU/siteingest/internal/app"
	"github.com/JakeFAU/siteingest/internal/clock/system"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP ingestion service",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	logger := rt.logger

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, rt.cfg, logger, app.Overrides{})
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}

	var checks []api.ReadyCheck
	for _, check := range application.ReadyChecks() {
		checks = append(checks, check)
	}
	server := api.NewServer(application.Service(), application.Documents(), rt.cfg, system.New(), logger, checks...)

	port := rt.cfg.Server.Port
	if env := os.Getenv("PORT"); env != "" {
		parsed, convErr := strconv.Atoi(env)
		if convErr != nil || parsed <= 0 {
			logger.Warn("ignoring invalid PORT", zap.String("port", env))
		} else {
			port = parsed
		}
	}
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rt.cfg.ShutdownTimeout())
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown failed", zap.Error(err))
	}
	application.Close(shutdownCtx)
	logger.Info("shutdown complete")
	return nil
}
