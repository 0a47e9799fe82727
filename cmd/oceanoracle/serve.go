package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/oceanoracle/internal/api"
	"github.com/rewired-gh/oceanoracle/internal/chat"
	"github.com/rewired-gh/oceanoracle/internal/logger"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long:  `Start the Ocean Oracle HTTP API. Regions with a fresh cache and current models are restored from disk at start when lifecycle.warm_on_start is set.`,
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := buildStack(cfg, true)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var responder chat.Responder
	if cfg.ChatEnabled() {
		gemini, err := chat.NewGemini(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			return err
		}
		defer func() {
			if err := gemini.Close(); err != nil {
				logger.Warn("Failed to close Gemini client: %v", err)
			}
		}()
		responder = gemini
		logger.Info("Chat enabled with model %s", cfg.Gemini.Model)
	} else {
		logger.Warn("GEMINI_API_KEY is not set, chat is disabled")
	}

	if cfg.Lifecycle.WarmOnStart {
		warmed := st.manager.Warm(ctx)
		logger.Info("Restored %d of %d regions from disk", len(warmed), len(st.registry.Keys()))
	}

	server := api.New(api.Options{
		Lifecycle:         st.manager,
		Registry:          st.registry,
		Assistant:         chat.NewAssistant(responder),
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		RequestTimeout:    cfg.Server.RequestTimeout,
		VisualizationWait: cfg.Server.VisualizationWait,
		SampleSize:        cfg.Visualization.SampleSize,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error: %v", err)
		}
	}()

	logger.Info("Starting Ocean Oracle API on %s (%d regions)", cfg.Server.Addr, len(st.registry.Keys()))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	logger.Info("Service stopped")
	return nil
}
