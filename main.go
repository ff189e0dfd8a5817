// Command clubsite serves a university club's event backend: event CRUD with
// announcement fan-out, email subscriptions, Google Calendar linking, and
// iCalendar feeds.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clubsite/config"
	"clubsite/discord"
	"clubsite/docstore"
	"clubsite/email"
	"clubsite/gcal"
	"clubsite/media"
	"clubsite/server"
	"clubsite/store"
	"clubsite/tasks"
)

const shutdownGrace = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(logger)
	if err != nil {
		return err
	}

	db, err := docstore.FromEnv(ctx, docstore.Env{
		FirestoreProject: cfg.FirebaseProjectID,
		CredentialsJSON:  cfg.GoogleCredentialsJSON,
		SupabaseURL:      cfg.SupabaseURL,
		SupabaseKey:      cfg.SupabaseKey,
		LocalPath:        cfg.LocalStorage,
	}, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer func() {
			if err := db.Close(); err != nil {
				logger.Warn("Failed to close document store", "error", err)
			}
		}()
	}

	st := store.New(db, []byte(cfg.TokenSalt), logger)

	provider := email.FromSettings(email.Settings{
		BrevoAPIKey:       cfg.BrevoAPIKey,
		BrevoSenderEmail:  cfg.BrevoSenderEmail,
		BrevoSenderName:   cfg.BrevoSenderName,
		ResendAPIKey:      cfg.ResendAPIKey,
		ResendFrom:        cfg.ResendFrom,
		EmailJSServiceID:  cfg.EmailJSServiceID,
		EmailJSTemplateID: cfg.EmailJSTemplateID,
		EmailJSPublicKey:  cfg.EmailJSPublicKey,
		EmailJSPrivateKey: cfg.EmailJSPrivateKey,
	}, logger)

	sender := email.New(provider, logger, cfg.BaseURL, cfg.AppURL, email.Branding{
		ClubName:     cfg.ClubName,
		LogoURL:      cfg.LogoURL,
		InstagramURL: cfg.InstagramURL,
		DiscordURL:   cfg.DiscordURL,
	})

	gallery, err := media.New(ctx, cfg.GalleryBucket, cfg.GalleryLocalDir, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := gallery.Close(); err != nil {
			logger.Warn("Failed to close gallery", "error", err)
		}
	}()

	runner := tasks.NewRunner(logger, 0)

	srv := server.New(server.Config{
		Store:      st,
		Sender:     sender,
		Dispatcher: email.NewDispatcher(st, sender, logger),
		Discord:    discord.New(cfg.DiscordWebhookURL, cfg.AppURL, logger),
		Calendar:   gcal.New(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL, st, logger),
		Gallery:    gallery,
		Tasks:      runner,
		Logger:     logger,
		AdminKey:   cfg.AdminAPIKey,
		BaseURL:    cfg.BaseURL,
		AppURL:     cfg.AppURL,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Routes(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", "error", err)
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Background tasks still running at shutdown", "error", err)
	}

	logger.Info("Shutdown complete")
	return nil
}
