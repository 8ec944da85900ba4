package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"cvrd/client/internal/api"
	"cvrd/client/internal/app"
	"cvrd/client/internal/backup"
	"cvrd/client/internal/cache"
	"cvrd/client/internal/config"
	"cvrd/client/internal/prefs"
	"cvrd/client/internal/realtime"
	"cvrd/client/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	deviceID := strings.TrimSpace(cfg.DeviceID)
	if deviceID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "local"
		}
		deviceID = host
	}

	backend, err := openPreferences(ctx, cfg, deviceID)
	if err != nil {
		log.Fatalf("preference storage failed: %v", err)
	}
	defer backend.Close()

	apiClient := api.New(cfg.APIURL, &http.Client{Timeout: cfg.HTTPTimeout})
	inbox := realtime.NewInbox(realtime.DefaultInboxSize)
	channel := realtime.New(realtime.Options{
		Dialer:         realtime.WSDialer{URL: cfg.RealtimeURL},
		Notifier:       inbox,
		ReconnectDelay: cfg.ReconnectDelay,
	})

	var backups app.Backups
	if strings.TrimSpace(cfg.Backup.Endpoint) != "" {
		service, err := backup.New(backup.Config{
			Endpoint:  cfg.Backup.Endpoint,
			AccessKey: cfg.Backup.AccessKey,
			SecretKey: cfg.Backup.SecretKey,
			Bucket:    cfg.Backup.Bucket,
			Secure:    cfg.Backup.Secure,
		})
		if err != nil {
			log.Fatalf("backup storage failed: %v", err)
		}
		log.Printf("Backing up preferences to %s/%s", cfg.Backup.Endpoint, cfg.Backup.Bucket)
		backups = service
	}

	client := app.New(app.Options{
		Prefs:   prefs.New(backend),
		Backend: apiClient,
		Cache: cache.New(cache.Options{
			StaleAfter: cfg.StaleAfter,
			Retries:    cfg.FetchRetries,
		}),
		Channel:  channel,
		Inbox:    inbox,
		Backups:  backups,
		DeviceID: deviceID,
	})
	defer client.Close()

	if user, err := client.Session().Restore(ctx); err != nil {
		log.Printf("No session restored: %v", err)
	} else {
		log.Printf("Restored session for %s", user.Email)
	}

	httpServer := app.NewHTTPServer(client, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("cvrd client listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func openPreferences(ctx context.Context, cfg config.Config, deviceID string) (store.Backend, error) {
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for preference storage")
		redisStore, err := store.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return redisStore, nil
	}

	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		log.Printf("Using PostgreSQL for preference storage")
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := store.ApplyMigrations(ctx, db, store.DialectPostgres); err != nil {
			_ = db.Close()
			return nil, err
		}
		return store.NewPostgresStore(db, deviceID), nil
	}

	log.Printf("Using SQLite at %s for preference storage", cfg.PrefsPath)
	if err := os.MkdirAll(filepath.Dir(cfg.PrefsPath), 0o755); err != nil {
		return nil, err
	}
	sqliteStore, err := store.NewSQLiteStore(ctx, cfg.PrefsPath)
	if err != nil {
		return nil, err
	}
	return sqliteStore, nil
}
