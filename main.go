package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/net/webdav"

	"debridvfs/internal/config"
	"debridvfs/internal/debrid"
	"debridvfs/internal/identify"
	"debridvfs/internal/notify"
	"debridvfs/internal/reconcile"
	"debridvfs/internal/repair"
	"debridvfs/internal/store"
	"debridvfs/internal/vfs"
	"debridvfs/internal/webdavfs"
	"debridvfs/pkg/env"
	"debridvfs/pkg/logger"
)

// globalPanicRecoveryMiddleware provides top-level panic recovery for the
// WebDAV listener.
func globalPanicRecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered for %s %s: %v", r.Method, r.URL.Path, err)

				buf := make([]byte, 1024)
				for {
					n := runtime.Stack(buf, false)
					if n < len(buf) {
						buf = buf[:n]
						break
					}
					buf = make([]byte, 2*len(buf))
				}
				logger.Error("stack trace: %s", string(buf))

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error":   "Internal Server Error",
					"message": "Service temporarily unavailable",
					"status":  500,
				})
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// connectionSemaphoreMiddleware bounds concurrent WebDAV sessions;
// overflow connections are closed without being served. Where the
// connection cannot be taken over (as with HTTP/2), a 503 is written
// instead.
func connectionSemaphoreMiddleware(next http.Handler, sem chan struct{}) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			next.ServeHTTP(w, r)
		default:
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					_ = conn.Close()
					return
				}
			}
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})
}

func main() {
	_ = godotenv.Load()

	logger.Init()
	defer logger.Close()

	env.LoadEnv()

	settings := config.FromEnv()
	if settings.RDAPIToken == "" {
		logger.Error("RD_API_TOKEN must be set")
		os.Exit(1)
	}
	if settings.TMDBAPIKey == "" {
		logger.Error("TMDB_API_KEY must be set")
		os.Exit(1)
	}

	logger.Info("scan interval: %ds", settings.ScanIntervalSecs)

	rdClient, err := debrid.NewClient(settings.RDAPIToken)
	if err != nil {
		logger.Error("failed to construct Real-Debrid client: %v", err)
		os.Exit(1)
	}

	tmdbClient := identify.NewTmdbClient(settings.TMDBAPIKey)
	repairManager := repair.New(rdClient)

	db, err := store.Open("metadata.db")
	if err != nil {
		logger.Error("failed to open metadata.db: %v", err)
		os.Exit(1)
	}

	fileSystem := webdavfs.New(vfs.NewDirectory(), rdClient, repairManager)

	var notifier *notify.Client
	if settings.JellyfinConfigured() {
		notifier = notify.FromEnv(settings)
		logger.Info("change notifications enabled for %s", settings.JellyfinURL)
	} else {
		logger.Info("JELLYFIN_URL/JELLYFIN_API_KEY/JELLYFIN_RCLONE_MOUNT_PATH not fully set, change notifications disabled")
	}

	loop := reconcile.New(rdClient, tmdbClient, db, repairManager, notifier, fileSystem,
		settings.IdentifyConcurrency, time.Duration(settings.ScanIntervalSecs)*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	davHandler := &webdav.Handler{
		Prefix:     "/",
		FileSystem: fileSystem,
		LockSystem: webdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				logger.Warn("webdav %s %s: %v", r.Method, r.URL.Path, err)
			}
		},
	}

	sem := make(chan struct{}, settings.ConnectionSemaphore)
	handler := globalPanicRecoveryMiddleware(connectionSemaphoreMiddleware(davHandler, sem))

	addr := "0.0.0.0:8080"
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  0,
		WriteTimeout: 0,
		IdleTimeout:  300 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-shutdown
		logger.Info("shutting down: stopping reconciliation and checkpointing metadata.db")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)

		_ = db.Close()
		os.Exit(0)
	}()

	logger.Info("WebDAV server listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(fmt.Errorf("server error: %w", err))
	}
}
