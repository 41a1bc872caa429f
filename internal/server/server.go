package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/havenportal/drivesync/internal/config"
	"github.com/havenportal/drivesync/internal/handler"
)

const shutdownTimeout = 15 * time.Second

// Handlers bundles the HTTP handlers the router mounts.
type Handlers struct {
	Files *handler.FileHandler
	Sync  *handler.SyncHandler
	Drive *handler.DriveHandler
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

func New(cfg *config.Config, logger *slog.Logger, h Handlers) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	router.Route("/api", func(r chi.Router) {
		r.Route("/uploads", func(r chi.Router) {
			r.Post("/sessions", h.Files.RequestSession)
			r.Post("/complete", h.Files.Confirm)
			r.Post("/sync", h.Sync.SyncGeneral)
		})
		r.Route("/files/{fileID}", func(r chi.Router) {
			r.Get("/versions", h.Files.ListVersions)
			r.Get("/download", h.Files.Download)
			r.Delete("/", h.Files.Delete)
		})
		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Post("/sync", h.Sync.SyncProject)
			r.Post("/folder", h.Drive.ProvisionFolder)
			r.Get("/export", h.Files.Export)
		})
		r.Route("/drive", func(r chi.Router) {
			r.Get("/status", h.Drive.Status)
			r.Get("/connect", h.Drive.Connect)
			r.Get("/callback", h.Drive.Callback)
			r.Post("/disconnect", h.Drive.Disconnect)
		})
		r.Post("/settings/logo", h.Drive.UploadLogo)
	})

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
	}
	return &Server{httpServer: srv, logger: logger}
}

// Run serves until SIGINT or SIGTERM, then drains in-flight requests.
func (s *Server) Run() error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}
