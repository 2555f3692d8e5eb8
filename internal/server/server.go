package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/bugtrackr/apiserver/config"
	"github.com/bugtrackr/apiserver/internal/db"
	"github.com/bugtrackr/apiserver/internal/handlers"
	"github.com/bugtrackr/apiserver/internal/notify"
	"github.com/bugtrackr/apiserver/internal/services"
	"github.com/bugtrackr/apiserver/internal/storage"
	"github.com/bugtrackr/apiserver/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	notifier   notify.Notifier
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	attachments, err := newAttachments(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	notifier, err := newNotifier(ctx, cfg.Notify)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	projectRepo := store.NewProjectRepository(dbConn)
	bugRepo := store.NewBugRepository(dbConn)

	userService := services.NewUserService(userRepo)
	projectService := services.NewProjectService(projectRepo, userService)
	bugService := services.NewBugService(bugRepo, projectRepo, userRepo, attachments, notifier)

	jwtSecret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if jwtSecret == "" {
		_ = dbConn.Close()
		_ = notifier.Close()
		return nil, errors.New("JWT_SECRET is required")
	}

	authMiddleware := handlers.RequireActor(userService, jwtSecret)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, userService, jwtSecret)
	})
	router.Route("/projects", func(r chi.Router) {
		handlers.ProjectRouter(r, projectService, bugService, authMiddleware)
	})
	router.Route("/bugs", func(r chi.Router) {
		handlers.BugRouter(r, bugService, authMiddleware)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		notifier:   notifier,
	}, nil
}

// newAttachments builds the attachment store for the configured backend.
// Returns nil when no backend is configured; attachments are optional.
func newAttachments(ctx context.Context, cfg config.StorageConfig) (*storage.Attachments, error) {
	var backend storage.ObjectStorage
	switch cfg.Backend {
	case "":
		return nil, nil
	case "minio":
		client, err := storage.NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, err
		}
		backend = client
	case "gcs":
		client, err := storage.NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		backend = client
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	attachments := storage.NewAttachments(backend)
	if err := attachments.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return attachments, nil
}

// newNotifier builds the bug event publisher for the configured backend.
func newNotifier(ctx context.Context, cfg config.NotifyConfig) (notify.Notifier, error) {
	switch cfg.Backend {
	case "":
		return notify.Noop{}, nil
	case "rabbitmq":
		return notify.NewRabbitNotifier(cfg.RabbitMQ)
	case "pubsub":
		return notify.NewPubSubNotifier(ctx, cfg.PubSub)
	}
	return nil, fmt.Errorf("unknown notify backend %q", cfg.Backend)
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.notifier != nil {
		_ = s.notifier.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}
