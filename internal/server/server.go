package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/storefront/apiserver/config"
	"github.com/storefront/apiserver/internal/db"
	"github.com/storefront/apiserver/internal/events"
	"github.com/storefront/apiserver/internal/handlers"
	"github.com/storefront/apiserver/internal/logger"
	"github.com/storefront/apiserver/internal/mq"
	"github.com/storefront/apiserver/internal/services"
	"github.com/storefront/apiserver/internal/storage"
	"github.com/storefront/apiserver/internal/store"
)

// Server wraps the HTTP server and the connections it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
	logger     *slog.Logger
}

// Dependencies are the optional integrations handed to the router. Nil
// fields disable the matching feature.
type Dependencies struct {
	Events  services.EventPublisher
	Archive services.OrderArchive
}

// New connects to the database and, when configured, to the message broker
// and object storage, then builds the router.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*Server, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var deps Dependencies

	queue, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	if queue != nil {
		deps.Events = events.NewPublisher(queue, logger.Component(log, "events"))
		log.Info("domain events enabled", "backend", cfg.MQ.Backend)
	}

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		if queue != nil {
			_ = queue.Close()
		}
		_ = dbConn.Close()
		return nil, err
	}
	if objects != nil {
		deps.Archive = storage.NewOrderArchive(objects)
		log.Info("deleted-order archive enabled", "backend", cfg.Storage.Backend, "bucket", objects.Bucket())
	}

	router := NewRouter(dbConn, cfg, log, deps)

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
		queue:      queue,
		logger:     log,
	}, nil
}

// NewRouter builds the full route tree over an open database.
func NewRouter(dbConn *sql.DB, cfg config.Config, log *slog.Logger, deps Dependencies) *chi.Mux {
	st := store.New(dbConn, logger.Component(log, "store"))

	userService := services.NewUserService(st, logger.Component(log, "users"))
	catalogService := services.NewCatalogService(st, deps.Events, logger.Component(log, "catalog"))
	orderService := services.NewOrderService(st, deps.Events, deps.Archive, logger.Component(log, "orders"))

	authHandler := handlers.NewAuthHandler(userService, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	authMiddleware := authHandler.RequireAuth

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logger.Middleware(logger.Component(log, "http")),
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz(st))
	router.Route("/api", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			handlers.AuthRouter(r, authHandler)
		})
		r.Route("/categories", func(r chi.Router) {
			handlers.CategoryRouter(r, catalogService, authMiddleware)
		})
		r.Route("/products", func(r chi.Router) {
			handlers.ProductRouter(r, catalogService, authMiddleware)
		})
		r.Route("/orders", func(r chi.Router) {
			handlers.OrderRouter(r, orderService, authMiddleware)
		})
	})

	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the broker and database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.queue != nil {
		if qErr := s.queue.Close(); qErr != nil {
			s.logger.Warn("failed to close message queue", "error", qErr)
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
