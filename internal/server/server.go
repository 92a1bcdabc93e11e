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
	"github.com/prodcat/apiserver/config"
	"github.com/prodcat/apiserver/internal/db"
	"github.com/prodcat/apiserver/internal/handlers"
	"github.com/prodcat/apiserver/internal/mailer"
	"github.com/prodcat/apiserver/internal/mq"
	"github.com/prodcat/apiserver/internal/services"
	"github.com/prodcat/apiserver/internal/storage"
	"github.com/prodcat/apiserver/internal/store"
	"github.com/rs/zerolog"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	broker     *mq.MQ
	logger     zerolog.Logger
}

// New constructs a Server with all dependencies wired.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("component", "server").Logger()

	jwtSecret := strings.TrimSpace(cfg.JWTSecret)
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	imageBackend, err := newStorageBackend(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	if err := imageBackend.EnsureBucket(ctx); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("ensure image bucket: %w", err)
	}
	imageStorage := storage.NewStorage(imageBackend)

	broker, err := newBroker(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	mail, err := mailer.NewMailer(cfg.SMTP, logger.With().Str("component", "mailer").Logger())
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	otpRepo := store.NewOTPRepository(dbConn)
	tokenRepo := store.NewTokenRepository(dbConn)
	productRepo := store.NewProductRepository(dbConn)

	events := services.NewEventPublisher(broker, cfg.MQ.EventsChannel, logger)
	userService := services.NewUserService(userRepo)
	verificationService := services.NewVerificationService(
		userRepo, otpRepo, tokenRepo, mail, cfg.OTP, cfg.BaseURL, logger,
	)
	productService := services.NewProductService(productRepo, imageStorage, events, logger)

	authMiddleware := handlers.RequireAuth(jwtSecret)

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
		handlers.AuthRouter(r, userService, verificationService, jwtSecret)
	})
	router.Route("/products", func(r chi.Router) {
		handlers.ProductRouter(r, productService, authMiddleware)
	})
	router.Route("/static", func(r chi.Router) {
		handlers.ImageRouter(r, productService)
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
		broker:     broker,
		logger:     logger,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.broker != nil {
		_ = s.broker.Close()
	}
	return s.httpServer.Close()
}

func newStorageBackend(ctx context.Context, cfg config.Config) (storage.ObjectStorage, error) {
	switch strings.ToLower(cfg.Storage.Backend) {
	case "gcs":
		return storage.NewGCSClient(ctx, cfg.GCS)
	case "minio", "":
		return storage.NewMinioClient(cfg.Minio)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// newBroker returns nil when no broker is configured; event publishing
// is then disabled.
func newBroker(ctx context.Context, cfg config.Config) (*mq.MQ, error) {
	switch strings.ToLower(cfg.MQ.Backend) {
	case "":
		return nil, nil
	case "rabbitmq":
		backend, err := mq.NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return mq.New(backend), nil
	case "pubsub":
		backend, err := mq.NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		return mq.New(backend), nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.MQ.Backend)
	}
}
