package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/lexicara/kintone-http-service/common/config"
	"github.com/lexicara/kintone-http-service/common/db"
	"github.com/lexicara/kintone-http-service/common/kintone"
	"github.com/lexicara/kintone-http-service/common/redis"
	"github.com/lexicara/kintone-http-service/common/services"
	"github.com/lexicara/kintone-http-service/common/storage"
	"github.com/lexicara/kintone-http-service/handler"
	"github.com/lexicara/kintone-http-service/middlewares"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

type AppHttpServer struct {
	router        *chi.Mux
	cfg           config.Config
	server        *http.Server
	db            *db.DB
	kintoneClient *kintone.Client
	deployService *services.DeployService
	schemaCache   *redis.SchemaCache
	storage       storage.StorageService
}

func NewAppHttpServer(cfg config.Config) (*AppHttpServer, error) {
	r := chi.NewRouter()

	// Basic CORS
	// for more ideas, see: https://developer.github.com/v3/#cross-origin-resource-sharing
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-API-KEY"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Set a timeout value on the request context (ctx), that will signal
	// through ctx.Done() that the request has timed out and further
	// processing should be stopped. Synchronous deploys can poll for a
	// while, so this sits above the default wait budget.
	r.Use(middleware.Timeout(2 * time.Minute))

	server := &AppHttpServer{
		router: r,
		cfg:    cfg,
	}
	return server, nil
}

// SetDB sets the database dependency
func (s *AppHttpServer) SetDB(db *db.DB) {
	s.db = db
}

// SetKintoneClient sets the upstream API client dependency
func (s *AppHttpServer) SetKintoneClient(client *kintone.Client) {
	s.kintoneClient = client
}

// SetDeployService sets the deploy orchestration dependency
func (s *AppHttpServer) SetDeployService(svc *services.DeployService) {
	s.deployService = svc
}

// SetSchemaCache sets the form-field cache dependency
func (s *AppHttpServer) SetSchemaCache(cache *redis.SchemaCache) {
	s.schemaCache = cache
}

// SetStorage sets the archive storage dependency
func (s *AppHttpServer) SetStorage(svc storage.StorageService) {
	s.storage = svc
}

func (s *AppHttpServer) setupRoute() {
	r := s.router

	if s.db == nil {
		log.Warn().Msg("DB dependency not set, deploy job tracking is disabled")
	}

	// API Documentation with Swagger
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"), // The URL pointing to API definition
	))

	// Public health endpoint (no authentication required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"kintone-http-service"}`))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(middlewares.ApiKey(s.cfg.Security.BackendApiKey))

		// Handlers
		recordHandler := handler.NewRecordHandler(s.kintoneClient)
		appHandler := handler.NewAppHandler(s.kintoneClient)
		deployHandler := handler.NewDeployHandler(s.deployService)
		fileHandler := handler.NewFileHandler(s.kintoneClient)
		healthHandler := handler.NewHealthHandler(s.db)

		if s.schemaCache != nil {
			appHandler.SetSchemaCache(s.schemaCache)
		}
		if s.db != nil {
			deployHandler.SetJobs(services.NewDeployJobRepository(s.db.Queries))
		}
		if s.storage != nil {
			fileHandler.SetStorage(s.storage, s.cfg.GCS.Bucket)
		}
		if s.deployService != nil {
			healthHandler.SetDeployService(s.deployService)
		}

		r.Mount("/records", recordHandler.Router())
		r.Mount("/apps", appHandler.Router())
		r.Mount("/deploy", deployHandler.Router())
		r.Mount("/files", fileHandler.Router())
		r.Mount("/health", healthHandler.Router())
	})
}

func (s *AppHttpServer) start() error {
	r := s.router
	cfg := s.cfg
	log.Info().Msg("Starting up server...")

	s.server = &http.Server{
		Addr:         cfg.Listen.Addr(),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// This starts the server in a goroutine from main
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// stop gracefully shuts down the server
func (s *AppHttpServer) stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
