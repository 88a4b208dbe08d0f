package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lexicara/kintone-http-service/common"
	"github.com/lexicara/kintone-http-service/common/config"
	"github.com/lexicara/kintone-http-service/common/db"
	"github.com/lexicara/kintone-http-service/common/deploy"
	"github.com/lexicara/kintone-http-service/common/kintone"
	"github.com/lexicara/kintone-http-service/common/logger"
	"github.com/lexicara/kintone-http-service/common/messaging"
	"github.com/lexicara/kintone-http-service/common/redis"
	"github.com/lexicara/kintone-http-service/common/services"
	"github.com/lexicara/kintone-http-service/common/storage"

	"github.com/rs/zerolog/log"

	"github.com/joho/godotenv"

	_ "github.com/lexicara/kintone-http-service/docs"
)

// @title          Kintone HTTP Service API
// @version        1.0
// @description    API documentation for the kintone HTTP gateway service
// @termsOfService http://swagger.io/terms/

// @contact.name  API Support
// @contact.url   http://www.example.com/support
// @contact.email support@example.com

// @license.name Apache 2.0
// @license.url  http://www.apache.org/licenses/LICENSE-2.0.html

// @host     localhost:8080
// @BasePath /v1
// @schemes  http https

// @securityDefinitions.apikey ApiKeyAuth
// @in                         header
// @name                       X-API-KEY

func main() {
	// INITIATE CONFIGURATION
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("Error loading .env file, using environment variables")
	}

	cfg := config.DefaultConfig()
	cfg.LoadFromEnv()

	if err := cfg.Kintone.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid kintone configuration")
	}

	// Create a base context with cancel for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// INITIATE DATABASES
	dbConn, err := db.SetupDatabase(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to setup database")
	}
	defer dbConn.Close()

	// Initialize zerolog database hooks
	logger.InitializeLogging(dbConn)
	log.Info().Msg("Zerolog database hooks initialized")

	// INITIATE NATS CLIENT
	natsClient, err := messaging.SetupNatsBroker(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to setup NATS client")
	}
	defer natsClient.Close()

	// gcs
	gcsStorage, err := storage.NewGCSStorage(ctx, storage.GCSConfig{
		ProjectID:       cfg.GCS.ProjectID,
		CredentialsFile: cfg.GCS.CredentialsFile,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to setup GCS storage")
	}

	// INITIATE KINTONE CLIENT
	kintoneClient, err := kintone.NewClient(cfg.Kintone.BaseURL, kintone.Auth{
		Username: cfg.Kintone.Username,
		Password: cfg.Kintone.Password,
		APIToken: cfg.Kintone.APIToken,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create kintone client")
	}

	// INITIATE DEPLOY SERVICE
	schemaCache := redis.NewSchemaCache(dbConn.Redis, 10*time.Minute)

	deployService, err := services.NewDeployService(kintoneClient, deploy.WaitConfig{
		MaxAttempts: cfg.Deploy.MaxAttempts,
		Interval:    cfg.Deploy.Interval(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create deploy service")
	}
	deployService.SetJobs(services.NewDeployJobRepository(dbConn.Queries))
	deployService.SetRedis(dbConn.Redis, schemaCache)
	deployService.SetBroker(natsClient)
	deployService.Start(ctx)
	defer deployService.Stop()

	// Consume deploy requests from the message stream. A deploy already
	// in flight for the app is a final answer for the message, not a
	// reason to redeliver it.
	consumeCtx, err := messaging.ConsumeDeployRequests(ctx, natsClient, func(ctx context.Context, req messaging.DeployRequestMessage) error {
		_, err := deployService.RunAsync(ctx, services.DeployRequest{
			AppID:    req.AppID,
			Revision: req.Revision,
			Revert:   req.Revert,
		})
		if errors.Is(err, common.ErrDeployInProgress) {
			log.Warn().Str("appID", req.AppID).Msg("Deploy request dropped, deploy already in progress")
			return nil
		}
		return err
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to setup deploy request consumer")
	}
	defer consumeCtx.Stop()

	// INITIATE SERVER
	server, err := NewAppHttpServer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create the server")
	}

	// Inject dependencies
	server.SetDB(dbConn)
	server.SetKintoneClient(kintoneClient)
	server.SetDeployService(deployService)
	server.SetSchemaCache(schemaCache)
	server.SetStorage(gcsStorage)

	// Setup routes
	server.setupRoute()

	// Start server in a goroutine
	go func() {
		if err := server.start(); err != nil {
			log.Error().Err(err).Msg("Server error")
			cancel()
		}
	}()

	log.Info().Str("address", cfg.Listen.Addr()).Msg("Server started successfully")
	log.Info().Str("swagger", fmt.Sprintf("http://%s/swagger/index.html", cfg.Listen.Addr())).Msg("Swagger documentation available at")

	// Wait for shutdown signal
	<-shutdown
	log.Info().Msg("Shutdown signal received")

	// Create a timeout context for graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Server gracefully stopped")
}
