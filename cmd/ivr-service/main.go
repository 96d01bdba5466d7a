package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/msc-platform/ivr/pkg/cache"
	"github.com/msc-platform/ivr/pkg/common/config"
	"github.com/msc-platform/ivr/pkg/common/database"
	"github.com/msc-platform/ivr/pkg/common/kafka"
	"github.com/msc-platform/ivr/pkg/common/logger"
	"github.com/msc-platform/ivr/pkg/common/middleware"
	"github.com/msc-platform/ivr/pkg/esign"
	"github.com/msc-platform/ivr/pkg/extraction"
	"github.com/msc-platform/ivr/pkg/fhir"
	"github.com/msc-platform/ivr/pkg/manufacturer"
	"github.com/msc-platform/ivr/pkg/matching"
	"github.com/msc-platform/ivr/pkg/observability/metrics"
	"github.com/msc-platform/ivr/pkg/transform"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger.Init("ivr-service")
	cfg := config.Load()

	db, err := database.GetPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.ClosePostgres()

	var redisClient *redis.Client
	if cfg.CacheBackend == "redis" {
		redisClient = database.GetRedis(cfg)
		defer database.CloseRedis()
	}
	episodeCache, err := cache.New(cfg.CacheBackend, redisClient)
	if err != nil {
		logger.Log.WithError(err).Fatal("invalid cache backend")
	}

	episodes := extraction.NewRepository(db)
	if err := episodes.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate episode tables")
	}

	var clinical extraction.ClinicalSource
	if cfg.FHIRBaseURL != "" {
		clinical = fhir.NewClient(fhir.Config{
			BaseURL:      cfg.FHIRBaseURL,
			TokenURL:     cfg.FHIRTokenURL,
			ClientID:     cfg.FHIRClientID,
			ClientSecret: cfg.FHIRClientSecret,
			Scopes:       cfg.FHIRScopes,
			Timeout:      cfg.HTTPClientTimeout,
			Retries:      cfg.HTTPClientRetries,
		})
	} else {
		logger.Log.Warn("FHIR_BASE_URL not set, clinical lookups disabled")
	}
	extractor := extraction.NewExtractor(episodes, clinical, episodeCache, cfg.EpisodeCacheTTL)

	catalog, err := manufacturer.Load(cfg.ManufacturerConfigPath)
	if err != nil {
		logger.Log.WithError(err).WithField("path", cfg.ManufacturerConfigPath).Warn("failed to load manufacturer config, using built-in catalog")
	}
	assembler := manufacturer.NewAssembler(catalog, matching.NewMatcher(matching.WithThreshold(cfg.FuzzyMatchThreshold)), transform.New())
	if err := assembler.CheckCatalog(); err != nil {
		logger.Log.WithError(err).Fatal("invalid manufacturer catalog")
	}

	var signer manufacturer.Signer
	if cfg.DocuSealAPIKey != "" {
		signer = esign.NewClient(cfg.DocuSealAPIURL, cfg.DocuSealAPIKey, cfg.HTTPClientTimeout, cfg.HTTPClientRetries)
	} else {
		logger.Log.Warn("DOCUSEAL_API_KEY not set, submissions disabled")
	}

	logs := manufacturer.NewRepository(db)
	if err := logs.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate field mapping tables")
	}

	producer := kafka.NewProducer(cfg, cfg.MappingEventsTopic)
	defer producer.Close()

	svc := manufacturer.NewService(assembler, extractor, signer, logs, producer)
	handler := manufacturer.NewHandler(svc)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      newRouter(cfg, handler),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := kafka.NewConsumer(cfg, cfg.EpisodeEventsTopic, "")
	defer consumer.Close()
	invalidator := extraction.NewInvalidator(extractor)
	go func() {
		if err := consumer.Consume(ctx, invalidator.Handle); err != nil && ctx.Err() == nil {
			logger.Log.WithError(err).Error("episode event consumer stopped")
		}
	}()

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":          cfg.ServerHost,
			"port":          cfg.ServerPort,
			"manufacturers": len(catalog.Manufacturers),
			"cache":         cfg.CacheBackend,
		}).Info("IVR Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down IVR Service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("IVR Service stopped")
}

// CORS must wrap the router: mux skips route middleware on a method mismatch.
func newRouter(cfg *config.Config, handler *manufacturer.Handler) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/metrics", metrics.Handler).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.BodyLimit(cfg.MaxRequestBody))
	api.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	handler.Register(api)

	return middleware.Recovery(middleware.Logging(middleware.CORS(router)))
}
