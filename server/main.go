package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/san-kum/fitpipe/server/cache"
	"github.com/san-kum/fitpipe/server/config"
	"github.com/san-kum/fitpipe/server/handlers"
	"github.com/san-kum/fitpipe/server/middleware"
	"github.com/san-kum/fitpipe/server/processor"
	"github.com/san-kum/fitpipe/server/scoring"
	"github.com/san-kum/fitpipe/server/storage"
)

type Server struct {
	router         *gin.Engine
	logger         *zap.Logger
	frameProcessor *processor.FrameProcessor
	scoringClient  *scoring.Client
	sessions       *cache.MemoryCache[*processor.Session]
	journal        *storage.Journal
	rateLimiter    *middleware.RateLimiter
	config         *config.Config
}

func main() {
	configPath := flag.String("config", os.Getenv("FITPIPE_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatal("Failed to initialize logger: ", err)
	}
	defer logger.Sync()

	if err := cfg.ValidateConfig(logger); err != nil {
		logger.Fatal("Configuration validation failed", zap.Error(err))
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.Server.Environment),
			zap.Bool("scoring", cfg.Scoring.Enabled))

		var err error
		if cfg.Security.EnableHTTPS {
			err = srv.ListenAndServeTLS(cfg.Security.CertFile, cfg.Security.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	server.Close(20 * time.Second)
	logger.Info("Server exited")
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var zapConfig zap.Config
	if cfg.Format == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = level

	return zapConfig.Build()
}

func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	journal, err := storage.Open(cfg.Storage.JournalPath)
	if err != nil {
		return nil, err
	}

	sessions := cache.NewMemoryCache[*processor.Session](
		cfg.Processor.MaxSessions,
		cfg.Processor.SessionTTL,
		logger,
	)

	var scorer processor.Scorer
	var health middleware.HealthReporter
	var scoringClient *scoring.Client
	if cfg.Scoring.Enabled {
		scoringClient = scoring.NewClient(cfg.Scoring.BaseURL, &scoring.ClientConfig{
			Timeout:             cfg.Scoring.Timeout,
			MaxRetries:          cfg.Scoring.MaxRetries,
			RetryDelay:          cfg.Scoring.RetryDelay,
			HealthCheckInterval: cfg.Scoring.HealthCheckInterval,
		}, logger)
		go scoringClient.StartHealthChecker(ctx)
		scorer = scoringClient
		health = scoringClient
	}

	frameProcessor := processor.NewFrameProcessor(scorer, journal, sessions, &processor.ProcessorConfig{
		QueueSize:      cfg.Processor.QueueSize,
		Workers:        cfg.Processor.Workers,
		SubmitTimeout:  cfg.Processor.SubmitTimeout,
		ScoringEnabled: cfg.Scoring.Enabled,
	}, logger)
	sessions.OnEvict(frameProcessor.SessionEvicted)

	rateLimiter := middleware.NewRateLimiter(
		cfg.Security.RateLimitRPS,
		cfg.Security.RateLimitBurst,
		logger,
	)

	router := handlers.NewRouter(
		handlers.NewSessionHandler(frameProcessor, journal, logger),
		handlers.NewWebSocketHandler(frameProcessor, cfg.Security.AllowedOrigins, logger),
		rateLimiter,
		health,
		handlers.RouterConfig{
			AllowedOrigins: cfg.Security.AllowedOrigins,
			MaxRequestSize: cfg.Security.MaxRequestSize,
			RequestTimeout: cfg.Security.RequestTimeout,
			AdminAPIKey:    cfg.Security.AdminAPIKey,
		},
		logger,
	)

	return &Server{
		router:         router,
		logger:         logger,
		frameProcessor: frameProcessor,
		scoringClient:  scoringClient,
		sessions:       sessions,
		journal:        journal,
		rateLimiter:    rateLimiter,
		config:         cfg,
	}, nil
}

// Close drains queued attempts before the journal goes away.
func (s *Server) Close(timeout time.Duration) {
	if err := s.frameProcessor.Shutdown(timeout); err != nil {
		s.logger.Error("Failed to shutdown frame processor", zap.Error(err))
	}

	s.rateLimiter.Shutdown()

	if s.scoringClient != nil {
		s.logger.Info("Scoring client totals", zap.Any("stats", s.scoringClient.GetStats()))
	}

	if err := s.sessions.Close(); err != nil {
		s.logger.Error("Failed to close session cache", zap.Error(err))
	}

	if err := s.journal.Close(); err != nil {
		s.logger.Error("Failed to close journal", zap.Error(err))
	}
}
