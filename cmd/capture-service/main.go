package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/elidickinson/shot-power-scraper/internal/capturelog"
	"github.com/elidickinson/shot-power-scraper/internal/common/config"
	logutil "github.com/elidickinson/shot-power-scraper/internal/common/logger"
	"github.com/elidickinson/shot-power-scraper/internal/common/metricsserver"
	"github.com/elidickinson/shot-power-scraper/internal/common/redis"
	"github.com/elidickinson/shot-power-scraper/internal/common/urlutil"
	"github.com/elidickinson/shot-power-scraper/internal/render/chrome"
	"github.com/elidickinson/shot-power-scraper/internal/render/metrics"
	"github.com/elidickinson/shot-power-scraper/internal/render/service"
)

func main() {
	configPath := flag.String("c", "configs/capture-service.yaml", "Path to configuration file")
	flag.Parse()

	// Initialize logger (will be reconfigured from config)
	initialLogger, err := logutil.NewDefaultLogger()
	if err != nil {
		panic(err)
	}

	initialLogger.Info("Loading configuration", zap.String("path", *configPath))
	absPath, err := config.GetConfigPath(*configPath)
	if err != nil {
		initialLogger.Fatal("Invalid config path", zap.Error(err))
	}
	cfg, err := config.LoadServiceConfig(absPath)
	if err != nil {
		initialLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	dynamicLogger, err := logutil.NewLoggerWithStartupOverride(cfg.Log)
	if err != nil {
		initialLogger.Fatal("Failed to create configured logger", zap.Error(err))
	}
	logger := dynamicLogger.Logger

	chromeConfig := cfg.Chrome.ToChromeConfig()
	logger.Info("Capture service starting",
		zap.String("id", cfg.Server.ID),
		zap.String("listen", cfg.Server.Listen),
		zap.String("pool_size", chromeConfig.PoolSize),
		zap.Bool("remote_browser", chromeConfig.RemoteURL != ""))

	var store *redis.Store
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(&cfg.Redis, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		store = redis.NewStore(redisClient, cfg.Redis.Compression, cfg.Redis.HARTTL.ToDuration(), cfg.Redis.ArtifactTTL.ToDuration())
	}

	events, err := capturelog.New(cfg.EventLog, logger)
	if err != nil {
		logger.Fatal("Failed to open capture event log", zap.Error(err))
	}
	defer events.Close()

	metricsCollector := metrics.NewMetricsCollector(cfg.Metrics.Namespace, logger)
	metricsServer, err := metricsserver.StartMetricsServer(
		cfg.Metrics.Enabled,
		cfg.Metrics.Listen,
		cfg.Metrics.Path,
		metricsCollector,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to start metrics server", zap.Error(err))
	}

	logger.Info("Initializing browser pool")
	pool, err := chrome.NewPool(chromeConfig, cfg.Chrome.BlockPatterns, logger)
	if err != nil {
		logger.Fatal("Failed to create browser pool", zap.Error(err))
	}
	pool.OnChange(metricsCollector.UpdatePool)
	metricsCollector.UpdatePool(pool.Stats())

	var guard *urlutil.CaptureGuard
	if cfg.SSRFProtection() {
		guard = urlutil.NewCaptureGuard()
	} else {
		logger.Warn("SSRF protection disabled, private addresses can be captured")
	}

	api := service.NewServer(service.Options{
		Capturer:        service.NewPoolCapturer(pool, logger),
		Store:           store,
		Guard:           guard,
		Limiter:         service.NewRateLimiter(cfg.RateLimit),
		Events:          events,
		Metrics:         metricsCollector,
		Defaults:        cfg.CaptureDefaults,
		ClientIPHeaders: cfg.Server.ClientIPHeaders,
		PoolStats:       pool.Stats,
		HardTimeout:     cfg.Server.Timeout.ToDuration(),
		Logger:          logger,
	})

	serverTimeout := cfg.ServerTimeout()
	server := &fasthttp.Server{
		Handler:            api.Handler(),
		ReadTimeout:        serverTimeout,
		WriteTimeout:       serverTimeout,
		IdleTimeout:        serverTimeout,
		MaxRequestBodySize: cfg.Server.MaxBodySize,
		Name:               "shot-power-scraper/" + cfg.Server.ID,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("listen", cfg.Server.Listen))
		if err := server.ListenAndServe(cfg.Server.Listen); err != nil {
			serverErrCh <- err
		}
	}()

	// Wait briefly for HTTP server to start listening
	time.Sleep(100 * time.Millisecond)
	select {
	case err := <-serverErrCh:
		logger.Fatal("HTTP server failed to start", zap.Error(err))
	default:
	}

	logger.Info("Capture service ready",
		zap.String("listen", cfg.Server.Listen),
		zap.Int("browsers", pool.Size()))

	// Switch to configured log level after startup is complete
	dynamicLogger.SwitchToConfiguredLevel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serverErrCh:
		logger.Error("Server error", zap.Error(err))
	}

	dynamicLogger.EnsureInfoLevelForShutdown()
	logger.Info("Shutting down gracefully...")

	if metricsServer != nil {
		metricsShutdownCtx, metricsShutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.ShutdownWithContext(metricsShutdownCtx); err != nil {
			logger.Error("Metrics server shutdown error", zap.Error(err))
		}
		metricsShutdownCancel()
	}

	// Complete in-flight captures before the browsers go away
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), chromeConfig.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	if err := pool.Shutdown(); err != nil {
		logger.Error("Browser pool shutdown error", zap.Error(err))
	}

	logger.Info("Capture service stopped")
}
