package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"imguard/internal/config"
	"imguard/internal/handler"
	"imguard/internal/logging"
	"imguard/internal/metrics"
	"imguard/internal/origin"
	"imguard/internal/quota"
	"imguard/internal/ratelimit"
	"imguard/internal/router"
	"imguard/internal/service"
	s3storage "imguard/internal/storage/s3"
	"imguard/internal/usage"
	"imguard/internal/validator"
)

const shutdownTimeout = 20 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(&cfg.Log, cfg.Server.IsProduction())
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize usage source
	source, err := usage.Open(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open usage source: %w", err)
	}
	defer func() { _ = source.Close() }()

	// Initialize storage
	s3Client, err := s3storage.NewS3Client(&cfg.S3)
	if err != nil {
		return fmt.Errorf("failed to initialize S3 client: %w", err)
	}

	// Temp buffers
	temp := service.NewTempStore(afero.NewOsFs(), cfg.Upload.TempDir)
	if n, err := temp.Sweep(); err != nil {
		logger.Warn("could not remove leftover upload buffers", zap.Error(err))
	} else if n > 0 {
		logger.Info("removed leftover upload buffers", zap.Int("count", n))
	}

	limiter := ratelimit.New(ratelimit.Config{
		Window:           cfg.RateLimit.Window,
		MaxAttempts:      cfg.RateLimit.MaxAttempts,
		SweepProbability: cfg.RateLimit.SweepProbability,
	})
	v := validator.New(cfg.Upload.MaxFileBytes())

	var (
		observer metrics.Observer = metrics.Nop{}
		gatherer prometheus.Gatherer
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		prom, err := metrics.NewPrometheusObserver("imguard", reg)
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		if err := metrics.RegisterTrackedIdentities("imguard", reg, limiter.Tracked); err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		observer, gatherer = prom, reg
	}

	// Initialize services
	allow := origin.NewAllowList(cfg.CORS.AllowedOrigins)
	usageSvc := service.NewUsageService(source.UsageSource, &cfg.Quota, cfg.Usage.Timeout, observer, logger)
	uploadSvc := service.NewUploadService(service.UploadDeps{
		Origins:   allow,
		Limiter:   limiter,
		Validator: v,
		Gate:      quota.NewGate(cfg.Quota.BlockThreshold),
		Usage:     usageSvc,
		Storage:   s3Client,
		Temp:      temp,
		Observer:  observer,
		Log:       logger,
	}, service.UploadOptions{
		MaxFileBytes:    cfg.Upload.MaxFileBytes(),
		MaxRequestBytes: cfg.Upload.MaxRequestBytes(),
		MaxFields:       cfg.Upload.MaxFields,
		KeyPrefix:       cfg.S3.KeyPrefix,
		PublicDomain:    cfg.S3.PublicDomain,
		PutTimeout:      cfg.S3.PutTimeout,
	})

	// Initialize handlers
	uploadH := handler.NewUploadHandler(uploadSvc, observer, logger, !cfg.Server.IsProduction())
	usageH := handler.NewUsageHandler(usageSvc)
	healthH := handler.NewHealthHandler(usageSvc, source.Name())

	// Setup router
	r, err := router.Setup(logger, router.Options{
		Origins:        allow,
		Metrics:        gatherer,
		MetricsPath:    cfg.Metrics.Path,
		TrustedProxies: cfg.Server.TrustedProxies,
	}, uploadH, usageH, healthH)
	if err != nil {
		return fmt.Errorf("failed to set up router: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           r,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Server.Port),
			zap.String("usage_source", source.Name()),
			zap.Strings("allowed_origins", allow.Origins()),
			zap.Strings("validation_rules", v.Rules()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
