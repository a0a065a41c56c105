package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/pose-coach/internal/bootstrap"
	"github.com/example/pose-coach/internal/config"
	"github.com/example/pose-coach/internal/handlers"
	"github.com/example/pose-coach/internal/logging"
	"github.com/example/pose-coach/internal/middleware"
	"github.com/example/pose-coach/internal/pose"
	"github.com/example/pose-coach/internal/scoring"
	"github.com/example/pose-coach/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	backend, err := bootstrap.NewDetector(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize pose detector", zap.Error(err))
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warn("failed to release pose detector", zap.Error(err))
		}
	}()

	scorer := scoring.NewFrameScorer(backend, logger)

	var ucOpts []usecase.Option
	if cfg.RedisAddr != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		if cache := initRedisCache(redisCtx, cfg.RedisAddr, logger); cache != nil {
			defer cache.Close()
			ucOpts = append(ucOpts, usecase.WithCache(cache, cfg.FrameCacheTTL))
		}
		redisCancel()
	}
	uc := usecase.NewAnalysisUseCase(scorer, logger, ucOpts...)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(cfg, uc, backend.Pool, logger)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("pose coach API listening", zap.String("addr", cfg.Addr()), zap.String("detector", cfg.DetectorBackend))
	if err := serveHTTPServer(server, cfg.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newRouter(cfg *config.Config, uc handlers.Analyzer, pool *pose.Pool, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logger.Warn("invalid trusted proxies, forwarding headers ignored", zap.Strings("proxies", cfg.TrustedProxies), zap.Error(err))
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(
		middleware.RequestID(),
		middleware.AccessLog(logger),
		middleware.Recovery(logger),
		middleware.CORS(cfg.CORSAllowedOrigins),
	)

	var poolMetrics handlers.PoolMetricsProvider
	if pool != nil {
		poolMetrics = pool
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)
	handlers.RegisterRoutes(r, uc, poolMetrics,
		limiter.Handler(),
		middleware.BodyLimit(cfg.MaxBodyBytes),
	)
	return r
}

// initRedisCache returns nil when Redis is unreachable; the service then runs uncached.
func initRedisCache(ctx context.Context, addr string, logger *zap.Logger) *usecase.RedisCache {
	cache, err := usecase.DialRedisCache(ctx, addr)
	if err != nil {
		logger.Warn("redis unavailable, frame cache disabled", zap.String("addr", addr), zap.Error(err))
		return nil
	}
	return cache
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
