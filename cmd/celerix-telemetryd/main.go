package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/celerix-dev/celerix-telemetry/internal/api"
	"github.com/celerix-dev/celerix-telemetry/internal/config"
	"github.com/celerix-dev/celerix-telemetry/internal/events"
	"github.com/celerix-dev/celerix-telemetry/internal/observability"
	"github.com/celerix-dev/celerix-telemetry/internal/places"
	"github.com/celerix-dev/celerix-telemetry/internal/server"
	"github.com/celerix-dev/celerix-telemetry/internal/telemetry"
	"github.com/celerix-dev/celerix-telemetry/internal/vault"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "celerix-telemetryd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format, "celerix-telemetryd")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Redis (optional): trigger stream and places cache
	var rdb *redis.Client
	if cfg.RedisEnabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	// 2. Document store
	backend, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.close()

	// 3. Places provider
	var finder places.Finder = places.NewClient(cfg.Places.BaseURL, cfg.Places.APIKey, cfg.Places.Timeout, logger)
	if cfg.Places.CacheTTL > 0 {
		if rdb == nil {
			logger.Warn("places.cache_ttl is set but Redis is not configured, caching disabled")
		} else {
			finder = places.NewCachedFinder(finder, rdb, cfg.Places.CacheTTL, logger)
			logger.Info("Places cache enabled", zap.Duration("ttl", cfg.Places.CacheTTL))
		}
	}

	// 4. Creation events and the enrichment trigger
	var bus events.Bus
	if rdb != nil {
		bus = events.NewStreamBus(rdb, events.StreamConfig{
			Stream:   cfg.Trigger.Stream,
			Group:    cfg.Trigger.Group,
			Consumer: cfg.Trigger.Consumer,
		}, logger)
	} else {
		bus = events.NewChannelBus(cfg.Trigger.Buffer, logger)
	}

	trigger := telemetry.NewTrigger(backend.store, finder, logger,
		telemetry.WithCollection(cfg.Trigger.Collection),
		telemetry.WithSkipEnriched(cfg.Trigger.SkipEnriched),
	)
	observed := events.Observe(backend.store, bus, logger, cfg.Trigger.Collection)

	// The worker is stopped only after both servers, so in-flight requests
	// can still publish and the in-process buffer is drained.
	worker := events.StartWorker(bus, trigger.Handle, logger)

	// 5. HTTP API
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	h := &api.Handler{
		Service:  telemetry.NewService(observed, finder, logger, telemetry.WithDeferredCollection(cfg.Trigger.Collection)),
		Adjuster: telemetry.NewAdjuster(backend.store, logger),
		Store:    backend.store,
		Logger:   logger,
	}
	r := gin.New()
	r.Use(gin.Recovery(), observability.GinLogger(logger), cors())
	h.RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 2)
	go func() {
		logger.Info("HTTP API listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// 6. TCP store protocol, embedded backend only
	var router *server.Router
	if backend.docs != nil && !cfg.Server.DisableTCP {
		router = server.NewRouter(observed, logger)
		if !cfg.Server.DisableTLS {
			cert, err := vault.GenerateSelfSignedCert()
			if err != nil {
				return fmt.Errorf("generate TLS certificate: %w", err)
			}
			router.SetCertificate(cert)
			logger.Info("TLS encryption enabled for the TCP protocol")
		} else {
			logger.Info("TLS encryption disabled (CELERIX_DISABLE_TLS=true)")
		}
		go func() {
			logger.Info("Store protocol listening", zap.String("port", cfg.Server.TCPPort))
			if err := router.Listen(cfg.Server.TCPPort); err != nil {
				errCh <- fmt.Errorf("tcp server: %w", err)
			}
		}()
	}

	// 7. Graceful shutdown
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err = <-errCh:
		logger.Error("Server failed, shutting down", zap.Error(err))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(serr))
	}
	if router != nil {
		router.Stop()
	}
	if werr := worker.Stop(shutdownCtx); werr != nil {
		logger.Warn("Enrichment events left unhandled at shutdown", zap.Error(werr))
	}

	logger.Info("Finalizing disk writes")
	return err
}

// cors allows the dashboard and mobile clients to call the API directly.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
