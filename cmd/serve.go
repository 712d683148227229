package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"Guardline/internal/dispatch"
	handlers "Guardline/internal/handler"
	"Guardline/internal/listeners"
	"Guardline/pkg/cache"
	"Guardline/pkg/config"
	"Guardline/pkg/i18n"
	"Guardline/pkg/logger"
	"Guardline/pkg/metrics"
	"Guardline/pkg/middleware"
	"Guardline/pkg/realtime"
	"Guardline/pkg/scheduler"
	"Guardline/pkg/search"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"
)

const backfillMax = 10000

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Mode != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	c, err := cache.NewCache(cfg.Cache)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer c.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var index search.Engine
	if cfg.SearchEnabled {
		if index, err = openSearch(cfg); err != nil {
			return fmt.Errorf("search: %w", err)
		}
		defer index.Close()
		if cfg.SearchPath == "" {
			n, err := listeners.Backfill(cmd.Context(), db, index, backfillMax)
			if err != nil {
				logger.Warn("search backfill failed", zap.Error(err))
			} else {
				logger.Info("search backfilled", zap.Int("requests", n))
			}
		}
	}

	tr, err := i18n.New(cfg.DefaultLanguage)
	if err != nil {
		return fmt.Errorf("i18n: %w", err)
	}

	hub := realtime.NewHub(realtime.DefaultConfig())
	push := newDispatcher(cfg)
	silent := dispatch.NewDBSilentMode(db, push, dispatch.SystemClock)
	engine := dispatch.NewEngine(db, c, newLocator(cfg, db),
		dispatch.WithNotifier(dispatch.NewDispatchNotifier(push, tr)),
		dispatch.WithSilentMode(silent),
		dispatch.WithPublisher(listeners.NewStatusFanout(hub, index, m)),
		dispatch.WithMetrics(m),
	)

	rl, err := newRateLimiter(cfg)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	rl.WithObserver(m)

	cr := scheduler.NewCron(time.UTC, 30*time.Second)
	if _, err := cr.Add("silent-mode-sweep", cfg.SilentModeSweep, scheduler.FuncJob(func(ctx context.Context) error {
		n, err := silent.SweepExpired(ctx)
		if n > 0 {
			logger.Info("silent mode sessions expired", zap.Int64("count", n))
		}
		return err
	})); err != nil {
		return fmt.Errorf("cron %q: %w", cfg.SilentModeSweep, err)
	}
	cr.Start()

	r := gin.New()
	r.Use(gin.Recovery())
	handlers.NewHandlers(handlers.Deps{
		DB:         db,
		Engine:     engine,
		Assigner:   dispatch.NewAssigner(engine),
		Hub:        hub,
		Index:      index,
		Metrics:    m,
		Cache:      c,
		Limiter:    rl,
		Translator: tr,
	}).Register(r)

	srv := &http.Server{Addr: cfg.Addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("guardline listening", zap.String("addr", cfg.Addr), zap.String("driver", cfg.DBDriver),
			zap.String("spatial", cfg.SpatialBackend), zap.String("cache", cfg.Cache.Type))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cr.Stop()
	// 等待通知、静音等异步任务结束
	engine.Wait()
	return nil
}

// newRateLimiter shares counters through redis when the cache is redis so
// that several instances enforce one limit.
func newRateLimiter(cfg *config.Config) (*middleware.RateLimiter, error) {
	var store limiter.Store
	if strings.EqualFold(cfg.Cache.Type, "redis") {
		client, err := cache.NewRedisClient(cfg.Cache.Redis)
		if err != nil {
			return nil, err
		}
		if store, err = middleware.NewRedisStore(client); err != nil {
			return nil, err
		}
	}
	return middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:       cfg.RateLimit,
		Identifier: "ip",
		SkipPaths:  []string{cfg.APIPrefix + "/system/health", "/metrics"},
		AddHeaders: true,
	}, store), nil
}
