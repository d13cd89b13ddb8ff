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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shok8899/hq11/cmd/relay/internal/feed"
	"github.com/shok8899/hq11/cmd/relay/internal/gateway"
	"github.com/shok8899/hq11/cmd/relay/internal/hub"
	"github.com/shok8899/hq11/cmd/relay/internal/metrics"
	"github.com/shok8899/hq11/cmd/relay/internal/mirror"
	"github.com/shok8899/hq11/cmd/relay/internal/outbox"
	"github.com/shok8899/hq11/cmd/relay/internal/pricing"
	"github.com/shok8899/hq11/cmd/relay/internal/query"
	"github.com/shok8899/hq11/cmd/relay/internal/relay"
	"github.com/shok8899/hq11/cmd/relay/internal/store"
	"github.com/shok8899/hq11/cmd/relay/internal/symbols"
	"github.com/shok8899/hq11/pkg/config"
)

const shutdownTimeout = 5 * time.Second

// errFeedEnded stops the process when the upstream goes away; there is no
// reconnect, so a supervisor is expected to restart the relay.
var errFeedEnded = errors.New("trade feed ended")

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Relay failed", zap.Error(err))
	}
	logger.Info("Relay exited cleanly")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	spread, err := cfg.Relay.SpreadDecimal()
	if err != nil {
		return err
	}
	policy, err := outbox.ParsePolicy(cfg.Relay.OverflowPolicy)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New()
	if err := m.Register(reg); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	normalizer := symbols.NewNormalizer(cfg.Symbols.Mapping)
	prices := store.New()
	wsHub := hub.NewHub(logger).WithObserver(m)
	builder := pricing.NewBuilder(spread, cfg.Relay.PriceScale, time.Now)
	core := relay.New(normalizer, builder, prices, wsHub, logger, relay.Options{
		Workers:      cfg.Relay.Workers,
		WorkerBuffer: cfg.Relay.WorkerBuffer,
		Recorder:     m,
	})
	svc := query.NewService(prices, normalizer)

	src, err := openSource(ctx, cfg, logger)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:    cfg.App.Port,
		Handler: query.NewRouter(query.NewHandler(svc, logger, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})), cfg.Query.RateLimit),
	}
	wsSrv := &http.Server{
		Addr:    cfg.App.WSPort,
		Handler: gateway.NewServer(core, svc, logger, cfg.Relay.QueueSize, policy).Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer src.Close()
		if err := core.Run(gctx, src); err != nil {
			return err
		}
		if gctx.Err() == nil {
			return errFeedEnded
		}
		return nil
	})
	g.Go(func() error { return serve(gctx, httpSrv, "Query server", logger) })
	g.Go(func() error { return serve(gctx, wsSrv, "Push server", logger) })

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		mr := mirror.New(rdb, cfg.Redis.TTL, cfg.Relay.QueueSize, logger)
		core.Attach(mr)
		g.Go(func() error { return mr.Run(gctx) })
	}

	<-gctx.Done()
	logger.Info("Shutdown signal received, stopping relay...")
	wsHub.Shutdown()

	return g.Wait()
}

func openSource(ctx context.Context, cfg *config.Config, logger *zap.Logger) (relay.TradeSource, error) {
	switch cfg.Feed.Source {
	case config.SourceBinance:
		return feed.DialBinance(ctx, cfg.Binance.URL, cfg.Binance.Symbols, logger)
	default:
		logger.Info("Consuming trades from Kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
		return feed.NewKafkaSource(feed.NewKafkaReader(cfg.Kafka), logger), nil
	}
}

// serve runs srv until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, name string, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info(name+" started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s: %w", name, err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", zap.String("server", name), zap.Error(err))
	}
	return <-errCh
}
