// The engine binary runs the full trading swarm in one process: the
// orchestrator, the four agents, the scheduler, the metrics updater
// and the HTTP/WebSocket API.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ualgo/engine/internal/agents"
	"github.com/ualgo/engine/internal/alerts"
	"github.com/ualgo/engine/internal/api"
	"github.com/ualgo/engine/internal/bus"
	"github.com/ualgo/engine/internal/config"
	"github.com/ualgo/engine/internal/db"
	"github.com/ualgo/engine/internal/feeds"
	"github.com/ualgo/engine/internal/market"
	"github.com/ualgo/engine/internal/metrics"
	"github.com/ualgo/engine/internal/orchestrator"
	"github.com/ualgo/engine/internal/scheduler"
)

const (
	metricsRefreshInterval = 30 * time.Second
	shutdownGrace          = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Engine exited with error")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	log.Info().
		Str("name", cfg.App.Name).
		Str("version", cfg.App.Version).
		Strs("symbols", cfg.Trading.Symbols).
		Msg("Starting trading engine")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, cfg.Database.URL, cfg.Database.PoolSize)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	b, err := bus.New(bus.Config{URL: cfg.NATS.URL})
	if err != nil {
		return fmt.Errorf("failed to start message bus: %w", err)
	}
	defer b.Close()

	provider := market.NewProvider(
		market.NewBinanceSource(cfg.Exchange),
		cfg.Exchange.RequestsPerSec,
		config.NewLogger("market"),
	)
	var candles market.CandleSource = provider
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		candles = market.NewRedisCandleCache(provider, client, config.NewLogger("candle_cache"))
	}

	alpha := agents.NewAlphaScout(database, b, feeds.NewProvider(nil, config.NewLogger("feeds")))
	technical := agents.NewTechnicalAnalyst(database, b)
	sentinel := agents.NewRiskSentinel(database, b, cfg.Risk)
	quant := agents.NewQuantLab(database, b)

	orch := orchestrator.New(database, b, candles, alpha, technical, sentinel, cfg.Trading)

	sched := scheduler.New(orch, sentinel, quant, b, cfg.Trading, cfg.Scheduler)
	sched.RegisterHeartbeat("alpha_scout", alpha.Heartbeat)
	sched.RegisterHeartbeat("technical_analyst", technical.Heartbeat)
	sched.RegisterHeartbeat("risk_sentinel", sentinel.Heartbeat)
	sched.RegisterHeartbeat("quant_lab", quant.Heartbeat)
	sched.RegisterHeartbeat("orchestrator", orch.Heartbeat)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	updater := metrics.NewUpdater(database.Pool(), metricsRefreshInterval)
	go updater.Start(ctx)
	defer updater.Stop()

	if err := wireAlerts(cfg, b); err != nil {
		return err
	}

	server, err := api.NewServer(database, orch, quant, sentinel, b, cfg.Trading, cfg.API)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("API server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("API server shutdown was not clean")
	}

	log.Info().Msg("Engine stopped")
	return nil
}

// wireAlerts attaches the operator alert channels to the bus. A
// missing Telegram token leaves log alerting only.
func wireAlerts(cfg *config.Config, b *bus.Bus) error {
	channels := []alerts.Alerter{alerts.NewLogAlerter()}

	telegram, err := alerts.NewTelegramAlerter(cfg.Telegram)
	if err != nil {
		log.Warn().Err(err).Msg("Telegram alerter unavailable, continuing with log alerts")
	} else if telegram != nil {
		channels = append(channels, telegram)
	}

	if err := alerts.NewNotifier(alerts.NewManager(channels...)).Subscribe(b); err != nil {
		return fmt.Errorf("failed to subscribe alert notifier: %w", err)
	}
	return nil
}
