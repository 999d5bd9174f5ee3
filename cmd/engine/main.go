// Command engine is the gold trading engine's entrypoint: it wires every
// worker (SignalCollector, BatchDispatcher, Revaluator, PositionManager,
// Scheduler, HealthMonitor) to its dependencies, starts the inbound
// webhook and metrics HTTP servers, and runs until SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/yusuke746/trading-system/internal/api"
	"github.com/yusuke746/trading-system/internal/broker"
	"github.com/yusuke746/trading-system/internal/collector"
	"github.com/yusuke746/trading-system/internal/config"
	contextbuilder "github.com/yusuke746/trading-system/internal/context"
	"github.com/yusuke746/trading-system/internal/db"
	"github.com/yusuke746/trading-system/internal/dispatcher"
	"github.com/yusuke746/trading-system/internal/executor"
	"github.com/yusuke746/trading-system/internal/health"
	"github.com/yusuke746/trading-system/internal/metrics"
	"github.com/yusuke746/trading-system/internal/model"
	"github.com/yusuke746/trading-system/internal/notifications"
	"github.com/yusuke746/trading-system/internal/notify"
	"github.com/yusuke746/trading-system/internal/position"
	"github.com/yusuke746/trading-system/internal/revaluator"
	"github.com/yusuke746/trading-system/internal/risk"
	"github.com/yusuke746/trading-system/internal/scheduler"
	"github.com/yusuke746/trading-system/internal/scoring"
	"github.com/yusuke746/trading-system/internal/waitbuffer"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	config.InitLogger(cfg.App.LogLevel, "json")
	log.Info().Str("env", cfg.App.Environment).Str("symbol", cfg.Trading.Symbol).Msg("starting gold trading engine")

	if os.Getenv("DATABASE_URL") == "" {
		os.Setenv("DATABASE_URL", cfg.Database.GetDSN())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	validator := config.NewValidator(cfg, config.DefaultValidatorOptions())
	if err := validator.ValidateStartup(ctx); err != nil {
		log.Fatal().Err(err).Msg("startup validation failed")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis ping failed, indicator cache will fall through to the broker on every call")
	}

	notifyBus, err := notify.NewBus(notify.Config{
		URL:             cfg.NATS.URL,
		StructureTopic:  cfg.NATS.StructureTopic,
		ControlTopic:    cfg.NATS.ControlTopic,
		EnableJetStream: cfg.NATS.EnableJetStream,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer notifyBus.Close()

	symbol := cfg.Trading.Symbol

	var brokerClient broker.Client
	switch cfg.Broker.Kind {
	case "paper":
		paperCfg := broker.DefaultPaperConfig()
		brokerClient = broker.NewPaper(symbol, 2000.0, paperCfg, config.NewLogger("paper_broker"))
	case "mt5":
		log.Fatal().Msg("broker.kind=mt5 is configured but no MT5 bridge is wired into this binary yet")
	default:
		log.Fatal().Str("kind", cfg.Broker.Kind).Msg("unknown broker.kind")
	}

	newsCfg := broker.NewsConfig{
		Currencies:    cfg.News.TargetCurrencies,
		MinImportance: cfg.News.MinImportance,
		Before:        time.Duration(cfg.News.BlockBeforeMin) * time.Minute,
		After:         time.Duration(cfg.News.BlockAfterMin) * time.Minute,
	}
	if !cfg.News.Enabled {
		newsCfg = broker.NewsConfig{}
	}
	adapter := broker.NewAdapter(brokerClient, symbol, newsCfg, config.NewLogger("broker_adapter"))
	adapter.SetCircuitBreaker(database.GetCircuitBreaker())

	riskCfg := risk.Config{
		MaxDailyLossPct:      cfg.Risk.MaxDailyLossPercent,
		MaxConsecutiveLosses: cfg.Risk.MaxConsecutiveLosses,
		ResetHours:           int(cfg.Risk.ConsecutiveResetHours),
		GroupingWindow:       time.Duration(cfg.Risk.ConsecutiveGroupWindowS) * time.Second,
		GapThresholdUSD:      cfg.Risk.GapBlockThresholdUSD,
		MarginFloorUSD:       cfg.Risk.MarginFloorUSD,
		MaxOpenPositions:     cfg.Trading.MaxPositions,
		MaxOpenRiskUSD:       cfg.Risk.MaxOpenRiskUSD,
	}
	riskGate := risk.NewGate(database, adapter, riskCfg, config.NewWorkerLogger("risk_gate", "gate"))

	ctxCfg := contextbuilder.DefaultConfig()
	ctxBuilder := contextbuilder.New(adapter, database, database, nil, redisClient, ctxCfg, config.NewLogger("context_builder"))

	scoreCfg, err := scoring.LoadFile("configs/scoring.yaml")
	if err != nil {
		log.Info().Err(err).Msg("no scoring config file found, using tuned defaults")
		scoreCfg = scoring.DefaultConfig()
	}
	scoreStore := scoring.NewStore(scoreCfg)

	positionCfg := position.DefaultConfig()
	positionCfg.Symbol = symbol
	positionCfg.BEBufferDollar = cfg.Position.BEBufferPips * 0.1
	positionCfg.BETriggerATRMult = cfg.Position.BETriggerATRMult
	positionCfg.PartialTPATRMult = cfg.Position.PartialTPATRMult
	positionCfg.PartialCloseRatio = cfg.Position.PartialCloseRatio
	positionCfg.TrailingStepATRMult = cfg.Position.TrailingStepATRMult
	positionCfg.CheckInterval = time.Duration(cfg.Position.CheckIntervalSec) * time.Second
	positionMgr := position.New(adapter, adapter, adapter, adapter, database, positionCfg, config.NewWorkerLogger("position_manager", "worker"))

	executorCfg := executor.DefaultConfig()
	executorCfg.RiskPercent = cfg.Trading.RiskPercent
	executorCfg.ATRSLMult = cfg.Risk.ATRSLMultiplier
	executorCfg.ATRTPMult = cfg.Risk.ATRTPMultiplier
	executorCfg.MinSLDollar = cfg.Risk.MinSLPips
	executorCfg.MaxSLDollar = cfg.Risk.MaxSLPips
	executorCfg.ATRVolMin = cfg.Risk.ATRVolatilityMin
	executorCfg.ATRVolMax = cfg.Risk.ATRVolatilityMax
	executionEngine := executor.New(adapter, adapter, adapter, adapter, database, positionMgr, executorCfg, config.NewLogger("executor"))

	waitBuffer := waitbuffer.New()

	revaluatorCfg := revaluator.DefaultConfig()
	revaluatorCfg.PollInterval = time.Duration(cfg.Wait.PollIntervalSec) * time.Second
	revaluatorCfg.NextBarExpiry = time.Duration(cfg.Wait.NextBarExpirySec) * time.Second
	revaluatorCfg.StructureNeededExpiry = time.Duration(cfg.Wait.StructureNeededExpiry) * time.Second
	revaluatorCfg.CooldownExpiry = time.Duration(cfg.Wait.CooldownExpirySec) * time.Second
	revaluatorCfg.MaxReevalCount = cfg.Wait.MaxReevalCount
	reval := revaluator.New(waitBuffer, ctxBuilder, scoreStore, riskGate, positionMgr, executionEngine, database, revaluatorCfg, config.NewWorkerLogger("revaluator", "worker"))

	dispatcherStore := db.NewDispatcherStore(database, symbol)
	dispatcherCfg := dispatcher.DefaultConfig()
	batchDispatcher := dispatcher.New(dispatcherStore, ctxBuilder, scoreStore, riskGate, positionMgr, executionEngine, waitBuffer, reval, dispatcherCfg, config.NewWorkerLogger("batch_dispatcher", "worker"))

	sigCollector := collector.New(time.Duration(cfg.Trading.DebounceWindowMS)*time.Millisecond, func(batch model.Batch) error {
		return batchDispatcher.Process(ctx, batch)
	}, config.NewWorkerLogger("signal_collector", "worker"))

	schedulerCfg := scheduler.DefaultConfig()
	schedulerCfg.LimitCancelWarnMin = cfg.Scheduler.LimitCancelWarnMin
	if start, err := parseClockTime(cfg.Scheduler.DailyBreakStart); err == nil {
		schedulerCfg.DailyBreakStart = start
	}
	if end, err := parseClockTime(cfg.Scheduler.DailyBreakEnd); err == nil {
		schedulerCfg.DailyBreakEnd = end
	}
	if start, err := parseClockTime(cfg.Scheduler.LimitCancelStart); err == nil {
		schedulerCfg.LimitCancelStart = start
	}
	if eod, err := parseClockTime(cfg.Scheduler.EODCloseTime); err == nil {
		schedulerCfg.EODCloseTime = eod
	}

	var backend notifications.Backend = notifications.NewLogBackend(config.NewLogger("notifications"))
	notificationService := notifications.NewService(database.Pool(), backend)
	operatorNotifier := notifications.NewOperatorNotifier(notificationService)

	sched := scheduler.New(adapter, operatorNotifier, schedulerCfg, config.NewWorkerLogger("scheduler", "worker"))

	healthCfg := health.DefaultConfig()
	healthCfg.CheckInterval = time.Duration(cfg.Position.HealthCheckIntervalSec) * time.Second
	healthMonitor := health.New(adapter, adapter, operatorNotifier, positionMgr, healthCfg, config.NewWorkerLogger("health_monitor", "worker"))

	apiServer := api.NewServer(api.Config{
		Host:     cfg.API.Host,
		Port:     cfg.API.Port,
		Receiver: sigCollector,
		Health:   healthMonitor,
	}, config.NewLogger("api"))

	metricsServer := metrics.NewServer(cfg.Monitoring.PrometheusPort, config.NewLogger("metrics_server"))
	metricsUpdater := metrics.NewUpdater(database.Pool(), 15*time.Second)

	structureSub, err := notifyBus.SubscribeStructureSignals(func(structureSymbol string) {
		if structureSymbol == symbol {
			reval.OnNewStructure()
		}
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to structure signals")
	}
	defer structureSub.Unsubscribe()

	go positionMgr.Run(ctx)
	go reval.Run(ctx)
	go sched.Run(ctx)
	go healthMonitor.Run(ctx)
	if cfg.Monitoring.EnableMetrics {
		metricsUpdater.Start(ctx)
		go func() {
			if err := metricsServer.Start(); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	errChan := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil {
			errChan <- fmt.Errorf("api server: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errChan:
		log.Error().Err(err).Msg("fatal component error")
	}

	log.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error stopping api server")
	}
	if cfg.Monitoring.EnableMetrics {
		metricsUpdater.Stop()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error stopping metrics server")
		}
	}

	log.Info().Msg("shutdown complete")
}

func parseClockTime(s string) (scheduler.ClockTime, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return scheduler.ClockTime{}, err
	}
	return scheduler.ClockTime{Hour: hour, Minute: minute}, nil
}
