// Package main is the entry point for the autonomous Solana sniper agent:
// it constructs every manager package, wires them into an Orchestrator, and
// runs until a shutdown signal arrives.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/atlas-desktop/solana-sniper/internal/api"
	"github.com/atlas-desktop/solana-sniper/internal/balanceledger"
	"github.com/atlas-desktop/solana-sniper/internal/basevalidator"
	"github.com/atlas-desktop/solana-sniper/internal/budget"
	"github.com/atlas-desktop/solana-sniper/internal/chain"
	"github.com/atlas-desktop/solana-sniper/internal/dexclient"
	"github.com/atlas-desktop/solana-sniper/internal/discovery"
	"github.com/atlas-desktop/solana-sniper/internal/executor"
	"github.com/atlas-desktop/solana-sniper/internal/historicalprice"
	"github.com/atlas-desktop/solana-sniper/internal/learning"
	"github.com/atlas-desktop/solana-sniper/internal/llmvalidator"
	"github.com/atlas-desktop/solana-sniper/internal/notify"
	"github.com/atlas-desktop/solana-sniper/internal/orchestrator"
	"github.com/atlas-desktop/solana-sniper/internal/positionmgr"
	"github.com/atlas-desktop/solana-sniper/internal/positionstore"
	"github.com/atlas-desktop/solana-sniper/internal/pricecache"
	"github.com/atlas-desktop/solana-sniper/internal/regime"
	"github.com/atlas-desktop/solana-sniper/internal/risk"
	"github.com/atlas-desktop/solana-sniper/internal/secureconfig"
	"github.com/atlas-desktop/solana-sniper/internal/sizing"
	"github.com/atlas-desktop/solana-sniper/internal/strategy"
	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// raydiumAMMV4Program is the public Raydium AMM v4 program ID, the default
// new-pool log subscription target for SubscribeNewPools.
const raydiumAMMV4Program = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"

func main() {
	configPath := flag.String("config", "./config.yaml", "Path to the agent config file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	cfgStore, err := secureconfig.New(logger, *configPath, "SNIPER_SIGNING_KEY")
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	cfg := cfgStore.Config()

	signingKeyBytes, err := cfgStore.GetSensitive("signingKey", "cmd/agent startup")
	if err != nil {
		logger.Fatal("failed to read signing key", zap.Error(err))
	}
	signer := solana.PrivateKey(signingKeyBytes)
	owner := signer.PublicKey()

	gov, err := budget.New(logger, filepath.Join(cfg.DataDir, "budget.json"), cfg.Budget.BaseBudget, cfg.Budget.MaxBank)
	if err != nil {
		logger.Fatal("failed to construct budget governor", zap.Error(err))
	}
	if gov.Exhausted() {
		logger.Fatal("RPC budget exhausted at startup")
	}

	chainClient := chain.New(logger, chain.Config{
		RPCEndpoint: cfg.RPCEndpoint,
		WSEndpoint:  cfg.RPCWSEndpoint,
		Commitment:  rpc.CommitmentConfirmed,
	}, gov)
	multiplexer := chain.NewMultiplexer(logger, cfg.RPCWSEndpoint)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ledger, err := balanceledger.New(ctx, logger, chainClient, owner)
	if err != nil {
		logger.Fatal("failed to construct balance ledger", zap.Error(err))
	}

	posStore, err := positionstore.New(logger, gov, func(ctx context.Context) ([]chain.TokenAccount, error) {
		return chainClient.GetParsedTokenAccountsByOwner(ctx, owner)
	}, filepath.Join(cfg.DataDir, "entry_prices.json"))
	if err != nil {
		logger.Fatal("failed to construct position store", zap.Error(err))
	}

	dexc := dexclient.New(cfg.AggregatorBaseURL, 10*time.Second)

	prices := pricecache.New(logger, func(ctx context.Context, mint string) (decimal.Decimal, string, error) {
		pair, err := dexc.Pair(ctx, mint)
		return pair.PriceUSD, "dexscreener", err
	})

	filterCfg := discovery.DefaultFilterConfig()
	filterCfg.MinLiquidity = cfg.Risk.MinLiquidityUSD
	filterCfg.MinVolume24h = cfg.Risk.MinVolumeUSD
	sources := []discovery.Source{
		discovery.NewWhitelistSource(dexc, nil),
		discovery.NewBoostSource(dexc),
		discovery.NewProfileSource(dexc),
		discovery.NewDexFilterSource(dexc, "solana"),
	}
	disc := discovery.New(logger, sources, filterCfg)

	historical := historicalprice.NewBirdeyeClient(getEnvOrDefault("BIRDEYE_BASE_URL", "https://public-api.birdeye.so"), os.Getenv("BIRDEYE_API_KEY"), 10*time.Second)
	priceHistory := historicalprice.New(logger, historicalprice.DefaultConfig(), historical.Fetch, cfg.DataDir)

	validatorCfg := basevalidator.DefaultConfig()
	validatorCfg.MaxRugScore = cfg.Risk.MaxRugScore
	validatorCfg.MinLiquidity = cfg.Risk.MinLiquidityUSD
	validatorCfg.MinVolume = cfg.Risk.MinVolumeUSD
	baseValidator := basevalidator.New(logger, validatorCfg, dexc.RugScore, dexc.Pair, historical.HourlyCloses)

	strategies := strategy.NewRegistry(logger, strategy.DefaultConfig())
	combinerMode := strategy.Mode(cfg.StrategyMode)
	if combinerMode == "" {
		combinerMode = strategy.ModeEnsemble
	}
	combinerCfg := strategy.DefaultCombinerConfig()

	regimeDetector := regime.New(logger, regime.DefaultConfig())
	sizer := sizing.New(logger)

	riskCfg := risk.DefaultConfig()
	riskCfg.MaxPositionPct = cfg.Risk.MaxPositionPct
	riskCfg.MaxDoublings = cfg.Risk.MaxDoublings
	riskCfg.DoublingPnLRequirements = cfg.Risk.DoublingMinPnL
	riskManager := risk.New(logger, riskCfg, sizer, priceHistory)

	learner := learning.New(logger, learning.DefaultConfig(), filepath.Join(cfg.DataDir, "learner.json"))

	llmCfg := llmvalidator.DefaultConfig()
	llmCfg.Enabled = cfg.LLMBaseURL != ""
	llmCfg.Endpoint = cfg.LLMBaseURL
	llmCfg.Model = cfg.LLMModel
	llmValidator := llmvalidator.New(logger, llmCfg)

	aggregatorClient := executor.NewHTTPAggregator(cfg.AggregatorBaseURL, 10*time.Second)
	executorCfg := executor.DefaultConfig()
	executorCfg.SlippageBps = cfg.SlippageBps
	exec := executor.New(logger, executorCfg, aggregatorClient, chainClient, ledger, signer)

	hub := notify.NewHub(logger)
	go hub.Run(ctx)
	notifier := notify.NewHubNotifier(logger, hub)

	noCandles := func(ctx context.Context, mint string) (strategy.Candle, bool) { return strategy.Candle{}, false }
	candlestick, _ := strategies.Get("candlestick")
	var exitAnalyser positionmgr.ExitAnalyser
	if cs, ok := candlestick.(interface {
		AnalyseExitCandle(pos types.Position, candle strategy.Candle) types.Signal
	}); ok {
		exitAnalyser = cs
	}

	posCfg := positionmgr.DefaultConfig()
	posCfg.DefaultTargetPct = cfg.TPMinPct
	posCfg.StopLossPct = cfg.SLPct
	positionMgr := positionmgr.New(logger, posCfg, posStore, prices, exec, learner, noCandles, exitAnalyser)

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.ScanInterval = cfg.ScanInterval
	orchCfg.StatusInterval = cfg.StatusInterval

	orch := orchestrator.New(logger, orchCfg, orchestrator.Deps{
		Discovery:      disc,
		BaseValidator:  baseValidator,
		Strategies:     strategies,
		CombinerMode:   combinerMode,
		CombinerConfig: combinerCfg,
		RegimeDetector: regimeDetector,
		Sizer:          sizer,
		RiskManager:    riskManager,
		LLMValidator:   llmValidator,
		Executor:       exec,
		PositionMgr:    positionMgr,
		PositionStore:  posStore,
		BalanceLedger:  ledger,
		Budget:         gov,
		PriceCache:     prices,
		Notifier:       notifier,
		PairFetcher:    dexc.Pair,
		Multiplexer:    multiplexer,
	})

	server := api.NewServer(logger, cfg.Server, hub, orch)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if programID, err := solana.PublicKeyFromBase58(raydiumAMMV4Program); err == nil {
		if unsub, err := orch.SubscribeNewPools(ctx, programID, rpc.CommitmentConfirmed); err != nil {
			logger.Warn("failed to subscribe to new-pool logs", zap.Error(err))
		} else {
			defer unsub()
		}
	}

	orchDone := make(chan error, 1)
	go func() { orchDone <- orch.Start(ctx) }()

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("status server error", zap.Error(err))
		}
	}()

	logger.Info("agent started",
		zap.String("rpc", cfg.RPCEndpoint),
		zap.Bool("live", cfg.Live),
	)

	<-sigCh
	logger.Info("shutdown signal received")
	cancel()
	cfgStore.Scrub()

	select {
	case err := <-orchDone:
		if err != nil {
			logger.Error("orchestrator stopped with error", zap.Error(err))
		}
	case <-time.After(orchCfg.ShutdownGrace + 5*time.Second):
		logger.Warn("orchestrator shutdown timed out")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", zap.Error(err))
	}

	logger.Info("agent stopped")
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}

	return logger
}
