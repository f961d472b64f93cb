package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"crosslock/config"
	"crosslock/core/state"
	"crosslock/crypto"
	"crosslock/native/bridge"
	nativecommon "crosslock/native/common"
	"crosslock/native/htlc"
	"crosslock/native/orderbook"
	"crosslock/native/policy"
	"crosslock/observability"
	"crosslock/observability/logging"
	"crosslock/rpc"
	"crosslock/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const operatorPassEnv = "CROSSLOCK_OPERATOR_PASS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup(logging.Options{
		Service:    "crosslockd",
		Env:        cfg.NetworkEnv,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	operatorKey, err := crypto.LoadFromKeystore(cfg.OperatorKeystorePath, os.Getenv(operatorPassEnv))
	if err != nil {
		logger.Error("Failed to load operator keystore", slog.Any("error", err))
		os.Exit(1)
	}
	operator := operatorKey.PubKey().Address()
	logger.Info("operator key loaded", "address", operator.String())

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	manager := state.NewManager(db)

	chains, err := policy.NewChainSet(cfg.LocalChainRef, cfg.ChainInfos())
	if err != nil {
		logger.Error("Failed to build chain registry", slog.Any("error", err))
		os.Exit(1)
	}

	pauses := nativecommon.NewSwitchboard()
	pauses.SetPaused(nativecommon.ModuleHTLC, cfg.Pauses.HTLC)
	pauses.SetPaused(nativecommon.ModuleOrderbook, cfg.Pauses.Orderbook)
	pauses.SetPaused(nativecommon.ModuleBridge, cfg.Pauses.Bridge)

	emitter := observability.NewMetricsEmitter(nil)

	ledger := htlc.NewEngine()
	ledger.SetState(manager)
	ledger.SetOriginChain(cfg.LocalChainRef)
	ledger.SetPauses(pauses)
	ledger.SetEmitter(emitter)
	if collector := strings.TrimSpace(cfg.Fees.Collector); collector != "" {
		addr, err := crypto.DecodeAddress(collector)
		if err != nil {
			logger.Error("Invalid fee collector", slog.Any("error", err))
			os.Exit(1)
		}
		var collectorAddr [20]byte
		copy(collectorAddr[:], addr.Bytes())
		if err := ledger.SetFeePolicy(collectorAddr, cfg.Fees.Bps); err != nil {
			logger.Error("Invalid fee policy", slog.Any("error", err))
			os.Exit(1)
		}
	}

	matcher := orderbook.NewEngine(ledger)
	matcher.SetState(manager)
	matcher.SetChainSet(chains)
	matcher.SetPauses(pauses)
	matcher.SetEmitter(emitter)

	relay := bridge.NewEngine()
	relay.SetState(manager)
	relay.SetChainSet(chains)
	relay.SetPauses(pauses)
	relay.SetEmitter(emitter)

	var admin [20]byte
	copy(admin[:], operator.Bytes())
	minStake, err := cfg.Bridge.MinStakeAmount()
	if err != nil {
		logger.Error("Invalid bridge MinStake", slog.Any("error", err))
		os.Exit(1)
	}
	slashAmount, err := cfg.Bridge.SlashAmountValue()
	if err != nil {
		logger.Error("Invalid bridge SlashAmount", slog.Any("error", err))
		os.Exit(1)
	}
	if err := relay.SetConfig([20]byte{}, &bridge.Config{
		RequiredSignatures: cfg.Bridge.RequiredSignatures,
		MessageTimeout:     cfg.Bridge.MessageTimeoutSeconds,
		MinStake:           minStake,
		SlashAmount:        slashAmount,
	}); err != nil {
		logger.Error("Failed to install bridge config", slog.Any("error", err))
		os.Exit(1)
	}
	relay.SetAdmin(admin)

	// Inbound secret relays settle matched orders; without a registered
	// consumer every ExecuteMessage call dead-ends on ErrUnknownTarget.
	if err := relay.RegisterHandler(orderbook.BridgeTargetOrderComplete, func(msg *bridge.Message) error {
		_, err := matcher.CompleteFromRelay(msg.Payload)
		return err
	}); err != nil {
		logger.Error("Failed to register bridge handler", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if addr := strings.TrimSpace(cfg.MetricsAddress); addr != "" {
		go serveMetrics(ctx, logger, addr)
	}

	server := rpc.NewServer(rpc.Options{
		Ledger:             ledger,
		Matcher:            matcher,
		Relay:              relay,
		State:              manager,
		Logger:             logger,
		AuthToken:          cfg.RPC.AuthToken,
		RateLimitPerSecond: cfg.RPC.RateLimitPerSecond,
		RateLimitBurst:     cfg.RPC.RateLimitBurst,
	})

	logger.Info("starting crosslock daemon",
		"rpc", cfg.RPCAddress,
		"localChain", cfg.LocalChainRef,
		"chains", len(cfg.Chains),
		logging.MaskField("authToken", cfg.RPC.AuthToken),
	)
	if err := server.Start(ctx, cfg.RPCAddress); err != nil && ctx.Err() == nil {
		logger.Error("RPC server failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func serveMetrics(ctx context.Context, logger *slog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	logger.Info("metrics listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", slog.Any("error", err))
	}
}
