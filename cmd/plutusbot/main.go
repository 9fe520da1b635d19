package main

import (
	"context"
	"flag"
	"log"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"

	"plutusbot/bot/engine"
	"plutusbot/bot/session"
	"plutusbot/chain"
	"plutusbot/config"
	"plutusbot/observability/logging"
	telemetry "plutusbot/observability/otel"
	"plutusbot/ops"
	"plutusbot/plutus"
	"plutusbot/telegram"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.yaml", "path to plutusbot config")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("PLUTUSBOT_ENV"))
	logger := logging.Setup("plutusbot", env)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "plutusbot",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Traces:      otlpEndpoint != "",
		Metrics:     otlpEndpoint != "",
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	evmClient, err := ethclient.DialContext(ctx, cfg.Chain.Endpoint)
	if err != nil {
		log.Fatalf("dial chain endpoint: %v", err)
	}
	defer evmClient.Close()

	signerKey, err := chain.LoadSigner(cfg.Chain.Signer)
	if err != nil {
		log.Fatalf("load signer: %v", err)
	}
	submitter, err := chain.NewSubmitter(evmClient, signerKey, big.NewInt(cfg.Chain.ChainID),
		chain.WithConfirmations(cfg.Chain.Confirmations),
		chain.WithPollInterval(cfg.Chain.PollInterval.Duration),
		chain.WithSubmitTimeout(cfg.Chain.SubmitTimeout.Duration),
		chain.WithLogger(logger.With("component", "submitter")),
	)
	if err != nil {
		log.Fatalf("build submitter: %v", err)
	}

	plutusClient, err := plutus.NewClient(plutus.Config{
		BaseURL: cfg.Plutus.BaseURL,
		Timeout: cfg.Plutus.Timeout.Duration,
	}, plutus.WithLogger(logger.With("component", "plutus")))
	if err != nil {
		log.Fatalf("build plutus client: %v", err)
	}

	sessions := session.NewStore(
		session.WithTTL(cfg.Sessions.TTL.Duration),
		session.WithStoreLogger(logger.With("component", "sessions")),
	)
	sessions.StartJanitor(ctx, cfg.Sessions.JanitorInterval.Duration)
	defer sessions.Close()

	eng := engine.New(sessions, plutusClient, plutusClient, submitter,
		engine.WithBalanceReader(submitter),
		engine.WithLogger(logger.With("component", "engine")),
	)

	token, err := cfg.Telegram.ResolveToken()
	if err != nil {
		log.Fatalf("resolve telegram token: %v", err)
	}
	api, err := telegram.Connect(token)
	if err != nil {
		log.Fatalf("connect telegram: %v", err)
	}
	bot := telegram.New(api, eng, telegram.WithLogger(logger.With("component", "telegram")))

	go func() {
		if err := ops.Serve(ctx, cfg.Ops.Listen, logger.With("component", "ops")); err != nil {
			logger.Error("ops server failed", "error", err)
		}
	}()

	if err := bot.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("bot stopped: %v", err)
	}
	logger.Info("shutdown complete")
}
