package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/rpcclient"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/btcrelay7000-backend/internal/feeder"
	"github.com/goodnatureofminers/btcrelay7000-backend/internal/metrics"
)

type config struct {
	RelayURL      string        `long:"relay-url" env:"RELAY_FEEDER_RELAY_URL" description:"relayd base URL" default:"http://127.0.0.1:8080"`
	RPCURL        string        `long:"rpc-url" env:"RELAY_FEEDER_RPC_URL" description:"Bitcoin RPC URL" default:"http://127.0.0.1:8332"`
	RPCUser       string        `long:"rpc-user" env:"RELAY_FEEDER_RPC_USER" description:"Bitcoin RPC username"`
	RPCPassword   string        `long:"rpc-password" env:"RELAY_FEEDER_RPC_PASSWORD" description:"Bitcoin RPC password"`
	Network       string        `long:"network" env:"RELAY_FEEDER_NETWORK" description:"network name" default:"mainnet"`
	PayoutAccount string        `long:"payout-account" env:"RELAY_FEEDER_PAYOUT_ACCOUNT" description:"account credited for accepted headers"`
	RPCRateLimit  int           `long:"rpc-rate-limit" env:"RELAY_FEEDER_RPC_RATE_LIMIT" description:"node RPC calls per second" default:"20"`
	HTTPTimeout   time.Duration `long:"http-timeout" env:"RELAY_FEEDER_HTTP_TIMEOUT" description:"HTTP timeout for RPC requests" default:"30s"`
	MetricsAddr   string        `long:"metrics-addr" env:"RELAY_FEEDER_METRICS_ADDR" description:"address for metrics server" default:":2113"`
}

func main() {
	cfg := config{}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()

	if _, err := flags.ParseArgs(&cfg, os.Args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		logger.Fatal("failed to parse flags", zap.Error(err))
	}

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("relay feeder failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	startMetricsServer(ctx, cfg.MetricsAddr, logger)

	rpcClient, err := newRPCClient(cfg.RPCURL, cfg.RPCUser, cfg.RPCPassword)
	if err != nil {
		return fmt.Errorf("init rpc client: %w", err)
	}
	defer func() {
		rpcClient.Shutdown()
		rpcClient.WaitForShutdown()
	}()

	source := feeder.NewNodeSource(rpcClient, metrics.NewRPCClient(cfg.Network), cfg.RPCRateLimit)

	submitter, err := feeder.NewRelaySubmitter(cfg.RelayURL)
	if err != nil {
		return fmt.Errorf("init relay submitter: %w", err)
	}

	svc, err := feeder.New(
		source,
		submitter,
		metrics.NewFeeder(cfg.Network),
		cfg.PayoutAccount,
		logger,
	)
	if err != nil {
		return err
	}
	return svc.Run(ctx)
}

func startMetricsServer(ctx context.Context, addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("starting metrics server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}()
}

func newRPCClient(rawURL, user, password string) (*rpcclient.Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse rpc url: %w", err)
	}
	if parsed.Scheme != "http" {
		return nil, fmt.Errorf("rpc url scheme %q not supported, use http", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("rpc url missing host")
	}

	cfg := &rpcclient.ConnConfig{
		Host:         parsed.Host,
		User:         user,
		Pass:         password,
		HTTPPostMode: true,
		DisableTLS:   true,
	}

	return rpcclient.New(cfg, nil)
}
