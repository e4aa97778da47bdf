package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/gorilla/mux"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/btcrelay7000-backend/internal/metrics"
	"github.com/goodnatureofminers/btcrelay7000-backend/internal/relay"
	"github.com/goodnatureofminers/btcrelay7000-backend/internal/relay/merkle"
	"github.com/goodnatureofminers/btcrelay7000-backend/internal/relay/store"
	"github.com/goodnatureofminers/btcrelay7000-backend/internal/reward"
	"github.com/goodnatureofminers/btcrelay7000-backend/internal/transport"
	"github.com/goodnatureofminers/btcrelay7000-backend/internal/utils"
)

type config struct {
	Addr        string  `long:"addr" env:"RELAYD_ADDR" description:"REST listen address" default:":8080"`
	MetricsAddr string  `long:"metrics-addr" env:"RELAYD_METRICS_ADDR" description:"address for metrics server" default:":2112"`
	DataDir     string  `long:"data-dir" env:"RELAYD_DATA_DIR" description:"header ledger directory, empty keeps the ledger in memory"`
	BlockReward float64 `long:"block-reward" env:"RELAYD_BLOCK_REWARD" description:"relayer reward per accepted header, in BTC" default:"0"`
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

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("relayd failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	startMetricsServer(ctx, cfg.MetricsAddr, logger)

	s, err := openStore(cfg.DataDir, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			logger.Error("failed to close store", zap.Error(closeErr))
		}
	}()

	rewards, err := newRewardRecorder(cfg.BlockReward, logger)
	if err != nil {
		return fmt.Errorf("init reward recorder: %w", err)
	}

	r, err := relay.New(s, logger, metrics.NewRelay(), rewards)
	if err != nil {
		return fmt.Errorf("init relay: %w", err)
	}

	router := mux.NewRouter()
	router.Use(transport.MetricsMiddleware(metrics.NewHTTP()))
	transport.NewRelayHandler(r, merkle.NewVerifier(s), logger).Register(router)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           cors.Default().Handler(router),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
	}
	go func() {
		<-ctx.Done()
		logger.Info("shutting down the http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown http server", zap.Error(err))
		}
	}()

	logger.Info("starting http server", zap.String("addr", cfg.Addr))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func openStore(dataDir string, logger *zap.Logger) (store.Store, error) {
	if dataDir == "" {
		logger.Warn("no data dir configured, headers will not survive a restart")
		return store.NewMemory(), nil
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return store.OpenBolt(filepath.Join(dataDir, "headers.db"))
}

func newRewardRecorder(blockReward float64, logger *zap.Logger) (reward.Recorder, error) {
	if blockReward == 0 {
		return reward.Nop{}, nil
	}
	satoshis, err := utils.BtcToSatoshis(blockReward)
	if err != nil {
		return nil, err
	}
	return reward.NewLogRecorder(logger, btcutil.Amount(satoshis)), nil
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
