package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-signal-ranker/config"
	"crypto-signal-ranker/internal/api"
	"crypto-signal-ranker/internal/binance"
	"crypto-signal-ranker/internal/cache"
	"crypto-signal-ranker/internal/conflict"
	"crypto-signal-ranker/internal/correlation"
	"crypto-signal-ranker/internal/futures"
	"crypto-signal-ranker/internal/justify"
	"crypto-signal-ranker/internal/logging"
	"crypto-signal-ranker/internal/metrics"
	"crypto-signal-ranker/internal/quality"
	"crypto-signal-ranker/internal/ranker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	writeSample := flag.Bool("write-sample-config", false, "write a sample config file and exit")
	flag.Parse()

	if *writeSample {
		if err := config.WriteSample(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "writing sample config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("sample configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Logging.Level, cfg.Logging.Console)
	log.Info().Str("config", *configPath).Msg("starting signal ranker")

	mtr := metrics.NewDefault()

	var store correlation.RecordStore
	var redisStore *cache.RedisStore[correlation.Record]
	if cfg.Redis.Enabled {
		redisStore = cache.NewRedisStore[correlation.Record](cache.RedisOptions{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, "correlation", cfg.Correlation.RecordTTL, log)
		store = redisStore
	} else {
		store = correlation.NewMemoryStore(cfg.Correlation.RecordTTL)
	}

	feed := binance.NewClient(binance.DefaultBaseURL)
	corrEngine := correlation.NewEngine(cfg.Correlation, feed, store, mtr, log)

	aligner := futures.NewAligner(cfg.Futures)
	conflicts := conflict.NewCalculator(cfg.Conflict)

	scorer := quality.NewScorer(cfg.Quality, conflicts, log)
	scorer.RegisterInfluence(quality.NewConsensusInfluence(aligner))
	scorer.RegisterReward(quality.NewCoherenceReward())

	ledger := justify.NewLedger(cfg.Justify)
	rnk := ranker.NewRanker(cfg.Ranker, scorer, mtr, log)

	server := api.NewServer(cfg.Server, scorer, ledger, rnk, corrEngine, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown requested")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown incomplete")
	}
	if redisStore != nil {
		if err := redisStore.Close(); err != nil {
			log.Warn().Err(err).Msg("closing redis store")
		}
	}
	log.Info().Msg("stopped")
}
