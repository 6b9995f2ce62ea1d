package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"tipping-analytics/internal/aggregator"
	"tipping-analytics/internal/api"
	"tipping-analytics/internal/cache"
	"tipping-analytics/internal/chain"
	"tipping-analytics/internal/config"
	"tipping-analytics/internal/emitters"
	"tipping-analytics/internal/health"
	"tipping-analytics/internal/interfaces"
	"tipping-analytics/internal/logger"
	"tipping-analytics/internal/watcher"
)

func main() {
	// bootstrap logger so config failures are reported before the
	// configured level is known
	logger.Init("info")

	cfg, err := config.Load()
	if err != nil {
		logger.GetLogger().Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Init(cfg.LogLevel)
	log := logger.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := chain.NewClient(cfg.Chain, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create chain client")
	}
	defer client.Close()

	agg := aggregator.New(client, cfg.Aggregator, log)

	var lbCache cache.Cache
	if cfg.Redis.Enabled {
		redisCache := cache.NewRedis(cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.TTL)
		defer redisCache.Close()
		lbCache = redisCache
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Leaderboard cache enabled")
	}

	if cfg.Watcher.Enabled {
		var emitter interfaces.TipEmitter
		if cfg.Kafka.Enabled {
			kafkaEmitter := emitters.NewKafkaEmitter(cfg.Kafka.BrokerAddress, cfg.Kafka.Topic)
			defer kafkaEmitter.Close()
			emitter = &emitters.PrintEmitter{WrappedEmitter: kafkaEmitter}
			log.Info().Str("topic", cfg.Kafka.Topic).Msg("Kafka tip emitter enabled")
		} else {
			emitter = &emitters.PrintEmitter{}
		}

		w := watcher.New(client, emitter, cfg.Watcher.PollInterval, log)
		go w.Run(ctx)
	}

	health.RegisterSource(ctx, client)
	health.SetReady(true)

	mux := http.NewServeMux()
	handler := &api.Handler{
		Service: agg,
		Totals:  client,
		Cache:   lbCache,
		Cfg:     cfg.Aggregator,
		Logger:  log,
	}
	handler.Routes(mux)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	health.SetReady(false)
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
}
