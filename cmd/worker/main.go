package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pelusa-v/scout-chat/internal/config"
	"github.com/pelusa-v/scout-chat/internal/logging"
	"github.com/pelusa-v/scout-chat/internal/notify"
	"github.com/pelusa-v/scout-chat/internal/queue"
)

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		l := logging.New("info", "json")
		l.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if cfg.RedisURL == "" {
		log.Fatal().Msg("worker requires redis_url")
	}

	srv, err := queue.NewAsynqServer(cfg.RedisURL, cfg.WorkerConcurrency, map[string]int{notify.Queue: 1}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("queue server")
	}
	notify.NewWorker(notify.LogMailer{Log: log}, cfg.NotifyRatePerSecond, log).Register(srv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("queue", notify.Queue).Msg("worker started")
	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("worker stopped")
	}
}
