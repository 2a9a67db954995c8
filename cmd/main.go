package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/pelusa-v/scout-chat/internal/cache"
	"github.com/pelusa-v/scout-chat/internal/chat"
	"github.com/pelusa-v/scout-chat/internal/config"
	"github.com/pelusa-v/scout-chat/internal/handlers"
	"github.com/pelusa-v/scout-chat/internal/logging"
	"github.com/pelusa-v/scout-chat/internal/notify"
	"github.com/pelusa-v/scout-chat/internal/queue"
	"github.com/pelusa-v/scout-chat/internal/realtime"
	"github.com/pelusa-v/scout-chat/internal/storage"
	"github.com/pelusa-v/scout-chat/internal/store/memory"
	"github.com/pelusa-v/scout-chat/internal/store/postgres"
)

type backend struct {
	store     chat.Store
	reads     chat.ReadStateWriter
	directory chat.Directory
	identity  chat.IdentityProvider
	close     func()
}

func openBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger) backend {
	if cfg.StoreDriver == "memory" {
		log.Warn().Msg("using in-memory store; data is lost on exit")
		m := memory.New()
		return backend{store: m, reads: m, directory: m, identity: m, close: func() {}}
	}
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := postgres.Connect(connectCtx, cfg.DBURL, postgres.WithMaxConns(cfg.DBMaxConns))
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}
	dir := postgres.NewDirectory(pool)
	return backend{
		store:     postgres.NewStore(pool),
		reads:     postgres.NewReadState(pool),
		directory: dir,
		identity:  dir,
		close:     pool.Close,
	}
}

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		l := logging.New("info", "json")
		l.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be := openBackend(ctx, cfg, log)
	defer be.close()

	files, err := storage.NewLocal(cfg.StorageDir, cfg.StorageBaseURL, []byte(cfg.StorageSigningKey))
	if err != nil {
		log.Fatal().Err(err).Msg("open object storage")
	}

	// Hub, cache and queue are best-effort collaborators.
	hub := realtime.NewHub(log)
	go hub.Run(ctx)

	opts := []chat.Option{
		chat.WithLogger(log),
		chat.WithPublisher(hub),
		chat.WithObjectStore(files),
		chat.WithUploadTimeout(cfg.UploadTimeout),
	}
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable; unread cache disabled")
		} else {
			defer rc.Close()
			opts = append(opts, chat.WithUnreadCache(cache.NewUnreadCounts(rc, cfg.UnreadCacheTTL)))
		}
	}
	if cfg.QueueEnabled {
		qc, err := queue.NewAsynqClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("queue client")
		}
		defer qc.Close()
		opts = append(opts, chat.WithNotifier(notify.NewQueueNotifier(qc)))
	}

	svc := chat.NewService(be.store, be.reads, be.directory, opts...)

	app := handlers.NewApp()
	handlers.New(svc, be.identity, hub, files, log).Register(app)

	go func() {
		<-ctx.Done()
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.StoreDriver).Msg("listening")
	if err := app.Listen(cfg.HTTPAddr); err != nil {
		log.Error().Err(err).Msg("server stopped")
	}
}
