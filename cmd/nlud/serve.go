package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"nlud/internal/app"
	"nlud/internal/bot"
	"nlud/internal/config"
	"nlud/internal/defs"
	"nlud/internal/engine"
	"nlud/internal/events"
	"nlud/internal/httpapi"
	"nlud/internal/modelstore"
	"nlud/internal/queue"
)

const (
	shutdownTimeout = 5 * time.Second
	teardownTimeout = 30 * time.Second
	mountLimit      = 4
)

type serveFlags struct {
	addr      string
	botsDir   string
	languages string
	noMount   bool
}

func buildServeCmd(root *rootOptions) *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the HTTP server and mount every bot found in the bots directory",
		Example: "  nlud serve --config nlud.yaml\n  nlud serve --bots-dir ./bots --languages en,fr",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if f.addr != "" {
				cfg.Addr = f.addr
			}
			if f.botsDir != "" {
				cfg.BotsDir = f.botsDir
			}
			if langs := splitCSV(f.languages); len(langs) > 0 {
				cfg.Languages = langs
				cfg.Engine.DefaultLanguage = ""
				cfg = cfg.WithDefaults()
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, !f.noMount)
		},
	}
	cmd.Flags().StringVar(&f.addr, "addr", "", "HTTP listen address, e.g. :8080")
	cmd.Flags().StringVar(&f.botsDir, "bots-dir", "", "Directory holding one sub-directory per bot")
	cmd.Flags().StringVar(&f.languages, "languages", "", "Comma-separated languages supported by the engine")
	cmd.Flags().BoolVar(&f.noMount, "no-mount", false, "Start without mounting the bots found on disk")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, mountAll bool) error {
	log := newLogger(cfg.Log)
	httpapi.SetLogger(log)
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders)
	httpapi.SetMaxBodyBytes(cfg.HTTP.MaxBodyBytes)
	httpapi.SetMountTimeout(cfg.HTTP.MountTimeout())

	rt := engine.NewRuntime(engine.Options{
		Backend:         cfg.Engine.Backend,
		Languages:       cfg.Languages,
		DefaultLanguage: cfg.Engine.DefaultLanguage,
		Epochs:          cfg.Engine.Epochs,
		BatchSize:       cfg.Engine.BatchSize,
		Logger:          log,
	})

	store, err := modelstore.Open(cfg.ModelStore.Driver, cfg.ModelStore.Path, cfg.ModelStore.CacheSize)
	if err != nil {
		return err
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}
	var cached *modelstore.CachedStore
	if cfg.ModelStore.Driver != modelstore.DriverMemory {
		if cached, err = modelstore.NewCachedStore(store, cfg.ModelStore.CacheSize); err != nil {
			return err
		}
		store = cached
	}

	var (
		pub        events.Publisher
		sub        events.Subscriber
		invalidate func(botID, modelID string)
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer client.Close()
		bus := events.NewRedisBus(client, cfg.Redis.Channel, log)
		defer bus.Close()
		pub, sub = bus, bus
		if cached != nil {
			invalidate = func(botID, modelID string) { cached.Invalidate(botID + "/" + modelID) }
		}
		log.Info().Str("event", "redis_bus").Str("addr", cfg.Redis.Addr).Str("instance", bus.Instance()).Msg("cross-replica events enabled")
	}

	q := queue.New(nil, queue.Options{
		Workers:           cfg.Training.Workers,
		AutoTrainSchedule: cfg.Training.AutoTrainSchedule,
		Logger:            log,
		Publisher:         pub,
	})
	a := app.New(app.Deps{
		Queue:  q,
		Health: rt,
		Factory: &bot.EngineFactory{
			Runtime:  rt,
			Store:    store,
			BotsDir:  cfg.BotsDir,
			Watch:    !cfg.Training.DisableWatch,
			Debounce: defs.DefaultDebounce,
			Logger:   log,
		},
		Publisher:    pub,
		Subscriber:   sub,
		Invalidate:   invalidate,
		ModelsToKeep: cfg.Training.ModelsToKeep,
		Logger:       log,
	})
	q.SetRunner(a.Trainer())
	if err := a.Initialize(ctx); err != nil {
		return err
	}

	httpapi.SetBaseContext(ctx)
	srv := &http.Server{
		Addr:        cfg.Addr,
		Handler:     httpapi.NewMux(a),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("event", "listen").Str("addr", cfg.Addr).Str("bots_dir", cfg.BotsDir).Msg("nlud listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if mountAll {
		mountBots(ctx, a, cfg.BotsDir, log)
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		log.Error().Err(serveErr).Msg("server error")
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	tctx, tcancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer tcancel()
	if err := a.Teardown(tctx); err != nil {
		log.Warn().Err(err).Msg("teardown error")
	}
	return serveErr
}

// mountBots mounts every bot under dir. A bot that fails to mount is logged
// and skipped.
func mountBots(ctx context.Context, a *app.Application, dir string, log zerolog.Logger) {
	cfgs, err := defs.LoadBotConfigs(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Error().Err(err).Str("bots_dir", dir).Msg("read bot configs")
		}
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(mountLimit)
	for _, c := range cfgs {
		g.Go(func() error {
			if err := a.MountBot(gctx, c); err != nil {
				log.Error().Err(err).Str("bot", c.ID).Msg("mount failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}
