package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"nlud/internal/bot"
	"nlud/internal/events"
	"nlud/internal/queue"
	"nlud/pkg/types"
)

// dirtyTimeout bounds one load-or-mark decision triggered by a notification.
const dirtyTimeout = 30 * time.Second

// MountBot builds the bot, loads the stored model of every language or
// queues its training, and makes the bot visible once its predictor is
// mounted. On failure nothing stays registered.
func (a *Application) MountBot(ctx context.Context, cfg types.BotConfig) error {
	unlock := a.bots.Lock(cfg.ID)
	defer unlock()
	if _, ok := a.bots.Resolve(cfg.ID); ok {
		return ErrBotAlreadyMounted(cfg.ID)
	}
	log := a.log.With().Str("bot", cfg.ID).Logger()
	log.Info().Str("event", "mount_start").Strs("languages", cfg.Languages).Msg("mounting bot")

	b, err := a.factory.MakeBot(ctx, cfg)
	if err != nil {
		return fmt.Errorf("make bot %s: %w", cfg.ID, err)
	}
	m := &mounted{bot: b, dirtyDone: make(chan struct{})}
	a.bots.Stage(cfg.ID, m)

	// subscribe before the per-language decisions so edits made meanwhile
	// are not lost
	ch, unsubscribe := b.Versioning.Subscribe()
	m.unsubscribe = unsubscribe
	go a.dirtyLoop(m, ch)

	var queued []queue.Key
	rollback := func(cause error) error {
		m.unsubscribe()
		<-m.dirtyDone
		a.bots.RemoveBot(cfg.ID)
		for _, k := range queued {
			if err := a.queue.CancelTraining(k); err != nil {
				log.Warn().Err(err).Str("lang", k.Language).Msg("cancel training of failed mount")
			}
		}
		log.Error().Err(cause).Str("event", "mount_error").Msg("mount failed")
		return cause
	}

	for _, lang := range b.Config.Languages {
		wasQueued, err := a.loadOrTrain(ctx, m, lang, true)
		if err != nil {
			return rollback(fmt.Errorf("mount %s/%s: %w", cfg.ID, lang, err))
		}
		if wasQueued {
			queued = append(queued, queue.Key{BotID: cfg.ID, Language: lang})
		}
	}
	if err := b.Predictor.Mount(ctx); err != nil {
		return rollback(fmt.Errorf("mount %s: %w", cfg.ID, err))
	}

	a.bots.SetBot(cfg.ID, m)
	botsMounted.Set(float64(a.bots.Len()))
	a.pub.Publish(events.Event{Name: events.BotMounted, BotID: cfg.ID, Time: time.Now().UTC()})
	log.Info().Str("event", "mount_done").Int("queued", len(queued)).Msg("bot mounted")
	return nil
}

// UnmountBot unmounts the predictor and removes the bot. Training in flight
// for the bot is not canceled.
func (a *Application) UnmountBot(ctx context.Context, botID string) error {
	unlock := a.bots.Lock(botID)
	defer unlock()
	m, ok := a.bots.GetBot(botID)
	if !ok {
		return ErrBotNotMounted(botID)
	}
	if err := m.bot.Predictor.Unmount(ctx); err != nil {
		return fmt.Errorf("unmount %s: %w", botID, err)
	}
	m.unsubscribe()
	<-m.dirtyDone
	a.bots.RemoveBot(botID)
	botsMounted.Set(float64(a.bots.Len()))
	a.pub.Publish(events.Event{Name: events.BotUnmounted, BotID: botID, Time: time.Now().UTC()})
	a.log.Info().Str("event", "unmount_done").Str("bot", botID).Msg("bot unmounted")
	return nil
}

func (a *Application) unmountAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range a.bots.IDs() {
		g.Go(func() error {
			err := a.UnmountBot(gctx, id)
			if IsBotNotMounted(err) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// loadOrTrain loads the latest stored model of lang, or records that it must
// be trained: queued when eager, marked needs-training otherwise. It reports
// whether this call scheduled a session; an already active one is reused.
func (a *Application) loadOrTrain(ctx context.Context, m *mounted, lang string, eager bool) (bool, error) {
	botID := m.bot.Config.ID
	log := a.log.With().Str("bot", botID).Str("lang", lang).Logger()

	modelID, err := m.bot.Versioning.LatestModelID(ctx, lang)
	if err != nil {
		return false, err
	}
	exists, err := m.bot.Models.HasModel(ctx, modelID)
	if err != nil {
		log.Warn().Err(err).Str("model", modelID).Msg("model store unavailable, treating model as missing")
		exists = false
	}
	if exists {
		err := m.bot.Predictor.Load(ctx, modelID)
		if err == nil {
			log.Debug().Str("event", "model_loaded").Str("model", modelID).Msg("loaded stored model")
			return false, nil
		}
		// only an abandoned mount aborts; any other load failure means retrain
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		log.Warn().Err(err).Str("model", modelID).Bool("load_failed", bot.IsModelLoadFailed(err)).Msg("stored model unusable, retraining")
	}

	k := queue.Key{BotID: botID, Language: lang}
	if !eager {
		log.Info().Str("event", "needs_training").Str("model", modelID).Msg("model is stale")
		return false, a.queue.NeedsTraining(k)
	}
	s, created, err := a.queue.Enqueue(k)
	if err != nil {
		return false, err
	}
	log.Info().Str("event", "train_queued").Str("model", modelID).Str("session", s.ID).Bool("reused", !created).Msg("model missing, training queued")
	return created, nil
}

// dirtyLoop handles dirty-language notifications of m until its subscription
// is released.
func (a *Application) dirtyLoop(m *mounted, ch <-chan string) {
	defer close(m.dirtyDone)
	for lang := range ch {
		a.onDirty(m, lang)
	}
}

func (a *Application) onDirty(m *mounted, lang string) {
	botID := m.bot.Config.ID
	// a notification may race with the mount or unmount of this bot
	cur, ok := a.bots.Resolve(botID)
	if !ok || cur != m {
		a.log.Debug().Str("bot", botID).Str("lang", lang).Msg("dirty notification for a bot that is not mounted, ignoring")
		return
	}
	ctx, cancel := context.WithTimeout(a.ctx, dirtyTimeout)
	defer cancel()
	if _, err := a.loadOrTrain(ctx, m, lang, false); err != nil {
		a.log.Error().Err(err).Str("bot", botID).Str("lang", lang).Str("event", "dirty_error").Msg("dirty model handling failed")
	}
}

// onRemoteEvent reacts to events published by other replicas.
func (a *Application) onRemoteEvent(e events.Event) {
	switch e.Name {
	case events.ModelDeleted:
		if a.invalidate != nil {
			a.invalidate(e.BotID, e.ModelID)
		}
	case events.ModelReady:
		m, ok := a.bots.GetBot(e.BotID)
		if !ok {
			return
		}
		a.log.Debug().Str("bot", e.BotID).Str("lang", e.Language).Str("model", e.ModelID).Msg("model ready on another replica")
		a.onDirty(m, e.Language)
	}
}
