package app

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"nlud/internal/events"
	"nlud/internal/modelstore"
	"nlud/internal/queue"
	"nlud/pkg/types"
)

const persistMaxElapsed = 30 * time.Second

// Trainer returns the queue runner that trains bots mounted in a.
func (a *Application) Trainer() queue.Runner { return (*trainer)(a) }

type trainer Application

func (t *trainer) app() *Application { return (*Application)(t) }

func (t *trainer) Train(ctx context.Context, s types.TrainingSession, progress queue.ProgressFunc) error {
	a := t.app()
	log := a.log.With().Str("bot", s.BotID).Str("lang", s.Language).Str("session", s.ID).Logger()

	m, ok := a.bots.Resolve(s.BotID)
	if !ok {
		return ErrBotNotMounted(s.BotID)
	}
	a.trainMu.Lock()
	a.inflight[s.ID] = m.bot.Predictor
	a.trainMu.Unlock()
	defer func() {
		a.trainMu.Lock()
		delete(a.inflight, s.ID)
		a.trainMu.Unlock()
	}()

	model, err := m.bot.Predictor.Train(ctx, s.ID, s.Language, progress)
	if err != nil {
		return err
	}
	if model == nil {
		log.Info().Str("event", "train_noop").Msg("no training data for language")
		return nil
	}
	modelID := types.ModelID(model.LanguageCode, model.Hash)

	if err := persist(ctx, m.bot.Models, modelID, *model); err != nil {
		return err
	}
	log.Info().Str("event", "train_done").Str("model", modelID).Msg("model trained and stored")
	a.pub.Publish(events.Event{Name: events.ModelReady, BotID: s.BotID, Language: s.Language, ModelID: modelID, Time: time.Now().UTC()})
	t.prune(ctx, m, s.Language, modelID)

	// the bot may have been unmounted or remounted while training
	cur, ok := a.bots.Resolve(s.BotID)
	switch {
	case !ok:
		log.Info().Str("event", "train_orphaned").Msg("bot unmounted during training, model stored only")
	case cur != m:
		if err := cur.bot.Predictor.Load(ctx, modelID); err != nil {
			log.Warn().Err(err).Str("model", modelID).Msg("load into remounted bot failed")
		}
	}
	return nil
}

func (t *trainer) Cancel(s types.TrainingSession) {
	a := t.app()
	a.trainMu.Lock()
	p, ok := a.inflight[s.ID]
	a.trainMu.Unlock()
	if !ok {
		// not started yet on the runner side
		m, found := a.bots.Resolve(s.BotID)
		if !found {
			return
		}
		p = m.bot.Predictor
	}
	p.CancelTraining(s.ID)
}

func persist(ctx context.Context, store modelstore.Store, id string, m types.Model) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = persistMaxElapsed
	return backoff.Retry(func() error {
		return store.PutModel(ctx, id, m)
	}, backoff.WithContext(bo, ctx))
}

func (t *trainer) prune(ctx context.Context, m *mounted, lang, keepID string) {
	a := t.app()
	if a.keep <= 0 {
		return
	}
	deleted, err := modelstore.Prune(ctx, m.bot.Models, lang, a.keep, keepID)
	if err != nil {
		a.log.Warn().Err(err).Str("bot", m.bot.Config.ID).Str("lang", lang).Msg("prune models")
	}
	for _, id := range deleted {
		a.pub.Publish(events.Event{Name: events.ModelDeleted, BotID: m.bot.Config.ID, Language: lang, ModelID: id, Time: time.Now().UTC()})
	}
}
