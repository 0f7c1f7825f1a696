package bot

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nlud/internal/defs"
	"nlud/internal/engine"
	"nlud/internal/modelstore"
	"nlud/pkg/types"
)

// engineBot serves predictions from an in-process engine.
type engineBot struct {
	cfg      types.BotConfig
	eng      *engine.Engine
	defs     *defs.Service
	models   modelstore.Store
	watch    bool
	debounce time.Duration
	log      zerolog.Logger

	mu        sync.Mutex
	stopWatch context.CancelFunc
	watchDone chan struct{}
}

func (b *engineBot) Load(ctx context.Context, modelID string) error {
	m, err := b.models.GetModel(ctx, modelID)
	if modelstore.IsModelNotFound(err) {
		return ErrModelLoadFailed(modelID, err)
	}
	if err != nil {
		return err
	}
	if err := b.eng.LoadModel(m); err != nil {
		if errors.Is(err, engine.ErrBackendUnavailable) {
			return ErrDependencyUnavailable(err.Error())
		}
		return ErrModelLoadFailed(modelID, err)
	}
	return nil
}

// Mount starts watching the bot's definitions when enabled.
func (b *engineBot) Mount(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.watch || b.stopWatch != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	b.stopWatch, b.watchDone = cancel, done
	go func() {
		defer close(done)
		if err := b.defs.Watch(ctx, b.debounce); err != nil {
			b.log.Error().Err(err).Str("event", "watch_error").Msg("definitions watcher stopped")
		}
	}()
	return nil
}

func (b *engineBot) Unmount(ctx context.Context) error {
	b.mu.Lock()
	cancel, done := b.stopWatch, b.watchDone
	b.stopWatch, b.watchDone = nil, nil
	b.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *engineBot) Predict(_ context.Context, text string, contexts []string, lang string) (types.Prediction, error) {
	if lang == "" {
		lang = b.pickLanguage(text)
	}
	return b.eng.Predict(text, contexts, lang)
}

func (b *engineBot) pickLanguage(text string) string {
	detected := b.eng.DetectLanguage(text)
	if slices.Contains(b.cfg.Languages, detected) {
		return detected
	}
	return b.cfg.DefaultLanguage
}

func (b *engineBot) Train(ctx context.Context, sessionID, lang string, progress func(float64)) (*types.Model, error) {
	intents, entities := b.defs.Definitions(lang)
	return b.eng.Train(ctx, sessionID, intents, entities, lang, engine.TrainOptions{Progress: progress})
}

func (b *engineBot) CancelTraining(sessionID string) { b.eng.CancelTraining(sessionID) }

func (b *engineBot) HasModelForLang(lang string) bool { return b.eng.HasModelForLang(lang) }

// disabledBot is selected when the process has no trainable backend. It can
// be mounted, but every model operation reports the missing dependency.
type disabledBot struct{}

var errNoBackend = ErrDependencyUnavailable("nlu backend disabled")

func (disabledBot) Load(context.Context, string) error { return errNoBackend }
func (disabledBot) Mount(context.Context) error        { return nil }
func (disabledBot) Unmount(context.Context) error      { return nil }
func (disabledBot) Predict(context.Context, string, []string, string) (types.Prediction, error) {
	return types.Prediction{}, errNoBackend
}
func (disabledBot) Train(context.Context, string, string, func(float64)) (*types.Model, error) {
	return nil, errNoBackend
}
func (disabledBot) CancelTraining(string)       {}
func (disabledBot) HasModelForLang(string) bool { return false }
