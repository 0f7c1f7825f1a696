// Package app is the root orchestrator: it mounts and unmounts bots, decides
// whether a language loads a stored model or trains, and fronts the
// training queue.
package app

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"nlud/internal/bot"
	"nlud/internal/events"
	"nlud/internal/queue"
	"nlud/internal/registry"
	"nlud/pkg/types"
)

// TrainingQueue is the scheduling authority the orchestrator delegates to.
type TrainingQueue interface {
	Initialize(ctx context.Context) error
	Teardown(ctx context.Context) error
	NeedsTraining(k queue.Key) error
	QueueTraining(k queue.Key) (types.TrainingSession, error)
	Enqueue(k queue.Key) (types.TrainingSession, bool, error)
	CancelTraining(k queue.Key) error
	GetTraining(k queue.Key) types.TrainingSession
	GetAllTrainings() []types.TrainingSession
}

// HealthSource reports process-wide backend availability.
type HealthSource interface {
	Health() types.Health
}

// Deps are the collaborators of an Application.
type Deps struct {
	Queue   TrainingQueue
	Health  HealthSource
	Factory bot.Factory
	// Publisher receives lifecycle events; nil drops them.
	Publisher events.Publisher
	// Subscriber delivers events from other replicas; optional.
	Subscriber events.Subscriber
	// Invalidate drops a model from local caches when another replica
	// deleted it; optional.
	Invalidate func(botID, modelID string)
	// ModelsToKeep bounds stored models per bot language; 0 keeps all.
	ModelsToKeep int
	Logger       zerolog.Logger
}

// mounted is the registry entry of one bot.
type mounted struct {
	bot         *bot.Bot
	unsubscribe func()
	dirtyDone   chan struct{}
}

// Application orchestrates bots, their models and the training queue.
type Application struct {
	queue      TrainingQueue
	health     HealthSource
	factory    bot.Factory
	pub        events.Publisher
	sub        events.Subscriber
	invalidate func(botID, modelID string)
	keep       int
	log        zerolog.Logger

	bots  *registry.Registry[*mounted]
	ready atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	subWG  sync.WaitGroup

	trainMu  sync.Mutex
	inflight map[string]bot.Predictor
}

// New wires an Application. Call Initialize before queueing work.
func New(d Deps) *Application {
	ctx, cancel := context.WithCancel(context.Background())
	return &Application{
		queue:      d.Queue,
		health:     d.Health,
		factory:    d.Factory,
		pub:        events.OrNoop(d.Publisher),
		sub:        d.Subscriber,
		invalidate: d.Invalidate,
		keep:       d.ModelsToKeep,
		log:        d.Logger.With().Str("component", "app").Logger(),
		bots:       registry.New[*mounted](),
		ctx:        ctx,
		cancel:     cancel,
		inflight:   make(map[string]bot.Predictor),
	}
}

// Initialize starts the training queue and, when configured, the replica
// event subscription.
func (a *Application) Initialize(ctx context.Context) error {
	if err := a.queue.Initialize(ctx); err != nil {
		return err
	}
	if a.sub != nil {
		a.subWG.Add(1)
		go func() {
			defer a.subWG.Done()
			if err := a.sub.Subscribe(a.ctx, a.onRemoteEvent); err != nil && a.ctx.Err() == nil {
				a.log.Error().Err(err).Str("event", "subscribe_error").Msg("replica events unavailable")
			}
		}()
	}
	a.ready.Store(true)
	a.log.Info().Str("event", "app_start").Msg("application initialized")
	return nil
}

// Ready reports whether the application accepts work.
func (a *Application) Ready() bool { return a.ready.Load() }

// Teardown stops the training queue, then unmounts every mounted bot.
func (a *Application) Teardown(ctx context.Context) error {
	a.ready.Store(false)
	qerr := a.queue.Teardown(ctx)
	if qerr != nil {
		a.log.Error().Err(qerr).Str("event", "queue_teardown_error").Msg("teardown")
	}
	a.cancel()
	a.subWG.Wait()
	uerr := a.unmountAll(ctx)
	a.log.Info().Str("event", "app_stop").Msg("application torn down")
	if qerr != nil {
		return qerr
	}
	return uerr
}

// GetHealth reports process-wide backend availability.
func (a *Application) GetHealth() types.Health { return a.health.Health() }

// GetTraining returns the session of (botID, lang); see queue.Queue.GetTraining.
func (a *Application) GetTraining(botID, lang string) types.TrainingSession {
	return a.queue.GetTraining(queue.Key{BotID: botID, Language: lang})
}

func (a *Application) GetAllTrainings() []types.TrainingSession { return a.queue.GetAllTrainings() }

// HasBot reports whether botID is fully mounted.
func (a *Application) HasBot(botID string) bool { return a.bots.Has(botID) }

// GetBot returns the predictor of a mounted bot.
func (a *Application) GetBot(botID string) (bot.Predictor, error) {
	m, ok := a.bots.GetBot(botID)
	if !ok {
		return nil, ErrBotNotMounted(botID)
	}
	return m.bot.Predictor, nil
}

// ListBots returns the configs of mounted bots ordered by id.
func (a *Application) ListBots() []types.BotConfig {
	ids := a.bots.IDs()
	out := make([]types.BotConfig, 0, len(ids))
	for _, id := range ids {
		if m, ok := a.bots.GetBot(id); ok {
			out = append(out, m.bot.Config)
		}
	}
	return out
}

// QueueTraining schedules training of lang for a mounted bot.
func (a *Application) QueueTraining(botID, lang string) (types.TrainingSession, error) {
	if err := a.checkLanguage(botID, lang); err != nil {
		return types.TrainingSession{}, err
	}
	return a.queue.QueueTraining(queue.Key{BotID: botID, Language: lang})
}

// CancelTraining cancels the non-terminal session of (botID, lang).
func (a *Application) CancelTraining(botID, lang string) error {
	if err := a.checkLanguage(botID, lang); err != nil {
		return err
	}
	return a.queue.CancelTraining(queue.Key{BotID: botID, Language: lang})
}

func (a *Application) checkLanguage(botID, lang string) error {
	m, ok := a.bots.GetBot(botID)
	if !ok {
		return ErrBotNotMounted(botID)
	}
	for _, l := range m.bot.Config.Languages {
		if l == lang {
			return nil
		}
	}
	return ErrUnsupportedLanguage(botID, lang)
}
