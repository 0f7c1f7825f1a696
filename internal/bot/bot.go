// Package bot builds the per-bot runtime handed to the orchestrator: a
// Predictor backed by an engine, the versioning service that tells which
// model is current, and the bot's view of the model store.
package bot

import (
	"context"

	"nlud/internal/modelstore"
	"nlud/pkg/types"
)

// Predictor is the runtime of one mounted bot.
type Predictor interface {
	// Load installs the stored model modelID. A model that is missing or
	// cannot be installed yields an error satisfying IsModelLoadFailed.
	Load(ctx context.Context, modelID string) error
	Mount(ctx context.Context) error
	Unmount(ctx context.Context) error
	// Predict understands text. An empty lang selects the detected language
	// when the bot serves it, else the bot's default language.
	Predict(ctx context.Context, text string, contexts []string, lang string) (types.Prediction, error)
	// Train fits and installs a model for lang from the current definitions.
	// It returns (nil, nil) when lang has no training data.
	Train(ctx context.Context, sessionID, lang string, progress func(float64)) (*types.Model, error)
	CancelTraining(sessionID string)
	// HasModelForLang reports whether any model is installed for lang.
	HasModelForLang(lang string) bool
}

// Versioning resolves the current model version of a bot.
type Versioning interface {
	LatestModelID(ctx context.Context, lang string) (string, error)
	// Subscribe delivers languages whose definitions changed. The returned
	// func releases the subscription.
	Subscribe() (<-chan string, func())
}

// Bot is everything the orchestrator needs to run one bot.
type Bot struct {
	Config     types.BotConfig
	Predictor  Predictor
	Versioning Versioning
	Models     modelstore.Store
}

// Factory builds bots. A failure aborts the mount.
type Factory interface {
	MakeBot(ctx context.Context, cfg types.BotConfig) (*Bot, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, cfg types.BotConfig) (*Bot, error)

func (f FactoryFunc) MakeBot(ctx context.Context, cfg types.BotConfig) (*Bot, error) {
	return f(ctx, cfg)
}
