package engine

import (
	"context"

	"nlud/pkg/types"
)

// Sample is one labeled training utterance.
type Sample struct {
	Intent string
	Text   string
}

// Net is the opaque trainable unit behind an Engine model.
type Net interface {
	// Train fits the unit on samples. Implementations must return ctx.Err()
	// promptly once ctx is done, checking at least once per batch.
	Train(ctx context.Context, samples []Sample, progress func(float64)) error
	// Predict ranks every known intent for text, highest confidence first.
	Predict(text string) []types.IntentPrediction
	// Labels returns the intents the unit was trained on.
	Labels() []string
	Marshal() ([]byte, error)
	Unmarshal(b []byte) error
	// Clone returns an independent copy used to warm-start retraining.
	Clone() Net
}

// NetFactory allocates a fresh trainable unit for a language.
type NetFactory func(lang string) Net
