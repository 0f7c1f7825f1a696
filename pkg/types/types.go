package types

import "time"

// TrainingStatus is the lifecycle state of a TrainingSession.
type TrainingStatus string

const (
	// StatusNone is reported for a (bot, language) pair that never had a session.
	StatusNone          TrainingStatus = "none"
	StatusNeedsTraining TrainingStatus = "needs-training"
	StatusQueued        TrainingStatus = "queued"
	StatusTraining      TrainingStatus = "training"
	StatusDone          TrainingStatus = "done"
	StatusCanceled      TrainingStatus = "canceled"
	StatusErrored       TrainingStatus = "errored"
)

// IsTerminal reports whether no further transition can leave the status.
func (s TrainingStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusCanceled || s == StatusErrored
}

// IsActive reports whether the status occupies the single in-flight slot of its key.
func (s TrainingStatus) IsActive() bool {
	return s == StatusQueued || s == StatusTraining
}

// TrainingSession tracks one attempt to (re)train a (bot, language) model.
type TrainingSession struct {
	ID         string         `json:"id,omitempty"`
	BotID      string         `json:"bot_id"`
	Language   string         `json:"language"`
	Status     TrainingStatus `json:"status"`
	Progress   float64        `json:"progress"`
	Error      string         `json:"error,omitempty"`
	QueuedAt   time.Time      `json:"queued_at,omitempty"`
	StartedAt  time.Time      `json:"started_at,omitempty"`
	FinishedAt time.Time      `json:"finished_at,omitempty"`
}

// Prediction is the understanding of one sentence across the requested contexts.
type Prediction struct {
	Language         string                       `json:"language"`
	DetectedLanguage string                       `json:"detected_language"`
	Ms               int64                        `json:"ms"`
	Errored          bool                         `json:"errored"`
	Entities         []EntityMatch                `json:"entities"`
	IncludedContexts []string                     `json:"included_contexts"`
	Predictions      map[string]ContextPrediction `json:"predictions"`
}

// ContextPrediction ranks intents within one context.
type ContextPrediction struct {
	Confidence float64            `json:"confidence"`
	Oos        float64            `json:"oos"`
	Intents    []IntentPrediction `json:"intents"`
}

// IntentPrediction is the confidence of a single intent.
type IntentPrediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// EntityMatch is a list entity occurrence found in a sentence.
type EntityMatch struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}
