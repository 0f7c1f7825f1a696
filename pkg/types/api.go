package types

// PredictRequest is the payload of POST /bots/{botID}/predict.
type PredictRequest struct {
	// Sentence to understand.
	// example: I want to book a flight
	Text string `json:"text" example:"I want to book a flight"`
	// Contexts to rank intents in. Empty means every context of the model;
	// intents that list no context belong to "global".
	// example: ["global"]
	Contexts []string `json:"contexts,omitempty"`
	// Language of the sentence. Empty triggers language detection.
	// example: en
	Language string `json:"language,omitempty" example:"en"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: bot not mounted: support-bot
	Error string `json:"error" example:"bot not mounted: support-bot"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}

// TrainingsResponse wraps the sessions returned by GET /trainings.
type TrainingsResponse struct {
	Trainings []TrainingSession `json:"trainings"`
}

// BotsResponse wraps the mounted bot configs returned by GET /bots.
type BotsResponse struct {
	Bots []BotConfig `json:"bots"`
}
