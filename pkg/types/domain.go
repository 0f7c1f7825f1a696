package types

import (
	"fmt"
	"strings"
	"time"
)

// BotConfig is the immutable input to mounting a bot.
type BotConfig struct {
	// Stable bot identifier.
	// example: support-bot
	ID string `json:"id" yaml:"id" toml:"id" example:"support-bot"`
	// Languages the bot must serve.
	// example: ["en","fr"]
	Languages []string `json:"languages" yaml:"languages" toml:"languages"`
	// Language used when a request omits one.
	// example: en
	DefaultLanguage string `json:"default_language,omitempty" yaml:"default_language" toml:"default_language" example:"en"`
}

// IntentDefinition is one intent with its training utterances per language.
type IntentDefinition struct {
	Name       string              `json:"name" yaml:"name"`
	Contexts   []string            `json:"contexts" yaml:"contexts"`
	Utterances map[string][]string `json:"utterances" yaml:"utterances"`
	Slots      []SlotDefinition    `json:"slots,omitempty" yaml:"slots,omitempty"`
}

// SlotDefinition binds a named slot of an intent to entity types.
type SlotDefinition struct {
	Name     string   `json:"name" yaml:"name"`
	Entities []string `json:"entities" yaml:"entities"`
}

// EntityDefinition describes a custom entity. Only list entities are extracted.
type EntityDefinition struct {
	Name        string             `json:"name" yaml:"name"`
	Type        string             `json:"type" yaml:"type"`
	Fuzzy       float64            `json:"fuzzy,omitempty" yaml:"fuzzy,omitempty"`
	Occurrences []EntityOccurrence `json:"occurrences,omitempty" yaml:"occurrences,omitempty"`
}

// EntityOccurrence is a canonical value of a list entity and its synonyms.
type EntityOccurrence struct {
	Name     string   `json:"name" yaml:"name"`
	Synonyms []string `json:"synonyms,omitempty" yaml:"synonyms,omitempty"`
}

// ModelData holds the serialized training input and the opaque trained artifact.
type ModelData struct {
	// JSON-encoded []IntentDefinition used for training.
	Input string `json:"input"`
	// Opaque artifact produced by the trainable unit.
	Output string `json:"output"`
}

// Model is the serializable snapshot of a trained model for one language.
type Model struct {
	Hash         string    `json:"hash"`
	LanguageCode string    `json:"language_code"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Data         ModelData `json:"data"`
}

// ModelID builds the version identifier of a model from its language and content hash.
func ModelID(lang, hash string) string { return lang + "." + hash }

// ParseModelID splits a model id into language and hash.
func ParseModelID(id string) (lang, hash string, err error) {
	lang, hash, ok := strings.Cut(id, ".")
	if !ok || lang == "" || hash == "" {
		return "", "", fmt.Errorf("invalid model id %q", id)
	}
	return lang, hash, nil
}

// Health reports whether any trainable backend is available in this process.
type Health struct {
	// example: true
	IsEnabled bool `json:"is_enabled" example:"true"`
	// example: 1
	ValidProvidersCount int `json:"valid_providers_count" example:"1"`
	// example: ["en","fr"]
	ValidLanguages []string `json:"valid_languages"`
}
