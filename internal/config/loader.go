package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by FromEnv.
const EnvPrefix = "NLUD_"

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by WithDefaults.
type Config struct {
	Addr      string   `json:"addr" yaml:"addr" toml:"addr" env:"ADDR"`
	BotsDir   string   `json:"bots_dir" yaml:"bots_dir" toml:"bots_dir" env:"BOTS_DIR"`
	Languages []string `json:"languages" yaml:"languages" toml:"languages" env:"LANGUAGES"`

	Engine     EngineConfig     `json:"engine" yaml:"engine" toml:"engine" envPrefix:"ENGINE_"`
	Training   TrainingConfig   `json:"training" yaml:"training" toml:"training" envPrefix:"TRAINING_"`
	ModelStore ModelStoreConfig `json:"model_store" yaml:"model_store" toml:"model_store" envPrefix:"MODEL_STORE_"`
	Redis      RedisConfig      `json:"redis" yaml:"redis" toml:"redis" envPrefix:"REDIS_"`
	Log        LogConfig        `json:"log" yaml:"log" toml:"log" envPrefix:"LOG_"`
	CORS       CORSConfig       `json:"cors" yaml:"cors" toml:"cors" envPrefix:"CORS_"`
	HTTP       HTTPConfig       `json:"http" yaml:"http" toml:"http" envPrefix:"HTTP_"`
}

type EngineConfig struct {
	// Backend is "bow" or "none".
	Backend         string `json:"backend" yaml:"backend" toml:"backend" env:"BACKEND"`
	DefaultLanguage string `json:"default_language" yaml:"default_language" toml:"default_language" env:"DEFAULT_LANGUAGE"`
	Epochs          int    `json:"epochs" yaml:"epochs" toml:"epochs" env:"EPOCHS"`
	// BatchSize is also the cancellation granularity of a training run.
	BatchSize int `json:"batch_size" yaml:"batch_size" toml:"batch_size" env:"BATCH_SIZE"`
}

type TrainingConfig struct {
	Workers int `json:"workers" yaml:"workers" toml:"workers" env:"WORKERS"`
	// AutoTrainSchedule is a cron spec; empty disables auto-training.
	AutoTrainSchedule string `json:"auto_train_schedule" yaml:"auto_train_schedule" toml:"auto_train_schedule" env:"AUTO_TRAIN_SCHEDULE"`
	ModelsToKeep      int    `json:"models_to_keep" yaml:"models_to_keep" toml:"models_to_keep" env:"MODELS_TO_KEEP"`
	// DisableWatch stops reloading bot definitions on file changes.
	DisableWatch bool `json:"disable_watch" yaml:"disable_watch" toml:"disable_watch" env:"DISABLE_WATCH"`
}

type ModelStoreConfig struct {
	// Driver is "memory", "file" or "sqlite".
	Driver    string `json:"driver" yaml:"driver" toml:"driver" env:"DRIVER"`
	Path      string `json:"path" yaml:"path" toml:"path" env:"PATH"`
	CacheSize int    `json:"cache_size" yaml:"cache_size" toml:"cache_size" env:"CACHE_SIZE"`
}

// RedisConfig enables cross-replica events when Addr is set.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr" toml:"addr" env:"ADDR"`
	Password string `json:"password" yaml:"password" toml:"password" env:"PASSWORD"`
	DB       int    `json:"db" yaml:"db" toml:"db" env:"DB"`
	Channel  string `json:"channel" yaml:"channel" toml:"channel" env:"CHANNEL"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level" env:"LEVEL"`
	Format string `json:"format" yaml:"format" toml:"format" env:"FORMAT"`
}

type CORSConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled" toml:"enabled" env:"ENABLED"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins" env:"ALLOWED_ORIGINS"`
	AllowedMethods []string `json:"allowed_methods" yaml:"allowed_methods" toml:"allowed_methods" env:"ALLOWED_METHODS"`
	AllowedHeaders []string `json:"allowed_headers" yaml:"allowed_headers" toml:"allowed_headers" env:"ALLOWED_HEADERS"`
}

type HTTPConfig struct {
	// MaxBodyBytes caps JSON request bodies; zero keeps the 1 MiB default.
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	// MountTimeoutSeconds bounds POST /bots; zero means no extra timeout.
	MountTimeoutSeconds int `json:"mount_timeout_seconds" yaml:"mount_timeout_seconds" toml:"mount_timeout_seconds" env:"MOUNT_TIMEOUT_SECONDS"`
}

// MountTimeout returns MountTimeoutSeconds as a duration.
func (c HTTPConfig) MountTimeout() time.Duration {
	return time.Duration(c.MountTimeoutSeconds) * time.Second
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// FromEnv overlays NLUD_* environment variables onto cfg. Unset variables
// leave the corresponding field untouched.
func FromEnv(cfg *Config) error {
	return env.Parse(cfg, env.Options{Prefix: EnvPrefix})
}
