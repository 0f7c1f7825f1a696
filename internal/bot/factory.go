package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"nlud/internal/defs"
	"nlud/internal/engine"
	"nlud/internal/modelstore"
	"nlud/pkg/types"
)

// EngineFactory builds bots whose definitions live under BotsDir/<id>.
type EngineFactory struct {
	Runtime *engine.Runtime
	// Store is shared by every bot; each bot sees its own namespace.
	Store   modelstore.Store
	BotsDir string
	// Watch enables reloading definitions on file changes while mounted.
	Watch    bool
	Debounce time.Duration
	Logger   zerolog.Logger
}

func (f *EngineFactory) MakeBot(_ context.Context, cfg types.BotConfig) (*Bot, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("bot config: empty id")
	}
	if len(cfg.Languages) == 0 {
		return nil, fmt.Errorf("bot %s: no languages", cfg.ID)
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = cfg.Languages[0]
	}
	if !slices.Contains(cfg.Languages, cfg.DefaultLanguage) {
		return nil, fmt.Errorf("bot %s: default language %q not in languages", cfg.ID, cfg.DefaultLanguage)
	}
	dir := filepath.Join(f.BotsDir, cfg.ID)
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("bot %s: no definitions at %s", cfg.ID, dir)
	}

	log := f.Logger.With().Str("component", "bot").Str("bot", cfg.ID).Logger()
	for _, lang := range cfg.Languages {
		if !slices.Contains(f.Runtime.Languages(), lang) {
			log.Warn().Str("lang", lang).Msg("language not supported by the runtime, language detection will not pick it")
		}
	}

	eng := f.Runtime.NewEngine(cfg.ID)
	svc, err := defs.Open(defs.Options{Dir: dir, Languages: cfg.Languages, Hasher: eng, Logger: f.Logger})
	if err != nil {
		return nil, err
	}
	models := modelstore.Scoped(f.Store, cfg.ID)

	var p Predictor = disabledBot{}
	if f.Runtime.Enabled() {
		p = &engineBot{
			cfg:      cfg,
			eng:      eng,
			defs:     svc,
			models:   models,
			watch:    f.Watch,
			debounce: f.Debounce,
			log:      log,
		}
	}
	return &Bot{Config: cfg, Predictor: p, Versioning: svc, Models: models}, nil
}
