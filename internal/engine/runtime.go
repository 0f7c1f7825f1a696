package engine

import (
	"strings"

	"github.com/rs/zerolog"

	"nlud/pkg/types"
)

// Backend names accepted by Options.Backend.
const (
	BackendBow  = "bow"
	BackendNone = "none"
)

// Options configures the process-wide Runtime.
type Options struct {
	Backend         string
	Languages       []string
	DefaultLanguage string
	Epochs          int
	BatchSize       int
	// NetFactory overrides the backend selected by name when set.
	NetFactory NetFactory
	Logger     zerolog.Logger
}

// Runtime is shared by every bot Engine of the process.
type Runtime struct {
	backend   string
	languages []string
	defLang   string
	newNet    NetFactory
	log       zerolog.Logger
}

// NewRuntime selects the trainable backend and applies defaults.
func NewRuntime(opts Options) *Runtime {
	rt := &Runtime{
		backend:   strings.ToLower(strings.TrimSpace(opts.Backend)),
		languages: append([]string(nil), opts.Languages...),
		defLang:   opts.DefaultLanguage,
		log:       opts.Logger.With().Str("component", "engine").Logger(),
	}
	if rt.backend == "" {
		rt.backend = BackendBow
	}
	if len(rt.languages) == 0 {
		rt.languages = []string{"en"}
	}
	if rt.defLang == "" {
		rt.defLang = rt.languages[0]
	}
	switch {
	case opts.NetFactory != nil:
		rt.newNet = opts.NetFactory
	case rt.backend == BackendBow:
		rt.newNet = BowFactory(opts.Epochs, opts.BatchSize)
	default:
		rt.log.Warn().Str("backend", rt.backend).Msg("no trainable backend, training disabled")
	}
	return rt
}

// Enabled reports whether a trainable backend is available.
func (r *Runtime) Enabled() bool { return r.newNet != nil }

// Languages returns the languages this process can train.
func (r *Runtime) Languages() []string { return append([]string(nil), r.languages...) }

// DefaultLanguage is used when detection finds nothing better.
func (r *Runtime) DefaultLanguage() string { return r.defLang }

// Health reports backend availability independently of any bot.
func (r *Runtime) Health() types.Health {
	h := types.Health{IsEnabled: r.Enabled(), ValidLanguages: []string{}}
	if r.Enabled() {
		h.ValidProvidersCount = 1
		h.ValidLanguages = r.Languages()
	}
	return h
}

// DetectLanguage is a best-effort stop-word heuristic; callers must not rely on accuracy.
func (r *Runtime) DetectLanguage(sentence string) string {
	return detectLanguage(sentence, r.languages, r.defLang)
}

// NewEngine returns an empty Engine bound to botID.
func (r *Runtime) NewEngine(botID string) *Engine {
	return &Engine{
		botID:    botID,
		rt:       r,
		models:   make(map[string]*model),
		training: make(map[string]trainingRef),
		log:      r.log.With().Str("bot", botID).Logger(),
	}
}
