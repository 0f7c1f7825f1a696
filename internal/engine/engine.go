package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nlud/pkg/types"
)

const (
	artifactVersion = 1
	globalContext   = "global"
)

type model struct {
	hash       string
	lang       string
	startedAt  time.Time
	finishedAt time.Time
	input      []types.IntentDefinition
	entities   []types.EntityDefinition
	net        Net
}

type trainingRef struct {
	lang   string
	cancel context.CancelFunc
}

// artifact is the envelope stored in Model.Data.Output.
type artifact struct {
	Version  int                      `json:"version"`
	Net      json.RawMessage          `json:"net"`
	Entities []types.EntityDefinition `json:"entities,omitempty"`
}

// Engine holds the models of a single bot, at most one per language.
type Engine struct {
	botID string
	rt    *Runtime
	log   zerolog.Logger

	mu       sync.RWMutex
	models   map[string]*model
	training map[string]trainingRef
}

// TrainOptions tunes a single training run.
type TrainOptions struct {
	Progress func(float64)
}

// ComputeModelHash digests the canonical JSON of the inputs plus the bot id.
// encoding/json sorts map keys, so equal inputs always encode identically.
func (e *Engine) ComputeModelHash(intents []types.IntentDefinition, entities []types.EntityDefinition, lang string) string {
	payload := struct {
		Intents  []types.IntentDefinition `json:"intents"`
		Entities []types.EntityDefinition `json:"entities"`
		Lang     string                   `json:"lang"`
		BotID    string                   `json:"botId"`
	}{intents, entities, lang, e.botID}
	b, _ := json.Marshal(payload)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Train fits a model for lang and installs it once training succeeds. It
// returns (nil, nil) without side effects when intents is empty. The run is
// tagged with sessionID so CancelTraining can reach it.
func (e *Engine) Train(ctx context.Context, sessionID string, intents []types.IntentDefinition, entities []types.EntityDefinition, lang string, opts TrainOptions) (*types.Model, error) {
	if len(intents) == 0 {
		return nil, nil
	}
	if !e.rt.Enabled() {
		return nil, ErrBackendUnavailable
	}
	e.log.Debug().Str("event", "train_start").Str("lang", lang).Str("session", sessionID).Msg("training started")

	e.mu.RLock()
	prev := e.models[lang]
	e.mu.RUnlock()
	var net Net
	if prev != nil && sameIntentNames(prev.input, intents) {
		net = prev.net.Clone()
	} else {
		net = e.rt.newNet(lang)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.mu.Lock()
	e.training[sessionID] = trainingRef{lang: lang, cancel: cancel}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.training, sessionID)
		e.mu.Unlock()
	}()

	startedAt := time.Now().UTC()
	if err := net.Train(ctx, buildSamples(intents, lang), opts.Progress); err != nil {
		return nil, err
	}
	finishedAt := time.Now().UTC()

	netBytes, err := net.Marshal()
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(artifact{Version: artifactVersion, Net: netBytes, Entities: entities})
	if err != nil {
		return nil, err
	}
	in, err := json.Marshal(intents)
	if err != nil {
		return nil, err
	}
	hash := e.ComputeModelHash(intents, entities, lang)

	e.mu.Lock()
	e.models[lang] = &model{
		hash:       hash,
		lang:       lang,
		startedAt:  startedAt,
		finishedAt: finishedAt,
		input:      intents,
		entities:   entities,
		net:        net,
	}
	e.mu.Unlock()
	e.log.Info().Str("event", "train_done").Str("lang", lang).Str("session", sessionID).
		Dur("dur", finishedAt.Sub(startedAt)).Msg("training finished")

	return &types.Model{
		Hash:         hash,
		LanguageCode: lang,
		StartedAt:    startedAt,
		FinishedAt:   finishedAt,
		Data:         types.ModelData{Input: string(in), Output: string(out)},
	}, nil
}

// CancelTraining signals the run tagged with sessionID. Unknown ids are ignored.
func (e *Engine) CancelTraining(sessionID string) {
	e.mu.RLock()
	ref, ok := e.training[sessionID]
	e.mu.RUnlock()
	if !ok {
		return
	}
	e.log.Info().Str("event", "train_cancel").Str("lang", ref.lang).Str("session", sessionID).Msg("training cancel requested")
	ref.cancel()
}

// HasModel reports whether the model loaded for language has exactly hash.
func (e *Engine) HasModel(language, hash string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.models[language]
	return ok && m.hash == hash
}

// HasModelForLang reports whether any model is loaded for language.
func (e *Engine) HasModelForLang(language string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.models[language]
	return ok
}

// LoadModel installs a serialized model. On any failure the error is logged
// and returned, and the previously loaded model (if any) stays in place.
func (e *Engine) LoadModel(serialized *types.Model) error {
	m, err := e.decode(serialized)
	if err != nil {
		e.log.Error().Err(err).Str("event", "load_error").Msg("error loading model")
		return err
	}
	e.mu.Lock()
	e.models[m.lang] = m
	e.mu.Unlock()
	e.log.Debug().Str("event", "load_done").Str("lang", m.lang).Str("hash", m.hash).Msg("model loaded")
	return nil
}

func (e *Engine) decode(s *types.Model) (*model, error) {
	if s == nil {
		return nil, errInvalidModel("no model")
	}
	if s.LanguageCode == "" {
		return nil, errInvalidModel("missing language code")
	}
	if !e.rt.Enabled() {
		return nil, ErrBackendUnavailable
	}
	var input []types.IntentDefinition
	if err := json.Unmarshal([]byte(s.Data.Input), &input); err != nil {
		return nil, errInvalidModel("input: %v", err)
	}
	var art artifact
	if err := json.Unmarshal([]byte(s.Data.Output), &art); err != nil {
		return nil, errInvalidModel("output: %v", err)
	}
	if art.Version != artifactVersion {
		return nil, errInvalidModel("unsupported artifact version %d", art.Version)
	}
	net := e.rt.newNet(s.LanguageCode)
	if err := net.Unmarshal(art.Net); err != nil {
		return nil, errInvalidModel("net: %v", err)
	}
	return &model{
		hash:       s.Hash,
		lang:       s.LanguageCode,
		startedAt:  s.StartedAt,
		finishedAt: s.FinishedAt,
		input:      input,
		entities:   art.Entities,
		net:        net,
	}, nil
}

// DetectLanguage delegates to the runtime heuristic.
func (e *Engine) DetectLanguage(sentence string) string { return e.rt.DetectLanguage(sentence) }

// Predict ranks intents for sentence in every requested context. A context
// that no intent covers still gets an entry, with zero confidence. When
// contexts is empty every context known to the model is used.
func (e *Engine) Predict(sentence string, contexts []string, language string) (types.Prediction, error) {
	start := time.Now()
	e.mu.RLock()
	m, ok := e.models[language]
	e.mu.RUnlock()
	if !ok {
		return types.Prediction{}, ErrModelNotLoaded(language)
	}
	if len(contexts) == 0 {
		contexts = modelContexts(m.input)
	}

	ranked := m.net.Predict(sentence)
	byContext := make(map[string]map[string]struct{})
	for _, in := range m.input {
		for _, c := range intentContexts(in) {
			if byContext[c] == nil {
				byContext[c] = map[string]struct{}{}
			}
			byContext[c][in.Name] = struct{}{}
		}
	}

	preds := make(map[string]types.ContextPrediction, len(contexts))
	for _, c := range contexts {
		members := byContext[c]
		intents := []types.IntentPrediction{}
		total := 0.0
		for _, p := range ranked {
			if _, in := members[p.Label]; in {
				intents = append(intents, p)
				total += p.Confidence
			}
		}
		cp := types.ContextPrediction{Oos: 1, Intents: intents}
		if total > 0 {
			for i := range intents {
				intents[i].Confidence /= total
			}
			cp.Confidence = intents[0].Confidence
			cp.Oos = 1 - cp.Confidence
		}
		preds[c] = cp
	}

	return types.Prediction{
		Language:         language,
		DetectedLanguage: e.DetectLanguage(sentence),
		Ms:               time.Since(start).Milliseconds(),
		Entities:         extractListEntities(sentence, m.entities),
		IncludedContexts: contexts,
		Predictions:      preds,
	}, nil
}

func buildSamples(intents []types.IntentDefinition, lang string) []Sample {
	var out []Sample
	for _, in := range intents {
		for _, u := range in.Utterances[lang] {
			out = append(out, Sample{Intent: in.Name, Text: u})
		}
	}
	return out
}

func intentNames(intents []types.IntentDefinition) []string {
	seen := make(map[string]struct{}, len(intents))
	out := make([]string, 0, len(intents))
	for _, in := range intents {
		if _, ok := seen[in.Name]; ok {
			continue
		}
		seen[in.Name] = struct{}{}
		out = append(out, in.Name)
	}
	sort.Strings(out)
	return out
}

func sameIntentNames(a, b []types.IntentDefinition) bool {
	na, nb := intentNames(a), intentNames(b)
	if len(na) != len(nb) {
		return false
	}
	for i := range na {
		if na[i] != nb[i] {
			return false
		}
	}
	return true
}

func modelContexts(intents []types.IntentDefinition) []string {
	set := map[string]struct{}{}
	for _, in := range intents {
		for _, c := range intentContexts(in) {
			set[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// intentContexts returns the contexts of in, "global" when it lists none.
func intentContexts(in types.IntentDefinition) []string {
	if len(in.Contexts) == 0 {
		return []string{globalContext}
	}
	return in.Contexts
}
