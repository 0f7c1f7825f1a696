// Package defs reads bot definitions (intents and entities) from disk and
// reports which languages became dirty when they change.
//
// Layout of a bot directory:
//
//	<bot>/bot.yaml          id, languages, default_language
//	<bot>/intents/*.yaml    one IntentDefinition per file (.yml and .json too)
//	<bot>/entities/*.yaml   one EntityDefinition per file
package defs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"nlud/pkg/types"
)

const (
	botFile     = "bot.yaml"
	intentsDir  = "intents"
	entitiesDir = "entities"
	subBuffer   = 64
)

// Hasher computes the content hash that versions a model.
type Hasher interface {
	ComputeModelHash(intents []types.IntentDefinition, entities []types.EntityDefinition, lang string) string
}

// Options configures a Service.
type Options struct {
	Dir string
	// Languages whose hashes are tracked for dirty notifications.
	Languages []string
	Hasher    Hasher
	Logger    zerolog.Logger
}

// Service serves the definitions of one bot.
type Service struct {
	dir       string
	languages []string
	hasher    Hasher
	log       zerolog.Logger

	mu       sync.RWMutex
	intents  []types.IntentDefinition
	entities []types.EntityDefinition
	hashes   map[string]string

	subMu  sync.Mutex
	subs   map[int]chan string
	nextID int
}

// Open loads the definitions under opts.Dir.
func Open(opts Options) (*Service, error) {
	if opts.Hasher == nil {
		return nil, fmt.Errorf("defs: nil hasher")
	}
	s := &Service{
		dir:       opts.Dir,
		languages: append([]string(nil), opts.Languages...),
		hasher:    opts.Hasher,
		log:       opts.Logger.With().Str("component", "defs").Str("dir", opts.Dir).Logger(),
		hashes:    make(map[string]string),
		subs:      make(map[int]chan string),
	}
	intents, entities, err := readDefinitions(opts.Dir)
	if err != nil {
		return nil, err
	}
	s.intents, s.entities = intents, entities
	for _, lang := range s.languages {
		s.hashes[lang] = s.hashLocked(lang)
	}
	return s, nil
}

// Dir returns the bot directory.
func (s *Service) Dir() string { return s.dir }

// Definitions returns the intents that have utterances for lang, trimmed to
// the utterances of lang, and all entities.
func (s *Service) Definitions(lang string) ([]types.IntentDefinition, []types.EntityDefinition) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.definitionsLocked(lang)
}

func (s *Service) definitionsLocked(lang string) ([]types.IntentDefinition, []types.EntityDefinition) {
	var out []types.IntentDefinition
	for _, in := range s.intents {
		us := in.Utterances[lang]
		if len(us) == 0 {
			continue
		}
		in.Utterances = map[string][]string{lang: slices.Clone(us)}
		out = append(out, in)
	}
	ents := append([]types.EntityDefinition(nil), s.entities...)
	return out, ents
}

func (s *Service) hashLocked(lang string) string {
	intents, entities := s.definitionsLocked(lang)
	return s.hasher.ComputeModelHash(intents, entities, lang)
}

// LatestModelID returns the id of the model matching the current definitions.
func (s *Service) LatestModelID(_ context.Context, lang string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.ModelID(lang, s.hashLocked(lang)), nil
}

// Subscribe returns a channel of dirty languages and a func that releases
// the subscription and closes the channel.
func (s *Service) Subscribe() (<-chan string, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan string, subBuffer)
	s.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (s *Service) Subscribers() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subs)
}

// Refresh rereads the definitions and notifies subscribers of every tracked
// language whose hash changed. It returns those languages.
func (s *Service) Refresh() ([]string, error) {
	intents, entities, err := readDefinitions(s.dir)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.intents, s.entities = intents, entities
	var dirty []string
	for _, lang := range s.languages {
		h := s.hashLocked(lang)
		if h != s.hashes[lang] {
			s.hashes[lang] = h
			dirty = append(dirty, lang)
		}
	}
	s.mu.Unlock()

	for _, lang := range dirty {
		s.log.Info().Str("event", "model_dirty").Str("lang", lang).Msg("definitions changed")
		s.notify(lang)
	}
	return dirty, nil
}

func (s *Service) notify(lang string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- lang:
		default:
			s.log.Warn().Str("lang", lang).Msg("dirty subscriber full, dropping notification")
		}
	}
}

func readDefinitions(dir string) ([]types.IntentDefinition, []types.EntityDefinition, error) {
	var intents []types.IntentDefinition
	if err := readDir(filepath.Join(dir, intentsDir), func() any {
		intents = append(intents, types.IntentDefinition{})
		return &intents[len(intents)-1]
	}); err != nil {
		return nil, nil, err
	}
	var entities []types.EntityDefinition
	if err := readDir(filepath.Join(dir, entitiesDir), func() any {
		entities = append(entities, types.EntityDefinition{})
		return &entities[len(entities)-1]
	}); err != nil {
		return nil, nil, err
	}
	sort.Slice(intents, func(i, j int) bool { return intents[i].Name < intents[j].Name })
	sort.Slice(entities, func(i, j int) bool { return entities[i].Name < entities[j].Name })
	return intents, entities, nil
}

// readDir decodes every definition file of dir into the value returned by
// next. A missing directory yields nothing.
func readDir(dir string, next func() any) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !isDefinitionFile(e.Name()) {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if err := decodeFile(p, next()); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func isDefinitionFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return !strings.HasPrefix(name, ".")
	}
	return false
}

func decodeFile(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return json.Unmarshal(b, v)
	}
	return yaml.Unmarshal(b, v)
}
