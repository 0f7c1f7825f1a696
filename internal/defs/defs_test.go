package defs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlud/pkg/types"
)

type jsonHasher struct{}

func (jsonHasher) ComputeModelHash(intents []types.IntentDefinition, entities []types.EntityDefinition, lang string) string {
	b, _ := json.Marshal([]any{intents, entities, lang})
	return string(b)
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func botDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "travel")
	writeFile(t, filepath.Join(dir, "bot.yaml"), "languages: [en, fr]\n")
	writeFile(t, filepath.Join(dir, "intents", "book.yaml"), `name: book_flight
contexts: [travel]
utterances:
  en: ["book a flight", "I want to fly"]
  fr: ["réserver un vol"]
`)
	writeFile(t, filepath.Join(dir, "intents", "greet.json"),
		`{"name":"greet","contexts":["global"],"utterances":{"en":["hello","hi"]}}`)
	writeFile(t, filepath.Join(dir, "entities", "city.yml"), `name: city
type: list
occurrences:
  - name: Paris
    synonyms: [paname]
`)
	writeFile(t, filepath.Join(dir, "intents", "notes.txt"), "ignored")
	return dir
}

func open(t *testing.T, dir string) *Service {
	t.Helper()
	s, err := Open(Options{Dir: dir, Languages: []string{"en", "fr"}, Hasher: jsonHasher{}, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return s
}

func TestDefinitionsFilterByLanguage(t *testing.T) {
	s := open(t, botDir(t))

	en, ents := s.Definitions("en")
	require.Len(t, en, 2)
	assert.Equal(t, "book_flight", en[0].Name)
	assert.Equal(t, "greet", en[1].Name)
	require.Len(t, ents, 1)
	assert.Equal(t, "Paris", ents[0].Occurrences[0].Name)

	fr, _ := s.Definitions("fr")
	require.Len(t, fr, 1)
	assert.Equal(t, "book_flight", fr[0].Name)

	de, _ := s.Definitions("de")
	assert.Empty(t, de)
}

func TestLatestModelIDStable(t *testing.T) {
	dir := botDir(t)
	a, b := open(t, dir), open(t, dir)
	idA, err := a.LatestModelID(context.Background(), "en")
	require.NoError(t, err)
	idB, err := b.LatestModelID(context.Background(), "en")
	require.NoError(t, err)
	assert.Equal(t, idA, idB)

	lang, _, err := types.ParseModelID(idA)
	require.NoError(t, err)
	assert.Equal(t, "en", lang)
}

func TestRefreshNotifiesChangedLanguagesOnly(t *testing.T) {
	dir := botDir(t)
	s := open(t, dir)
	ch, unsubscribe := s.Subscribe()

	dirty, err := s.Refresh()
	require.NoError(t, err)
	assert.Empty(t, dirty)

	writeFile(t, filepath.Join(dir, "intents", "greet.json"),
		`{"name":"greet","contexts":["global"],"utterances":{"en":["hello","hi","hey"]}}`)
	dirty, err = s.Refresh()
	require.NoError(t, err)
	assert.Equal(t, []string{"en"}, dirty)
	assert.Equal(t, "en", <-ch)

	unsubscribe()
	unsubscribe()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, s.Subscribers())
}

func TestRefreshOtherLanguageUtterancesKeepModelID(t *testing.T) {
	dir := botDir(t)
	s := open(t, dir)
	enBefore, err := s.LatestModelID(context.Background(), "en")
	require.NoError(t, err)

	writeFile(t, filepath.Join(dir, "intents", "book.yaml"), `name: book_flight
contexts: [travel]
utterances:
  en: ["book a flight", "I want to fly"]
  fr: ["réserver un vol", "je veux prendre l'avion"]
`)
	dirty, err := s.Refresh()
	require.NoError(t, err)
	assert.Equal(t, []string{"fr"}, dirty)

	enAfter, err := s.LatestModelID(context.Background(), "en")
	require.NoError(t, err)
	assert.Equal(t, enBefore, enAfter)

	fr, _ := s.Definitions("fr")
	require.Len(t, fr, 1)
	assert.NotContains(t, fr[0].Utterances, "en")
}

func TestRefreshEntityChangeDirtiesEveryLanguage(t *testing.T) {
	dir := botDir(t)
	s := open(t, dir)
	require.NoError(t, os.Remove(filepath.Join(dir, "entities", "city.yml")))
	dirty, err := s.Refresh()
	require.NoError(t, err)
	assert.Equal(t, []string{"en", "fr"}, dirty)
}

func TestInvalidDefinitionFile(t *testing.T) {
	dir := botDir(t)
	writeFile(t, filepath.Join(dir, "intents", "bad.json"), "{")
	_, err := Open(Options{Dir: dir, Hasher: jsonHasher{}})
	assert.ErrorContains(t, err, "bad.json")
}

func TestWatchRefreshesOnChange(t *testing.T) {
	dir := botDir(t)
	s := open(t, dir)
	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx, 20*time.Millisecond) }()
	// give the watcher time to register
	time.Sleep(50 * time.Millisecond)

	writeFile(t, filepath.Join(dir, "intents", "bye.yaml"), "name: bye\nutterances:\n  fr: [\"au revoir\"]\n")
	select {
	case lang := <-ch:
		assert.Equal(t, "fr", lang)
	case <-time.After(3 * time.Second):
		t.Fatal("no dirty notification")
	}
	cancel()
	require.NoError(t, <-done)
}

func TestLoadBotConfigs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "zeta", "bot.yaml"), "id: zeta\nlanguages: [fr]\n")
	writeFile(t, filepath.Join(root, "alpha", "bot.yaml"), "languages: [en, de]\ndefault_language: de\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "not-a-bot"), 0o755))

	cfgs, err := LoadBotConfigs(root)
	require.NoError(t, err)
	require.Len(t, cfgs, 2)
	assert.Equal(t, types.BotConfig{ID: "alpha", Languages: []string{"en", "de"}, DefaultLanguage: "de"}, cfgs[0])
	assert.Equal(t, types.BotConfig{ID: "zeta", Languages: []string{"fr"}, DefaultLanguage: "fr"}, cfgs[1])
}

func TestLoadBotConfigWithoutLanguages(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "empty")
	writeFile(t, filepath.Join(dir, "bot.yaml"), "id: empty\n")
	_, err := LoadBotConfig(dir)
	assert.Error(t, err)
}
