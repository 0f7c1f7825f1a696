package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"nlud/internal/app"
	"nlud/internal/bot"
	"nlud/internal/engine"
	"nlud/internal/events"
	"nlud/internal/httpapi"
	"nlud/internal/modelstore"
	"nlud/internal/queue"
	"nlud/pkg/types"
)

// createBotsDir writes one bot directory per id with a small two-language corpus.
func createBotsDir(t *testing.T, ids ...string) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"bot.yaml": "languages: [en, fr]\n",
		"intents/book.yaml": `name: book_flight
contexts: [global]
utterances:
  en: ["book a flight", "I want to fly to Paris", "get me a plane ticket"]
  fr: ["réserver un vol", "je veux prendre l'avion"]
`,
		"intents/greet.yaml": `name: greet
contexts: [global]
utterances:
  en: ["hello", "hi there", "good morning"]
  fr: ["bonjour", "salut"]
`,
	}
	for _, id := range ids {
		for name, body := range files {
			p := filepath.Join(root, id, name)
			if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
				t.Fatalf("mkdir %s: %v", p, err)
			}
			if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
				t.Fatalf("write %s: %v", p, err)
			}
		}
	}
	return root
}

type stack struct {
	srv    *httptest.Server
	app    *app.Application
	store  modelstore.Store
	events *events.MemoryPublisher
}

// newStack wires the real runtime, queue and application behind the HTTP API.
func newStack(t *testing.T, botsDir string, store modelstore.Store) *stack {
	t.Helper()
	if store == nil {
		var err error
		if store, err = modelstore.NewMemoryStore(0); err != nil {
			t.Fatalf("store: %v", err)
		}
	}
	log := zerolog.Nop()
	pub := events.NewMemoryPublisher()
	rt := engine.NewRuntime(engine.Options{Languages: []string{"en", "fr"}, Epochs: 20, Logger: log})
	q := queue.New(nil, queue.Options{Workers: 2, Logger: log, Publisher: pub})
	a := app.New(app.Deps{
		Queue:        q,
		Health:       rt,
		Factory:      &bot.EngineFactory{Runtime: rt, Store: store, BotsDir: botsDir, Logger: log},
		Publisher:    pub,
		ModelsToKeep: 2,
		Logger:       log,
	})
	q.SetRunner(a.Trainer())
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	srv := httptest.NewServer(httpapi.NewMux(a))
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Teardown(ctx)
	})
	return &stack{srv: srv, app: a, store: store, events: pub}
}

func httpDo(t *testing.T, method, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, body)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func (s *stack) mount(t *testing.T, id string) {
	t.Helper()
	resp, body := httpDo(t, http.MethodPost, s.srv.URL+"/bots", []byte(`{"id":"`+id+`","languages":["en","fr"]}`))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("mount %s: %d %s", id, resp.StatusCode, string(body))
	}
}

// waitTraining polls the training endpoint until the session reaches a terminal status.
func (s *stack) waitTraining(t *testing.T, botID, lang string) types.TrainingSession {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, body := httpDo(t, http.MethodGet, s.srv.URL+"/bots/"+botID+"/trainings/"+lang, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("get training: %d %s", resp.StatusCode, string(body))
		}
		var sess types.TrainingSession
		if err := json.Unmarshal(body, &sess); err != nil {
			t.Fatalf("training json: %v body=%s", err, string(body))
		}
		if sess.Status.IsTerminal() {
			return sess
		}
		if time.Now().After(deadline) {
			t.Fatalf("training %s/%s did not finish; last=%+v", botID, lang, sess)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func (s *stack) predict(t *testing.T, botID, text, lang string) (int, types.Prediction) {
	t.Helper()
	payload, _ := json.Marshal(types.PredictRequest{Text: text, Language: lang})
	resp, body := httpDo(t, http.MethodPost, s.srv.URL+"/bots/"+botID+"/predict", payload)
	var pred types.Prediction
	if resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(body, &pred); err != nil {
			t.Fatalf("predict json: %v body=%s", err, string(body))
		}
	}
	return resp.StatusCode, pred
}
