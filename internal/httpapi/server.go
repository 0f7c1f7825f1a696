package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nlud/internal/bot"
	"nlud/pkg/types"
)

// Service is the subset of the application the HTTP layer drives.
type Service interface {
	Ready() bool
	GetHealth() types.Health
	GetTraining(botID, lang string) types.TrainingSession
	GetAllTrainings() []types.TrainingSession
	HasBot(botID string) bool
	GetBot(botID string) (bot.Predictor, error)
	ListBots() []types.BotConfig
	MountBot(ctx context.Context, cfg types.BotConfig) error
	UnmountBot(ctx context.Context, botID string) error
	QueueTraining(botID, lang string) (types.TrainingSession, error)
	CancelTraining(botID, lang string) error
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.GetHealth())
	})

	r.Get("/trainings", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.TrainingsResponse{Trainings: svc.GetAllTrainings()})
	})

	r.Route("/bots", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, types.BotsResponse{Bots: svc.ListBots()})
		})
		r.Post("/", mountHandler(svc))

		r.Route("/{botID}", func(r chi.Router) {
			r.Delete("/", func(w http.ResponseWriter, r *http.Request) {
				start := time.Now()
				ctx, cancel := joinContexts(serverBaseCtx, r.Context())
				defer cancel()
				if err := svc.UnmountBot(ctx, chi.URLParam(r, "botID")); err != nil {
					fail(w, r, "unmount", start, err)
					return
				}
				logRequest(r, "unmount", http.StatusNoContent, start, nil)
				w.WriteHeader(http.StatusNoContent)
			})

			r.Get("/trainings/{lang}", func(w http.ResponseWriter, r *http.Request) {
				botID := chi.URLParam(r, "botID")
				if !svc.HasBot(botID) {
					writeJSONError(w, http.StatusNotFound, "bot not mounted: "+botID)
					return
				}
				writeJSON(w, http.StatusOK, svc.GetTraining(botID, chi.URLParam(r, "lang")))
			})

			r.Post("/trainings/{lang}", func(w http.ResponseWriter, r *http.Request) {
				start := time.Now()
				s, err := svc.QueueTraining(chi.URLParam(r, "botID"), chi.URLParam(r, "lang"))
				if err != nil {
					fail(w, r, "queue_training", start, err)
					return
				}
				logRequest(r, "queue_training", http.StatusAccepted, start, nil)
				writeJSON(w, http.StatusAccepted, s)
			})

			r.Delete("/trainings/{lang}", func(w http.ResponseWriter, r *http.Request) {
				start := time.Now()
				if err := svc.CancelTraining(chi.URLParam(r, "botID"), chi.URLParam(r, "lang")); err != nil {
					fail(w, r, "cancel_training", start, err)
					return
				}
				logRequest(r, "cancel_training", http.StatusNoContent, start, nil)
				w.WriteHeader(http.StatusNoContent)
			})

			r.Post("/predict", predictHandler(svc))
		})
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

func mountHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		var cfg types.BotConfig
		if !decodeJSON(w, r, &cfg) {
			return
		}
		if strings.TrimSpace(cfg.ID) == "" {
			writeJSONError(w, http.StatusBadRequest, "id is required")
			return
		}
		if len(cfg.Languages) == 0 {
			writeJSONError(w, http.StatusBadRequest, "languages are required")
			return
		}
		// Join server base context with request context so shutdown cancels work too.
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if mountTimeout > 0 {
			var tcancel context.CancelFunc
			ctx, tcancel = context.WithTimeout(ctx, mountTimeout)
			defer tcancel()
		}
		if err := svc.MountBot(ctx, cfg); err != nil {
			fail(w, r, "mount", start, err)
			return
		}
		logRequest(r, "mount", http.StatusCreated, start, nil)
		writeJSON(w, http.StatusCreated, cfg)
	}
}

func predictHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		var req types.PredictRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			writeJSONError(w, http.StatusBadRequest, "text is required")
			return
		}
		p, err := svc.GetBot(chi.URLParam(r, "botID"))
		if err != nil {
			fail(w, r, "predict", start, err)
			return
		}
		pred, err := p.Predict(r.Context(), req.Text, req.Contexts, req.Language)
		if err != nil {
			if r.Context().Err() != nil {
				return
			}
			fail(w, r, "predict", start, err)
			return
		}
		logRequest(r, "predict", http.StatusOK, start, nil)
		writeJSON(w, http.StatusOK, pred)
	}
}

// decodeJSON enforces the content type and body limit, writing a 4xx on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Size overruns surface as 400 too, to avoid leaking the limit.
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func fail(w http.ResponseWriter, r *http.Request, op string, start time.Time, err error) {
	status := statusFor(err)
	logRequest(r, op, status, start, err)
	writeJSONError(w, status, err.Error())
}
