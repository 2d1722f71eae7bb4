package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tunerd/internal/lora"
	"tunerd/internal/model"
	"tunerd/internal/trainer"
	"tunerd/pkg/types"
)

// TrainService is the training surface the HTTP layer needs.
type TrainService interface {
	Start(ctx context.Context, req types.TrainRequest, sink trainer.EventFunc) (*trainer.Result, error)
	Cancel() error
	Status() types.TrainStatus
}

// AdapterStore is the adapter persistence surface the HTTP layer needs.
type AdapterStore interface {
	List() []types.AdapterSummary
	Load(id string) (*lora.Adapter, error)
	Delete(id string) error
}

// IdentityService resolves upstream identities for local model artifacts.
type IdentityService interface {
	Resolve(ctx context.Context, modelPath string) (*types.ModelIdentity, error)
}

// Options tunes the HTTP server; zero values get sensible defaults.
type Options struct {
	// Directory scanned for base models.
	ModelsDir string
	// Maximum request body for JSON endpoints; default 1 MiB.
	MaxBodyBytes int64
	// Process-level context; its cancellation aborts in-flight training
	// streams on shutdown.
	BaseContext context.Context
	// CORS allowed origins; empty disables CORS handling.
	CORSOrigins []string
	Log         zerolog.Logger
}

// Server holds the HTTP API's collaborators.
type Server struct {
	store       AdapterStore
	trainer     TrainService
	ids         IdentityService
	modelsDir   string
	maxBody     int64
	baseCtx     context.Context
	corsOrigins []string
	log         zerolog.Logger
}

// NewServer wires the API around its services.
func NewServer(st AdapterStore, tr TrainService, ids IdentityService, opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	return &Server{
		store:       st,
		trainer:     tr,
		ids:         ids,
		modelsDir:   opts.ModelsDir,
		maxBody:     opts.MaxBodyBytes,
		baseCtx:     opts.BaseContext,
		corsOrigins: opts.CORSOrigins,
		log:         opts.Log,
	}
}

// Routes builds the chi router with all endpoints and middleware.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	// Restricted to plain JSON; the NDJSON training stream must not be
	// buffered by a compressor.
	r.Use(middleware.Compress(5, "application/json"))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if len(s.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))
	}

	r.Get("/models", s.handleListModels)
	r.Get("/models/identity", s.handleModelIdentity)
	r.Get("/adapters", s.handleListAdapters)
	r.Get("/adapters/{id}", s.handleGetAdapter)
	r.Delete("/adapters/{id}", s.handleDeleteAdapter)
	r.Post("/train", s.handleTrain)
	r.Post("/train/cancel", s.handleTrainCancel)
	r.Get("/train/status", s.handleTrainStatus)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := os.Stat(s.modelsDir); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("models dir unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)
	return r
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := model.Scan(s.modelsDir)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if models == nil {
		models = []types.Model{}
	}
	writeJSON(w, types.ModelsResponse{Models: models})
}

func (s *Server) handleModelIdentity(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("model")
	if id == "" {
		id = r.URL.Query().Get("path")
	}
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "model query parameter is required")
		return
	}
	path := id
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.modelsDir, id)
	}
	if _, err := os.Stat(path); err != nil {
		writeJSONError(w, http.StatusNotFound, "model not found: "+id)
		return
	}
	rec, err := s.ids.Resolve(r.Context(), path)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if rec == nil {
		writeJSONError(w, http.StatusNotFound, "no upstream identity for "+id)
		return
	}
	writeJSON(w, rec)
}

func (s *Server) handleListAdapters(w http.ResponseWriter, r *http.Request) {
	adapters := s.store.List()
	if adapters == nil {
		adapters = []types.AdapterSummary{}
	}
	writeJSON(w, types.AdaptersResponse{Adapters: adapters})
}

func (s *Server) handleGetAdapter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := s.store.Load(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, types.AdapterDetail{
		AdapterSummary: types.AdapterSummary{
			ID:             a.ID,
			Name:           a.Meta.AdapterName,
			BaseModelID:    a.BaseModelID,
			Rank:           a.Rank,
			Alpha:          a.Alpha,
			LayerCount:     len(a.Layers),
			ParameterCount: a.ParamCount(),
			CreatedAt:      a.Meta.CreatedAt.Format(time.RFC3339),
			FinalLoss:      a.Meta.FinalLoss,
			TrainingSteps:  a.Meta.TrainingSteps,
		},
		Layers: a.LayerNames(),
	})
}

func (s *Server) handleDeleteAdapter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.Delete(id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	var req types.TrainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Dataset) == "" {
		writeJSONError(w, http.StatusBadRequest, "dataset is required")
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		writeJSONError(w, http.StatusBadRequest, "model is required")
		return
	}

	start := time.Now()
	rid := middleware.GetReqID(r.Context())
	s.log.Info().Str("request_id", rid).Str("model", req.Model).
		Str("backend", req.Backend).Msg("train start")

	nw := &ndjsonWriter{w: w}
	ctx, cancel := joinContexts(s.baseCtx, r.Context())
	defer cancel()
	res, err := s.trainer.Start(ctx, req, nw.writeEvent)
	if err != nil {
		// Client gone or server shutting down: nobody to answer.
		if r.Context().Err() != nil || s.baseCtx.Err() != nil {
			return
		}
		if nw.started {
			nw.writeEvent(types.TrainEvent{Type: "error", Error: err.Error()})
		} else {
			writeDomainError(w, err)
		}
		s.log.Info().Str("request_id", rid).Int("status", statusForError(err)).
			Dur("dur", time.Since(start)).Err(err).Msg("train end")
		return
	}
	nw.writeEvent(types.TrainEvent{
		Type:         "result",
		AdapterID:    res.AdapterID,
		ArtifactPath: res.ArtifactPath,
	})
	s.log.Info().Str("request_id", rid).Int("status", http.StatusOK).
		Dur("dur", time.Since(start)).Msg("train end")
}

func (s *Server) handleTrainCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.trainer.Cancel(); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "cancelling"})
}

func (s *Server) handleTrainStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.trainer.Status())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}

// ndjsonWriter lazily switches the response to an NDJSON stream on the first
// event, so pre-stream failures can still use plain JSON error payloads.
type ndjsonWriter struct {
	w       http.ResponseWriter
	started bool
}

func (nw *ndjsonWriter) writeEvent(e types.TrainEvent) {
	if !nw.started {
		nw.w.Header().Set("Content-Type", "application/x-ndjson")
		nw.w.WriteHeader(http.StatusOK)
		nw.started = true
	}
	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	_, _ = nw.w.Write(append(b, '\n'))
	if f, ok := nw.w.(http.Flusher); ok {
		f.Flush()
	}
}
