package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"metricd/internal/broker"
	"metricd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Ingest(req types.LogRequest)
	Subscribe(experiment string, sub broker.Subscriber) error
	Unsubscribe(experiment string, sub broker.Subscriber)
	Experiments() []string
	ClearAll()
	Delete(experiment string) error
	SignalFinished()
	Ready() bool
}

// maxBodyBytes controls the maximum allowed request body size for JSON
// endpoints. Model-info payloads carry architecture trees, so the default
// is larger than a typical API's.
var maxBodyBytes int64 = 4 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 4 << 20
		return
	}
	maxBodyBytes = n
}

// allowedOrigins is the CORS allowlist for browser viewers; the default
// covers the local Vite dev server.
var allowedOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}

// SetAllowedOrigins overrides the CORS allowlist.
func SetAllowedOrigins(origins []string) {
	if len(origins) > 0 {
		allowedOrigins = origins
	}
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	r.Use(MetricsMiddleware)

	r.Post("/api/log", func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeJSON[types.LogRequest](w, r)
		if !ok {
			return
		}
		if strings.TrimSpace(req.Experiment) == "" {
			writeJSONError(w, http.StatusBadRequest, "experiment is required")
			return
		}
		if req.Metrics == nil {
			req.Metrics = map[string]any{}
		}
		svc.Ingest(req)
		if zlog != nil {
			zlog.Debug().Str("experiment", req.Experiment).Int64("step", req.Step).Msg("event ingested")
		}
		writeJSON(w, types.OKResponse{Status: "ok"})
	})

	r.Post("/api/status", func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeJSON[types.StatusRequest](w, r)
		if !ok {
			return
		}
		if req.Status == "finished" {
			svc.SignalFinished()
			if zlog != nil {
				zlog.Info().Msg("producer signaled finished")
			}
		}
		writeJSON(w, types.OKResponse{Status: "ok"})
	})

	r.Get("/api/experiments", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, types.ExperimentsResponse{Experiments: svc.Experiments()})
	})

	r.Post("/api/experiments/clear", func(w http.ResponseWriter, r *http.Request) {
		svc.ClearAll()
		if zlog != nil {
			zlog.Info().Msg("all experiments cleared")
		}
		writeJSON(w, types.OKResponse{Status: "ok"})
	})

	r.Delete("/api/experiments/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if err := svc.Delete(name); err != nil {
			if broker.IsExperimentNotFound(err) {
				writeJSONError(w, http.StatusNotFound, err.Error())
				return
			}
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if zlog != nil {
			zlog.Info().Str("experiment", name).Msg("experiment deleted")
		}
		writeJSON(w, types.OKResponse{Status: "ok"})
	})

	r.Get("/ws/stream/{experiment}", streamHandler(svc))

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

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// decodeJSON enforces the content type and body-size cap, then decodes the
// request body. On failure it writes the error response and returns !ok.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var req T
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return req, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
