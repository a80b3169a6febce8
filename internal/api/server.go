// Package api exposes the point analyses over a small JSON HTTP API.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spectral-cli/internal/analysis"
	"github.com/sells-group/spectral-cli/internal/landsample"
	"github.com/sells-group/spectral-cli/internal/model"
	"github.com/sells-group/spectral-cli/internal/placeindex"
	"github.com/sells-group/spectral-cli/internal/spectral"
	"github.com/sells-group/spectral-cli/internal/store"
)

// Defaults fill query parameters the client leaves out.
type Defaults struct {
	Dates    model.DateRange
	MaxCloud float64
}

// Server holds the handler dependencies. Store may be nil, which disables
// the history routes.
type Server struct {
	Service  *analysis.Service
	Vis      spectral.VisTable
	Store    store.Store
	Defaults Defaults
	// CORSOrigins lists the allowed origins; empty allows any.
	CORSOrigins []string
}

// Router builds the chi router with CORS, request IDs, panic recovery, and
// request logging.
func (s *Server) Router() http.Handler {
	origins := s.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/indices", s.handleIndices)
		r.Get("/land-point", s.handleLandPoint)
		r.Get("/nearest", s.handleNearest)
		r.Get("/spectra", s.handleSpectra)
		r.Get("/composite", s.handleComposite)
		r.Get("/tasks", s.handleTasks)
		r.Get("/samples", s.handleSamples)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("component", "api"),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

// badRequest marks errors caused by the client's parameters.
type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var br badRequest
	switch {
	case eris.As(err, &br):
		status = http.StatusBadRequest
	case eris.Is(err, analysis.ErrNoImages),
		eris.Is(err, landsample.ErrNotFound),
		eris.Is(err, placeindex.ErrNotFound):
		status = http.StatusNotFound
	case eris.Is(err, analysis.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		zap.L().Error("api: request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
