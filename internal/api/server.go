// Package api serves overlays, map views and static datasets over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/tract-overlays/internal/controller"
	"github.com/sells-group/tract-overlays/internal/metric"
	"github.com/sells-group/tract-overlays/internal/metrics"
	"github.com/sells-group/tract-overlays/internal/overlay"
	"github.com/sells-group/tract-overlays/internal/render"
)

// StaticCacheControl is sent with every file under /data. Dataset files are
// published under new names rather than rewritten.
const StaticCacheControl = "public, max-age=604800, immutable"

// Options configures a Server.
type Options struct {
	Overlays *overlay.Set
	Geometry controller.GeometrySource
	Metrics  metric.Loader
	// Style is the template for each session's style document. SourceURL is
	// set per session.
	Style          render.StyleOptions
	DataDir        string
	AllowedOrigins []string
	MaxSessions    int
	Cache          *PayloadCache
}

// Server holds the HTTP handlers and the session registry.
type Server struct {
	opts     Options
	sessions *Sessions
	cache    *PayloadCache
	log      *zap.Logger
}

// NewServer creates a Server.
func NewServer(opts Options) *Server {
	cache := opts.Cache
	if cache == nil {
		cache = NewPayloadCache(256, 10*time.Minute)
	}
	return &Server{
		opts:     opts,
		sessions: NewSessions(opts.MaxSessions),
		cache:    cache,
		log:      zap.L().With(zap.String("component", "api")),
	}
}

// Sessions returns the session registry.
func (s *Server) Sessions() *Sessions { return s.sessions }

// Close unmounts every session.
func (s *Server) Close() { s.sessions.Close() }

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Location"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/overlays", func(r chi.Router) {
		r.Get("/", s.handleListOverlays)
		r.Get("/{id}/legend", s.handleLegend)
		r.Get("/{id}/expression", s.handleExpression)
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{sid}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Put("/active", s.handleSelect)
			r.Get("/style", s.handleStyle)
			r.Get("/source", s.handleSource)
			r.Get("/features/{geoid}", s.handleFeature)
		})
	})

	if s.opts.DataDir != "" {
		files := http.StripPrefix("/data/", http.FileServer(http.Dir(s.opts.DataDir)))
		r.With(immutable).Get("/data/*", files.ServeHTTP)
	}

	return r
}

// newView builds the controller for a new session. Each session's map gets
// its own style document pointing at the session's source endpoint.
func (s *Server) newView(id string) *controller.Controller {
	style := s.opts.Style
	style.SourceURL = "/sessions/" + id + "/source"
	if style.Name == "" {
		style.Name = id
	}
	return controller.New(controller.Deps{
		Overlays: s.opts.Overlays,
		Geometry: s.opts.Geometry,
		Metrics:  s.opts.Metrics,
		NewMap: func(context.Context) (render.Map, error) {
			return render.NewStyleMap(style), nil
		},
	})
}

func immutable(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", StaticCacheControl)
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs each request through zap once it completes.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Debug("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("elapsed", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
