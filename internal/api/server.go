// Package api exposes the region lifecycle over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rewired-gh/oceanoracle/internal/chat"
	"github.com/rewired-gh/oceanoracle/internal/lifecycle"
	"github.com/rewired-gh/oceanoracle/internal/logger"
	"github.com/rewired-gh/oceanoracle/internal/models"
)

// Lifecycle is the part of lifecycle.Manager the handlers use
type Lifecycle interface {
	EnsureReady(ctx context.Context, key string) (*models.RegionModelBundle, error)
	Load(ctx context.Context, key string) (*models.RegionModelBundle, bool, error)
	Refresh(ctx context.Context, key string) (*models.RegionModelBundle, error)
	Wait(ctx context.Context, key string) (*models.RegionModelBundle, error)
	Current(key string) (*models.RegionModelBundle, error)
	Clear(key string) error
	Status(key string) (lifecycle.Status, error)
	StatusAll() []lifecycle.Status
}

// Registry lists the configured regions
type Registry interface {
	Get(key string) (models.RegionDescriptor, error)
	All() []models.RegionDescriptor
}

// Options configures a Server
type Options struct {
	Lifecycle Lifecycle
	Registry  Registry
	Assistant *chat.Assistant

	AllowedOrigins    []string
	RequestTimeout    time.Duration
	VisualizationWait time.Duration
	SampleSize        int
	// DefaultRegion is used by chat requests that name no region
	DefaultRegion string
}

// Server handles API requests
type Server struct {
	opts    Options
	origins map[string]struct{}
	Router  *mux.Router
}

// New creates a Server with every route registered
func New(opts Options) *Server {
	if opts.DefaultRegion == "" {
		opts.DefaultRegion = "arabian_sea"
	}
	if opts.SampleSize < 1 {
		opts.SampleSize = 5000
	}
	origins := make(map[string]struct{}, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		origins[o] = struct{}{}
	}

	s := &Server{opts: opts, origins: origins, Router: mux.NewRouter()}
	s.setup()
	return s
}

// ServeHTTP dispatches to the router
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) setup() {
	r := s.Router
	r.Use(s.corsMiddleware)
	r.Use(s.timeoutMiddleware)

	// Preflight requests are answered by the CORS middleware
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/regions", s.handleRegions).Methods(http.MethodGet)
	api.HandleFunc("/model_status", s.handleModelStatus).Methods(http.MethodGet)
	api.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost)
	api.HandleFunc("/visualizations", s.handleVisualizations).Methods(http.MethodPost)
	api.HandleFunc("/clear_cache", s.handleClearCache).Methods(http.MethodPost)
	api.HandleFunc("/load_models", s.handleLoadModels).Methods(http.MethodPost)
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/predict", s.handlePredict).Methods(http.MethodPost)
	api.HandleFunc("/fishing_advice", s.handleFishingAdvice).Methods(http.MethodPost)
	api.HandleFunc("/water_masses", s.handleWaterMasses).Methods(http.MethodPost)
	api.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
}

// corsMiddleware handles CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			if _, ok := s.origins[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			} else {
				logger.Debug("Origin %q is not within allowed origins", origin)
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// timeoutMiddleware bounds how long a request waits on the lifecycle
func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.RequestTimeout <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
