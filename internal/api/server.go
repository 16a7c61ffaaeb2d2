// Package api is the control surface of the daemon: a huma-described
// HTTP API the renderer, the companion remote, and the CLI drive
// playback and sync through.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/storylineapp/storyline-core/internal/auth"
	"github.com/storylineapp/storyline-core/internal/library"
	"github.com/storylineapp/storyline-core/internal/mdns"
	"github.com/storylineapp/storyline-core/internal/playback"
	"github.com/storylineapp/storyline-core/internal/progress"
	"github.com/storylineapp/storyline-core/internal/reader"
	"github.com/storylineapp/storyline-core/internal/sse"
	"github.com/storylineapp/storyline-core/internal/store"
	"github.com/storylineapp/storyline-core/internal/store/sqlite"
	"github.com/storylineapp/storyline-core/internal/transport"
)

// Services groups the engines and services the handlers drive.
type Services struct {
	Playback *playback.Engine
	Reader   *reader.Reconciler
	Sync     *progress.Engine
	Library  *library.Service
	Remote   *transport.Client
	Tokens   *auth.TokenService
	Stats    *sqlite.Store
}

// Server holds dependencies for the control API handlers.
type Server struct {
	store      *store.Store
	services   *Services
	sseManager *sse.Manager
	sseHandler *sse.Handler
	bridge     *sse.Bridge
	router     *chi.Mux
	api        huma.API
	logger     *slog.Logger

	instanceID   string
	instanceName string

	pairLimiter *RateLimiter
}

// NewServer creates the control API with all routes configured.
func NewServer(st *store.Store, services *Services, sseManager *sse.Manager, bridge *sse.Bridge, instanceID, instanceName string, logger *slog.Logger) *Server {
	router := chi.NewRouter()

	s := &Server{
		store:        st,
		services:     services,
		sseManager:   sseManager,
		sseHandler:   sse.NewHandler(sseManager, logger),
		bridge:       bridge,
		router:       router,
		logger:       logger,
		instanceID:   instanceID,
		instanceName: instanceName,
		pairLimiter:  NewRateLimiter(10, time.Minute, 5),
	}

	s.setupMiddleware()

	humaConfig := huma.DefaultConfig("Storyline Control API", mdns.DaemonVersion)
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	s.api = humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerInstanceRoutes()
	s.registerPairingRoutes()
	s.registerPlaybackRoutes()
	s.registerSleepRoutes()
	s.registerProgressRoutes()
	s.registerLibraryRoutes()
	s.registerSettingsRoutes()
	s.registerStatsRoutes()
	s.registerRendererRoutes()
	s.registerDiscoveryRoutes()

	// SSE endpoint registered directly on chi; huma doesn't speak SSE.
	router.Get("/api/v1/events", s.requireDeviceHTTP(s.sseHandler.ServeHTTP))

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures the chi middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	s.router.Use(s.requestLogger)
	s.router.Use(authMiddleware(s.services.Tokens))
}

// requestLogger logs each request at debug with method, path, status
// and duration.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}
