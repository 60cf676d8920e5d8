// Package api is the dashboard surface: the REST endpoints for call
// control and caller screening, the live-event WebSocket and the
// Prometheus scrape handler.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/voicegate/voicegate/internal/api/middleware"
	"github.com/voicegate/voicegate/internal/config"
	"github.com/voicegate/voicegate/internal/database"
	"github.com/voicegate/voicegate/internal/gateway"
	"github.com/voicegate/voicegate/internal/sip"
)

// CallController is the slice of the gateway the API operates on.
type CallController interface {
	ActiveCallInfo() (gateway.CallInfo, bool)
	HangupActive() error
	SetAIMuted(muted bool) error
	SwitchActiveAgent(target string) error
}

// Deps carries everything the HTTP layer serves from.
type Deps struct {
	Config    *config.Config
	Gateway   CallController
	Registrar *sip.Registrar
	Firewall  *sip.TrunkFirewall
	Calls     database.CallRepository
	Tasks     database.TaskRepository
	Ideas     database.IdeaRepository
	Projects  database.ProjectRepository
	Orders    database.OrderRepository
	Screening database.ScreeningRepository
	Hub       *Hub
	Metrics   http.Handler
	Broadcast gateway.Broadcaster
}

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router    *chi.Mux
	deps      Deps
	limiter   *middleware.IPRateLimiter
	startedAt time.Time
}

// NewServer creates the HTTP handler with all routes mounted.
func NewServer(deps Deps) *Server {
	if deps.Broadcast == nil {
		deps.Broadcast = gateway.NopBroadcaster{}
	}
	s := &Server{
		router:    chi.NewRouter(),
		deps:      deps,
		limiter:   middleware.NewIPRateLimiter(middleware.DefaultRateLimitConfig()),
		startedAt: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Stop releases background resources of the HTTP layer.
func (s *Server) Stop() {
	s.limiter.Stop()
	if s.deps.Hub != nil {
		s.deps.Hub.Close()
	}
}

// routes configures the middleware stack and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.CORS(middleware.ParseCORSOrigins(s.deps.Config.CORSOrigins)))
	r.Use(middleware.RateLimit(s.limiter))

	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAPIKey(s.deps.Config.APIKey))

			r.Get("/status", s.handleStatus)
			if s.deps.Hub != nil {
				r.Get("/ws", s.deps.Hub.HandleWS)
			}

			r.Post("/call/hangup", s.handleHangup)
			r.Post("/call/switch-agent", s.handleSwitchAgent)
			r.Post("/ai/mute", s.handleMute(true))
			r.Post("/ai/unmute", s.handleMute(false))

			r.Route("/blacklist", func(r chi.Router) {
				r.Get("/", s.handleListBlacklist)
				r.Post("/", s.handleAddBlacklist)
				r.Delete("/{callerID}", s.handleRemoveBlacklist)
			})
			r.Route("/whitelist", func(r chi.Router) {
				r.Get("/", s.handleListWhitelist)
				r.Post("/", s.handleAddWhitelist)
				r.Delete("/{callerID}", s.handleRemoveWhitelist)
			})

			r.Get("/firewall", s.handleFirewallStatus)
			r.Post("/firewall/enable", s.handleFirewallSet(true))
			r.Post("/firewall/disable", s.handleFirewallSet(false))

			r.Get("/calls", s.handleListCalls)
			r.Get("/tasks", s.handleListTasks)
			r.Get("/ideas", s.handleListIdeas)
			r.Get("/projects", s.handleListProjects)
			r.Get("/orders", s.handleListOrders)
		})
	})

	slog.Info("api routes mounted")
}
