// Package api provides the HTTP surface for the membership service: health,
// member listing/lookup, and Prometheus metrics.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thirstycrow/atomix/internal/domain"
	"github.com/thirstycrow/atomix/internal/membership"
)

// Server is the membership service's HTTP API server.
type Server struct {
	svc            *membership.Service
	metricsEnabled bool
}

// NewServer creates a new API server backed by svc.
func NewServer(svc *membership.Service) *Server {
	return &Server{svc: svc}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/members", func(r chi.Router) {
		r.Get("/", s.handleListMembers)
		r.Get("/{id}", s.handleGetMember)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// memberView is the wire shape returned by the member endpoints: the same
// fields as domain.ImmutableMember, with State rendered as its string name.
type memberView struct {
	Id         domain.MemberId   `json:"id"`
	Address    domain.Address    `json:"address"`
	Zone       string            `json:"zone,omitempty"`
	Rack       string            `json:"rack,omitempty"`
	Host       string            `json:"host,omitempty"`
	Version    domain.Version    `json:"version,omitempty"`
	Properties domain.Properties `json:"properties,omitempty"`
	State      string            `json:"state"`
	Term       int64             `json:"term"`
}

func toView(m domain.ImmutableMember) memberView {
	return memberView{
		Id:         m.Id,
		Address:    m.Address,
		Zone:       m.Zone,
		Rack:       m.Rack,
		Host:       m.Host,
		Version:    m.Version,
		Properties: m.Properties,
		State:      m.State.String(),
		Term:       m.Term,
	}
}

// handleListMembers answers GET /members with a snapshot of the full
// registry, local member included.
func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members := s.svc.GetMembers()
	views := make([]memberView, 0, len(members))
	for _, m := range members {
		views = append(views, toView(m))
	}
	writeJSON(w, http.StatusOK, views)
}

// handleGetMember answers GET /members/{id} with a single member's view, or
// 404 if the id is not currently held in the registry.
func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	id := domain.MemberId(chi.URLParam(r, "id"))
	member, ok := s.svc.GetMember(id)
	if !ok {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}
	writeJSON(w, http.StatusOK, toView(member))
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
