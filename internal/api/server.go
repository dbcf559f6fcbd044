// Package api exposes a read-only HTTP status endpoint for operational
// visibility into a running flmesh process. It is strictly observational:
// it carries no control authority over any actor and is never part of the
// actor wire protocol (§6).
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/fedactor/flmesh/internal/gossip"
	"github.com/fedactor/flmesh/internal/orchestrated"
	"github.com/fedactor/flmesh/internal/supervisor"
)

// Server is the read-only status HTTP server. Any of its providers may be
// nil — a process only wires the role it actually runs (a worker has no
// Coordinator, a coordinator process has no gossip Peer, and so on).
type Server struct {
	log *zap.Logger

	supervisor *supervisor.Supervisor
	coordinator *orchestrated.Coordinator
	peer        *gossip.Peer
	reporter    *gossip.Reporter

	httpServer *http.Server
	router     *mux.Router
}

// NewServer builds a status server. Pass nil for any provider this
// process does not run.
func NewServer(log *zap.Logger, sup *supervisor.Supervisor, coord *orchestrated.Coordinator, peer *gossip.Peer, reporter *gossip.Reporter) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	srv := &Server{
		log:         log,
		supervisor:  sup,
		coordinator: coord,
		peer:        peer,
		reporter:    reporter,
		router:      mux.NewRouter(),
	}
	srv.routes()
	return srv
}

// Start binds addr and serves until Stop is called. It blocks for as long
// as the server runs, so callers start it on a goroutine of their own.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	s.log.Info("status endpoint starting", zap.String("addr", addr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the status server down.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/status/supervisor", s.handleSupervisorStatus).Methods("GET")
	s.router.HandleFunc("/status/coordinator", s.handleCoordinatorStatus).Methods("GET")
	s.router.HandleFunc("/status/gossip", s.handleGossipStatus).Methods("GET")
}

func (s *Server) respond(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.log.Warn("status endpoint: encode response failed", zap.Error(err))
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

func (s *Server) handleSupervisorStatus(w http.ResponseWriter, r *http.Request) {
	if s.supervisor == nil {
		s.respond(w, map[string]string{"error": "no supervisor in this process"}, http.StatusNotFound)
		return
	}
	report := s.supervisor.Report()
	s.respond(w, map[string]interface{}{
		"healthy": report.Healthy,
		"failed":  report.Failed,
	}, http.StatusOK)
}

func (s *Server) handleCoordinatorStatus(w http.ResponseWriter, r *http.Request) {
	if s.coordinator == nil {
		s.respond(w, map[string]string{"error": "no coordinator in this process"}, http.StatusNotFound)
		return
	}
	s.respond(w, map[string]interface{}{
		"state":   s.coordinator.CurrentState(),
		"history": s.coordinator.History(),
	}, http.StatusOK)
}

func (s *Server) handleGossipStatus(w http.ResponseWriter, r *http.Request) {
	if s.peer != nil {
		s.respond(w, map[string]interface{}{
			"role":            "peer",
			"round_num":       s.peer.RoundNum(),
			"last_delta_norm": s.peer.LastDeltaNorm(),
			"known_peers":     s.peer.KnownPeerCount(),
			"converged":       s.peer.Converged(),
			"model_keys":      s.peer.ModelKeys(),
		}, http.StatusOK)
		return
	}
	if s.reporter != nil {
		s.respond(w, map[string]interface{}{
			"role":              "observer",
			"global_round":      s.reporter.GlobalRound(),
			"total_gossips":     s.reporter.TotalGossips(),
			"active_peer_count": s.reporter.ActivePeerCount(),
		}, http.StatusOK)
		return
	}
	s.respond(w, map[string]string{"error": "no gossip role in this process"}, http.StatusNotFound)
}
