package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/boardroom-dev/boardroom/pkg/eventlog"
	"github.com/boardroom-dev/boardroom/pkg/ident"
	"github.com/boardroom-dev/boardroom/pkg/telemetry"
)

// Ingress is satisfied by the Router: it accepts an event that a peer
// delivered for one of this node's local agents.
type Ingress interface {
	OnIngress(ev eventlog.Event) error
}

// Presence is satisfied by the Directory: it reports and records which
// agents live on which node.
type Presence interface {
	ListLocal() []ident.AgentId
	RegisterRemote(agent ident.AgentId, node ident.NodeId) error
}

// Server exposes the Node Transport's wire endpoints over HTTP,
// grounded on the chi + OpenTelemetry middleware pattern used
// elsewhere in this module.
type Server struct {
	self     ident.NodeId
	ingress  Ingress
	presence Presence
	log      *slog.Logger
	router   chi.Router
}

// NewServer builds the chi router for deliver/announce/query. recorder
// may be nil to skip metrics middleware (e.g. in unit tests).
func NewServer(self ident.NodeId, ingress Ingress, presence Presence, recorder telemetry.Recorder, log *slog.Logger) *Server {
	s := &Server{self: self, ingress: ingress, presence: presence, log: log}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if recorder != nil {
		r.Use(metricsMiddleware(recorder))
	}
	r.Post("/v1/deliver", s.handleDeliver)
	r.Post("/v1/announce", s.handleAnnounce)
	r.Post("/v1/query", s.handleQuery)
	s.router = r

	return s
}

// Handler returns the http.Handler to mount on a ListenAddress.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) decodeEnvelope(w http.ResponseWriter, r *http.Request, payload any) (Envelope, bool) {
	var env Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, "malformed envelope", http.StatusBadRequest)
		return env, false
	}
	if env.ProtocolVersion < MinProtocolVersion {
		http.Error(w, "protocol version mismatch", http.StatusUnprocessableEntity)
		return env, false
	}

	raw, err := json.Marshal(env.Payload)
	if err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return env, false
	}
	if err := json.Unmarshal(raw, payload); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return env, false
	}
	return env, true
}

func (s *Server) handleDeliver(w http.ResponseWriter, r *http.Request) {
	var req DeliverRequest
	if _, ok := s.decodeEnvelope(w, r, &req); !ok {
		return
	}

	ev := fromWire(req.Event)
	if err := s.ingress.OnIngress(ev); err != nil {
		s.logger().Warn("reject ingress delivery", "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, DeliverResponse{Accepted: true})
}

func (s *Server) handleAnnounce(w http.ResponseWriter, r *http.Request) {
	var req AnnounceRequest
	env, ok := s.decodeEnvelope(w, r, &req)
	if !ok {
		return
	}

	for _, agent := range req.LocalAgents {
		if err := s.presence.RegisterRemote(agent, env.OriginNode); err != nil {
			s.logger().Warn("ignore conflicting remote binding", "agent", agent, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, AnnounceResponse{Acknowledged: true})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if _, ok := s.decodeEnvelope(w, r, &req); !ok {
		return
	}

	writeJSON(w, http.StatusOK, QueryResponse{
		Node:        s.self,
		LocalAgents: s.presence.ListLocal(),
	})
}

func (s *Server) logger() *slog.Logger {
	if s.log != nil {
		return s.log
	}
	return slog.Default()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
