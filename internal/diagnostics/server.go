// Package diagnostics exposes a read-only HTTP status surface and a
// websocket live event feed, routed with gorilla/mux the way the teacher's
// pool API routes its endpoints. It is purely observational: spec.md's
// Non-goals exclude persistence and payout accounting, so this reports only
// in-memory counters for the lifetime of the process.
package diagnostics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/boomstarternetwork/chainweb-mining-client/internal/chainlog"
	"github.com/boomstarternetwork/chainweb-mining-client/internal/worker"
)

var log = chainlog.NewSubLogger("DIAG")

// ChainStatus is one chain's reported status.
type ChainStatus struct {
	Chain      uint16 `json:"chain"`
	Hashrate   uint64 `json:"hashrate"`
	Submitted  uint64 `json:"submitted"`
	LastUpdate string `json:"last_update"`
}

// Server serves /status, /hashrate, and a /ws live feed of mining events.
type Server struct {
	mu     sync.RWMutex
	status map[uint16]ChainStatus

	upgrader websocket.Upgrader

	subMu sync.Mutex
	subs  map[*websocket.Conn]chan []byte
}

// New creates a diagnostics server with an empty status table.
func New() *Server {
	return &Server{
		status: make(map[uint16]ChainStatus),
		subs:   make(map[*websocket.Conn]chan []byte),
	}
}

// UpdateStatus records the latest status for chain, and broadcasts it to
// any connected websocket clients.
func (s *Server) UpdateStatus(chain uint16, w worker.Worker, submitted uint64) {
	st := ChainStatus{
		Chain:      chain,
		Hashrate:   w.Hashrate(),
		Submitted:  submitted,
		LastUpdate: time.Now().UTC().Format(time.RFC3339),
	}
	s.mu.Lock()
	s.status[chain] = st
	s.mu.Unlock()

	if b, err := json.Marshal(st); err == nil {
		s.broadcast(b)
	}
}

// Router builds the gorilla/mux route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/hashrate", s.handleHashrate).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS)
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]ChainStatus, 0, len(s.status))
	for _, st := range s.status {
		all = append(all, st)
	}
	writeJSON(w, all)
}

func (s *Server) handleHashrate(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total uint64
	for _, st := range s.status {
		total += st.Hashrate
	}
	writeJSON(w, map[string]uint64{"total_hashrate": total})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("websocket upgrade: %v", err)
		return
	}

	ch := make(chan []byte, 16)
	s.subMu.Lock()
	s.subs[conn] = ch
	s.subMu.Unlock()

	defer func() {
		s.subMu.Lock()
		delete(s.subs, conn)
		s.subMu.Unlock()
		conn.Close()
	}()

	for msg := range ch {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (s *Server) broadcast(b []byte) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- b:
		default:
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("writing JSON response: %v", err)
	}
}
