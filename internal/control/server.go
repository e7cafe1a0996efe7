// Package control exposes the local endpoint the embedding editor talks
// to: status queries, forced refresh, the restart workflow, diagnostics,
// pid hints, and a websocket stream of status frames. The listener is a
// unix socket (a named pipe on Windows); nothing binds a TCP port.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"gopkg.in/yaml.v3"

	"github.com/lspmon/lspmon/internal/detect"
	"github.com/lspmon/lspmon/internal/logging"
	"github.com/lspmon/lspmon/internal/monitor"
	"github.com/lspmon/lspmon/internal/presenter"
)

var log = logging.L("control")

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Monitor is the coordinator surface the control server drives; satisfied
// by *monitor.Coordinator.
type Monitor interface {
	Snapshot() monitor.Snapshot
	RefreshAll(ctx context.Context)
	Restart(ctx context.Context) error
}

// Diagnoser produces the troubleshooting report; satisfied by
// *detect.Runner.
type Diagnoser interface {
	Diagnose(ctx context.Context, name string) detect.Report
}

// Server serves the control API and fans status frames out to websocket
// subscribers. It implements monitor.Sink so the coordinator's
// presentation loop feeds it directly.
type Server struct {
	mon      Monitor
	diag     Diagnoser
	hints    *HintStore
	upgrader websocket.Upgrader

	mu       sync.Mutex
	subs     map[*websocket.Conn]chan presenter.View
	listener net.Listener
	httpSrv  *http.Server
	closed   bool
}

// NewServer creates a control server. hints may be shared with the
// detection runner so registered pids take effect immediately.
func NewServer(mon Monitor, diag Diagnoser, hints *HintStore) *Server {
	return &Server{
		mon:   mon,
		diag:  diag,
		hints: hints,
		subs:  make(map[*websocket.Conn]chan presenter.View),
	}
}

// Serve listens on the platform endpoint and blocks until Close.
func (s *Server) Serve(socket string) error {
	ln, err := listen(socket)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.listener = ln
	s.httpSrv = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := s.httpSrv
	s.mu.Unlock()

	log.Info("control endpoint listening", "socket", socket)

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Routes returns the control API handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/status", s.handleStatus)
	mux.HandleFunc("/v1/refresh", s.handleRefresh)
	mux.HandleFunc("/v1/restart", s.handleRestart)
	mux.HandleFunc("/v1/diag", s.handleDiag)
	mux.HandleFunc("/v1/hint", s.handleHint)
	mux.HandleFunc("/v1/events", s.handleEvents)
	return mux
}

// Close shuts the listener down and drops all subscribers. Idempotent.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	srv := s.httpSrv
	for conn, ch := range s.subs {
		close(ch)
		conn.Close()
	}
	s.subs = make(map[*websocket.Conn]chan presenter.View)
	s.mu.Unlock()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

// Publish implements monitor.Sink: every presentation tick lands here and
// is pushed to all websocket subscribers. Slow subscribers drop frames
// rather than stalling the loop.
func (s *Server) Publish(view presenter.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- view:
		default:
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.mon.Snapshot())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mon.RefreshAll(r.Context())
	writeJSON(w, s.mon.Snapshot())
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.mon.Restart(r.Context()); err != nil {
		log.Warn("user-triggered restart failed", "error", err)
		w.WriteHeader(http.StatusBadGateway)
		writeJSON(w, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, map[string]string{"result": "restarted"})
}

func (s *Server) handleDiag(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report := s.diag.Diagnose(r.Context(), s.mon.Snapshot().ProcessName)

	if r.URL.Query().Get("format") == "yaml" {
		w.Header().Set("Content-Type", "application/yaml")
		yaml.NewEncoder(w).Encode(report)
		return
	}
	writeJSON(w, report)
}

func (s *Server) handleHint(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var body struct {
			PID int `json:"pid"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.PID <= 0 {
			http.Error(w, "expected {\"pid\": n} with n > 0", http.StatusBadRequest)
			return
		}
		s.hints.Set(body.PID)
		log.Info("host hint registered", "pid", body.PID)
		writeJSON(w, map[string]any{"pid": body.PID})
	case http.MethodDelete:
		s.hints.Clear()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "error", err)
		return
	}

	ch := make(chan presenter.View, 8)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.subs[conn] = ch
	s.mu.Unlock()

	go s.writeLoop(conn, ch)
	s.readLoop(conn)
}

func (s *Server) writeLoop(conn *websocket.Conn, ch chan presenter.View) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case view, ok := <-ch:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := conn.WriteJSON(view); err != nil {
				s.drop(conn)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.drop(conn)
				return
			}
		}
	}
}

// readLoop discards inbound frames; it exists to notice disconnects and
// service pongs.
func (s *Server) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(1024)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.drop(conn)
			return
		}
	}
}

func (s *Server) drop(conn *websocket.Conn) {
	s.mu.Lock()
	if ch, ok := s.subs[conn]; ok {
		delete(s.subs, conn)
		close(ch)
	}
	s.mu.Unlock()
	conn.Close()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
