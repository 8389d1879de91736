// Package daemon hosts the long-running local HTTP server that multiplexes
// session tool calls from concurrent AI-assistant processes.
//
// Each logical client transport gets its own session engine; calls within
// one transport are serialized, transports run independently. The daemon
// guarantees a single instance per data directory through the PID file and
// the port bind.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"useaid/internal/config"
	"useaid/internal/health"
	"useaid/internal/keystore"
	"useaid/internal/logging"
	"useaid/internal/session"
	"useaid/internal/store"
	"useaid/internal/tools"
)

// Version is reported by /health and compared during the single-instance
// handshake. A running daemon with a different version is replaced.
const Version = "1.0.0"

// DefaultPort is the local port the daemon listens on.
const DefaultPort = 9999

// TransportHeader carries the per-connection transport id. Clients that
// omit it share the default transport.
const TransportHeader = "X-Transport-Id"

// shutdownGrace bounds how long an exiting daemon waits for in-flight
// requests.
const shutdownGrace = 5 * time.Second

// Errors
var (
	// ErrAlreadyRunning means a healthy daemon of the same version owns
	// the port; this process is redundant and should exit 0.
	ErrAlreadyRunning = errors.New("daemon: already running")
)

// transport is one logical client connection: its own engine, its own
// catalog, and a lock that serializes its calls.
type transport struct {
	mu      sync.Mutex
	engine  *session.Engine
	catalog *tools.Catalog
}

// Server is the daemon.
type Server struct {
	paths store.Paths
	cfg   *config.Config
	key   *keystore.Key
	log   *logging.Logger
	port  int

	startedAt time.Time

	mu         sync.Mutex
	transports map[string]*transport
	registry   *session.Registry

	checks *health.Checker

	httpServer *http.Server
	listener   net.Listener
}

// NewServer builds a daemon bound to the given data directory. key may be
// nil (unsigned mode).
func NewServer(paths store.Paths, cfg *config.Config, key *keystore.Key, log *logging.Logger, port int) *Server {
	if port == 0 {
		port = DefaultPort
	}
	if log == nil {
		log = logging.Default()
	}
	checks := health.NewChecker()
	checks.RegisterFunc("data_dir", true, health.DataDirCheck(paths))
	checks.RegisterFunc("keystore", false, health.KeystoreCheck(paths))
	checks.RegisterFunc("seal_list", false, health.SealListCheck(paths))

	return &Server{
		paths:      paths,
		cfg:        cfg,
		key:        key,
		log:        log,
		port:       port,
		transports: make(map[string]*transport),
		registry:   session.NewRegistry(),
		checks:     checks,
	}
}

// transportFor returns the transport for an id, creating it on first use.
func (s *Server) transportFor(id string) *transport {
	if id == "" {
		id = "default"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transports[id]
	if !ok {
		engine := session.NewWithRegistry(s.paths, s.cfg, s.key, s.registry)
		t = &transport{
			engine:  engine,
			catalog: tools.New(engine, s.paths, s.cfg),
		}
		s.transports[id] = t
	}
	return t
}

// activeSessions sums live sessions across transports.
func (s *Server) activeSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, t := range s.transports {
		total += t.engine.Depth()
	}
	return total
}

// Handler builds the HTTP routing table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/mcp", s.handleMCP)
	mux.HandleFunc("/api/seal-active", s.handleSealActive)
	return mux
}

// Health is the /health response body.
type Health struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	ActiveSessions int    `json:"active_sessions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.checks.Run(r.Context())
	status := "ok"
	switch s.checks.OverallStatus() {
	case health.StatusDegraded:
		status = "degraded"
	case health.StatusUnhealthy:
		status = "unhealthy"
	}
	writeJSON(w, http.StatusOK, Health{
		Status:         status,
		Version:        Version,
		UptimeSeconds:  int64(time.Since(s.startedAt).Seconds()),
		ActiveSessions: s.activeSessions(),
	})
}

// mcpRequest is the tool-call transport body.
type mcpRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// handleMCP dispatches one tool call. Errors never surface as non-2xx at
// this layer; they are encoded in the envelope.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req mcpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, errorEnvelope(fmt.Sprintf("invalid request body: %v", err)))
		return
	}
	if req.Method == "" {
		writeEnvelope(w, errorEnvelope("method is required"))
		return
	}

	t := s.transportFor(r.Header.Get(TransportHeader))
	t.mu.Lock()
	defer t.mu.Unlock()

	res := s.callSafely(t, req)
	s.log.Debug("tool call", "method", req.Method, "is_error", res.IsError)
	writeEnvelope(w, res)
}

// callSafely runs one catalog call, converting a panic into an isError
// envelope instead of killing the connection.
func (s *Server) callSafely(t *transport, req mcpRequest) (res tools.Result) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("tool handler panic", "method", req.Method, "panic", fmt.Sprint(r))
			s.log.Debug("panic stack", "stack", string(debug.Stack()))
			res = errorEnvelope(fmt.Sprintf("internal error in %s", req.Method))
		}
	}()
	return t.catalog.Call(req.Method, req.Params)
}

// handleSealActive is the shutdown-hook endpoint: it seals every live
// session on every transport plus any orphan chains on disk.
func (s *Server) handleSealActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sealed, err := s.sealAll()
	if err != nil {
		s.log.Error("seal-active failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if sealed == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"sealed": sealed})
}

// sealAll runs SealActive on every transport. The default transport is
// created if absent so orphan chains are recovered even before any client
// has connected.
func (s *Server) sealAll() (int, error) {
	s.transportFor("default")

	s.mu.Lock()
	list := make([]*transport, 0, len(s.transports))
	for _, t := range s.transports {
		list = append(list, t)
	}
	s.mu.Unlock()

	total := 0
	var firstErr error
	for _, t := range list {
		t.mu.Lock()
		n, err := t.engine.SealActive()
		t.mu.Unlock()
		total += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return total, firstErr
}

// Run starts the daemon and blocks until ctx is cancelled. It returns
// ErrAlreadyRunning when a healthy same-version daemon already owns the
// data directory.
func (s *Server) Run(ctx context.Context) error {
	if err := s.paths.EnsureLayout(); err != nil {
		return fmt.Errorf("daemon: prepare data dir: %w", err)
	}
	if err := s.ensureSingleInstance(); err != nil {
		return err
	}

	ln, err := s.bindPort()
	if err != nil {
		return err
	}
	s.listener = ln
	s.startedAt = time.Now()

	if err := WritePIDFile(s.paths, s.port, s.startedAt); err != nil {
		ln.Close()
		return fmt.Errorf("daemon: write pid file: %w", err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()
	s.log.Info("daemon listening", "port", s.port, "version", Version,
		"signing", s.key != nil)

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errCh:
		RemovePIDFile(s.paths)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// shutdown stops accepting requests, seals every live session, and removes
// the PID file.
func (s *Server) shutdown() error {
	s.log.Info("daemon shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.httpServer.Close()
	}

	if sealed, err := s.sealAll(); err != nil {
		s.log.Error("sealing on shutdown failed", "error", err, "sealed", sealed)
	} else if sealed > 0 {
		s.log.Info("sealed sessions on shutdown", "sealed", sealed)
	}

	RemovePIDFile(s.paths)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeEnvelope(w http.ResponseWriter, res tools.Result) {
	writeJSON(w, http.StatusOK, res)
}

func errorEnvelope(text string) tools.Result {
	return tools.Result{
		Content: []tools.Content{{Type: "text", Text: text}},
		IsError: true,
	}
}
