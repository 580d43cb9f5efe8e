package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emedia-lab/hermes/errors"
	"github.com/emedia-lab/hermes/metric"
	"github.com/emedia-lab/hermes/natsclient"
	"github.com/emedia-lab/hermes/pkg/cache"
	"github.com/emedia-lab/hermes/pkg/timestamp"
	"github.com/emedia-lab/hermes/pkg/tlsutil"
)

// snapshotCacheTTL bounds how often handleStatus actually calls into
// Provider.Snapshot(): a websocket-heavy client set polling /status on a
// tight loop shouldn't each force a fresh FSM walk.
const snapshotCacheTTL = 200 * time.Millisecond

const snapshotCacheKey = "snapshot"

// Server exposes a JSON status snapshot and a websocket feed of broker/node
// FSM transitions and component logs. It never writes to NATS itself; it
// only relays what the broker and node Loggers already publish.
type Server struct {
	config   Config
	provider Provider
	client   *natsclient.Client
	registry *metric.MetricsRegistry
	logger   *slog.Logger

	hub        *hub
	mux        *http.ServeMux
	httpServer *http.Server
	snapCache  cache.Cache[Snapshot]
	tlsCleanup func()

	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewServer creates a status gateway server. client may be nil, in which
// case the websocket feed only serves connection keepalives and the status
// endpoint still works from provider snapshots. registry may be nil, in
// which case MetricsPath is not served.
func NewServer(config Config, provider Provider, client *natsclient.Client, registry *metric.MetricsRegistry, logger *slog.Logger) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Server", "NewServer", "config validation")
	}
	if provider == nil {
		return nil, errors.WrapFatal(fmt.Errorf("provider is nil"), "Server", "NewServer", "status provider is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	corsAllowed := func(origin string) bool {
		if !config.EnableCORS {
			return true
		}
		for _, allowed := range config.CORSOrigins {
			if allowed == "*" || allowed == origin {
				return true
			}
		}
		return false
	}

	snapCache, err := cache.NewTTL[Snapshot](context.Background(), snapshotCacheTTL, time.Second)
	if err != nil {
		return nil, errors.Wrap(err, "Server", "NewServer", "create snapshot cache")
	}

	return &Server{
		config:    config,
		provider:  provider,
		client:    client,
		registry:  registry,
		logger:    logger,
		hub:       newHub(corsAllowed),
		mux:       http.NewServeMux(),
		stopChan:  make(chan struct{}),
		snapCache: snapCache,
	}, nil
}

// Setup wires up routes and the underlying http.Server. Call once before Start.
func (s *Server) Setup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc(s.config.StatusPath, s.handleStatus)
	s.mux.HandleFunc(s.config.WebSocketPath, s.hub.handleUpgrade)
	if s.registry != nil {
		s.mux.Handle(s.config.MetricsPath, promhttp.HandlerFor(s.registry.PrometheusRegistry(), promhttp.HandlerOpts{}))
	}

	var handler http.Handler = s.mux
	if s.config.EnableCORS {
		handler = s.corsMiddleware(handler)
	}

	s.httpServer = &http.Server{
		Addr:         s.config.BindAddress,
		Handler:      handler,
		ReadTimeout:  s.config.Timeout(),
		WriteTimeout: s.config.Timeout(),
		IdleTimeout:  60 * time.Second,
	}

	if s.config.TLS.Enabled {
		tlsConfig, cleanup, err := tlsutil.LoadServerTLSConfigWithACME(context.Background(), s.config.TLS)
		if err != nil {
			return errors.Wrap(err, "Server", "Setup", "load TLS config")
		}
		s.httpServer.TLSConfig = tlsConfig
		s.tlsCleanup = cleanup
	}

	s.logger.Info("status gateway configured",
		"address", s.config.BindAddress,
		"status_path", s.config.StatusPath,
		"ws_path", s.config.WebSocketPath,
		"tls", s.config.TLS.Enabled)

	return nil
}

// Start subscribes to the relay subjects and begins serving HTTP. It blocks
// until ctx is cancelled or the server fails.
func (s *Server) Start(ctx context.Context, ready chan<- struct{}) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Server", "Start", "already running")
	}
	s.running = true
	server := s.httpServer
	s.mu.Unlock()

	if err := s.subscribeRelays(ctx); err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return errors.Wrap(err, "Server", "Start", "subscribe relay subjects")
	}

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		s.logger.Info("status gateway starting", "address", s.config.BindAddress)
		if ready != nil {
			close(ready)
		}
		var err error
		if s.config.TLS.Enabled {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			case <-ctx.Done():
			case <-s.stopChan:
			}
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop(10 * time.Second)
	case <-s.stopChan:
		return nil
	case err := <-errChan:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return errors.WrapFatal(err, "Server", "Start", "HTTP server failed")
	}
}

// subscribeRelays forwards status and log NATS subjects onto the websocket hub.
func (s *Server) subscribeRelays(ctx context.Context) error {
	if s.client == nil {
		return nil
	}

	if subj := s.config.NATSSubjects.StatusUpdates; subj != "" {
		if err := s.client.Subscribe(ctx, subj, func(_ context.Context, data []byte) {
			s.relay("status", data)
		}); err != nil {
			return errors.Wrap(err, "Server", "subscribeRelays", "subscribe status subject")
		}
	}

	if subj := s.config.NATSSubjects.Logs; subj != "" {
		if err := s.client.Subscribe(ctx, subj, func(_ context.Context, data []byte) {
			s.relay("log", data)
		}); err != nil {
			return errors.Wrap(err, "Server", "subscribeRelays", "subscribe log subject")
		}
	}

	return nil
}

func (s *Server) relay(eventType string, payload []byte) {
	event := Event{
		Type:      eventType,
		Timestamp: timestamp.Now(),
		Payload:   json.RawMessage(payload),
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("failed to marshal relay event", "error", err, "type", eventType)
		return
	}
	s.hub.broadcast(data)
}

// Stop gracefully shuts down the HTTP server and disconnects websocket clients.
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	server := s.httpServer
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stopChan) })

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.hub.close(ctx)
	_ = s.snapCache.Close()
	if s.tlsCleanup != nil {
		s.tlsCleanup()
	}

	if err := server.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "Server", "Stop", "graceful shutdown failed")
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("status gateway stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if !running {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","clients":%d}`, s.hub.clientCount())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := s.snapCache.Get(snapshotCacheKey)
	if !ok {
		snapshot = s.provider.Snapshot()
		if _, err := s.snapCache.Set(snapshotCacheKey, snapshot); err != nil {
			s.logger.Warn("failed to cache status snapshot", "error", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		s.logger.Error("failed to encode status snapshot", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := false
		for _, o := range s.config.CORSOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}
		if allowed {
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			} else {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IsRunning reports whether the HTTP server is currently serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
