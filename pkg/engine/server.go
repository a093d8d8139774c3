package engine

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/getmockd/mockserver/internal/matching"
	"github.com/getmockd/mockserver/pkg/codec"
	"github.com/getmockd/mockserver/pkg/config"
	"github.com/getmockd/mockserver/pkg/logging"
	"github.com/getmockd/mockserver/pkg/metrics"
	"github.com/getmockd/mockserver/pkg/mock"
	"github.com/getmockd/mockserver/pkg/proxy"
	"github.com/getmockd/mockserver/pkg/requestlog"
	mocktls "github.com/getmockd/mockserver/pkg/tls"
)

// Server is a mock server listening on any number of ports. Every port
// serves the same control and data planes.
type Server struct {
	cfg         *config.ServerConfiguration
	log         *slog.Logger
	now         func() time.Time
	transport   http.RoundTripper
	baseDir     string
	callbacks   map[string]CallbackFunc
	registry    *Registry
	requests    *requestlog.MemoryStore
	actions     *ActionHandler
	handler     *Handler
	httpHandler http.Handler
	metrics     *metrics.Registry
	listening   *metrics.Gauge

	mu        sync.Mutex
	tlsConfig *tls.Config
	listeners []*listener
	metricsLn *listener
	stopped   bool
	done      chan struct{}
}

type listener struct {
	port int
	tls  bool
	srv  *http.Server
}

// ServerOption is a functional option for configuring a Server.
type ServerOption func(*Server)

// WithLogger sets the operational logger for the server.
func WithLogger(log *slog.Logger) ServerOption {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock sets the clock used for time-to-live and request timestamps.
func WithClock(now func() time.Time) ServerOption {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithForwardTransport overrides the transport used by forward and
// webhook callback actions.
func WithForwardTransport(rt http.RoundTripper) ServerOption {
	return func(s *Server) {
		s.transport = rt
	}
}

// WithCallback registers an in-process callback usable by expectations
// whose httpCallback names it.
func WithCallback(name string, fn CallbackFunc) ServerOption {
	return func(s *Server) {
		s.callbacks[name] = fn
	}
}

// WithBaseDir sets the directory relative initialization file patterns
// resolve against.
func WithBaseDir(dir string) ServerOption {
	return func(s *Server) {
		s.baseDir = dir
	}
}

// WithTLSConfig serves TLS on every bound port using config, overriding
// the certificate settings of the server configuration.
func WithTLSConfig(config *tls.Config) ServerOption {
	return func(s *Server) {
		s.tlsConfig = config
	}
}

// NewServer creates a Server with the given configuration. No port is bound
// until Start or Bind is called.
func NewServer(cfg *config.ServerConfiguration, opts ...ServerOption) *Server {
	if cfg == nil {
		cfg = config.DefaultServerConfiguration()
	}

	s := &Server{
		cfg:       cfg,
		log:       logging.Nop(),
		now:       time.Now,
		callbacks: make(map[string]CallbackFunc),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	matcher := matching.New(matching.Options{CaseInsensitive: cfg.Matching.CaseInsensitive})
	wire := codec.New(codec.Options{
		BinaryMediaTypes: cfg.BinaryMediaTypes,
		MaxBodySize:      cfg.MaxBodySize,
	})
	forwarder := proxy.New(proxy.Options{
		Timeout:       cfg.ForwardTimeout.Std(),
		MaxConcurrent: cfg.MaxConcurrentForwards,
		Codec:         wire,
		Transport:     s.transport,
		Logger:        s.log,
	})

	s.registry = NewRegistry(
		WithRegistryMatcher(matcher),
		WithRegistryClock(s.now),
		WithRegistryLogger(s.log),
	)
	s.requests = requestlog.NewMemoryStore(
		requestlog.WithMaxEntries(cfg.MaxLogEntries),
		requestlog.WithMatcher(matcher),
		requestlog.WithClock(s.now),
	)
	s.metrics = metrics.NewRegistry()
	registerServerGauges(s.metrics, s)
	s.listening = newListenerGauge(s.metrics)
	s.actions = NewActionHandler(forwarder, cfg.CallbackTimeout.Std(), s.log)
	for name, fn := range s.callbacks {
		s.actions.RegisterCallback(name, fn)
	}
	s.handler = NewHandler(s.registry, s.requests, s.actions,
		WithHandlerCodec(wire),
		WithHandlerMatcher(matcher),
		WithHandlerLogger(s.log),
		WithHandlerMetrics(NewMetrics(s.metrics)),
		WithController(s),
	)
	s.httpHandler = h2c.NewHandler(s.handler, &http2.Server{})
	return s
}

// Registry returns the expectation registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// RequestLog returns the request log.
func (s *Server) RequestLog() requestlog.Store {
	return s.requests
}

// Handler returns the handler shared by all listeners, without h2c support.
func (s *Server) Handler() *Handler {
	return s.handler
}

// Metrics returns the registry holding the server metrics.
func (s *Server) Metrics() *metrics.Registry {
	return s.metrics
}

// RegisterCallback registers an in-process callback after construction.
func (s *Server) RegisterCallback(name string, fn CallbackFunc) {
	s.actions.RegisterCallback(name, fn)
}

// Start registers the expectations from the configured initialization
// files and binds the configured ports.
func (s *Server) Start(ctx context.Context) error {
	if len(s.cfg.InitializationFiles) > 0 {
		exps, err := config.LoadInitializationExpectations(s.cfg.InitializationFiles, s.baseDir)
		if err != nil {
			return fmt.Errorf("loading initialization files: %w", err)
		}
		if err := s.AddExpectations(exps); err != nil {
			return err
		}
		s.log.Info("loaded initialization expectations", "count", len(exps))
	}

	if _, err := s.Bind(ctx, s.cfg.Ports); err != nil {
		return err
	}
	if s.cfg.Metrics.Enabled {
		if err := s.serveMetrics(ctx); err != nil {
			return err
		}
	}
	return nil
}

// serveMetrics starts the listener exposing /metrics.
func (s *Server) serveMetrics(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort("", strconv.Itoa(s.cfg.Metrics.Port)))
	if err != nil {
		return fmt.Errorf("%w: metrics %d: %v", ErrPortInUse, s.cfg.Metrics.Port, err)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", s.metrics.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: s.cfg.ReadTimeout.Std(),
		ErrorLog:          slog.NewLogLogger(s.log.Handler(), slog.LevelDebug),
	}
	port := ln.Addr().(*net.TCPAddr).Port

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerStopped
	}
	s.metricsLn = &listener{port: port, srv: srv}
	s.mu.Unlock()

	s.log.Info("serving metrics", "port", port)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("metrics listener failed", "port", port, "error", err)
		}
	}()
	return nil
}

// MetricsPort returns the port serving /metrics, or 0 when metrics are not
// served.
func (s *Server) MetricsPort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metricsLn == nil {
		return 0
	}
	return s.metricsLn.port
}

// AddExpectations registers expectations in order.
func (s *Server) AddExpectations(exps []*mock.Expectation) error {
	for _, exp := range exps {
		if err := s.registry.Add(exp); err != nil {
			return fmt.Errorf("registering expectation: %w", err)
		}
	}
	return nil
}

// Bind opens listeners on ports and returns the ports actually bound, in
// request order. Port 0 picks a free port. Either every port is bound or
// none is.
func (s *Server) Bind(ctx context.Context, ports []int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, ErrServerStopped
	}
	if s.tlsConfig == nil && s.cfg.TLS.Enabled {
		cert, err := mocktls.LoadOrGenerate(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("tls: %w", err)
		}
		s.tlsConfig = mocktls.ServerConfig(cert)
	}

	var lc net.ListenConfig
	opened := make([]net.Listener, 0, len(ports))
	closeOpened := func() {
		for _, ln := range opened {
			_ = ln.Close()
		}
	}
	for _, port := range ports {
		ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort("", strconv.Itoa(port)))
		if err != nil {
			closeOpened()
			return nil, fmt.Errorf("%w: %d: %v", ErrPortInUse, port, err)
		}
		opened = append(opened, ln)
	}

	bound := make([]int, 0, len(opened))
	for _, ln := range opened {
		port := ln.Addr().(*net.TCPAddr).Port
		srv := &http.Server{
			Handler:           s.httpHandler,
			ReadHeaderTimeout: s.cfg.ReadTimeout.Std(),
			ReadTimeout:       s.cfg.ReadTimeout.Std(),
			WriteTimeout:      s.cfg.WriteTimeout.Std(),
			ErrorLog:          slog.NewLogLogger(s.log.Handler(), slog.LevelDebug),
		}
		if s.tlsConfig != nil {
			if err := http2.ConfigureServer(srv, &http2.Server{}); err != nil {
				s.log.Warn("http/2 over tls unavailable", "port", port, "error", err)
			}
			ln = mocktls.NewListener(ln, s.tlsConfig, s.cfg.ReadTimeout.Std(), s.log)
		}
		l := &listener{port: port, tls: s.tlsConfig != nil, srv: srv}
		s.listeners = append(s.listeners, l)
		trackListeners(s.listening, l, 1)
		bound = append(bound, port)

		s.log.Info("listening", "port", port, "tls", s.tlsConfig != nil)
		go func(ln net.Listener) {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("listener failed", "port", port, "error", err)
			}
		}(ln)
	}
	return bound, nil
}

// Ports returns the bound ports in bind order.
func (s *Server) Ports() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ports := make([]int, len(s.listeners))
	for i, l := range s.listeners {
		ports[i] = l.port
	}
	return ports
}

// Stop gracefully shuts down every listener, waiting for in-flight
// exchanges up to the configured shutdown timeout. Later calls do nothing.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	listeners := s.listeners
	s.listeners = nil
	for _, l := range listeners {
		trackListeners(s.listening, l, -1)
	}
	if s.metricsLn != nil {
		listeners = append(listeners, s.metricsLn)
		s.metricsLn = nil
	}
	s.mu.Unlock()
	defer close(s.done)

	if timeout := s.cfg.ShutdownTimeout.Std(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var g errgroup.Group
	for _, l := range listeners {
		g.Go(func() error {
			if err := l.srv.Shutdown(ctx); err != nil {
				_ = l.srv.Close()
				return fmt.Errorf("port %d shutdown: %w", l.port, err)
			}
			return nil
		})
	}
	err := g.Wait()
	s.log.Info("stopped", "ports", len(listeners))
	return err
}

// Done is closed once Stop has finished.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

var _ Controller = (*Server)(nil)
