package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/getmockd/mockserver/pkg/cli/internal/flags"
	"github.com/getmockd/mockserver/pkg/config"
	"github.com/getmockd/mockserver/pkg/engine"
	"github.com/getmockd/mockserver/pkg/logging"
)

// serveFlags holds all parsed command-line flags for the serve command.
type serveFlags struct {
	ports           []int
	configFile      string
	initFiles       flags.StringSlice
	logLevel        string
	logFormat       string
	logPushURL      string
	maxLogEntries   int
	forwardTimeout  time.Duration
	callbackTimeout time.Duration
	caseInsensitive bool
	tls             bool
	tlsCert         string
	tlsKey          string
	metricsPort     int
	printURL        bool
}

func newServeCmd() *cobra.Command {
	f := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the mock server (foreground)",
		Long: `Start the mock server and run it in the foreground until SIGINT or SIGTERM,
or until a client sends the stop command.

Settings are read from the defaults, then the --config file, then the
MOCKSERVER_* environment variables, then the flags given on the command line.`,
		Example: `  # Start on the default port 1080
  mockserver serve

  # Listen on two ports and load expectations at startup
  mockserver serve --port 1080 --port 1081 --init 'expectations/**/*.json'

  # Pick a free port and print the URL
  mockserver serve --port 0 --print-url

  # Accept HTTPS on the same port with a generated certificate
  mockserver serve --tls

  # Start from a configuration file with JSON logs
  mockserver serve --config mockserver.yaml --log-format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, f)
		},
	}

	registerServeFlags(cmd.Flags(), f)
	return cmd
}

func registerServeFlags(fl *pflag.FlagSet, f *serveFlags) {
	fl.IntSliceVarP(&f.ports, "port", "p", []int{1080}, "Port to listen on, repeatable (0 = pick a free port)")
	fl.StringVarP(&f.configFile, "config", "c", "", "Path to server configuration file (YAML or JSON)")
	fl.VarP(&f.initFiles, "init", "i", "Expectation file or glob loaded at startup, repeatable")
	fl.StringVar(&f.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fl.StringVar(&f.logFormat, "log-format", "text", "Log format (text, json)")
	fl.StringVar(&f.logPushURL, "log-push-url", "", "Loki-compatible push endpoint for operational logs")
	fl.IntVar(&f.maxLogEntries, "max-log-entries", 0, "Maximum recorded requests (0 = unbounded)")
	fl.DurationVar(&f.forwardTimeout, "forward-timeout", 20*time.Second, "Timeout for forward actions")
	fl.DurationVar(&f.callbackTimeout, "callback-timeout", 20*time.Second, "Timeout for callback actions")
	fl.BoolVar(&f.caseInsensitive, "case-insensitive", false, "Match methods and paths case-insensitively")
	fl.BoolVar(&f.tls, "tls", false, "Also accept TLS on every port")
	fl.StringVar(&f.tlsCert, "tls-cert", "", "PEM certificate for --tls (default: generated self-signed)")
	fl.StringVar(&f.tlsKey, "tls-key", "", "PEM private key for --tls")
	fl.IntVar(&f.metricsPort, "metrics-port", 0, "Serve Prometheus metrics on this port (0 = pick a free port)")
	fl.BoolVar(&f.printURL, "print-url", false, "Print the URL of every bound port to stdout on startup")
}

// loadServeConfig layers the config file, the environment and the changed
// flags over the defaults, and returns the directory relative initialization
// patterns resolve against.
func loadServeConfig(cmd *cobra.Command, f *serveFlags, lookup func(string) (string, bool)) (*config.ServerConfiguration, string, error) {
	cfg := config.DefaultServerConfiguration()
	baseDir := ""
	if f.configFile != "" {
		loaded, err := config.LoadFromFile(f.configFile)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		baseDir = filepath.Dir(f.configFile)
	}

	if err := cfg.ApplyEnvFrom(lookup); err != nil {
		return nil, "", err
	}

	fl := cmd.Flags()
	if fl.Changed("port") {
		cfg.Ports = f.ports
	}
	if fl.Changed("init") {
		// Flag patterns are relative to the working directory.
		cfg.InitializationFiles = nil
		for _, pattern := range f.initFiles {
			abs, err := filepath.Abs(pattern)
			if err != nil {
				return nil, "", fmt.Errorf("resolving %s: %w", pattern, err)
			}
			cfg.InitializationFiles = append(cfg.InitializationFiles, abs)
		}
	}
	if fl.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if fl.Changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
	if fl.Changed("log-push-url") {
		cfg.LogPushURL = f.logPushURL
	}
	if fl.Changed("max-log-entries") {
		cfg.MaxLogEntries = f.maxLogEntries
	}
	if fl.Changed("forward-timeout") {
		cfg.ForwardTimeout = config.Duration(f.forwardTimeout)
	}
	if fl.Changed("callback-timeout") {
		cfg.CallbackTimeout = config.Duration(f.callbackTimeout)
	}
	if fl.Changed("case-insensitive") {
		cfg.Matching.CaseInsensitive = f.caseInsensitive
	}
	if fl.Changed("tls") {
		cfg.TLS.Enabled = f.tls
	}
	if fl.Changed("tls-cert") {
		cfg.TLS.CertFile = f.tlsCert
	}
	if fl.Changed("tls-key") {
		cfg.TLS.KeyFile = f.tlsKey
	}
	if fl.Changed("metrics-port") {
		cfg.Metrics = config.MetricsConfig{Enabled: true, Port: f.metricsPort}
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, baseDir, nil
}

// runServe starts the server and blocks until ctx is done or the server is
// stopped through the control plane.
func runServe(ctx context.Context, cmd *cobra.Command, f *serveFlags) error {
	cfg, baseDir, err := loadServeConfig(cmd, f, os.LookupEnv)
	if err != nil {
		return err
	}

	log, closer := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.LogLevel),
		Format:  logging.ParseFormat(cfg.LogFormat),
		Output:  cmd.ErrOrStderr(),
		PushURL: cfg.LogPushURL,
	})
	defer func() { _ = closer.Close() }()

	srv := engine.NewServer(cfg,
		engine.WithLogger(log.With("component", "engine")),
		engine.WithBaseDir(baseDir),
	)
	if err := srv.Start(ctx); err != nil {
		_ = srv.Stop(context.Background())
		if errors.Is(err, engine.ErrPortInUse) {
			return fmt.Errorf("%w (try --port 0 to pick a free port)", err)
		}
		return fmt.Errorf("failed to start server: %w", err)
	}

	ports := srv.Ports()
	if f.printURL {
		for _, p := range ports {
			fmt.Fprintf(cmd.OutOrStdout(), "http://localhost:%d\n", p)
			if cfg.TLS.Enabled {
				fmt.Fprintf(cmd.OutOrStdout(), "https://localhost:%d\n", p)
			}
		}
	}
	log.Info("server started", "ports", ports, "expectations", srv.Registry().Count())
	if p := srv.MetricsPort(); p != 0 {
		log.Info("metrics available", "url", fmt.Sprintf("http://localhost:%d/metrics", p))
	}

	select {
	case <-srv.Done():
		log.Info("stopped through the control plane")
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	return srv.Stop(context.Background())
}
