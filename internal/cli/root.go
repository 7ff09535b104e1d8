// Package cli wires configuration, logging, the selected store and the
// controller behind the todo command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/idilsaglam/livetodo/internal/app"
	"github.com/idilsaglam/livetodo/internal/config"
	"github.com/idilsaglam/livetodo/internal/logging"
	"github.com/idilsaglam/livetodo/internal/metrics"
	"github.com/idilsaglam/livetodo/internal/store"
	"github.com/idilsaglam/livetodo/internal/store/jsonstore"
	"github.com/idilsaglam/livetodo/internal/store/memstore"
	"github.com/idilsaglam/livetodo/internal/store/natskv"
	"github.com/idilsaglam/livetodo/internal/ui"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "todo"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
)

type globalFlags struct {
	configPath string
	backend    string
	collection string
	dataDir    string
	natsURL    string
	logLevel   string
}

// overrides returns flag values the user actually set.
func (g *globalFlags) overrides(cmd *cobra.Command) config.Overrides {
	var ov config.Overrides
	flags := cmd.Flags()
	pick := func(name string, v *string) *string {
		if flags.Changed(name) {
			return v
		}
		return nil
	}
	ov.Backend = pick("backend", &g.backend)
	ov.Collection = pick("collection", &g.collection)
	ov.DataDir = pick("data-dir", &g.dataDir)
	ov.NATSURL = pick("nats-url", &g.natsURL)
	ov.LogLevel = pick("log-level", &g.logLevel)
	return ov
}

// Execute runs the command tree against os.Args and returns the exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		ui.Fail(err.Error())
		return ExitFailure
	}
	return ExitOK
}

// NewRootCmd builds the todo command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   appName,
		Short: "A live to-do list over a document store",
		Long: `todo keeps a to-do list in a document store and shows it live.

Every change, wherever it comes from, reaches every open terminal and browser
through the store's subscription. Without a subcommand the interactive list
opens.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, g)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "Config file path (TOML)")
	pf.StringVar(&g.backend, "backend", config.DefaultBackend, "Store backend (memory, file, nats)")
	pf.StringVar(&g.collection, "collection", config.DefaultCollection, "Collection holding the items")
	pf.StringVar(&g.dataDir, "data-dir", config.DefaultDataDir, "Directory for the file backend")
	pf.StringVar(&g.natsURL, "nats-url", config.DefaultNATSURL, "NATS server URL for the nats backend")
	pf.StringVar(&g.logLevel, "log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")

	root.AddCommand(
		newTUICmd(g),
		newServeCmd(g),
		newListCmd(g),
		newAddCmd(g),
		newDoneCmd(g),
		newRmCmd(g),
		newConfigCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)
	return root
}

// session is everything one command needs. close releases it in reverse
// order of acquisition.
type session struct {
	cfg     *config.Config
	logger  *log.Logger
	metrics *metrics.Recorder
	store   store.DocumentStore
	ctrl    *app.Controller
	closers []io.Closer
}

func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			s.logger.Warn("close", "err", err)
		}
	}
}

// openSession loads config with ov layered on top, then opens the logger,
// the store and the controller. logOut receives log lines when no log file
// is configured.
func openSession(ctx context.Context, configPath string, ov config.Overrides, logOut io.Writer) (*session, error) {
	cfg, err := config.Load(configPath, ov)
	if err != nil {
		return nil, err
	}
	logger, logCloser, err := logging.New(cfg, logOut)
	if err != nil {
		return nil, err
	}
	s := &session{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
		closers: []io.Closer{logCloser},
	}
	if cfg.Source != "" {
		logger.Debug("config loaded", "file", cfg.Source)
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		s.close()
		return nil, err
	}
	s.store = st
	s.closers = append(s.closers, st)
	s.ctrl = app.New(st,
		app.WithCollection(cfg.Collection),
		app.WithLogger(logger),
		app.WithMetrics(s.metrics),
	)
	logger.Debug("store opened", "backend", cfg.Backend, "collection", cfg.Collection)
	return s, nil
}

// openStore connects the backend named by cfg.Backend.
func openStore(ctx context.Context, cfg *config.Config) (store.DocumentStore, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memstore.New(), nil
	case config.BackendFile:
		st, err := jsonstore.New(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
		return st, nil
	case config.BackendNATS:
		st, err := natskv.Connect(ctx, natskv.Options{URL: cfg.NATSURL, Name: appName})
		if err != nil {
			return nil, fmt.Errorf("open nats store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("%w %q", config.ErrUnknownBackend, cfg.Backend)
	}
}
