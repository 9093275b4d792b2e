package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-pairank/infrastructure/middleware"
	"github.com/ahrav/go-pairank/infrastructure/store"
	"github.com/ahrav/go-pairank/internal/application"
	"github.com/ahrav/go-pairank/internal/ports"
	"github.com/ahrav/go-pairank/internal/rating"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	config   string
	db       string
	logLevel string
}

// app holds what the subcommands share once configuration is loaded.
type app struct {
	flags globalFlags

	cfg      application.Config
	reader   *application.Reader
	registry *prometheus.Registry
	metrics  *middleware.PrometheusMetrics
	server   *http.Server

	// agent builds candidates for evaluate --prompt-file. The CLI ships
	// without one; programs embedding the commands may set it.
	agent ports.AgentRunner
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "pairank",
		Short: "Pairwise LLM-judged ratings for code candidates",
		Long: `pairank places code candidates on a common scale by asking an LLM judge
to compare pairs of them and fitting a Bradley-Terry (or ELO) model to the
outcomes stored in a SQLite database.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.config, "config", "", "YAML configuration file (default $"+application.EnvConfigFile+")")
	pf.StringVar(&a.flags.db, "db", "", "comparison database path (overrides store.path)")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "debug, info, warn or error (overrides log.level)")

	root.AddCommand(
		newRankCmd(a),
		newStatsCmd(a),
		newHistoryCmd(a),
		newExportCmd(a),
		newRecordCmd(a),
		newJudgeCmd(a),
		newEvaluateCmd(a),
		newRejudgeCmd(a),
	)
	return root
}

// setup loads configuration, installs the logger and starts the metrics
// endpoint when one is configured.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, reader, err := application.Load(ctx, a.flags.config)
	if err != nil {
		return err
	}
	if a.flags.db != "" {
		cfg.Store.Path = a.flags.db
	}
	if a.flags.logLevel != "" {
		cfg.Log.Level = strings.ToLower(a.flags.logLevel)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg, a.reader = cfg, reader

	log := clog.New(newLogHandler(cmd.ErrOrStderr(), cfg.Log))
	ctx = clog.WithLogger(ctx, log)
	cmd.SetContext(ctx)

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = middleware.NewPrometheusMetrics(a.registry)

	if cfg.Metrics.Addr != "" {
		if err := a.serveMetrics(ctx, cfg.Metrics.Addr); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) teardown(cmd *cobra.Command, _ []string) error {
	if a.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), 5*time.Second)
	defer cancel()
	return a.server.Shutdown(ctx)
}

func (a *app) serveMetrics(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	a.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	log := clog.FromContext(ctx).With("addr", ln.Addr().String())
	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.With("error", err).Error("Metrics server stopped")
		}
	}()
	log.Info("Serving metrics")
	return nil
}

func newLogHandler(w io.Writer, cfg application.LogConfig) slog.Handler {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// openStore opens the database at path with the configured estimator.
func (a *app) openStore(ctx context.Context, path string) (*store.Store, error) {
	est, err := rating.New(a.cfg.Rating)
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, path, est, store.WithMetrics(a.metrics))
}
