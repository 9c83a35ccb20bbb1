// Package cli wires configuration, storage, metrics and the simulator into
// the fogsim command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/casperlundberg/fog-offloader/internal/api"
	"github.com/casperlundberg/fog-offloader/internal/config"
	"github.com/casperlundberg/fog-offloader/internal/database"
	"github.com/casperlundberg/fog-offloader/internal/metrics"
	"github.com/casperlundberg/fog-offloader/internal/simulation"
)

type rootOptions struct {
	configFile string
	logLevel   string
	dbPath     string
	noDB       bool
}

// BuildCLI returns the fogsim root command
func BuildCLI() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "fogsim",
		Short: "Reliability-aware fog task offloading simulator",
		Long: `fogsim places a stream of deadline-constrained tasks on fog nodes,
choosing a primary and a backup node per task with a Q-learning controller.
Runs and sweeps can be stored in sqlite and browsed through the HTTP API.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file path (defaults are used when empty)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: trace, debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "sqlite database path (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&opts.noDB, "no-db", false, "do not persist results")

	rootCmd.AddCommand(buildRunCommand(opts))
	rootCmd.AddCommand(buildSweepCommand(opts))
	rootCmd.AddCommand(buildServeCommand(opts))

	return rootCmd
}

func (o *rootOptions) load(errOut io.Writer) (*config.Config, hclog.Logger, error) {
	cfg, err := config.LoadOrDefault(o.configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.dbPath != "" {
		cfg.Database.Path = o.dbPath
	}
	if o.noDB {
		cfg.Database.Path = ""
	}

	level := hclog.LevelFromString(cfg.Log.Level)
	if level == hclog.NoLevel {
		return nil, nil, fmt.Errorf("unknown log level %q", cfg.Log.Level)
	}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "fogsim",
		Level:  level,
		Output: errOut,
	})
	return cfg, logger, nil
}

func openRepository(path string) (*database.DB, *database.Repository, error) {
	if path == "" {
		return nil, nil, nil
	}
	db, err := database.NewDatabase(path)
	if err != nil {
		return nil, nil, err
	}
	return db, database.NewRepository(db), nil
}

func runOptions(cfg *config.Config, name string) simulation.Options {
	return simulation.Options{
		Name:        name,
		Environment: cfg.Environment,
		Agent:       cfg.Agent,
		Generator:   cfg.Generator.Ranges,
		Tasks:       cfg.Generator.Tasks,
		Seed:        cfg.Generator.Seed,
	}
}

// serveMetrics exposes reg on port until ctx is done; port <= 0 disables it
func serveMetrics(ctx context.Context, reg *prometheus.Registry, port int, logger hclog.Logger) {
	if port <= 0 {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func buildRunCommand(opts *rootOptions) *cobra.Command {
	var (
		name        string
		seed        int64
		tasks       int
		metricsPort int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one simulation and print the final allocation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("seed") {
				cfg.Generator.Seed = seed
			}
			if cmd.Flags().Changed("tasks") {
				cfg.Generator.Tasks = tasks
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			reg := prometheus.NewRegistry()
			collector := metrics.NewCollector(reg)
			serveMetrics(ctx, reg, metricsPort, logger)

			db, repo, err := openRepository(cfg.Database.Path)
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
			}

			runOpts := runOptions(cfg, name)
			var recorder simulation.Recorder
			if repo != nil {
				dc, err := simulation.NewDBCollector(repo, simulation.RunInfo{
					Name:        name,
					Seed:        runOpts.Seed,
					Nodes:       runOpts.Environment.NumNodes,
					Tasks:       runOpts.Tasks,
					DrainPolicy: string(runOpts.Environment.DrainPolicy),
					Config:      cfg,
				})
				if err != nil {
					return err
				}
				recorder = dc
			}

			runner, err := simulation.NewRunner(runOpts, recorder, collector, logger)
			if err != nil {
				if recorder != nil {
					_ = recorder.Close(simulation.Summary{}, database.StatusFailed)
				}
				return err
			}
			res, err := runner.Run(ctx)
			printResult(cmd.OutOrStdout(), res)
			return err
		},
	}

	cmd.Flags().StringVar(&name, "name", "run", "run name")
	cmd.Flags().Int64Var(&seed, "seed", 0, "task stream seed (overrides config)")
	cmd.Flags().IntVar(&tasks, "tasks", 0, "number of tasks (overrides config)")
	cmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "expose Prometheus metrics on this port while running")

	return cmd
}

func printResult(w io.Writer, res simulation.Result) {
	s := res.Summary
	fmt.Fprintf(w, "Run %s\n", res.RunID)
	fmt.Fprintf(w, "  Steps: %d (accepted %d, primary rejected %d, backup rejected %d)\n",
		s.Steps, s.Accepted, s.PrimaryRejected, s.BackupRejected)
	fmt.Fprintf(w, "  Aggregate reliability: %.6f\n", s.AggregateReliability)
	fmt.Fprintf(w, "  Workload imbalance: %.4g\n", s.WorkloadImbalance)
	fmt.Fprintf(w, "  Total reward: %.4f\n", s.TotalReward)
	fmt.Fprintf(w, "  Exploration rate: %.4f (%d states)\n", s.FinalExplorationRate, s.StateCount)

	for _, a := range res.Allocation {
		fmt.Fprintf(w, "Fog Node %d (load %.0f):\n", a.Node, a.Load)
		fmt.Fprintf(w, "  Primary Queue: %v\n", a.Primary)
		fmt.Fprintf(w, "  Backup Queue: %v\n", a.Backup)
	}
}

func buildSweepCommand(opts *rootOptions) *cobra.Command {
	var metricsPort int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the configured grid of node counts, task counts and failure rates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			reg := prometheus.NewRegistry()
			collector := metrics.NewCollector(reg)
			serveMetrics(ctx, reg, metricsPort, logger)

			db, repo, err := openRepository(cfg.Database.Path)
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
			}

			grid := simulation.SweepGrid{
				NodeCounts:   cfg.Sweep.NodeCounts,
				TaskCounts:   cfg.Sweep.TaskCounts,
				FailureRates: cfg.Sweep.FailureRates,
			}
			sweep, err := simulation.NewSweep(runOptions(cfg, "sweep"), grid, repo, collector, logger)
			if err != nil {
				return err
			}
			res, err := sweep.Run(ctx)
			printSweep(cmd.OutOrStdout(), res)
			return err
		},
	}

	cmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "expose Prometheus metrics on this port while running")

	return cmd
}

func printSweep(w io.Writer, res simulation.SweepResult) {
	fmt.Fprintf(w, "Sweep %s\n", res.SweepID)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NODES\tTASKS\tFAILURE RATE\tRELIABILITY\tIMBALANCE\tACCEPTANCE\tREWARD")
	for _, p := range res.Points {
		fmt.Fprintf(tw, "%d\t%d\t%g\t%.6f\t%.4g\t%.2f\t%.4f\n",
			p.Nodes, p.Tasks, p.FailureRate, p.AggregateReliability, p.WorkloadImbalance, p.AcceptanceRate, p.TotalReward)
	}
	tw.Flush()
}

func buildServeCommand(opts *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored runs and sweeps over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cfg.Database.Path == "" {
				return fmt.Errorf("serve needs a database path")
			}

			db, repo, err := openRepository(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			server := api.NewServer(repo, api.Config{
				Port:           cfg.Server.Port,
				AllowedOrigins: cfg.Server.AllowedOrigins,
			}, logger.Named("api"))
			return server.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "port to listen on (overrides config)")

	return cmd
}
