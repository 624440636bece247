package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/studiowebux/loadgen/internal/cli"
	"github.com/studiowebux/loadgen/internal/config"
	"github.com/studiowebux/loadgen/internal/logging"
	"github.com/studiowebux/loadgen/internal/mock"
	"github.com/studiowebux/loadgen/internal/stresstest"
	"github.com/studiowebux/loadgen/internal/version"
	"go.uber.org/zap"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "loadgen [url...]",
	Short: "loadgen - sustained HTTP GET load generator",
	Long: `loadgen keeps a pool of workers issuing GET requests against a fixed set of
target URLs until interrupted, printing throughput and error counts at a fixed
interval.

Targets come from -t flags, positional arguments, LOADGEN_TARGETS or the
config file. Every status other than 200 counts as an error.

Examples:
  loadgen http://localhost:5000/api/robots http://localhost:5000/
  loadgen -t http://localhost:5000/api -w 100 -i 1s
  loadgen run -c loadgen.yaml --duration 1m --metrics-addr :9090
  loadgen mock --alternate                # local target answering 200/500
  loadgen runs list                       # recorded runs`,
	Version:       version.Version,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLoadTest(cmd, args)
	},
}

var runCmd = &cobra.Command{
	Use:   "run [url...]",
	Short: "Run a load test until interrupted",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLoadTest(cmd, args)
	},
}

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Serve a mock target for load tests",
	Long: `Serve a mock HTTP target until interrupted.

Without --config every GET answers 200, or alternates 200 and 500 with
--alternate. A config file (.yaml, .yml or .json) defines routes, each with a
fixed status or a list of statuses served in turn.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMock(cmd)
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded load test runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(m *stresstest.Manager) error {
			runs, err := m.ListRuns(runsLimit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			cli.PrintRuns(cmd.OutOrStdout(), runs)
			return nil
		})
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one run and its progress lines",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid run id %q", args[0])
		}
		return withManager(func(m *stresstest.Manager) error {
			run, err := m.GetRun(id)
			if err != nil {
				return fmt.Errorf("run %d not found: %w", id, err)
			}
			intervals, err := m.GetIntervals(id)
			if err != nil {
				return fmt.Errorf("failed to load intervals: %w", err)
			}
			cli.PrintRun(cmd.OutOrStdout(), run, intervals)
			return nil
		})
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a run and its progress lines",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid run id %q", args[0])
		}
		return withManager(func(m *stresstest.Manager) error {
			if _, err := m.GetRun(id); err != nil {
				return fmt.Errorf("run %d not found: %w", id, err)
			}
			if err := m.DeleteRun(id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %d\n", id)
			return nil
		})
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with the default settings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.FileName + ".yaml"
		if len(args) > 0 {
			path = args[0]
		}
		if err := config.WriteSample(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

// Flags for mock
var (
	mockConfigPath string
	mockPort       int
	mockAlternate  bool
	mockLogLevel   string
)

// Flags for runs
var (
	runsDBPath string
	runsLimit  int
)

func init() {
	// Root and run share the load test flags
	config.AddFlags(rootCmd.Flags())
	config.AddFlags(runCmd.Flags())

	mockCmd.Flags().StringVarP(&mockConfigPath, "config", "c", "", "Mock config file (.yaml, .yml or .json)")
	mockCmd.Flags().IntVarP(&mockPort, "port", "p", 8080, "Port to listen on")
	mockCmd.Flags().BoolVar(&mockAlternate, "alternate", false, "Alternate 200 and 500 responses")
	mockCmd.Flags().StringVar(&mockLogLevel, "log-level", logging.LevelInfo, "Log level, debug logs every request")

	runsCmd.PersistentFlags().StringVar(&runsDBPath, "db", "", "History database path (default ~/.loadgen/loadgen.db)")
	runsListCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Maximum number of runs to list, 0 for all")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsDeleteCmd)
	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(mockCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(configCmd)
}

// runLoadTest merges the configuration and drives one run until SIGINT,
// SIGTERM or the configured duration
func runLoadTest(cmd *cobra.Command, args []string) error {
	if err := config.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	settings, err := config.Load(cmd.Flags(), args)
	if err != nil {
		return err
	}

	logger, err := logging.New(settings.LogLevel, settings.LogJSON)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if settings.ConfigFile != "" {
		logger.Info("using config file", zap.String("path", settings.ConfigFile))
	}

	var manager *stresstest.Manager
	if settings.History {
		manager, err = stresstest.NewManager(settings.DBPath)
		if err != nil {
			// History is optional, the run goes on without it
			logger.Warn("run history disabled", zap.String("db", settings.DBPath), zap.Error(err))
			manager = nil
		} else {
			defer manager.Close()
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return cli.Run(ctx, cli.RunOptions{
		Config:      settings.LoadTestConfig(version.UserAgent()),
		Output:      cmd.OutOrStdout(),
		Manager:     manager,
		Logger:      logger,
		MetricsAddr: settings.MetricsAddr,
	})
}

// runMock serves the mock target until SIGINT or SIGTERM
func runMock(cmd *cobra.Command) error {
	logger, err := logging.New(mockLogLevel, false)
	if err != nil {
		return err
	}
	defer logger.Sync()

	mockConfig := mock.DefaultConfig(mockAlternate)
	workdir := "."
	if mockConfigPath != "" {
		mockConfig, err = mock.LoadConfig(mockConfigPath)
		if err != nil {
			return err
		}
		workdir = filepath.Dir(mockConfigPath)
	}
	if cmd.Flags().Changed("port") || mockConfig.Port == 0 {
		mockConfig.Port = mockPort
	}
	if mockLogLevel == logging.LevelDebug {
		mockConfig.Logging = true
	}

	server, err := mock.NewServer(mockConfig, workdir, logger)
	if err != nil {
		return err
	}

	ln, err := server.Listen()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Mock server listening on %s. Ctrl+C to stop.\n", server.GetAddress())
	return server.Serve(ctx, ln)
}

// withManager opens the history database for the runs subcommands
func withManager(fn func(m *stresstest.Manager) error) error {
	if err := config.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	dbPath := runsDBPath
	if dbPath == "" {
		dbPath = config.DatabasePath
	}

	manager, err := stresstest.NewManager(dbPath)
	if err != nil {
		return err
	}
	defer manager.Close()

	return fn(manager)
}

