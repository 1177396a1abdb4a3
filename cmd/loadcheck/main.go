package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/studiowebux/loadcheck/internal/analytics"
	"github.com/studiowebux/loadcheck/internal/cli"
	"github.com/studiowebux/loadcheck/internal/config"
	"github.com/studiowebux/loadcheck/internal/history"
	"github.com/studiowebux/loadcheck/internal/mock"
	versioncheck "github.com/studiowebux/loadcheck/internal/version"
)

var (
	version = "0.1.0"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "loadcheck [routine-file]",
	Short: "Loadcheck - HTTP reliability and load verification engine",
	Long: `Loadcheck subjects an HTTP service to a configurable burst of synthetic
traffic, measures latency and error-rate distributions, samples system and
process resource consumption alongside, and verifies the service returns to
a healthy state within a defined time budget after the overload clears.

Routines are YAML or JSONC files describing the target, the load shape, the
thresholds, and the optional recovery descriptor.

Examples:
  loadcheck run routine.yaml           # Run a routine, render the report
  loadcheck run routine.yaml -o json   # Machine-readable report
  loadcheck run routine.yaml --no-history
  loadcheck runs --limit 10            # List recent runs
  loadcheck --help`,
	Version: version,
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return runRoutine(args[0])
		}
		return cmd.Help()
	},
}

var runCmd = &cobra.Command{
	Use:   "run <routine-file>",
	Short: "Execute a reliability routine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRoutine(args[0])
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent runs from the history database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRuns()
	},
}

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Show per-routine aggregates across past runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listTrends()
	},
}

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Run a local sandbox target for trying out routines",
	Long: `Starts an HTTP server with a work endpoint (configurable latency, jitter
and failure rate), a /health endpoint, and POST /overload and /recover
switches, so a routine with a recovery descriptor can be exercised end to
end without a real service.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMock()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and check for updates",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printVersion()
	},
}

// Flags for root/run command
var (
	flagOutput    string
	flagDB        string
	flagNoHistory bool
	flagEnvFile   string
	flagVerbose   bool
)

// Flags for runs
var (
	runsLimit int
)

// Flags for mock
var (
	mockHost        string
	mockPort        int
	mockLatency     int
	mockJitter      int
	mockFailureRate float64
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "History database path (default ~/.loadcheck/loadcheck.db)")

	rootCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Output format (text/json)")
	rootCmd.Flags().BoolVar(&flagNoHistory, "no-history", false, "Disable run history persistence")
	rootCmd.Flags().StringVar(&flagEnvFile, "env-file", "", "Load environment variables from file")

	// Run command flags (same as root)
	runCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Output format (text/json)")
	runCmd.Flags().BoolVar(&flagNoHistory, "no-history", false, "Disable run history persistence")
	runCmd.Flags().StringVar(&flagEnvFile, "env-file", "", "Load environment variables from file")

	// runs flags
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs to list")

	// mock flags
	mockCmd.Flags().StringVar(&mockHost, "host", "localhost", "Sandbox listen host")
	mockCmd.Flags().IntVar(&mockPort, "port", 8080, "Sandbox listen port")
	mockCmd.Flags().IntVar(&mockLatency, "latency", 20, "Base response latency in milliseconds")
	mockCmd.Flags().IntVar(&mockJitter, "jitter", 10, "Uniform latency jitter in milliseconds")
	mockCmd.Flags().Float64Var(&mockFailureRate, "failure-rate", 0, "Share of requests answered with 500 (0..1)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(trendsCmd)
	rootCmd.AddCommand(mockCmd)
	rootCmd.AddCommand(versionCmd)
}

// databasePath resolves the history database location
func databasePath() (string, error) {
	if flagDB != "" {
		return flagDB, nil
	}
	if err := config.Initialize(); err != nil {
		return "", fmt.Errorf("failed to initialize config: %w", err)
	}
	return config.DatabasePath, nil
}

// runRoutine executes a routine file
func runRoutine(filePath string) error {
	dbPath := ""
	if !flagNoHistory {
		var err error
		dbPath, err = databasePath()
		if err != nil {
			return err
		}
	}

	opts := cli.RunOptions{
		FilePath:     filePath,
		OutputFormat: flagOutput,
		DBPath:       dbPath,
		EnvFile:      flagEnvFile,
		Log:          newLogger(flagVerbose),
	}
	return cli.Run(opts)
}

// listRuns prints the most recent runs from the history database
func listRuns() error {
	dbPath, err := databasePath()
	if err != nil {
		return err
	}

	mgr, err := history.NewManager(dbPath)
	if err != nil {
		return err
	}
	defer mgr.Close()

	runs, err := mgr.ListRuns(runsLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	fmt.Printf("%-5s %-20s %-20s %-10s %9s %10s %10s %-6s %-6s\n",
		"ID", "NAME", "STARTED", "STATUS", "REQUESTS", "ERR_RATE", "P95_MS", "STRESS", "RECOV")
	for _, run := range runs {
		name := run.Name
		if name == "" {
			name = run.TargetURL
		}
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		p95 := "-"
		if run.P95LatencyMs != nil {
			p95 = fmt.Sprintf("%.1f", *run.P95LatencyMs)
		}

		fmt.Printf("%-5d %-20s %-20s %-10s %9d %9.1f%% %10s %-6s %-6s\n",
			run.ID, name, run.StartedAt.Format(time.DateTime), run.Status,
			run.TotalRequests, run.ErrorRate*100, p95, run.StressStatus, run.RecoveryStatus)
	}
	return nil
}

// listTrends prints per-routine aggregates across completed runs
func listTrends() error {
	dbPath, err := databasePath()
	if err != nil {
		return err
	}

	mgr, err := history.NewManager(dbPath)
	if err != nil {
		return err
	}
	defer mgr.Close()

	trends, err := analytics.TrendsByRoutine(mgr.DB())
	if err != nil {
		return fmt.Errorf("failed to compute trends: %w", err)
	}

	if len(trends) == 0 {
		fmt.Println("No completed runs recorded yet.")
		return nil
	}

	fmtP95 := func(v *float64) string {
		if v == nil {
			return "-"
		}
		return fmt.Sprintf("%.1f", *v)
	}

	fmt.Printf("%-20s %5s %9s %10s %10s %10s %10s %-6s %-20s\n",
		"NAME", "RUNS", "PASS", "AVG_P95", "BEST_P95", "WORST_P95", "ERR_RATE", "LAST", "LAST_RUN")
	for _, t := range trends {
		name := t.Name
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		fmt.Printf("%-20s %5d %8.0f%% %10s %10s %10s %9.1f%% %-6s %-20s\n",
			name, t.Runs, t.PassRate*100, fmtP95(t.AvgP95Ms), fmtP95(t.BestP95Ms), fmtP95(t.WorstP95Ms),
			t.AvgErrorRate*100, t.LastStatus, t.LastRun.Format(time.DateTime))
	}
	return nil
}

// runMock serves the sandbox target until interrupted
func runMock() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := mock.NewServer(mock.Config{
		Host:          mockHost,
		Port:          mockPort,
		BaseLatencyMs: mockLatency,
		JitterMs:      mockJitter,
		FailureRate:   mockFailureRate,
		Logging:       flagVerbose,
	}, newLogger(flagVerbose))

	if err := server.Start(ctx); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// printVersion prints the build version and checks the latest release
func printVersion() error {
	fmt.Printf("loadcheck %s\n", version)

	available, latest, url, err := versioncheck.CheckForUpdate(version)
	if err != nil {
		// Offline or rate-limited; the local version is still printed
		return nil
	}
	if available {
		fmt.Printf("Update available: %s (%s)\n", latest, url)
	}
	return nil
}
