package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcptesting "mcptape/internal/testing"
	"mcptape/pkg/logging"
)

var (
	runRecord    bool
	runReplay    bool
	runFallback  bool
	runSessionID string
	runParallel  int
	runOutput    string
	runVerbose   bool
)

// runCmd runs a test spec against its servers
var runCmd = &cobra.Command{
	Use:   "run <spec.yaml>",
	Short: "Run a test spec",
	Long: `Runs every test of a YAML test spec against every server it names and
prints a report grouped by server.

Recording and replay are controlled per spec and per test through
use_mocks and record_mocks. --record and --replay override both for the
whole run; when both are given, --record wins.

The run is saved under the data directory and the exit code is 0 whenever
the run completes, whatever the verdicts.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSpec(cmd, args[0], mcptesting.OverrideFor(runRecord, runReplay))
	},
}

// recordCmd is run with recording forced on
var recordCmd = &cobra.Command{
	Use:   "record <spec.yaml>",
	Short: "Run a test spec and record every live response",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSpec(cmd, args[0], mcptesting.OverrideRecord)
	},
}

// replayCmd is run with recordings instead of servers
var replayCmd = &cobra.Command{
	Use:   "replay <spec.yaml>",
	Short: "Run a test spec from recorded responses",
	Long: `Runs a test spec answering every call from the recordings in the data
directory. A call without a recording fails the test unless --fallback is
given, in which case it falls through to the live server.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSpec(cmd, args[0], mcptesting.OverrideReplay)
	},
}

func runSpec(cmd *cobra.Command, path string, override mcptesting.Override) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	spec, err := mcptesting.LoadSpec(path)
	if err != nil {
		return err
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	runner, err := newBatchRunner(store)
	if err != nil {
		return err
	}

	parallel := runParallel
	if parallel == 0 {
		parallel = appConfig.Defaults.Parallel
	}
	run, err := runner.Run(ctx, spec, mcptesting.RunOptions{
		SessionID: runSessionID,
		Override:  override,
		Fallback:  runFallback || appConfig.Replay.Fallback,
		Parallel:  parallel,
	})
	if err != nil {
		return err
	}

	if err := mcptesting.NewReporter(cmd.OutOrStdout(), runVerbose).Report(run); err != nil {
		return err
	}
	if runOutput != "" {
		if err := mcptesting.WriteResultsFile(runOutput, run); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Results written to %s\n", runOutput)
	}
	if err := exportMetrics(run, appConfig.Metrics.Textfile); err != nil {
		logging.Error("Metrics", err, "Could not export run metrics")
	}
	return nil
}

// signalContext returns the command context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			logging.Warn("CLI", "Received interrupt signal, stopping")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

func addRunFlags(c *cobra.Command) {
	c.Flags().BoolVar(&runFallback, "fallback", false, "Call the live server when a replayed call has no recording")
	c.Flags().StringVar(&runSessionID, "session", "", "Session id for the run (default: random UUID)")
	c.Flags().IntVar(&runParallel, "parallel", 0, "Maximum concurrent calls (default: config, 0 means unbounded)")
	c.Flags().StringVarP(&runOutput, "output", "o", "", "Also write the results as JSON to this file")
	c.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Show arguments and responses of every test")
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(replayCmd)

	runCmd.Flags().BoolVar(&runRecord, "record", false, "Record every live response")
	runCmd.Flags().BoolVar(&runReplay, "replay", false, "Answer every call from recordings")
	addRunFlags(runCmd)
	addRunFlags(recordCmd)
	addRunFlags(replayCmd)
}
