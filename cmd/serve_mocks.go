package cmd

import (
	"os"

	"github.com/spf13/cobra"

	mcptesting "mcptape/internal/testing"
	"mcptape/pkg/logging"
)

// serveMocksCmd exposes recorded tool calls as an MCP server
var serveMocksCmd = &cobra.Command{
	Use:   "serve-mocks",
	Short: "Serve recorded tool responses as an MCP server over stdio",
	Long: `Starts an MCP server on stdin/stdout whose tools are the recorded tools in
the data directory. A call is answered with the recorded response for exactly
those arguments; a call without a recording returns a tool error listing the
argument sets that were recorded.

Point an MCP client at "mcptape serve-mocks" to use recordings without the
original server.`,
	Args: cobra.NoArgs,
	RunE: runServeMocks,
}

func runServeMocks(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	store, err := openStore()
	if err != nil {
		return err
	}
	ms, err := mcptesting.NewMockServer(store)
	if err != nil {
		return err
	}
	logging.Info("MockServer", "Serving %d recorded tools over stdio", len(ms.Tools()))
	return ms.Serve(ctx, os.Stdin, os.Stdout)
}

func init() {
	rootCmd.AddCommand(serveMocksCmd)
}
