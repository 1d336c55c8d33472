package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mcptape/internal/discovery"
	"mcptape/internal/registry"
	mcptesting "mcptape/internal/testing"
)

var discoverSave bool

// discoverCmd lists what a server offers
var discoverCmd = &cobra.Command{
	Use:   "discover <server>",
	Short: "Discover the tools, prompts and resources of a server",
	Long: `Connects to a server and lists its tools, prompts and resources.

The server is a name from the config, an http(s) URL, a Python script or a
command line. With --save the manifest is written to the data directory,
where workflow runs use it for parameter mapping without asking the server.`,
	Args: cobra.ExactArgs(1),
	RunE: runDiscover,
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	client, err := dialServer(ctx, args[0])
	if err != nil {
		return err
	}
	defer client.Close()

	caps, err := discovery.Discover(ctx, client, args[0])
	if err != nil {
		return err
	}
	if err := renderCapabilities(cmd.OutOrStdout(), caps); err != nil {
		return err
	}

	if !discoverSave {
		return nil
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	path, err := store.SaveCapabilities(*caps)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nManifest saved to %s\n", path)
	return nil
}

func renderCapabilities(out io.Writer, caps *registry.Capabilities) error {
	sections := []struct {
		title   string
		entries []map[string]any
		key     string
	}{
		{"Tools", caps.Tools, "name"},
		{"Prompts", caps.Prompts, "name"},
		{"Resources", caps.Resources, "uri"},
	}
	for i, s := range sections {
		if i > 0 {
			fmt.Fprintln(out)
		}
		table := &mcptesting.Table{
			Title:   fmt.Sprintf("%s on %s (%d)", s.title, caps.Server, len(s.entries)),
			Headers: []string{"Name", "Description"},
		}
		for _, e := range s.entries {
			table.AddRow(fmt.Sprint(e[s.key]), fmt.Sprint(e["description"]))
		}
		if err := table.Render(out); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	discoverCmd.Flags().BoolVar(&discoverSave, "save", false, "Save the manifest to the data directory")
}
