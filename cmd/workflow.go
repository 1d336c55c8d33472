package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mcptape/internal/color"
	"mcptape/internal/discovery"
	"mcptape/internal/errdefs"
	"mcptape/internal/mcpclient"
	"mcptape/internal/registry"
	"mcptape/internal/tape"
	mcptesting "mcptape/internal/testing"
	"mcptape/internal/workflow"
)

var (
	workflowTag      string
	workflowInput    string
	workflowRecord   bool
	workflowReplay   bool
	workflowFallback bool
	workflowName     string
)

// workflowCmd represents the workflow command
var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Manage and run workflow graphs",
	Long: `Manage and run workflow graphs.

A workflow file lists edges such as "fetch >> summarize" or
"check - "invalid" >> reject". Nodes named in the nodes table or known as
built-in steps run locally; every other node calls the tool of that name on
the workflow's server.

Workflows come from the workflows directory (default ./workflows) and from
the registry kept in the data directory.

Available commands:
  list     - List workflows
  run      - Run a workflow
  register - Register workflow files
  info     - Show one workflow
  search   - Search workflows
  remove   - Remove a registered workflow`,
}

var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workflows",
	Args:  cobra.NoArgs,
	RunE:  runWorkflowList,
}

var workflowRunCmd = &cobra.Command{
	Use:   "run <workflow-name>",
	Short: "Run a workflow",
	Long: `Runs a workflow from its start node until a node returns a routing key
with no matching edge. The final shared state is printed as JSON.

--input replaces the workflow's initial_input with the given JSON value.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflowRun,
}

var workflowRegisterCmd = &cobra.Command{
	Use:   "register <file|dir>",
	Short: "Register a workflow file or every workflow in a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowRegister,
}

var workflowInfoCmd = &cobra.Command{
	Use:   "info <workflow-name>",
	Short: "Show a workflow and its graph",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowInfo,
}

var workflowSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search workflows by name, description and tags",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowSearch,
}

var workflowRemoveCmd = &cobra.Command{
	Use:   "remove <workflow-name>",
	Short: "Remove a registered workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowRemove,
}

func runWorkflowList(cmd *cobra.Command, args []string) error {
	reg, err := openWorkflowRegistry()
	if err != nil {
		return err
	}
	entries := reg.List()
	if workflowTag != "" {
		entries = reg.ListByTag(workflowTag)
	}
	return renderWorkflows(cmd, entries)
}

func runWorkflowSearch(cmd *cobra.Command, args []string) error {
	reg, err := openWorkflowRegistry()
	if err != nil {
		return err
	}
	return renderWorkflows(cmd, reg.Search(args[0]))
}

func renderWorkflows(cmd *cobra.Command, entries []workflow.Entry) error {
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No workflows found.")
		return nil
	}
	table := &mcptesting.Table{Headers: []string{"Name", "Server", "Tags", "Description", "Source"}}
	for _, e := range entries {
		table.AddRow(e.Name, e.Definition.Server, strings.Join(e.Tags, ","), e.Description, e.Source)
	}
	return table.Render(out)
}

func runWorkflowRegister(cmd *cobra.Command, args []string) error {
	reg, err := openWorkflowRegistry()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if isDir(args[0]) {
		if workflowName != "" {
			return fmt.Errorf("--name cannot be used when registering a directory")
		}
		names, err := reg.RegisterDir(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Registered %d workflows: %s\n", len(names), strings.Join(names, ", "))
		return nil
	}

	entry, err := reg.RegisterFile(args[0], workflowName)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Registered workflow %s\n", entry.Name)
	return nil
}

func runWorkflowRemove(cmd *cobra.Command, args []string) error {
	reg, err := openWorkflowRegistry()
	if err != nil {
		return err
	}
	if err := reg.Remove(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed workflow %s\n", args[0])
	return nil
}

func runWorkflowInfo(cmd *cobra.Command, args []string) error {
	reg, err := openWorkflowRegistry()
	if err != nil {
		return err
	}
	entry, err := reg.Get(args[0])
	if err != nil {
		return err
	}
	def := entry.Definition
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, color.TitleStyle.Render("Workflow: "+entry.Name))
	details := &mcptesting.Table{}
	details.AddRow("Server", def.Server)
	details.AddRow("Description", entry.Description)
	details.AddRow("Tags", strings.Join(entry.Tags, ", "))
	details.AddRow("Source", entry.Source)
	if !entry.RegisteredAt.IsZero() {
		details.AddRow("Registered", entry.RegisteredAt.Local().Format(time.DateTime))
	}
	if err := details.Render(out); err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, color.HeaderStyle.Render("Graph"))
	for _, line := range def.Workflow {
		fmt.Fprintln(out, "  "+line)
	}

	if len(def.Nodes) > 0 {
		fmt.Fprintln(out)
		nodes := &mcptesting.Table{Title: "Nodes", Headers: []string{"Node", "Type", "Params"}}
		names := make([]string, 0, len(def.Nodes))
		for name := range def.Nodes {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			cfg := def.Nodes[name]
			typ := cfg.Type
			if typ == "" {
				typ = strings.TrimSpace(cfg.Kind + " " + cfg.Entity + " " + cfg.Name)
			}
			params, _ := json.Marshal(cfg.Params)
			nodes.AddRow(name, typ, string(params))
		}
		return nodes.Render(out)
	}
	return nil
}

func runWorkflowRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	reg, err := openWorkflowRegistry()
	if err != nil {
		return err
	}
	entry, err := reg.Get(args[0])
	if err != nil {
		return err
	}
	def := entry.Definition

	var input any
	if workflowInput != "" {
		if err := json.Unmarshal([]byte(workflowInput), &input); err != nil {
			return errdefs.Configuration("parse --input", err)
		}
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	ctrl, err := appConfig.Retry.Controller()
	if err != nil {
		return err
	}

	override := mcptesting.OverrideFor(workflowRecord, workflowReplay)
	useMocks, recordMocks := override.Apply(def.UseMocks, def.RecordMocks)

	client := mcpclient.NewLazy(func(ctx context.Context) (mcpclient.Client, error) {
		if def.Server == "" {
			return nil, errdefs.Configurationf("workflow %s calls a server but sets no mcp_server", def.Name)
		}
		return dialServer(context.WithoutCancel(ctx), def.Server)
	})
	defer client.Close()

	deps := workflow.Deps{
		Invoker: &tape.Invoker{Client: client, Store: store, Retry: ctrl},
		Options: tape.Options{
			UseMocks:    useMocks,
			RecordMocks: recordMocks,
			Fallback:    workflowFallback || appConfig.Replay.Fallback,
		},
	}
	if err := attachSchemas(&deps, store, def.Server, useMocks); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	runner := &workflow.Runner{
		OnStep: func(s workflow.Step) {
			fmt.Fprintf(out, "%s %s %s\n",
				color.ModeStyle.Render(string(s.Kind)), s.Node,
				color.MutedStyle.Render(fmt.Sprintf("-> %q (%s)", s.RoutingKey, s.Duration.Round(time.Millisecond))))
		},
	}
	trace, shared, err := runner.RunDefinition(ctx, def, workflow.DefaultNodeFactory(), deps, input)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%s finished at %s after %d steps in %s (run %s)\n",
		def.Name, trace.Last, len(trace.Steps), trace.Duration.Round(time.Millisecond), trace.RunID)
	state, err := json.MarshalIndent(shared.Values(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode shared state: %w", err)
	}
	fmt.Fprintln(out, string(state))
	return nil
}

// attachSchemas picks where tool schemas come from: a saved manifest for the
// workflow's server, otherwise the live server unless the run is replaying.
func attachSchemas(deps *workflow.Deps, store *registry.Store, server string, replaying bool) error {
	caps, err := store.LoadCapabilities()
	if err != nil {
		return err
	}
	if caps != nil && caps.Server == server {
		source := discovery.NewManifestSchemaSource(caps)
		deps.Schemas = source
		deps.Catalog = source
		return nil
	}
	if replaying || server == "" {
		return nil
	}
	source := discovery.NewClientSchemaSource(deps.Invoker.Client, server)
	deps.Schemas = source
	deps.Catalog = source
	return nil
}

func init() {
	rootCmd.AddCommand(workflowCmd)
	workflowCmd.AddCommand(workflowListCmd)
	workflowCmd.AddCommand(workflowRunCmd)
	workflowCmd.AddCommand(workflowRegisterCmd)
	workflowCmd.AddCommand(workflowInfoCmd)
	workflowCmd.AddCommand(workflowSearchCmd)
	workflowCmd.AddCommand(workflowRemoveCmd)

	workflowListCmd.Flags().StringVar(&workflowTag, "tag", "", "Only list workflows with this tag")
	workflowRunCmd.Flags().StringVar(&workflowInput, "input", "", "JSON value used as the start node's input")
	workflowRunCmd.Flags().BoolVar(&workflowRecord, "record", false, "Record every live response")
	workflowRunCmd.Flags().BoolVar(&workflowReplay, "replay", false, "Answer every call from recordings")
	workflowRunCmd.Flags().BoolVar(&workflowFallback, "fallback", false, "Call the live server when a replayed call has no recording")
	workflowRegisterCmd.Flags().StringVar(&workflowName, "name", "", "Register the file under this name")
}
