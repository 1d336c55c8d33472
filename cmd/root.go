package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"mcptape/internal/color"
	"mcptape/internal/config"
	"mcptape/pkg/logging"
)

var (
	rootDataDir    string
	rootLogLevel   string
	rootConfigPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mcptape",
	Short: "Record, replay and test MCP server calls",
	Long: `mcptape tests MCP servers. It runs YAML test specs against one or more
servers, records the responses it sees and replays them later without the
server, and drives small workflow graphs whose nodes call tools, prompts and
resources.

Recordings, run history and discovered capabilities live in the data
directory (default ./data).`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. invalid specs, failed connections)
	SilenceUsage:      true,
	PersistentPreRunE: initRoot,
}

// appConfig is the configuration loaded before every command runs.
var appConfig = config.GetDefaultConfig()

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mcptape version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

// initRoot loads the layered configuration, applies the persistent flags on
// top of it and sets up logging and styles.
func initRoot(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithOverride(rootConfigPath)
	if err != nil {
		return err
	}
	if rootDataDir != "" {
		cfg.DataDir = rootDataDir
	}
	if rootLogLevel != "" {
		cfg.LogLevel = rootLogLevel
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logging.InitForCLIWithFormat(level, cfg.LogFormat, cmd.ErrOrStderr())
	color.Initialize(lipgloss.HasDarkBackground())

	appConfig = cfg
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDataDir, "data-dir", "", "Directory holding recordings, runs and capabilities (default from config, else ./data)")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config", "", "Extra config file layered over ~/.config/mcptape and ./.mcptape")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
