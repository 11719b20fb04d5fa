package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tilboerner/cherrymusic-rewrite/internal/config"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// configPath and dbName are persistent across every subcommand: the
// config file (optional, HCL) and the database's qualified name
// (dotted, or ":memory:") that every subcommand opens a session
// against.
var (
	configPath string
	dbName     string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to an HCL config file (optional; built-in defaults otherwise)")
	rootCmd.PersistentFlags().StringVar(&dbName, "db", "index", "Qualified database name (dotted path under the configured base dir, or \":memory:\")")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(pathCmd)
	rootCmd.AddCommand(identifyCmd)
	rootCmd.AddCommand(migrateCmd)
}

var rootCmd = &cobra.Command{
	Use:     "cherrymusic-index",
	Short:   "Maintain and query a media-path index over SQLite",
	Version: fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date),
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "cherrymusic-index version %s (commit %s, built %s)\n", Version, Commit, Date)
	},
}

// loadConfig reads configPath via internal/config, falling back to
// built-in defaults when it is empty.
func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}

// Execute runs the root command, printing any error and exiting
// non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
