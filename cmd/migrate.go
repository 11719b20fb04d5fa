package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tilboerner/cherrymusic-rewrite/internal/store"
	"github.com/tilboerner/cherrymusic-rewrite/internal/store/migrate"
	"github.com/tilboerner/cherrymusic-rewrite/internal/store/migrate/migrations"
)

var migrateDownName string

func init() {
	migrateDownCmd.Flags().StringVar(&migrateDownName, "name", "", "Migration to revert (defaults to the most recently applied one)")
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or revert schema migrations directly",
}

func newRunner() (*migrate.Runner, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	db := store.NewDatabase(dbName, cfg.BaseDir)
	return migrate.NewRunner(db, []migrate.Migration{migrations.Initial}), nil
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every migration not yet recorded in the ledger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runner, err := newRunner()
		if err != nil {
			return err
		}
		return runner.Up()
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert the most recently applied migration, or --name",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runner, err := newRunner()
		if err != nil {
			return err
		}
		return runner.Down(migrateDownName)
	},
}
