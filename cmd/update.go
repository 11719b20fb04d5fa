package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tilboerner/cherrymusic-rewrite/internal/index"
	"github.com/tilboerner/cherrymusic-rewrite/internal/store"
)

var maxDepth int

func init() {
	updateCmd.Flags().IntVar(&maxDepth, "max-depth", 0, "Maximum directory depth to walk relative to root (0 = unlimited)")
}

var updateCmd = &cobra.Command{
	Use:   "update <root>",
	Short: "Walk root and populate a fresh index database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db := store.NewDatabase(dbName, cfg.BaseDir)
		if err := index.Bootstrap(db); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}

		err = index.Update(db, index.UpdateOptions{
			Root:          root,
			MaxDepth:      maxDepth,
			BatchSize:     cfg.BatchSize,
			Isolation:     cfg.ResolveIsolation(),
			BusyTimeoutMs: cfg.BusyTimeoutMs,
		})
		if err != nil {
			return fmt.Errorf("update: %w", err)
		}

		fmt.Printf("indexed %s into %s\n", root, db.Path())
		return nil
	},
}
