package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tilboerner/cherrymusic-rewrite/internal/index"
	"github.com/tilboerner/cherrymusic-rewrite/internal/store"
)

var pathCmd = &cobra.Command{
	Use:   "path <id>...",
	Short: "Reconstruct the full path of one or more entry ids",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]int64, len(args))
		for i, a := range args {
			id, err := strconv.ParseInt(a, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", a, err)
			}
			ids[i] = id
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db := store.NewDatabase(dbName, cfg.BaseDir)

		sess, err := db.Session(store.Default, cfg.BusyTimeoutMs)
		if err != nil {
			return fmt.Errorf("open session: %w", err)
		}
		defer func() { _ = sess.Close() }()
		if err := sess.Begin(); err != nil {
			return fmt.Errorf("begin: %w", err)
		}

		resolved, err := index.PathByIdView(sess, ids)
		if err != nil {
			return err
		}
		for _, r := range resolved {
			kind := "file"
			if r.IsDir {
				kind = "dir"
			}
			fmt.Printf("%d\t%s\t%s\n", r.ID, kind, r.Path)
		}
		return nil
	},
}

var identifyCmd = &cobra.Command{
	Use:   "identify <relpath>",
	Short: "Resolve a relative path to its entry id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db := store.NewDatabase(dbName, cfg.BaseDir)

		sess, err := db.Session(store.Default, cfg.BusyTimeoutMs)
		if err != nil {
			return fmt.Errorf("open session: %w", err)
		}
		defer func() { _ = sess.Close() }()
		if err := sess.Begin(); err != nil {
			return fmt.Errorf("begin: %w", err)
		}

		identified, err := index.IdentifyPathView(sess, args[0])
		if err != nil {
			return err
		}
		if identified == nil {
			return fmt.Errorf("no entry for %q", args[0])
		}
		kind := "file"
		if identified.IsDir {
			kind = "dir"
		}
		fmt.Printf("%d\t%s\t%s\n", identified.ID, kind, args[0])
		return nil
	},
}
