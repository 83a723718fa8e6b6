package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coffyg/octosite/kvasset"
)

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Load a built site directory into the sqlite asset store",
	Long: `Import walks a built site directory (the output of the site build) and
stores every file under its relative path, e.g. dist/js/app.js as js/app.js.

Example:
  OCTOSITE_STORE_DRIVER=sqlite OCTOSITE_STORE_DSN=site.db octosite import ./dist`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loader.Load()
		if err != nil {
			return err
		}
		if cfg.Store.Driver != "sqlite" {
			return fmt.Errorf("import needs a persistent store, got driver %q", cfg.Store.Driver)
		}

		ctx := cmd.Context()
		store, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := kvasset.ImportDir(ctx, store, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d files into %s\n", n, cfg.Store.DSN)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
