package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var scriptCmd = &cobra.Command{
	Use:   "script FILE...",
	Short: "Apply SQL scripts to the configured database, each in its own transaction.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		db, err := openDatabase(ctx, cmd)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		for _, path := range args {
			n, err := db.RunScriptFile(ctx, path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d statements\n", path, n)
		}
		return nil
	},
}

func init() {
	addOpenFlags(scriptCmd)
}
