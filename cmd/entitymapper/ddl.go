package main

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/rzpsarthak13/entity-mapper/internal/core"
	"github.com/rzpsarthak13/entity-mapper/internal/query"
	"github.com/rzpsarthak13/entity-mapper/internal/schema"
)

const dialectFlag = "dialect"

var ddlCmd = &cobra.Command{
	Use:   "ddl",
	Short: "Print CREATE TABLE statements for the sample entities.",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString(dialectFlag)
		dialect, ok := core.DialectByName(name)
		if !ok {
			return fmt.Errorf("unknown dialect %q (available: sqlite, postgresql, mysql)", name)
		}

		for _, t := range samples {
			desc, err := schema.Inspect(t)
			if err != nil {
				return err
			}
			sql, err := query.CreateTable(desc.Schema(schema.TableName(t)), dialect)
			if err != nil {
				return err
			}
			rels := lo.Map(desc.Relationships(), func(r *schema.Relationship, _ int) string { return r.Name })
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "-- %s relationships=%v\n%s;\n", desc, rels, dialect.Rebind(sql))
		}
		return nil
	},
}

func init() {
	ddlCmd.Flags().StringP(dialectFlag, "d", "sqlite", "SQL dialect: sqlite, postgresql or mysql")
}
