package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rzpsarthak13/entity-mapper/pkg/entitymapper"
)

const (
	configFlag = "config"
	envFlag    = "env"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a create/find/update/delete scenario against the configured database.",
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

		return runDemo(ctx, db)
	},
}

func init() {
	addOpenFlags(demoCmd)
}

func addOpenFlags(cmd *cobra.Command) {
	cmd.Flags().StringP(configFlag, "c", "", "YAML or JSON config file")
	cmd.Flags().Bool(envFlag, false, "read ENTITY_MAPPER_* variables (and .env) instead of a file")
}

func openDatabase(ctx context.Context, cmd *cobra.Command) (*entitymapper.Database, error) {
	configFile, _ := cmd.Flags().GetString(configFlag)
	useEnv, _ := cmd.Flags().GetBool(envFlag)

	var (
		db  *entitymapper.Database
		err error
	)
	switch {
	case configFile != "":
		db, err = entitymapper.OpenFile(ctx, configFile)
	case useEnv:
		db, err = entitymapper.OpenEnv(ctx, nil)
	default:
		db, err = entitymapper.Open(ctx, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func runDemo(ctx context.Context, db *entitymapper.Database) error {
	log := db.Logger()

	db.OnTableReady(func(_ context.Context, table string, schema *entitymapper.Schema) error {
		log.Info().Str("table", table).Strs("columns", schema.ColumnNames()).Msg("table ready")
		return nil
	})

	customers, err := entitymapper.Register[customer](ctx, db, "")
	if err != nil {
		return err
	}

	id := uuid.New()
	zip := "560001"
	c := &customer{
		ID:        id,
		Name:      "Asha",
		Email:     "asha@example.com",
		Tier:      1,
		Active:    true,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Billing:   address{Street: "MG Road", City: "Bengaluru", Country: "IN", Zip: &zip},
		Orders: entitymapper.LoadedList([]purchase{
			{ID: time.Now().UnixNano(), Amount: 499.0, Quantity: 1},
			{ID: time.Now().UnixNano() + 1, Amount: 1299.5, Quantity: 2},
		}),
	}
	if err := customers.Create(ctx, c); err != nil {
		return err
	}
	log.Info().Str("customer", id.String()).Msg("created customer with orders")

	found, err := customers.FindOne().Where("id", id).WithRelationships(true).Execute(ctx)
	if err != nil {
		return err
	}
	orders, err := found.Orders.Get(ctx)
	if err != nil {
		return err
	}
	log.Info().Str("name", found.Name).Str("city", found.Billing.City).Int("orders", len(orders)).Msg("loaded customer")

	purchases, err := entitymapper.Get[purchase](db, "purchases")
	if err != nil {
		return err
	}
	big, err := purchases.FindMany().Where("customer_id", id).WhereGreaterThan("amount", 1000).Execute(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("count", len(big)).Msg("orders above 1000")

	n, err := customers.Update().Set("tier", 2).Set("billing.zip", nil).Where("id", id).Execute(ctx)
	if err != nil {
		return err
	}
	log.Info().Int64("rows", n).Msg("updated tier")

	n, err = customers.Delete(ctx, found)
	if err != nil {
		return err
	}
	log.Info().Int64("rows", n).Strs("tables", db.Tables()).Msg("deleted customer and orders")
	return nil
}
