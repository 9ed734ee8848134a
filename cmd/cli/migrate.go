package main

import (
	"github.com/nimasrn/matatu-pay/internal/bootstrap"
	"github.com/nimasrn/matatu-pay/internal/config"
	"github.com/nimasrn/matatu-pay/pkg/pg"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.PersistentFlags().StringVar(&migrationsDir, "dir", "./migrations", "directory holding the goose migrations")

	run := func(fn func(cfg pg.Config, dir string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return fn(bootstrap.WriteConfig(config.Get()), migrationsDir)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE:  run(pg.Migrate),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		RunE:  run(pg.Rollback),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the applied state of every migration",
		RunE:  run(pg.MigrationStatus),
	})
	return cmd
}
