package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/rs-labo46/ec-fulfillment/internal/infra/db"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: withDB(func(cmd *cobra.Command, gdb *gorm.DB) error {
			if err := db.MigrateUp(cmd.Context(), gdb); err != nil {
				return err
			}
			return printVersion(cmd, gdb)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: withDB(func(cmd *cobra.Command, gdb *gorm.DB) error {
			if err := db.MigrateDown(cmd.Context(), gdb); err != nil {
				return err
			}
			return printVersion(cmd, gdb)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE:  withDB(printVersion),
	})

	return cmd
}

// withDB は postgres に繋いで fn を呼び、終わったら閉じる
func withDB(fn func(cmd *cobra.Command, gdb *gorm.DB) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		gdb, err := db.Connect(cfg.PostgresDSN())
		if err != nil {
			return err
		}
		defer db.Close(gdb)
		return fn(cmd, gdb)
	}
}

func printVersion(cmd *cobra.Command, gdb *gorm.DB) error {
	v, err := db.MigrationVersion(cmd.Context(), gdb)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d\n", v)
	return nil
}
