package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/leadscout/internal/logging"
	pgstore "github.com/JakeFAU/leadscout/internal/storage/postgres"
)

var errNoDSN = errors.New("db.dsn is required for migrations")

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the Postgres schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			if rt.cfg.DB.DSN == "" {
				return errNoDSN
			}
			return pgstore.MigrateUp(rt.cfg.DB.DSN, logging.Component(rt.logger, "migrate"))
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			if rt.cfg.DB.DSN == "" {
				return errNoDSN
			}
			return pgstore.MigrateDown(rt.cfg.DB.DSN, steps, logging.Component(rt.logger, "migrate"))
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}
