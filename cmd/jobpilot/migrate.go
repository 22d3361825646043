package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"jobpilot/internal/database/migration"
	dbpostgres "jobpilot/internal/database/postgres"

	"github.com/spf13/cobra"
)

func migrateCMD() *cobra.Command {
	var dsn string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the tracking ledger migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				return errors.New("database url not configured (DATABASE_URL or --database-url)")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			db, err := dbpostgres.Connect(ctx, dbpostgres.Options{URL: dsn})
			if err != nil {
				return err
			}
			defer db.Close()

			r := migration.Runner{Logger: log.New(os.Stderr, "", log.LstdFlags)}
			if dryRun {
				pending, err := r.Pending(ctx, db.SQLDB())
				if err != nil {
					return err
				}
				for _, m := range pending {
					fmt.Fprintf(cmd.OutOrStdout(), "V%d %s\n", m.Version, m.Name)
				}
				return nil
			}
			return r.Run(ctx, db.SQLDB())
		},
	}

	cmd.Flags().StringVar(&dsn, "database-url", getenv("DATABASE_URL", ""), "postgres connection url")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list pending migrations without applying them")
	return cmd
}
