package cli

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/ceoorcto/internal/adapters/repository"
)

func newSeedCommand() *cobra.Command {
	var (
		dsn   string
		file  string
		table string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the profiles table in Postgres and load a population into it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dsn == "" {
				return errors.New("--dsn is required")
			}
			db, err := sql.Open("postgres", dsn)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			store := repository.NewSQLStore(db, repository.WithTable(table))
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			if err := store.Migrate(ctx); err != nil {
				return err
			}
			n, err := repository.Seed(ctx, store, file)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d profiles written to %s\n", n, table)
			return err
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "Postgres connection string")
	cmd.Flags().StringVar(&file, "file", "", "YAML or JSON population (empty = embedded default)")
	cmd.Flags().StringVar(&table, "table", "profiles", "Table name")
	return cmd
}
