package cmd

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	migrate "github.com/chaingraph/indexer/db"
	"github.com/chaingraph/indexer/service/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the catalog's pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		connStr := fmt.Sprintf("user=%s password=%s dbname=%s host=%s port=%d",
			viper.GetString("POSTGRES_USER"), viper.GetString("POSTGRES_PASSWORD"),
			viper.GetString("POSTGRES_DB"), viper.GetString("POSTGRES_HOST"), viper.GetInt("POSTGRES_PORT"))

		client, err := sql.Open("pgx", connStr)
		if err != nil {
			return fmt.Errorf("open catalog connection: %w", err)
		}
		defer client.Close()

		if err := client.PingContext(ctx); err != nil {
			return fmt.Errorf("ping catalog: %w", err)
		}

		dir := viper.GetString("MIGRATIONS_DIR")
		if err := migrate.RunMigrations(client, dir); err != nil {
			return fmt.Errorf("run migrations from %s: %w", dir, err)
		}
		logger.For(ctx).Infof("migrate: catalog schema up to date (%s)", dir)
		return nil
	},
}
