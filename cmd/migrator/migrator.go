package main

import (
	"database/sql"
	"fmt"
	"os"

	pg "github.com/NordCoder/Herald/internal/repository/postgres"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
)

var dsn string

var rootCmd = &cobra.Command{
	Use:           "migrator",
	Short:         "Apply Herald's Postgres schema migrations",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if dsn == "" {
			dsn = os.Getenv("STORAGE_POSTGRES_DSN")
		}
		if dsn == "" {
			return fmt.Errorf("no dsn: pass --dsn or set STORAGE_POSTGRES_DSN")
		}
		goose.SetBaseFS(pg.Migrations)
		return goose.SetDialect("postgres")
	},
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Migrate to the latest version",
	RunE: withDB(func(db *sql.DB) error {
		if err := goose.Up(db, pg.MigrationsDir); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		fmt.Println("migrations: up OK")
		return nil
	}),
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the last migration",
	RunE: withDB(func(db *sql.DB) error {
		if err := goose.Down(db, pg.MigrationsDir); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
		fmt.Println("migrations: down OK")
		return nil
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print applied and pending migrations",
	RunE: withDB(func(db *sql.DB) error {
		return goose.Status(db, pg.MigrationsDir)
	}),
}

func withDB(fn func(db *sql.DB) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		db, err := goose.OpenDBWithDriver("pgx", dsn)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()
		return fn(db)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "postgres connection string (default $STORAGE_POSTGRES_DSN)")
	rootCmd.AddCommand(upCmd, downCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "migrator:", err)
		os.Exit(1)
	}
}
