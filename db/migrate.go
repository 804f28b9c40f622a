// Package migrate applies the catalog's schema migrations with
// golang-migrate/migrate/v4 against a file:// source of migration files.
package migrate

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	pgdriver "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations applies every unapplied migration under dir to client.
func RunMigrations(client *sql.DB, dir string) error {
	m, err := newMigrateInstance(client, dir)
	if err != nil {
		return err
	}
	defer m.Close()

	err = m.Up()
	if err == migrate.ErrNoChange {
		return nil
	}
	return err
}

func newMigrateInstance(client *sql.DB, dir string) (*migrate.Migrate, error) {
	d, err := pgdriver.WithInstance(client, &pgdriver.Config{})
	if err != nil {
		return nil, fmt.Errorf("wrap pgdriver instance: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", d)
	if err != nil {
		return nil, fmt.Errorf("open migrate instance: %w", err)
	}
	m.Log = stderrLogger{}
	return m, nil
}

type stderrLogger struct{}

func (stderrLogger) Printf(format string, v ...interface{}) {
	fmt.Fprintf(os.Stderr, format, v...)
}

func (stderrLogger) Verbose() bool { return false }
