package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

const (
	migrationUp   = "up"
	migrationDown = "down"
)

func main() {
	var migrationsPath, databaseURL, migrationType string
	flag.StringVar(&migrationsPath, "migrations-path", "migrations", "path to migration files")
	flag.StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "postgres connection string")
	flag.StringVar(&migrationType, "migration-type", migrationUp, "up or down")
	flag.Parse()

	if databaseURL == "" {
		fmt.Fprintln(os.Stderr, "database-url is required (flag or DATABASE_URL)")
		os.Exit(1)
	}

	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), databaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open migrator: %v\n", err)
		os.Exit(1)
	}

	switch migrationType {
	case migrationUp:
		err = m.Up()
	case migrationDown:
		err = m.Down()
	default:
		fmt.Fprintf(os.Stderr, "unknown migration type %q\n", migrationType)
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			fmt.Println("no migrations to apply")
			return
		}
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("migrations applied successfully")
}
