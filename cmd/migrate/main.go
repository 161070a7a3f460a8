package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: %s [flags] <command>

Commands:
  up              apply all pending migrations
  down            roll back all migrations
  version         print the current schema version
  force <version> mark the schema version without running migrations

Flags:
`, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	databaseURL := flag.String("database", os.Getenv("DATABASE_URL"), "Database URL (defaults to DATABASE_URL)")
	migrationsPath := flag.String("path", "migrations", "Path to migrations directory")
	flag.Usage = usage
	flag.Parse()

	if *databaseURL == "" {
		log.Fatal("Database URL is required: use -database or set DATABASE_URL")
	}
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	m, err := migrate.New("file://"+*migrationsPath, *databaseURL)
	if err != nil {
		log.Fatalf("Failed to create migration instance: %v", err)
	}
	defer m.Close()

	switch cmd := flag.Arg(0); cmd {
	case "up":
		if err := m.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				log.Println("Schema is up to date")
				return
			}
			log.Fatalf("Failed to apply migrations: %v", err)
		}
		log.Println("Migrations applied")

	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Failed to roll back migrations: %v", err)
		}
		log.Println("Migrations rolled back")

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			log.Fatalf("Failed to read schema version: %v", err)
		}
		log.Printf("Schema version %d (dirty: %v)", version, dirty)

	case "force":
		if flag.NArg() < 2 {
			log.Fatal("force requires a version number")
		}
		version, err := strconv.Atoi(flag.Arg(1))
		if err != nil {
			log.Fatalf("Invalid version number %q: %v", flag.Arg(1), err)
		}
		if err := m.Force(version); err != nil {
			log.Fatalf("Failed to force schema version: %v", err)
		}
		log.Printf("Schema version forced to %d", version)

	default:
		log.Fatalf("Unknown command %q (use: up, down, version, force)", cmd)
	}
}
