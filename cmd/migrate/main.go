package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/wellbridge/careguard/internal/config"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up, down, version, or force")
	steps := flag.Int("steps", 0, "number of steps (0 = all)")
	forceVersion := flag.Int("force-version", -1, "version to record when -direction=force")
	dbURL := flag.String("db-url", "", "database URL (overrides config and env)")
	configDir := flag.String("config", "configs", "configuration directory holding careguard.yaml")
	migrationsPath := flag.String("path", "migrations", "path to migrations directory")
	flag.Parse()

	dsn, source := resolveDSN(*dbURL, *configDir)
	log.Printf("using database from %s", source)

	m, err := migrate.New("file://"+*migrationsPath, dsn)
	if err != nil {
		log.Fatalf("failed to create migrator: %v", err)
	}
	defer m.Close()

	switch *direction {
	case "up":
		if *steps > 0 {
			err = m.Steps(*steps)
		} else {
			err = m.Up()
		}
	case "down":
		if *steps > 0 {
			err = m.Steps(-*steps)
		} else {
			err = m.Down()
		}
	case "force":
		if *forceVersion < 0 {
			log.Fatal("-force-version is required with -direction=force")
		}
		err = m.Force(*forceVersion)
	case "version":
	default:
		log.Fatalf("invalid direction: %s (use up, down, version, or force)", *direction)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("migration failed: %v", err)
	}

	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Println("no migrations applied")
		return
	}
	if err != nil {
		log.Fatalf("read version: %v", err)
	}
	fmt.Printf("%s complete (version: %d, dirty: %v)\n", *direction, v, dirty)
}

// resolveDSN prefers the flag, then DATABASE_URL, then the database section
// of careguard.yaml with the usual ${VAR:default} expansion.
func resolveDSN(flagURL, configDir string) (string, string) {
	if flagURL != "" {
		return flagURL, "-db-url"
	}
	if env := os.Getenv("DATABASE_URL"); env != "" {
		return env, "DATABASE_URL"
	}
	cfg := config.DefaultConfig()
	path := filepath.Join(configDir, "careguard.yaml")
	if err := config.LoadFile(path, cfg); err != nil {
		log.Printf("config not loaded (%v), using defaults", err)
		return cfg.Database.DSN(), "defaults"
	}
	return cfg.Database.DSN(), path
}
