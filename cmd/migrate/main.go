// Command migrate manages the database schema using golang-migrate.
// Migrations live in the migrations/ directory and are tracked in the
// schema_migrations table.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Version is set at build time
var Version = "dev"

func main() {
	var (
		dbHost     = flag.String("db-host", getEnv("DB_HOST", "localhost"), "Database host")
		dbPort     = flag.String("db-port", getEnv("DB_PORT", "5432"), "Database port")
		dbUser     = flag.String("db-user", getEnv("DB_USER", "postgres"), "Database user")
		dbPassword = flag.String("db-password", getEnv("DB_PASSWORD", ""), "Database password")
		dbName     = flag.String("db-name", getEnv("DB_NAME", "ai_manager"), "Database name")
		dbSSLMode  = flag.String("db-sslmode", getEnv("DB_SSLMODE", "disable"), "Database SSL mode")
		migrPath   = flag.String("path", getEnv("MIGRATIONS_PATH", "migrations"), "Path to migrations directory")
		version    = flag.Bool("version", false, "Print version and exit")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <command> [args]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  up [N]     Apply all or N up migrations\n")
		fmt.Fprintf(os.Stderr, "  down [N]   Apply all or N down migrations\n")
		fmt.Fprintf(os.Stderr, "  version    Print current migration version\n")
		fmt.Fprintf(os.Stderr, "  force V    Set version V without running migrations\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *version {
		fmt.Printf("migrate version %s\n", Version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	dbURL := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		*dbUser, *dbPassword, *dbHost, *dbPort, *dbName, *dbSSLMode)

	m, err := migrate.New("file://"+*migrPath, dbURL)
	if err != nil {
		log.Fatalf("Failed to initialize migrations: %v", err)
	}
	defer m.Close()

	if err := runCommand(m, args[0], args[1:]); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func runCommand(m *migrate.Migrate, cmd string, args []string) error {
	switch cmd {
	case "up":
		if len(args) > 0 {
			steps, err := parseSteps(args[0])
			if err != nil {
				return err
			}
			return normalize(m.Steps(steps))
		}
		return normalize(m.Up())
	case "down":
		if len(args) > 0 {
			steps, err := parseSteps(args[0])
			if err != nil {
				return err
			}
			return normalize(m.Steps(-steps))
		}
		return normalize(m.Down())
	case "version":
		v, dirty, err := m.Version()
		if err != nil {
			if errors.Is(err, migrate.ErrNilVersion) {
				fmt.Println("No migrations applied yet")
				return nil
			}
			return err
		}
		fmt.Printf("Current version: %d (dirty: %v)\n", v, dirty)
		return nil
	case "force":
		if len(args) < 1 {
			return fmt.Errorf("force requires a version number")
		}
		var v int
		if _, err := fmt.Sscanf(args[0], "%d", &v); err != nil {
			return fmt.Errorf("invalid version: %s", args[0])
		}
		return m.Force(v)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func parseSteps(arg string) (int, error) {
	var steps int
	if _, err := fmt.Sscanf(arg, "%d", &steps); err != nil || steps < 1 {
		return 0, fmt.Errorf("invalid number of steps: %s", arg)
	}
	return steps, nil
}

// normalize treats "no change" as success
func normalize(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		log.Println("No pending migrations")
		return nil
	}
	if err == nil {
		log.Println("Migrations applied")
	}
	return err
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
