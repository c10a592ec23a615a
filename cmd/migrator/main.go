package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		dir    = flag.String("dir", "", "migrations directory (overrides MIGRATIONS_DIR)")
		dryRun = flag.Bool("dry-run", false, "list pending migrations without applying them")
	)
	flag.Parse()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	migrationsDir := *dir
	if migrationsDir == "" {
		migrationsDir = os.Getenv("MIGRATIONS_DIR")
	}
	if migrationsDir == "" {
		migrationsDir = "/migrations"
	}

	ctx := context.Background()

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		log.Fatalf("parse DATABASE_URL: %v", err)
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol // allow multi-statement migrations
	cfg.ConnConfig.RuntimeParams["application_name"] = "foreman-migrator"

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer pool.Close()

	if err := ensureSchemaTable(ctx, pool); err != nil {
		log.Fatalf("ensure schema_migrations: %v", err)
	}

	pending, err := pendingMigrations(ctx, pool, migrationsDir)
	if err != nil {
		log.Fatalf("collect pending migrations: %v", err)
	}

	if *dryRun {
		for _, name := range pending {
			log.Printf("pending %s", name)
		}
		log.Printf("dry run: %d pending migration(s), nothing applied", len(pending))
		return
	}

	for _, name := range pending {
		if err := applyMigration(ctx, pool, migrationsDir, name); err != nil {
			log.Fatalf("apply %s: %v", name, err)
		}
	}

	log.Printf("migrations complete (applied=%d)", len(pending))
}

func ensureSchemaTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS schema_migrations (
            name TEXT PRIMARY KEY,
            applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
    `)
	return err
}

// pendingMigrations returns the *.up.sql files in dir that have no
// schema_migrations row yet, in lexical order.
func pendingMigrations(ctx context.Context, pool *pgxpool.Pool, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var pending []string
	for _, name := range names {
		var exists bool
		err := pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)", name).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("check applied %s: %w", name, err)
		}
		if exists {
			log.Printf("skip %s (already applied)", name)
			continue
		}
		pending = append(pending, name)
	}

	return pending, nil
}

func applyMigration(ctx context.Context, pool *pgxpool.Pool, dir, name string) error {
	contents, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	log.Printf("applying %s", name)
	start := time.Now()

	if _, err := pool.Exec(ctx, string(contents)); err != nil {
		return fmt.Errorf("execute: %w", err)
	}

	if _, err := pool.Exec(ctx, "INSERT INTO schema_migrations(name) VALUES($1) ON CONFLICT DO NOTHING", name); err != nil {
		return fmt.Errorf("mark applied: %w", err)
	}

	log.Printf("applied %s in %s", name, time.Since(start).Round(time.Millisecond))
	return nil
}
