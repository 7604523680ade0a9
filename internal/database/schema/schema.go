// Package schema applies versioned DDL migrations and records which ones
// have run.
package schema

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"
)

type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// Sorted returns the migrations in ascending version order and rejects
// duplicate versions.
func Sorted(migrations []Migration) ([]Migration, error) {
	out := slices.Clone(migrations)
	slices.SortFunc(out, func(a, b Migration) int { return a.Version - b.Version })
	for i := 1; i < len(out); i++ {
		if out[i].Version == out[i-1].Version {
			return nil, fmt.Errorf("duplicate migration version %d", out[i].Version)
		}
	}
	return out, nil
}

// Pending returns the migrations not yet present in applied, in order.
func Pending(migrations []Migration, applied map[int]time.Time) ([]Migration, error) {
	sorted, err := Sorted(migrations)
	if err != nil {
		return nil, err
	}
	var out []Migration
	for _, m := range sorted {
		if _, ok := applied[m.Version]; !ok {
			out = append(out, m)
		}
	}
	return out, nil
}

type Migrator struct {
	conn   clickhouse.Conn
	logger *zap.Logger
}

func NewMigrator(conn clickhouse.Conn, logger *zap.Logger) *Migrator {
	return &Migrator{
		conn:   conn,
		logger: logger,
	}
}

func (m *Migrator) CreateMigrationsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version Int32,
			description String,
			applied_at DateTime
		) ENGINE = MergeTree()
		ORDER BY version
	`

	if err := m.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	return nil
}

func (m *Migrator) GetAppliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int32
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[int(version)] = appliedAt
	}

	return applied, rows.Err()
}

func (m *Migrator) ApplyMigration(ctx context.Context, migration Migration) error {
	if err := m.conn.Exec(ctx, migration.Up); err != nil {
		return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
	}

	if err := m.conn.Exec(ctx,
		"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, now())",
		int32(migration.Version), migration.Description,
	); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
	}

	return nil
}

func (m *Migrator) RollbackMigration(ctx context.Context, migration Migration) error {
	if err := m.conn.Exec(ctx, migration.Down); err != nil {
		return fmt.Errorf("failed to rollback migration %d: %w", migration.Version, err)
	}

	if err := m.conn.Exec(ctx, "DELETE FROM schema_migrations WHERE version = ?", int32(migration.Version)); err != nil {
		return fmt.Errorf("failed to remove migration record %d: %w", migration.Version, err)
	}

	return nil
}

// Up applies every pending migration and returns how many ran.
func (m *Migrator) Up(ctx context.Context, migrations []Migration) (int, error) {
	if err := m.CreateMigrationsTable(ctx); err != nil {
		return 0, err
	}
	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return 0, err
	}
	pending, err := Pending(migrations, applied)
	if err != nil {
		return 0, err
	}

	for i, migration := range pending {
		m.logger.Info("Applying migration",
			zap.Int("version", migration.Version),
			zap.String("description", migration.Description))
		if err := m.ApplyMigration(ctx, migration); err != nil {
			return i, err
		}
	}
	return len(pending), nil
}

// Down rolls back the most recent steps applied migrations.
func (m *Migrator) Down(ctx context.Context, migrations []Migration, steps int) (int, error) {
	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return 0, err
	}
	sorted, err := Sorted(migrations)
	if err != nil {
		return 0, err
	}

	done := 0
	for i := len(sorted) - 1; i >= 0 && done < steps; i-- {
		migration := sorted[i]
		if _, ok := applied[migration.Version]; !ok {
			continue
		}
		m.logger.Info("Rolling back migration", zap.Int("version", migration.Version))
		if err := m.RollbackMigration(ctx, migration); err != nil {
			return done, err
		}
		done++
	}
	return done, nil
}
