package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"jobtracker/internal/database/schema"
)

func Migrations() []schema.Migration {
	return []schema.Migration{
		{
			Version:     1,
			Description: "Create jobs table",
			Up: `
				CREATE TABLE IF NOT EXISTS jobs (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					position TEXT NOT NULL,
					company TEXT NOT NULL,
					location TEXT NOT NULL DEFAULT '',
					job_url TEXT NOT NULL DEFAULT '',
					notes TEXT NOT NULL DEFAULT '',
					salary_min INTEGER,
					salary_max INTEGER,
					status TEXT NOT NULL,
					rating INTEGER NOT NULL DEFAULT 0,
					date_saved INTEGER NOT NULL,
					date_applied INTEGER,
					test_date INTEGER,
					interview_date INTEGER,
					created_at INTEGER NOT NULL,
					updated_at INTEGER NOT NULL
				);
				CREATE INDEX IF NOT EXISTS jobs_user_saved ON jobs (user_id, date_saved DESC);
			`,
			Down: `DROP TABLE IF EXISTS jobs`,
		},
		{
			Version:     2,
			Description: "Create profiles table",
			Up: `
				CREATE TABLE IF NOT EXISTS profiles (
					user_id TEXT PRIMARY KEY,
					full_name TEXT NOT NULL DEFAULT '',
					phone TEXT NOT NULL DEFAULT '',
					location TEXT NOT NULL DEFAULT '',
					job_title TEXT NOT NULL DEFAULT '',
					company TEXT NOT NULL DEFAULT '',
					bio TEXT NOT NULL DEFAULT '',
					website TEXT NOT NULL DEFAULT '',
					linkedin_url TEXT NOT NULL DEFAULT '',
					github_url TEXT NOT NULL DEFAULT '',
					avatar_url TEXT NOT NULL DEFAULT '',
					created_at INTEGER NOT NULL,
					updated_at INTEGER NOT NULL
				);
			`,
			Down: `DROP TABLE IF EXISTS profiles`,
		},
		{
			Version:     3,
			Description: "Create users table",
			Up: `
				CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					email TEXT NOT NULL UNIQUE,
					password_hash TEXT NOT NULL,
					full_name TEXT NOT NULL DEFAULT '',
					created_at INTEGER NOT NULL,
					updated_at INTEGER NOT NULL
				);
			`,
			Down: `DROP TABLE IF EXISTS users`,
		},
	}
}

// applyMigrations runs each pending migration in its own transaction and
// records it in schema_migrations.
func applyMigrations(ctx context.Context, db *sql.DB, migrations []schema.Migration) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("query migrations: %w", err)
	}
	applied := map[int]time.Time{}
	for rows.Next() {
		var version int
		var appliedAt int64
		if err := rows.Scan(&version, &appliedAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan migration: %w", err)
		}
		applied[version] = fromMillis(appliedAt)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate migrations: %w", err)
	}

	pending, err := schema.Pending(migrations, applied)
	if err != nil {
		return err
	}
	for _, m := range pending {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.Up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)`,
			m.Version, m.Description, toMillis(time.Now()),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}
