// Package migrations holds the ClickHouse schema for the remote data store.
package migrations

import "jobtracker/internal/database/schema"

var CreateJobsTable = schema.Migration{
	Version:     1,
	Description: "Create jobs table",
	Up: `
		CREATE TABLE IF NOT EXISTS jobs (
			id String,
			user_id String,
			position String,
			company String,
			location String,
			job_url String,
			notes String,
			salary_min Nullable(Int64),
			salary_max Nullable(Int64),
			status LowCardinality(String),
			rating UInt8,
			date_saved DateTime64(3, 'UTC'),
			date_applied Nullable(DateTime64(3, 'UTC')),
			test_date Nullable(DateTime64(3, 'UTC')),
			interview_date Nullable(DateTime64(3, 'UTC')),
			created_at DateTime64(3, 'UTC'),
			updated_at DateTime64(3, 'UTC')
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY (user_id, id)
		SETTINGS index_granularity = 8192
	`,
	Down: `DROP TABLE IF EXISTS jobs`,
}

var CreateProfilesTable = schema.Migration{
	Version:     2,
	Description: "Create profiles table",
	Up: `
		CREATE TABLE IF NOT EXISTS profiles (
			user_id String,
			full_name String,
			phone String,
			location String,
			job_title String,
			company String,
			bio String,
			website String,
			linkedin_url String,
			github_url String,
			avatar_url String,
			created_at DateTime64(3, 'UTC'),
			updated_at DateTime64(3, 'UTC')
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY user_id
	`,
	Down: `DROP TABLE IF EXISTS profiles`,
}

var CreateUsersTable = schema.Migration{
	Version:     3,
	Description: "Create users table",
	Up: `
		CREATE TABLE IF NOT EXISTS users (
			id String,
			email String,
			password_hash String,
			full_name String,
			created_at DateTime64(3, 'UTC'),
			updated_at DateTime64(3, 'UTC')
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY email
	`,
	Down: `DROP TABLE IF EXISTS users`,
}

func All() []schema.Migration {
	return []schema.Migration{
		CreateJobsTable,
		CreateProfilesTable,
		CreateUsersTable,
	}
}
