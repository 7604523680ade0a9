// Package sqlite binds the tracker's data store to an embedded SQLite
// database for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"jobtracker/internal/backend"
	"jobtracker/internal/errors"
	"jobtracker/internal/models"
	"jobtracker/internal/pipeline"
	"jobtracker/internal/telemetry"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

type Store struct {
	db       *sql.DB
	logger   *zap.Logger
	tracer   trace.Tracer
	notifier backend.Notifier
	now      func() time.Time
}

type Option func(*Store)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithNotifier publishes a change event after every successful job write.
func WithNotifier(n backend.Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// Open opens the database at path and applies pending migrations.
func Open(path string, opts ...Option) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := MemoryPath
	if path != MemoryPath {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == MemoryPath {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &Store{
		db:     db,
		logger: zap.NewNop(),
		tracer: telemetry.GetTracer("jobtracker/repository/sqlite"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := applyMigrations(context.Background(), db, Migrations()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const jobColumns = `id, user_id, position, company, location, job_url, notes,
	salary_min, salary_max, status, rating, date_saved, date_applied,
	test_date, interview_date, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (models.Job, error) {
	var (
		j                               models.Job
		status                          string
		salaryMin, salaryMax            sql.NullInt64
		applied, testDate, interview    sql.NullInt64
		dateSaved, createdAt, updatedAt int64
	)
	if err := row.Scan(
		&j.ID, &j.UserID, &j.Position, &j.Company, &j.Location, &j.JobURL, &j.Notes,
		&salaryMin, &salaryMax, &status, &j.Rating, &dateSaved, &applied,
		&testDate, &interview, &createdAt, &updatedAt,
	); err != nil {
		return models.Job{}, err
	}
	j.Status = pipeline.Status(status)
	j.SalaryMin = nullInt(salaryMin)
	j.SalaryMax = nullInt(salaryMax)
	j.DateSaved = fromMillis(dateSaved)
	j.DateApplied = nullTime(applied)
	j.TestDate = nullTime(testDate)
	j.InterviewDate = nullTime(interview)
	j.CreatedAt = fromMillis(createdAt)
	j.UpdatedAt = fromMillis(updatedAt)
	return j, nil
}

func (s *Store) SelectJobs(ctx context.Context, ownerID string) ([]models.Job, error) {
	ctx, span := s.tracer.Start(ctx, "SelectJobs")
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE user_id = ? ORDER BY date_saved DESC, id`, ownerID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("select jobs: %w", err)
	}
	defer rows.Close()

	jobs := []models.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	span.SetAttributes(telemetry.Int("jobs.count", len(jobs)))
	return jobs, nil
}

func (s *Store) InsertJob(ctx context.Context, j models.Job) (models.Job, error) {
	ctx, span := s.tracer.Start(ctx, "InsertJob")
	defer span.End()

	if j.ID == "" || j.UserID == "" {
		return models.Job{}, errors.Validation("invalid job", map[string]string{"id": "id and user_id are required"})
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.UserID, j.Position, j.Company, j.Location, j.JobURL, j.Notes,
		intArg(j.SalaryMin), intArg(j.SalaryMax), string(j.Status), j.Rating,
		toMillis(j.DateSaved), timeArg(j.DateApplied), timeArg(j.TestDate), timeArg(j.InterviewDate),
		toMillis(j.CreatedAt), toMillis(j.UpdatedAt),
	)
	if err != nil {
		span.RecordError(err)
		if isUniqueViolation(err) {
			return models.Job{}, errors.Conflict("job "+j.ID+" already exists", err)
		}
		return models.Job{}, fmt.Errorf("insert job: %w", err)
	}

	s.notify(ctx, backend.ChangeInsert, j.UserID, j.ID)
	return s.getJob(ctx, j.UserID, j.ID)
}

// UpdateJob overwrites the mutable fields of the owner's job.
func (s *Store) UpdateJob(ctx context.Context, ownerID string, j models.Job) (models.Job, error) {
	ctx, span := s.tracer.Start(ctx, "UpdateJob")
	defer span.End()
	span.SetAttributes(telemetry.String("job.id", j.ID))

	updatedAt := j.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET
			position = ?, company = ?, location = ?, job_url = ?, notes = ?,
			salary_min = ?, salary_max = ?, status = ?, rating = ?,
			date_applied = ?, test_date = ?, interview_date = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		j.Position, j.Company, j.Location, j.JobURL, j.Notes,
		intArg(j.SalaryMin), intArg(j.SalaryMax), string(j.Status), j.Rating,
		timeArg(j.DateApplied), timeArg(j.TestDate), timeArg(j.InterviewDate), toMillis(updatedAt),
		j.ID, ownerID,
	)
	if err != nil {
		span.RecordError(err)
		return models.Job{}, fmt.Errorf("update job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.Job{}, errors.NotFound("job "+j.ID+" not found", nil)
	}

	s.notify(ctx, backend.ChangeUpdate, ownerID, j.ID)
	return s.getJob(ctx, ownerID, j.ID)
}

// DeleteJob removes the owner's job. Deleting a missing id succeeds.
func (s *Store) DeleteJob(ctx context.Context, ownerID, jobID string) error {
	ctx, span := s.tracer.Start(ctx, "DeleteJob")
	defer span.End()
	span.SetAttributes(telemetry.String("job.id", jobID))

	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ? AND user_id = ?`, jobID, ownerID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.notify(ctx, backend.ChangeDelete, ownerID, jobID)
	}
	return nil
}

func (s *Store) getJob(ctx context.Context, ownerID, jobID string) (models.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ? AND user_id = ?`, jobID, ownerID)
	j, err := scanJob(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return models.Job{}, errors.NotFound("job "+jobID+" not found", nil)
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *Store) notify(ctx context.Context, typ backend.ChangeType, ownerID, recordID string) {
	if s.notifier == nil {
		return
	}
	ev := backend.ChangeEvent{
		Type:       typ,
		Table:      "jobs",
		OwnerID:    ownerID,
		RecordID:   recordID,
		OccurredAt: s.now(),
	}
	if err := s.notifier.NotifyChange(ctx, ev); err != nil {
		s.logger.Warn("Failed to publish change",
			zap.String("type", string(typ)),
			zap.String("record_id", recordID),
			zap.Error(err))
	}
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if stderrors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func intArg(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func timeArg(v *time.Time) any {
	if v == nil {
		return nil
	}
	return toMillis(*v)
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
