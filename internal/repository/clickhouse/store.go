// Package clickhouse binds the tracker's data store to ClickHouse. Rows are
// versioned by updated_at in ReplacingMergeTree tables and read with FINAL.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"jobtracker/internal/backend"
	"jobtracker/internal/errors"
	"jobtracker/internal/models"
	"jobtracker/internal/pipeline"
	"jobtracker/internal/telemetry"
)

type Store struct {
	conn     clickhouse.Conn
	logger   *zap.Logger
	tracer   trace.Tracer
	notifier backend.Notifier
	now      func() time.Time
}

type Option func(*Store)

// WithNotifier publishes a change event after every successful job write.
func WithNotifier(n backend.Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(conn clickhouse.Conn, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		conn:   conn,
		logger: logger,
		tracer: telemetry.GetTracer("jobtracker/repository/clickhouse"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type jobRow struct {
	ID            string     `ch:"id"`
	UserID        string     `ch:"user_id"`
	Position      string     `ch:"position"`
	Company       string     `ch:"company"`
	Location      string     `ch:"location"`
	JobURL        string     `ch:"job_url"`
	Notes         string     `ch:"notes"`
	SalaryMin     *int64     `ch:"salary_min"`
	SalaryMax     *int64     `ch:"salary_max"`
	Status        string     `ch:"status"`
	Rating        uint8      `ch:"rating"`
	DateSaved     time.Time  `ch:"date_saved"`
	DateApplied   *time.Time `ch:"date_applied"`
	TestDate      *time.Time `ch:"test_date"`
	InterviewDate *time.Time `ch:"interview_date"`
	CreatedAt     time.Time  `ch:"created_at"`
	UpdatedAt     time.Time  `ch:"updated_at"`
}

func (r jobRow) job() models.Job {
	return models.Job{
		ID:            r.ID,
		UserID:        r.UserID,
		Position:      r.Position,
		Company:       r.Company,
		Location:      r.Location,
		JobURL:        r.JobURL,
		Notes:         r.Notes,
		SalaryMin:     fromInt64(r.SalaryMin),
		SalaryMax:     fromInt64(r.SalaryMax),
		Status:        pipeline.Status(r.Status),
		Rating:        int(r.Rating),
		DateSaved:     r.DateSaved.UTC(),
		DateApplied:   utc(r.DateApplied),
		TestDate:      utc(r.TestDate),
		InterviewDate: utc(r.InterviewDate),
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

const jobColumns = `id, user_id, position, company, location, job_url, notes,
	salary_min, salary_max, status, rating, date_saved, date_applied,
	test_date, interview_date, created_at, updated_at`

func (s *Store) SelectJobs(ctx context.Context, ownerID string) ([]models.Job, error) {
	ctx, span := s.tracer.Start(ctx, "SelectJobs")
	defer span.End()

	var rows []jobRow
	query := `SELECT ` + jobColumns + ` FROM jobs FINAL WHERE user_id = ? ORDER BY date_saved DESC, id`
	if err := s.conn.Select(ctx, &rows, query, ownerID); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("select jobs: %w", err)
	}

	jobs := make([]models.Job, len(rows))
	for i, r := range rows {
		jobs[i] = r.job()
	}
	span.SetAttributes(telemetry.Int("jobs.count", len(jobs)))
	return jobs, nil
}

func (s *Store) InsertJob(ctx context.Context, job models.Job) (models.Job, error) {
	ctx, span := s.tracer.Start(ctx, "InsertJob")
	defer span.End()

	if job.ID == "" || job.UserID == "" {
		return models.Job{}, errors.Validation("invalid job", map[string]string{"id": "id and user_id are required"})
	}
	exists, err := s.jobExists(ctx, job.UserID, job.ID)
	if err != nil {
		span.RecordError(err)
		return models.Job{}, err
	}
	if exists {
		return models.Job{}, errors.Conflict("job "+job.ID+" already exists", nil)
	}
	if err := s.writeJob(ctx, job); err != nil {
		span.RecordError(err)
		return models.Job{}, fmt.Errorf("insert job: %w", err)
	}

	s.notify(ctx, backend.ChangeInsert, job.UserID, job.ID)
	return job, nil
}

// UpdateJob writes a new row version. The owner must already have the job.
func (s *Store) UpdateJob(ctx context.Context, ownerID string, job models.Job) (models.Job, error) {
	ctx, span := s.tracer.Start(ctx, "UpdateJob")
	defer span.End()
	span.SetAttributes(telemetry.String("job.id", job.ID))

	var rows []jobRow
	query := `SELECT ` + jobColumns + ` FROM jobs FINAL WHERE user_id = ? AND id = ? LIMIT 1`
	if err := s.conn.Select(ctx, &rows, query, ownerID, job.ID); err != nil {
		span.RecordError(err)
		return models.Job{}, fmt.Errorf("select job: %w", err)
	}
	if len(rows) == 0 {
		return models.Job{}, errors.NotFound("job "+job.ID+" not found", nil)
	}

	current := rows[0].job()
	next := current.Apply(job.Draft())
	next.UpdatedAt = job.UpdatedAt
	if !next.UpdatedAt.After(current.UpdatedAt) {
		next.UpdatedAt = s.now()
	}
	if err := s.writeJob(ctx, next); err != nil {
		span.RecordError(err)
		return models.Job{}, fmt.Errorf("update job: %w", err)
	}

	s.notify(ctx, backend.ChangeUpdate, ownerID, job.ID)
	return next, nil
}

// DeleteJob removes the owner's job. Deleting a missing id succeeds.
func (s *Store) DeleteJob(ctx context.Context, ownerID, jobID string) error {
	ctx, span := s.tracer.Start(ctx, "DeleteJob")
	defer span.End()
	span.SetAttributes(telemetry.String("job.id", jobID))

	if err := s.conn.Exec(ctx, "DELETE FROM jobs WHERE user_id = ? AND id = ?", ownerID, jobID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete job: %w", err)
	}

	s.notify(ctx, backend.ChangeDelete, ownerID, jobID)
	return nil
}

func (s *Store) jobExists(ctx context.Context, ownerID, jobID string) (bool, error) {
	var count uint64
	row := s.conn.QueryRow(ctx, "SELECT count() FROM jobs FINAL WHERE user_id = ? AND id = ?", ownerID, jobID)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("count jobs: %w", err)
	}
	return count > 0, nil
}

func (s *Store) writeJob(ctx context.Context, j models.Job) error {
	return s.conn.Exec(ctx, `INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID,
		j.UserID,
		j.Position,
		j.Company,
		j.Location,
		j.JobURL,
		j.Notes,
		toInt64(j.SalaryMin),
		toInt64(j.SalaryMax),
		string(j.Status),
		uint8(j.Rating),
		j.DateSaved,
		j.DateApplied,
		j.TestDate,
		j.InterviewDate,
		j.CreatedAt,
		j.UpdatedAt,
	)
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

func toInt64(v *int) *int64 {
	if v == nil {
		return nil
	}
	n := int64(*v)
	return &n
}

func fromInt64(v *int64) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
