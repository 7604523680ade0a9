package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"jobtracker/internal/backend"
	"jobtracker/internal/errors"
	"jobtracker/internal/models"
	"jobtracker/internal/pipeline"
)

type recordingNotifier struct {
	events []backend.ChangeEvent
}

func (r *recordingNotifier) NotifyChange(_ context.Context, ev backend.ChangeEvent) error {
	r.events = append(r.events, ev)
	return nil
}

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	store, err := Open(MemoryPath, opts...)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 30, 0, 0, time.UTC)
}

func fullJob() models.Job {
	return models.Job{
		ID:            "j1",
		UserID:        "u1",
		Position:      "Backend Engineer",
		Company:       "Acme",
		Location:      "Remote",
		JobURL:        "https://acme.example/jobs/1",
		Notes:         "referral from Sam",
		SalaryMin:     models.IntPtr(0),
		SalaryMax:     models.IntPtr(150000),
		Status:        pipeline.StatusInterviewing,
		Rating:        4,
		DateSaved:     day(2024, time.March, 1),
		DateApplied:   models.TimePtr(day(2024, time.March, 3)),
		TestDate:      models.TimePtr(day(2024, time.March, 10)),
		InterviewDate: models.TimePtr(day(2024, time.March, 20)),
		CreatedAt:     day(2024, time.March, 1),
		UpdatedAt:     day(2024, time.March, 20),
	}
}

func TestJobRoundTripsEveryField(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	want := fullJob()

	if _, err := store.InsertJob(ctx, want); err != nil {
		t.Fatalf("insert: %v", err)
	}
	jobs, err := store.SelectJobs(ctx, "u1")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	got := jobs[0]

	if got.ID != want.ID || got.UserID != want.UserID || got.Position != want.Position ||
		got.Company != want.Company || got.Location != want.Location || got.JobURL != want.JobURL ||
		got.Notes != want.Notes || got.Status != want.Status || got.Rating != want.Rating {
		t.Fatalf("scalar fields differ:\n got %+v\nwant %+v", got, want)
	}
	if got.SalaryMin == nil || *got.SalaryMin != 0 || got.SalaryMax == nil || *got.SalaryMax != 150000 {
		t.Fatalf("salary differs: %v %v", got.SalaryMin, got.SalaryMax)
	}
	for name, pair := range map[string][2]*time.Time{
		"date_applied":   {got.DateApplied, want.DateApplied},
		"test_date":      {got.TestDate, want.TestDate},
		"interview_date": {got.InterviewDate, want.InterviewDate},
	} {
		if pair[0] == nil || !pair[0].Equal(*pair[1]) {
			t.Fatalf("%s differs: %v vs %v", name, pair[0], pair[1])
		}
	}
	if !got.DateSaved.Equal(want.DateSaved) || !got.CreatedAt.Equal(want.CreatedAt) || !got.UpdatedAt.Equal(want.UpdatedAt) {
		t.Fatalf("timestamps differ: %+v", got)
	}
}

func TestNullOptionalFields(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	j := models.Job{ID: "j2", UserID: "u1", Position: "P", Company: "C", Status: pipeline.StatusBookmarked, DateSaved: day(2024, 1, 1)}

	got, err := store.InsertJob(ctx, j)
	if err != nil {
		t.Fatal(err)
	}
	if got.SalaryMin != nil || got.SalaryMax != nil || got.DateApplied != nil || got.TestDate != nil || got.InterviewDate != nil {
		t.Fatalf("expected unset fields to stay nil, got %+v", got)
	}
}

func TestSelectJobsScopedAndOrdered(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	for _, j := range []models.Job{
		{ID: "old", UserID: "u1", Position: "P", Company: "C", DateSaved: day(2024, 1, 1)},
		{ID: "new", UserID: "u1", Position: "P", Company: "C", DateSaved: day(2024, 5, 1)},
		{ID: "theirs", UserID: "u2", Position: "P", Company: "C", DateSaved: day(2024, 3, 1)},
	} {
		if _, err := store.InsertJob(ctx, j); err != nil {
			t.Fatal(err)
		}
	}

	jobs, err := store.SelectJobs(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 || jobs[0].ID != "new" || jobs[1].ID != "old" {
		t.Fatalf("unexpected jobs %+v", jobs)
	}
	empty, err := store.SelectJobs(ctx, "nobody")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v, %v", empty, err)
	}
}

func TestInsertDuplicateConflicts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if _, err := store.InsertJob(ctx, fullJob()); err != nil {
		t.Fatal(err)
	}
	if _, err := store.InsertJob(ctx, fullJob()); !errors.Is(err, errors.ErrTypeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestUpdateJobKeepsIdentityFields(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	original := fullJob()
	if _, err := store.InsertJob(ctx, original); err != nil {
		t.Fatal(err)
	}

	changed := original
	changed.Status = pipeline.StatusNegotiating
	changed.SalaryMin = nil
	changed.DateSaved = day(2030, 1, 1)
	changed.UpdatedAt = day(2024, time.April, 1)

	got, err := store.UpdateJob(ctx, "u1", changed)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Status != pipeline.StatusNegotiating || got.SalaryMin != nil {
		t.Fatalf("update not applied: %+v", got)
	}
	if !got.DateSaved.Equal(original.DateSaved) || !got.UpdatedAt.Equal(day(2024, time.April, 1)) {
		t.Fatalf("unexpected timestamps %+v", got)
	}

	if _, err := store.UpdateJob(ctx, "u2", changed); !errors.Is(err, errors.ErrTypeNotFound) {
		t.Fatalf("expected not found for another owner, got %v", err)
	}
}

func TestDeleteJob(t *testing.T) {
	notifier := &recordingNotifier{}
	store := openTestStore(t, WithNotifier(notifier))
	ctx := context.Background()
	if _, err := store.InsertJob(ctx, fullJob()); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteJob(ctx, "u2", "j1"); err != nil {
		t.Fatalf("delete by other owner should be a no-op, got %v", err)
	}
	if err := store.DeleteJob(ctx, "u1", "missing"); err != nil {
		t.Fatalf("delete of missing id should succeed, got %v", err)
	}
	if err := store.DeleteJob(ctx, "u1", "j1"); err != nil {
		t.Fatal(err)
	}
	jobs, _ := store.SelectJobs(ctx, "u1")
	if len(jobs) != 0 {
		t.Fatal("job not deleted")
	}

	if len(notifier.events) != 2 {
		t.Fatalf("expected insert and delete notifications, got %+v", notifier.events)
	}
	if notifier.events[1].Type != backend.ChangeDelete || notifier.events[1].OwnerID != "u1" || notifier.events[1].RecordID != "j1" {
		t.Fatalf("unexpected event %+v", notifier.events[1])
	}
}

func TestProfileUpsert(t *testing.T) {
	clock := day(2024, 1, 1)
	store := openTestStore(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	p, err := store.GetProfile(ctx, "u1")
	if err != nil || p != nil {
		t.Fatalf("expected no profile, got %v, %v", p, err)
	}

	saved, err := store.UpsertProfile(ctx, models.Profile{UserID: "u1", FullName: "Ada Lovelace"})
	if err != nil {
		t.Fatal(err)
	}
	clock = day(2024, 2, 1)
	updated, err := store.UpsertProfile(ctx, models.Profile{UserID: "u1", FullName: "Ada", Bio: "math"})
	if err != nil {
		t.Fatal(err)
	}
	if updated.FullName != "Ada" || updated.Bio != "math" {
		t.Fatalf("upsert not applied: %+v", updated)
	}
	if !updated.CreatedAt.Equal(saved.CreatedAt) || !updated.UpdatedAt.Equal(clock) {
		t.Fatalf("unexpected timestamps %+v", updated)
	}
}

func TestUsers(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	u := models.User{ID: "u1", Email: "Ada@Example.com ", PasswordHash: "hash", CreatedAt: day(2024, 1, 1), UpdatedAt: day(2024, 1, 1)}

	if err := store.CreateUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateUser(ctx, models.User{ID: "u2", Email: "ada@example.com"}); !errors.Is(err, errors.ErrTypeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	got, err := store.UserByEmail(ctx, "ADA@example.com")
	if err != nil || got.ID != "u1" || got.Email != "ada@example.com" {
		t.Fatalf("unexpected user %+v, %v", got, err)
	}
	if _, err := store.UserByID(ctx, "nope"); !errors.Is(err, errors.ErrTypeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReopenSkipsAppliedMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	first, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := first.InsertJob(context.Background(), fullJob()); err != nil {
		t.Fatal(err)
	}
	_ = first.Close()

	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	jobs, err := second.SelectJobs(context.Background(), "u1")
	if err != nil || len(jobs) != 1 {
		t.Fatalf("expected persisted job, got %v, %v", jobs, err)
	}
}
