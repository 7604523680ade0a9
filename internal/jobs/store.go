// Package jobs keeps the signed-in user's job collection in memory and
// mediates every mutation against the remote data store.
package jobs

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"jobtracker/internal/backend"
	"jobtracker/internal/errors"
	"jobtracker/internal/models"
	"jobtracker/internal/pipeline"
	"jobtracker/internal/telemetry"
)

type Snapshot struct {
	UserID  string   `json:"user_id"`
	Version uint64   `json:"version"`
	Records []Record `json:"records"`
	Loading bool     `json:"loading"`
	Err     error    `json:"-"`
	// Failed is the most recent mutation the backend rejected, as it was
	// attempted. It is cleared when the next operation starts.
	Failed *Record `json:"failed,omitempty"`
}

// Jobs returns the records a view should display: everything except
// records with a delete in flight.
func (s Snapshot) Jobs() []models.Job {
	out := make([]models.Job, 0, len(s.Records))
	for _, r := range s.Records {
		if r.State == StatePending && r.Op == OpDelete {
			continue
		}
		out = append(out, r.Job)
	}
	return out
}

type Observer func(Snapshot)

type Store struct {
	data   backend.DataStore
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
	newID  func() string

	mu       sync.Mutex
	userID   string
	entries  []*entry
	version  uint64
	seq      uint64
	loadSeq  uint64
	applied  uint64
	loading  int
	lastErr  error
	failed   *Record
	nextObs  int
	watchers map[int]Observer
}

type Option func(*Store)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

func New(data backend.DataStore, opts ...Option) *Store {
	s := &Store{
		data:     data,
		logger:   zap.NewNop(),
		tracer:   telemetry.GetTracer("jobtracker/jobs"),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		watchers: map[int]Observer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetUser establishes the identity every operation is scoped to. Switching
// users discards the collection and orphans in-flight responses.
func (s *Store) SetUser(userID string) {
	s.mu.Lock()
	if s.userID == userID {
		s.mu.Unlock()
		return
	}
	s.userID = userID
	s.entries = nil
	s.lastErr = nil
	s.failed = nil
	s.loadSeq++
	s.applied = s.loadSeq
	snap := s.changedLocked()
	s.mu.Unlock()

	s.notify(snap)
}

func (s *Store) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Subscribe registers fn to receive a snapshot after every change. Snapshots
// carry a Version; observers called concurrently may drop older ones.
func (s *Store) Subscribe(fn Observer) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.watchers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Err is the last error any operation returned, nil after a success.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Get returns the current local copy of a job.
func (s *Store) Get(id string) (models.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.findLocked(id); e != nil && e.visible() {
		return e.job.Clone(), true
	}
	return models.Job{}, false
}

// Load replaces the collection with the backend's, newest first. On failure
// the previous collection is kept.
func (s *Store) Load(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "Store.Load")
	defer span.End()

	s.mu.Lock()
	user := s.userID
	if user == "" {
		s.entries = nil
		s.lastErr = nil
		snap := s.changedLocked()
		s.mu.Unlock()
		s.notify(snap)
		return nil
	}
	s.loadSeq++
	seq := s.loadSeq
	s.loading++
	s.lastErr = nil
	snap := s.changedLocked()
	s.mu.Unlock()
	s.notify(snap)

	jobs, err := s.data.SelectJobs(ctx, user)

	s.mu.Lock()
	s.loading--
	if s.userID != user || seq < s.applied {
		snap = s.changedLocked()
		s.mu.Unlock()
		s.notify(snap)
		return nil
	}
	if err != nil {
		span.RecordError(err)
		ferr := errors.Fetch("failed to load jobs", err)
		s.lastErr = ferr
		snap = s.changedLocked()
		s.mu.Unlock()
		s.logger.Error("Failed to load jobs", zap.String("user_id", user), zap.Error(err))
		s.notify(snap)
		return ferr
	}
	s.applied = seq
	entries := make([]*entry, len(jobs))
	for i, j := range jobs {
		entries[i] = confirmedEntry(j.Clone())
	}
	s.entries = entries
	snap = s.changedLocked()
	s.mu.Unlock()

	span.SetAttributes(telemetry.Int("jobs.count", len(jobs)))
	s.logger.Debug("Loaded jobs", zap.String("user_id", user), zap.Int("count", len(jobs)))
	s.notify(snap)
	return nil
}

// Add creates a job from a draft. The new record is shown as pending at the
// head of the collection until the backend confirms or rejects it.
func (s *Store) Add(ctx context.Context, d models.Draft) (models.Job, error) {
	ctx, span := s.tracer.Start(ctx, "Store.Add")
	defer span.End()

	status, known := pipeline.Parse(string(d.Status))
	if !known {
		return models.Job{}, s.fail(unknownStatus(d.Status))
	}
	d.Status = status
	if err := d.Validate(); err != nil {
		return models.Job{}, s.fail(err)
	}

	s.mu.Lock()
	user := s.userID
	if user == "" {
		s.mu.Unlock()
		return models.Job{}, s.fail(errors.AuthRequired("user not authenticated"))
	}
	now := s.stamp()
	job := models.Job{
		ID:        s.newID(),
		UserID:    user,
		DateSaved: now,
		CreatedAt: now,
		UpdatedAt: now,
	}.Apply(d)
	seq := s.beginLocked()
	e := &entry{}
	e.begin(OpInsert, job, seq)
	s.entries = append([]*entry{e}, s.entries...)
	snap := s.changedLocked()
	s.mu.Unlock()
	s.notify(snap)

	span.SetAttributes(telemetry.String("job.id", job.ID))
	confirmed, err := s.data.InsertJob(ctx, job.Clone())

	s.mu.Lock()
	if s.userID != user {
		s.mu.Unlock()
		return confirmed, nil
	}
	if err != nil {
		span.RecordError(err)
		werr := errors.Write("failed to add job", err)
		s.rollbackLocked(job.ID, seq, werr)
		snap = s.changedLocked()
		s.mu.Unlock()
		s.logger.Error("Failed to add job", zap.String("user_id", user), zap.Error(err))
		s.notify(snap)
		return models.Job{}, werr
	}
	if cur := s.findLocked(confirmed.ID); cur != nil {
		cur.confirm(confirmed.Clone(), seq)
	} else {
		s.entries = append([]*entry{confirmedEntry(confirmed.Clone())}, s.entries...)
	}
	snap = s.changedLocked()
	s.mu.Unlock()

	s.logger.Info("Added job", zap.String("job_id", confirmed.ID), zap.String("user_id", user))
	s.notify(snap)
	return confirmed, nil
}

// Update replaces every mutable field of the job with the given values.
func (s *Store) Update(ctx context.Context, job models.Job) (models.Job, error) {
	ctx, span := s.tracer.Start(ctx, "Store.Update")
	defer span.End()
	span.SetAttributes(telemetry.String("job.id", job.ID))

	if err := job.Draft().Validate(); err != nil {
		return models.Job{}, s.fail(err)
	}
	// Aliases are normalized. An unknown status is only kept when the stored
	// record already carries it.
	if status, known := pipeline.Parse(string(job.Status)); known {
		job.Status = status
	} else if cur, ok := s.Get(job.ID); !ok || cur.Status != job.Status {
		return models.Job{}, s.fail(unknownStatus(job.Status))
	}

	s.mu.Lock()
	user := s.userID
	if user == "" {
		s.mu.Unlock()
		return models.Job{}, s.fail(errors.AuthRequired("user not authenticated"))
	}
	next := job.Clone()
	next.UserID = user
	next.UpdatedAt = s.stamp()
	seq := s.beginLocked()
	if cur := s.findLocked(job.ID); cur != nil {
		next.DateSaved = cur.job.DateSaved
		next.CreatedAt = cur.job.CreatedAt
		cur.begin(OpUpdate, next.Clone(), seq)
	}
	snap := s.changedLocked()
	s.mu.Unlock()
	s.notify(snap)

	confirmed, err := s.data.UpdateJob(ctx, user, next)

	s.mu.Lock()
	if s.userID != user {
		s.mu.Unlock()
		return confirmed, nil
	}
	if err != nil {
		span.RecordError(err)
		werr := errors.Write("failed to update job", err)
		s.rollbackLocked(job.ID, seq, werr)
		snap = s.changedLocked()
		s.mu.Unlock()
		s.logger.Error("Failed to update job", zap.String("job_id", job.ID), zap.Error(err))
		s.notify(snap)
		return models.Job{}, werr
	}
	if cur := s.findLocked(confirmed.ID); cur != nil {
		cur.confirm(confirmed.Clone(), seq)
	}
	snap = s.changedLocked()
	s.mu.Unlock()

	s.logger.Info("Updated job", zap.String("job_id", confirmed.ID), zap.String("status", string(confirmed.Status)))
	s.notify(snap)
	return confirmed, nil
}

// SetStatus moves a job to another pipeline stage.
func (s *Store) SetStatus(ctx context.Context, id string, status pipeline.Status) (models.Job, error) {
	parsed, known := pipeline.Parse(string(status))
	if !known || status == "" {
		return models.Job{}, s.fail(unknownStatus(status))
	}
	return s.quickAction(ctx, id, func(j *models.Job) { j.Status = parsed })
}

// SetRating changes a job's rating.
func (s *Store) SetRating(ctx context.Context, id string, rating int) (models.Job, error) {
	return s.quickAction(ctx, id, func(j *models.Job) { j.Rating = rating })
}

func (s *Store) quickAction(ctx context.Context, id string, mutate func(*models.Job)) (models.Job, error) {
	if s.UserID() == "" {
		return models.Job{}, s.fail(errors.AuthRequired("user not authenticated"))
	}
	job, ok := s.Get(id)
	if !ok {
		return models.Job{}, s.fail(errors.Write("failed to update job", errors.NotFound("job "+id+" not found", nil)))
	}
	mutate(&job)
	return s.Update(ctx, job)
}

// Remove deletes a job. Removing an id that is not in the collection is a
// no-op success once the backend has acknowledged it.
func (s *Store) Remove(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "Store.Remove")
	defer span.End()
	span.SetAttributes(telemetry.String("job.id", id))

	s.mu.Lock()
	user := s.userID
	if user == "" {
		s.mu.Unlock()
		return s.fail(errors.AuthRequired("user not authenticated"))
	}
	seq := s.beginLocked()
	if cur := s.findLocked(id); cur != nil {
		cur.begin(OpDelete, cur.job, seq)
	}
	snap := s.changedLocked()
	s.mu.Unlock()
	s.notify(snap)

	err := s.data.DeleteJob(ctx, user, id)

	s.mu.Lock()
	if s.userID != user {
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		span.RecordError(err)
		werr := errors.Write("failed to delete job", err)
		s.rollbackLocked(id, seq, werr)
		snap = s.changedLocked()
		s.mu.Unlock()
		s.logger.Error("Failed to delete job", zap.String("job_id", id), zap.Error(err))
		s.notify(snap)
		return werr
	}
	s.removeLocked(id)
	snap = s.changedLocked()
	s.mu.Unlock()

	s.logger.Info("Deleted job", zap.String("job_id", id), zap.String("user_id", user))
	s.notify(snap)
	return nil
}

// HandleChange reacts to a remote change notification by reloading. The
// reload is authoritative over any pending local state.
func (s *Store) HandleChange(ctx context.Context, ev backend.ChangeEvent) error {
	if ev.OwnerID != s.UserID() {
		return nil
	}
	s.logger.Debug("Remote change received",
		zap.String("type", string(ev.Type)),
		zap.String("record_id", ev.RecordID))
	return s.Load(ctx)
}

// Watch subscribes to the change feed for the current user until ctx is
// done or the returned function is called.
func (s *Store) Watch(ctx context.Context, feed backend.ChangeFeed) (func() error, error) {
	user := s.UserID()
	if user == "" {
		return nil, errors.AuthRequired("user not authenticated")
	}
	return feed.SubscribeChanges(ctx, user, func(ev backend.ChangeEvent) {
		if err := s.HandleChange(ctx, ev); err != nil {
			s.logger.Warn("Reload after remote change failed", zap.Error(err))
		}
	})
}

// stamp is the store clock at the millisecond precision the bindings keep.
func (s *Store) stamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func unknownStatus(status pipeline.Status) error {
	return errors.Validation("invalid status", map[string]string{"status": "unknown status " + string(status)})
}

func (s *Store) fail(err error) error {
	s.mu.Lock()
	s.lastErr = err
	snap := s.changedLocked()
	s.mu.Unlock()
	s.notify(snap)
	return err
}

func (s *Store) beginLocked() uint64 {
	s.seq++
	s.lastErr = nil
	s.failed = nil
	return s.seq
}

func (s *Store) rollbackLocked(id string, seq uint64, err error) {
	s.lastErr = err
	cur := s.findLocked(id)
	if cur == nil {
		return
	}
	attempted := cur.record()
	if cur.unconfirmedInsert(seq) {
		attempted.Op = OpInsert
		s.removeLocked(id)
	} else if !cur.rollback(seq) {
		return
	}
	attempted.State = StateFailed
	s.failed = &attempted
}

func (s *Store) findLocked(id string) *entry {
	for _, e := range s.entries {
		if e.job.ID == id {
			return e
		}
	}
	return nil
}

func (s *Store) removeLocked(id string) {
	out := s.entries[:0]
	for _, e := range s.entries {
		if e.job.ID != id {
			out = append(out, e)
		}
	}
	s.entries = out
}

func (s *Store) changedLocked() Snapshot {
	s.version++
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	records := make([]Record, len(s.entries))
	for i, e := range s.entries {
		records[i] = e.record()
	}
	snap := Snapshot{
		UserID:  s.userID,
		Version: s.version,
		Records: records,
		Loading: s.loading > 0,
		Err:     s.lastErr,
	}
	if s.failed != nil {
		f := *s.failed
		f.Job = f.Job.Clone()
		snap.Failed = &f
	}
	return snap
}

func (s *Store) notify(snap Snapshot) {
	s.mu.Lock()
	ids := make([]int, 0, len(s.watchers))
	for id := range s.watchers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	observers := make([]Observer, len(ids))
	for i, id := range ids {
		observers[i] = s.watchers[id]
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}
