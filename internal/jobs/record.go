package jobs

import "jobtracker/internal/models"

// RecordState tracks a record through an optimistic mutation:
// pending -> confirmed when the backend accepts it, or pending -> failed when
// it rejects it. A failed record is rolled back and reported once.
type RecordState string

const (
	StatePending   RecordState = "pending"
	StateConfirmed RecordState = "confirmed"
	StateFailed    RecordState = "failed"
)

type Op string

const (
	OpNone   Op = ""
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

type Record struct {
	Job   models.Job  `json:"job"`
	State RecordState `json:"state"`
	Op    Op          `json:"op,omitempty"`
}

// entry is the store's mutable bookkeeping for one record.
type entry struct {
	job   models.Job
	state RecordState
	op    Op
	// prior is the version restored if the pending mutation fails: the last
	// confirmed version, or the inserted values while the insert itself is
	// still unconfirmed.
	prior *models.Job
	// seq identifies the mutation that last put the entry into pending.
	seq uint64
	// insertSeq is the add that created the entry, zero once the backend
	// holds the record. Its failure removes the entry whatever seq owns it.
	insertSeq uint64
}

func confirmedEntry(j models.Job) *entry {
	return &entry{job: j, state: StateConfirmed}
}

func (e *entry) begin(op Op, next models.Job, seq uint64) {
	switch {
	case op == OpInsert:
		e.insertSeq = seq
	case e.state != StatePending, e.insertSeq != 0 && e.prior == nil:
		prior := e.job.Clone()
		e.prior = &prior
	}
	e.job = next
	e.state = StatePending
	e.op = op
	e.seq = seq
}

// confirm applies a successful response. The response always wins, but the
// entry stays pending while a newer mutation is still in flight.
func (e *entry) confirm(j models.Job, seq uint64) {
	e.job = j
	e.insertSeq = 0
	if e.state == StatePending && e.seq != seq {
		c := j.Clone()
		e.prior = &c
		return
	}
	e.state = StateConfirmed
	e.op = OpNone
	e.prior = nil
}

// rollback undoes the pending mutation identified by seq. It reports false
// when a newer mutation owns the entry, in which case nothing changes. An
// entry whose insert is still in flight goes back to a pending insert.
func (e *entry) rollback(seq uint64) bool {
	if e.state != StatePending || e.seq != seq {
		return false
	}
	if e.prior != nil {
		e.job = *e.prior
	}
	e.prior = nil
	if e.insertSeq != 0 {
		e.op = OpInsert
		e.seq = e.insertSeq
		return true
	}
	e.state = StateConfirmed
	e.op = OpNone
	return true
}

// unconfirmedInsert reports whether seq is the add that created the entry
// and the backend has not yet accepted it.
func (e *entry) unconfirmedInsert(seq uint64) bool {
	return e.insertSeq != 0 && e.insertSeq == seq
}

func (e *entry) visible() bool {
	return !(e.state == StatePending && e.op == OpDelete)
}

func (e *entry) record() Record {
	return Record{Job: e.job.Clone(), State: e.state, Op: e.op}
}
