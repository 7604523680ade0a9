// Package backend declares the managed services the tracker depends on:
// authentication, the remote data store and the change notification channel.
// Concrete bindings live in internal/repository, internal/auth and
// internal/events.
package backend

import (
	"context"
	"encoding/json"
	"time"

	"jobtracker/internal/models"
)

type Session struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	FullName    string    `json:"full_name,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type AuthEventType string

const (
	SignedIn    AuthEventType = "SIGNED_IN"
	SignedOut   AuthEventType = "SIGNED_OUT"
	UserUpdated AuthEventType = "USER_UPDATED"
)

type AuthEvent struct {
	Event   AuthEventType
	Session *Session
}

type Auth interface {
	GetSession(ctx context.Context, token string) (*Session, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]string) (*Session, error)
	SignOut(ctx context.Context, token string) error
	OnAuthStateChange(fn func(AuthEvent)) (unsubscribe func())
}

// DataStore is the remote relational store. Every job operation is scoped
// to the owning user.
type DataStore interface {
	SelectJobs(ctx context.Context, ownerID string) ([]models.Job, error)
	InsertJob(ctx context.Context, job models.Job) (models.Job, error)
	UpdateJob(ctx context.Context, ownerID string, job models.Job) (models.Job, error)
	DeleteJob(ctx context.Context, ownerID, jobID string) error

	// GetProfile returns (nil, nil) when the user has no profile yet.
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	UpsertProfile(ctx context.Context, profile models.Profile) (models.Profile, error)
}

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

type ChangeEvent struct {
	Type       ChangeType `json:"type"`
	Table      string     `json:"table"`
	OwnerID    string     `json:"owner_id"`
	RecordID   string     `json:"record_id"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// ChangeFeed delivers row changes for one owner's records.
type ChangeFeed interface {
	SubscribeChanges(ctx context.Context, ownerID string, fn func(ChangeEvent)) (unsubscribe func() error, err error)
}

// Notifier is implemented by feeds that accept change events from writers.
type Notifier interface {
	NotifyChange(ctx context.Context, ev ChangeEvent) error
}

func (s Session) MarshalBinary() ([]byte, error) {
	return json.Marshal(s)
}

func (s *Session) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, s)
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
