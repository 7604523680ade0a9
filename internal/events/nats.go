// Package events carries row-change notifications between writers and the
// job stores watching an owner's records.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"jobtracker/internal/backend"
	"jobtracker/internal/errors"
	"jobtracker/internal/telemetry"
)

const ChangeSubjectPrefix = "jobs.changes."

// Subject returns the NATS subject an owner's changes are published on.
func Subject(ownerID string) (string, error) {
	if ownerID == "" || strings.ContainsAny(ownerID, ".*> \t\r\n") {
		return "", errors.Validation("invalid owner id", map[string]string{"owner_id": "not usable as a subject token"})
	}
	return ChangeSubjectPrefix + ownerID, nil
}

type ConnOptions struct {
	URL     string
	Name    string
	Timeout time.Duration
}

func Connect(opts ConnOptions) (*nats.Conn, error) {
	conn, err := nats.Connect(opts.URL,
		nats.Timeout(opts.Timeout),
		nats.Name(opts.Name),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
	)
	if err != nil {
		return nil, errors.Unavailable("connecting to NATS", err)
	}
	return conn, nil
}

// Feed publishes and delivers change events over NATS.
type Feed struct {
	conn   *nats.Conn
	logger *zap.Logger
	tracer trace.Tracer
}

func NewFeed(logger *zap.Logger, conn *nats.Conn) *Feed {
	return &Feed{
		conn:   conn,
		logger: logger,
		tracer: telemetry.GetTracer("jobtracker/events"),
	}
}

func (f *Feed) NotifyChange(ctx context.Context, ev backend.ChangeEvent) error {
	_, span := f.tracer.Start(ctx, "Feed.NotifyChange")
	defer span.End()

	subject, err := Subject(ev.OwnerID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		span.RecordError(err)
		return errors.Internal("marshaling change event", err)
	}

	span.SetAttributes(
		telemetry.String("nats.subject", subject),
		telemetry.Int("message.size", len(data)),
	)

	if err := f.conn.Publish(subject, data); err != nil {
		span.RecordError(err)
		f.logger.Error("failed to publish change",
			zap.String("record_id", ev.RecordID),
			zap.Error(err))
		return errors.Unavailable("publishing to NATS", err)
	}

	f.logger.Debug("published change",
		zap.String("type", string(ev.Type)),
		zap.String("record_id", ev.RecordID),
		zap.String("subject", subject))
	return nil
}

// SubscribeChanges delivers the owner's change events to fn until the
// returned function is called or ctx is done.
func (f *Feed) SubscribeChanges(ctx context.Context, ownerID string, fn func(backend.ChangeEvent)) (func() error, error) {
	subject, err := Subject(ownerID)
	if err != nil {
		return nil, err
	}

	sub, err := f.conn.Subscribe(subject, func(msg *nats.Msg) {
		_, span := f.tracer.Start(context.Background(), "Feed.handleChange")
		defer span.End()

		var ev backend.ChangeEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			span.RecordError(err)
			f.logger.Warn("Dropping malformed change event",
				zap.String("subject", msg.Subject),
				zap.Error(err))
			return
		}
		fn(ev)
	})
	if err != nil {
		return nil, errors.Unavailable("subscribe to "+subject, err)
	}
	f.logger.Info("Subscribed to changes", zap.String("subject", subject))

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Unsubscribe()
		case <-stop:
		}
	}()

	return stopper(stop, sub.Unsubscribe), nil
}

// stopper closes stop and runs unsub once, however many callers race.
func stopper(stop chan struct{}, unsub func() error) func() error {
	var once sync.Once
	return func() error {
		var err error
		once.Do(func() {
			close(stop)
			err = unsub()
		})
		return err
	}
}

func (f *Feed) Close() {
	if f.conn != nil {
		f.conn.Close()
	}
}
