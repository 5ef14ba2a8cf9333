// Package audit records security-relevant events to the append-only log.
// A failed write never aborts the operation being audited: failures are
// swallowed here and surfaced through the operational channel instead
// (log line + prometheus counter).
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/cliniva/access-core/internal/model"
)

var writeFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "audit_write_failures_total",
	Help: "Audit events that could not be appended to the store.",
})

// Store is the append-only persistence the recorder writes to.
type Store interface {
	Insert(ctx context.Context, e model.AuditEvent) error
}

// Entry is what callers supply; id, timestamp, classification flags and the
// default retention horizon are filled in at write time.
type Entry struct {
	ActorID        *string
	ActorEmail     string
	ActorRole      string
	ActorIP        string
	ActorUserAgent string
	Action         model.AuditAction
	Entity         model.AuditEntity
	EntityID       *string
	Result         model.AuditResult
	ErrorMessage   string
	RetentionDate  time.Time // zero means timestamp + model.DefaultRetention
}

// Recorder classifies and appends audit events.
type Recorder struct {
	store   Store
	log     *logrus.Logger
	now     func() time.Time
	timeout time.Duration
}

func NewRecorder(store Store, log *logrus.Logger) *Recorder {
	return &Recorder{
		store:   store,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
		timeout: 2 * time.Second,
	}
}

// WithClock overrides the recorder's clock. Used by tests.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// Record derives the immutable classification flags, stamps the event and
// appends it. Storage errors are not returned: the write is bounded by the
// recorder's own timeout and a failure only increments the failure counter
// and logs.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	ts := r.now()
	highRisk, sensitive := model.Classify(entry.Action, entry.Entity)
	retention := entry.RetentionDate
	if retention.IsZero() {
		retention = ts.Add(model.DefaultRetention)
	}
	event := model.AuditEvent{
		ID:              uuid.NewString(),
		ActorID:         entry.ActorID,
		ActorEmail:      entry.ActorEmail,
		ActorRole:       entry.ActorRole,
		ActorIP:         entry.ActorIP,
		ActorUserAgent:  entry.ActorUserAgent,
		Action:          entry.Action,
		Entity:          entry.Entity,
		EntityID:        entry.EntityID,
		Result:          entry.Result,
		ErrorMessage:    entry.ErrorMessage,
		Timestamp:       ts,
		IsHighRisk:      highRisk,
		IsSensitiveData: sensitive,
		RetentionDate:   retention,
	}

	writeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.store.Insert(writeCtx, event); err != nil {
		writeFailures.Inc()
		r.log.WithError(err).WithFields(logrus.Fields{
			"action": event.Action,
			"entity": event.Entity,
		}).Error("audit: append failed")
	}
}
