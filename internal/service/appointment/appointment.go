package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"

	"github.com/Alijeyrad/ehms_backend/pkg/events"
	"github.com/Alijeyrad/ehms_backend/pkg/reqctx"
)

const meterName = "github.com/Alijeyrad/ehms_backend/internal/service/appointment"

// DefaultConcurrency bounds status writes when none is configured.
const DefaultConcurrency = 8

// ---------------------------------------------------------------------------
// Domain types
// ---------------------------------------------------------------------------

// Appointment is the part of an appointment document the engine reads.
// UpdateTime is the store's last-write time and guards the status write.
type Appointment struct {
	ID         string
	Date       string
	Time       string
	Status     Status
	UpdateTime time.Time
}

// AdvanceResult is the outcome of one AdvanceStatuses run.
type AdvanceResult struct {
	Examined int
	Updated  int
	// Skipped counts documents changed by someone else between read and write.
	Skipped int
	Errors  []error
}

func (r *AdvanceResult) Failed() int { return len(r.Errors) }

// Err combines the per-record errors, nil when every record succeeded.
func (r *AdvanceResult) Err() error { return multierr.Combine(r.Errors...) }

// StatusChange is published for every written transition.
type StatusChange struct {
	ID   string    `json:"id"`
	From Status    `json:"from"`
	To   Status    `json:"to"`
	At   time.Time `json:"at"`
}

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

type Store interface {
	ListByStatus(ctx context.Context, status Status) ([]*Appointment, error)
	// UpdateStatus writes to only if the document is unchanged since a was
	// read. It returns ErrStale otherwise.
	UpdateStatus(ctx context.Context, a *Appointment, to Status) error
	// ListAll returns every appointment document as stored, with "id" set.
	ListAll(ctx context.Context) ([]map[string]any, error)
}

// ---------------------------------------------------------------------------
// Service interface
// ---------------------------------------------------------------------------

type Service interface {
	AdvanceStatuses(ctx context.Context, now time.Time) (*AdvanceResult, error)
	List(ctx context.Context) ([]map[string]any, error)
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type appointmentService struct {
	store       Store
	pub         events.Publisher
	loc         *time.Location
	concurrency int
	transitions metric.Int64Counter
}

func New(store Store, pub events.Publisher, loc *time.Location, concurrency int) Service {
	if pub == nil {
		pub = events.Nop{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	transitions, _ := otel.Meter(meterName).Int64Counter(
		"appointment_status_transitions_total",
		metric.WithDescription("Appointment status transitions written by the status engine"),
		metric.WithUnit("{transition}"),
	)

	return &appointmentService{
		store:       store,
		pub:         pub,
		loc:         loc,
		concurrency: concurrency,
		transitions: transitions,
	}
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeUpdated
	outcomeSkipped
	outcomeFailed
)

type recordResult struct {
	outcome outcome
	err     error
}

func (s *appointmentService) AdvanceStatuses(ctx context.Context, now time.Time) (*AdvanceResult, error) {
	log := reqctx.Logger(ctx)

	var pending []*Appointment
	for _, st := range []Status{StatusUpcoming, StatusLate} {
		list, err := s.store.ListByStatus(ctx, st)
		if err != nil {
			return nil, fmt.Errorf("list %s appointments: %w", st, err)
		}
		pending = append(pending, list...)
	}

	p := pool.NewWithResults[recordResult]().WithMaxGoroutines(s.concurrency)
	for _, a := range pending {
		p.Go(func() recordResult {
			return s.advanceOne(ctx, a, now)
		})
	}
	results := p.Wait()

	res := &AdvanceResult{Examined: len(pending)}
	for _, r := range results {
		switch r.outcome {
		case outcomeUpdated:
			res.Updated++
		case outcomeSkipped:
			res.Skipped++
		case outcomeFailed:
			res.Errors = append(res.Errors, r.err)
		}
	}

	log.Info("appointment statuses advanced",
		"examined", res.Examined,
		"updated", res.Updated,
		"skipped", res.Skipped,
		"failed", res.Failed(),
	)
	return res, nil
}

func (s *appointmentService) advanceOne(ctx context.Context, a *Appointment, now time.Time) recordResult {
	log := reqctx.Logger(ctx).With("appointment_id", a.ID)

	next, changed, err := NextStatus(a, now, s.loc)
	if err != nil {
		log.Warn("appointment not evaluated", "err", err)
		return recordResult{outcome: outcomeFailed, err: fmt.Errorf("appointment %s: %w", a.ID, err)}
	}
	if !changed {
		return recordResult{outcome: outcomeUnchanged}
	}

	if err := s.store.UpdateStatus(ctx, a, next); err != nil {
		if errors.Is(err, ErrStale) || errors.Is(err, ErrNotFound) {
			log.Info("appointment changed since read, left for next run", "err", err)
			return recordResult{outcome: outcomeSkipped}
		}
		log.Error("appointment status update failed", "to", next, "err", err)
		return recordResult{outcome: outcomeFailed, err: fmt.Errorf("appointment %s: %w", a.ID, err)}
	}

	log.Info("appointment status changed", "from", a.Status, "to", next)
	if s.transitions != nil {
		s.transitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("from", string(a.Status)),
			attribute.String("to", string(next)),
		))
	}

	change := StatusChange{ID: a.ID, From: a.Status, To: next, At: now.UTC()}
	if err := s.pub.Publish(ctx, events.Subject("appointment", "status", events.Token(a.ID)), change); err != nil {
		log.Warn("publish event failed", "err", err)
	}
	return recordResult{outcome: outcomeUpdated}
}

func (s *appointmentService) List(ctx context.Context) ([]map[string]any, error) {
	docs, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	if docs == nil {
		docs = []map[string]any{}
	}
	return docs, nil
}
