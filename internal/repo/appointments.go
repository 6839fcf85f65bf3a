package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Alijeyrad/ehms_backend/internal/service/appointment"
)

const (
	AppointmentsCollection = "Appointments"

	fieldDate   = "Date"
	fieldTime   = "Time"
	fieldStatus = "Status"
)

// Appointments implements appointment.Store on Firestore.
type Appointments struct {
	col *firestore.CollectionRef
}

func NewAppointments(client *firestore.Client) *Appointments {
	return &Appointments{col: client.Collection(AppointmentsCollection)}
}

func (a *Appointments) ListByStatus(ctx context.Context, st appointment.Status) ([]*appointment.Appointment, error) {
	snaps, err := a.col.Where(fieldStatus, "==", string(st)).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("query %s appointments: %w", st, err)
	}
	out := make([]*appointment.Appointment, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, toAppointment(snap.Ref.ID, snap.Data(), snap.UpdateTime))
	}
	return out, nil
}

// UpdateStatus writes Status guarded by the update time the document had
// when it was read.
func (a *Appointments) UpdateStatus(ctx context.Context, appt *appointment.Appointment, to appointment.Status) error {
	var pre []firestore.Precondition
	if !appt.UpdateTime.IsZero() {
		pre = append(pre, firestore.LastUpdateTime(appt.UpdateTime))
	}
	_, err := a.col.Doc(appt.ID).Update(ctx, []firestore.Update{
		{Path: fieldStatus, Value: string(to)},
	}, pre...)
	if err != nil {
		return mapAppointmentErr(err)
	}
	return nil
}

func (a *Appointments) ListAll(ctx context.Context) ([]map[string]any, error) {
	snaps, err := a.col.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	out := make([]map[string]any, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, withID(snap.Ref.ID, snap.Data()))
	}
	return out, nil
}

func toAppointment(id string, data map[string]any, updated time.Time) *appointment.Appointment {
	str := func(k string) string {
		v, _ := data[k].(string)
		return v
	}
	return &appointment.Appointment{
		ID:         id,
		Date:       str(fieldDate),
		Time:       str(fieldTime),
		Status:     appointment.Status(str(fieldStatus)),
		UpdateTime: updated,
	}
}

func withID(id string, data map[string]any) map[string]any {
	if data == nil {
		data = map[string]any{}
	}
	data["id"] = id
	return data
}

func mapAppointmentErr(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return appointment.ErrNotFound
	case codes.FailedPrecondition, codes.Aborted:
		return fmt.Errorf("%w: %v", appointment.ErrStale, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("update appointment: %w", err)
}
