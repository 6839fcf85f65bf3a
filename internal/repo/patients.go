package repo

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Alijeyrad/ehms_backend/internal/service/patient"
)

const PatientsCollection = "Patients"

// Patients implements patient.Store on Firestore.
type Patients struct {
	col *firestore.CollectionRef
}

func NewPatients(client *firestore.Client) *Patients {
	return &Patients{col: client.Collection(PatientsCollection)}
}

func (p *Patients) Get(ctx context.Context, id string) (patient.Record, error) {
	snap, err := p.col.Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, patient.ErrNotFound
		}
		return nil, fmt.Errorf("get patient %q: %w", id, err)
	}
	return patient.Record(withID(snap.Ref.ID, snap.Data())), nil
}

func (p *Patients) ListByField(ctx context.Context, field, value string) ([]patient.Record, error) {
	snaps, err := p.col.Where(field, "==", value).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("query patients by %s: %w", field, err)
	}
	out := make([]patient.Record, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, patient.Record(withID(snap.Ref.ID, snap.Data())))
	}
	return out, nil
}
