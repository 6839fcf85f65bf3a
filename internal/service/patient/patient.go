package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// FamilyField is the document field that groups family members.
const FamilyField = "FamilyId"

// Record is a patient document as stored, with "id" set.
type Record map[string]any

// FamilyID returns the record's family group, or "" when it has none.
func (r Record) FamilyID() string {
	v, _ := r[FamilyField].(string)
	return strings.TrimSpace(v)
}

func (r Record) ID() string {
	v, _ := r["id"].(string)
	return v
}

type Store interface {
	// Get returns ErrNotFound when no document has this ID.
	Get(ctx context.Context, id string) (Record, error)
	ListByField(ctx context.Context, field, value string) ([]Record, error)
}

type Service interface {
	Get(ctx context.Context, patientID string) (Record, error)
	Family(ctx context.Context, patientID string) ([]Record, error)
}

type patientService struct {
	store Store
}

func New(store Store) Service {
	return &patientService{store: store}
}

func (s *patientService) Get(ctx context.Context, patientID string) (Record, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, fmt.Errorf("%w: patientId is required", ErrInvalidInput)
	}
	rec, err := s.store.Get(ctx, patientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return rec, nil
}

// Family lists the other patients sharing the patient's family group. A
// missing patient or one without a group has no family.
func (s *patientService) Family(ctx context.Context, patientID string) ([]Record, error) {
	rec, err := s.Get(ctx, patientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []Record{}, nil
		}
		return nil, err
	}

	family := []Record{}
	fid := rec.FamilyID()
	if fid == "" {
		return family, nil
	}

	members, err := s.store.ListByField(ctx, FamilyField, fid)
	if err != nil {
		return nil, fmt.Errorf("list family: %w", err)
	}
	for _, m := range members {
		if m.ID() == rec.ID() {
			continue
		}
		family = append(family, m)
	}
	return family, nil
}
