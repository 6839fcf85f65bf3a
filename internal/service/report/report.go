package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Alijeyrad/ehms_backend/pkg/events"
	"github.com/Alijeyrad/ehms_backend/pkg/reqctx"
	s3pkg "github.com/Alijeyrad/ehms_backend/pkg/s3"
)

const dateLayout = "2006-01-02"

// ---------------------------------------------------------------------------
// Domain types
// ---------------------------------------------------------------------------

// Report is a live metadata row. ObjectKey is fixed at upload time by
// ObjectPath so the row keeps pointing at its object after Archive rewrites
// Department.
type Report struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	PatientID     string    `json:"patientId"`
	Department    string    `json:"department"`
	SubDepartment string    `json:"subDepartment,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	URL           string    `json:"url"`
	Size          float64   `json:"size"`
	UploadDate    string    `json:"uploadDate"`
	ExpiryTime    time.Time `json:"expiryTime"`
	Instructions  []string  `json:"instructions"`
	ObjectKey     string    `json:"objectKey"`
	CreatedAt     time.Time `json:"createdAt"`
}

// DeletedReport is the archive snapshot written once by SoftDelete.
type DeletedReport struct {
	Report
	TechnicianID string    `json:"technicianId"`
	Timestamp    time.Time `json:"timestamp"`
	Reason       string    `json:"reason,omitempty"`
}

// Filter selects live rows. Empty fields are ignored; StartDate and EndDate
// bound UploadDate inclusively.
type Filter struct {
	PatientID  string
	Department string
	StartDate  string
	EndDate    string
}

// Ref identifies a report. ID wins over Path, Path over Name.
type Ref struct {
	ID   uuid.UUID
	Path string
	Name string
}

func (r Ref) IsZero() bool {
	return r.ID == uuid.Nil && r.Path == "" && r.Name == ""
}

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	// Move fails with an error wrapping s3.ErrObjectExists when to is taken.
	Move(ctx context.Context, from, to string) error
	// PresignGet returns the URL and the lifetime it was actually signed for.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, time.Duration, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

type MetadataStore interface {
	Insert(ctx context.Context, r *Report) error
	Get(ctx context.Context, id uuid.UUID) (*Report, error)
	FindByName(ctx context.Context, name string) ([]*Report, error)
	FindByObjectKey(ctx context.Context, key string) (*Report, error)
	Search(ctx context.Context, f Filter) ([]*Report, error)
	UpdateLink(ctx context.Context, id uuid.UUID, url string, expiry time.Time) error
	SetDepartment(ctx context.Context, id uuid.UUID, department string) error
	AppendInstruction(ctx context.Context, id uuid.UUID, instruction string) ([]string, error)
	// MoveToDeleted removes the live row and inserts d in one transaction.
	MoveToDeleted(ctx context.Context, id uuid.UUID, d *DeletedReport) error
}

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

type UploadRequest struct {
	PatientID     string
	Department    string
	SubDepartment string
	FileName      string
	ContentType   string
	Notes         string
	Body          io.Reader
	Size          int64
}

type FetchRequest struct {
	Department string
	StartDate  string
	EndDate    string
}

type DeleteRequest struct {
	TechnicianID string
	// Timestamp is RFC 3339; empty means now.
	Timestamp string
	Reason    string
}

// ---------------------------------------------------------------------------
// Service interface
// ---------------------------------------------------------------------------

type Service interface {
	Upload(ctx context.Context, req UploadRequest) (*Report, error)
	ListByPatient(ctx context.Context, patientID string) ([]*Report, error)
	Fetch(ctx context.Context, req FetchRequest) ([]*Report, error)
	RegenerateSignedURL(ctx context.Context, ref Ref) (*Report, error)
	Archive(ctx context.Context, ref Ref) error
	SoftDelete(ctx context.Context, ref Ref, req DeleteRequest) (*DeletedReport, error)
	AppendInstruction(ctx context.Context, ref Ref, instruction string) ([]string, error)
	FindOrphans(ctx context.Context, patientID string) ([]string, error)
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type reportService struct {
	objects ObjectStore
	meta    MetadataStore
	pub     events.Publisher
	ttl     time.Duration
	now     func() time.Time
}

func New(objects ObjectStore, meta MetadataStore, pub events.Publisher, ttl time.Duration) Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &reportService{
		objects: objects,
		meta:    meta,
		pub:     pub,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *reportService) Upload(ctx context.Context, req UploadRequest) (*Report, error) {
	req.PatientID = strings.TrimSpace(req.PatientID)
	req.Department = strings.TrimSpace(req.Department)
	req.SubDepartment = strings.TrimSpace(req.SubDepartment)

	if err := validSegment("patientId", req.PatientID); err != nil {
		return nil, err
	}
	if err := validSegment("department", req.Department); err != nil {
		return nil, err
	}
	if req.Department == DepartmentArchived || req.Department == DeletedNamespace {
		return nil, fmt.Errorf("%w: department %q is reserved", ErrInvalidInput, req.Department)
	}
	if req.SubDepartment != "" {
		if err := validSegment("subDepartment", req.SubDepartment); err != nil {
			return nil, err
		}
	}
	if err := validSegment("fileName", req.FileName); err != nil {
		return nil, err
	}
	if req.Body == nil || req.Size <= 0 {
		return nil, fmt.Errorf("%w: file is required", ErrInvalidInput)
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := ObjectPath(req.PatientID, req.Department, req.SubDepartment, req.FileName)

	// Refuse before touching storage so an existing report's bytes are not
	// overwritten. The unique key on the table still catches a concurrent upload.
	switch _, err := s.meta.FindByObjectKey(ctx, key); {
	case err == nil:
		return nil, ErrReportExists
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("check existing report: %w", err)
	}

	if err := s.objects.Upload(ctx, key, contentType, req.Body, req.Size); err != nil {
		return nil, fmt.Errorf("store object: %w", err)
	}

	now := s.now().UTC()
	url, ttl, err := s.objects.PresignGet(ctx, key, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("sign object %q: %w", key, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate report id: %w", err)
	}

	r := &Report{
		ID:            id,
		Name:          req.FileName,
		PatientID:     req.PatientID,
		Department:    req.Department,
		SubDepartment: req.SubDepartment,
		Notes:         req.Notes,
		URL:           url,
		Size:          sizeKB(req.Size),
		UploadDate:    now.Format(dateLayout),
		ExpiryTime:    now.Add(ttl),
		Instructions:  []string{},
		ObjectKey:     key,
		CreatedAt:     now,
	}
	if err := s.meta.Insert(ctx, r); err != nil {
		// The object is already stored; FindOrphans reports it.
		reqctx.Logger(ctx).Error("report metadata insert failed after object upload",
			"object_key", key, "err", err)
		return nil, fmt.Errorf("insert report metadata: %w", err)
	}

	s.publish(ctx, "report.uploaded."+events.Token(r.PatientID), r)
	return r, nil
}

func (s *reportService) ListByPatient(ctx context.Context, patientID string) ([]*Report, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, fmt.Errorf("%w: patientId is required", ErrInvalidInput)
	}
	return s.search(ctx, Filter{PatientID: patientID})
}

func (s *reportService) Fetch(ctx context.Context, req FetchRequest) ([]*Report, error) {
	for field, v := range map[string]string{"startDate": req.StartDate, "endDate": req.EndDate} {
		if v == "" {
			continue
		}
		if _, err := time.Parse(dateLayout, v); err != nil {
			return nil, fmt.Errorf("%w: %s must be YYYY-MM-DD", ErrInvalidInput, field)
		}
	}
	return s.search(ctx, Filter{
		Department: strings.TrimSpace(req.Department),
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
	})
}

func (s *reportService) search(ctx context.Context, f Filter) ([]*Report, error) {
	reports, err := s.meta.Search(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("search reports: %w", err)
	}
	if reports == nil {
		reports = []*Report{}
	}
	return reports, nil
}

func (s *reportService) RegenerateSignedURL(ctx context.Context, ref Ref) (*Report, error) {
	r, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	now := s.now()
	url, ttl, err := s.objects.PresignGet(ctx, r.ObjectKey, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("sign object %q: %w", r.ObjectKey, err)
	}
	expiry := now.Add(ttl).UTC()
	if err := s.meta.UpdateLink(ctx, r.ID, url, expiry); err != nil {
		return nil, fmt.Errorf("update report link: %w", err)
	}

	r.URL = url
	r.ExpiryTime = expiry
	return r, nil
}

func (s *reportService) Archive(ctx context.Context, ref Ref) error {
	r, err := s.resolve(ctx, ref)
	if err != nil {
		return err
	}
	if err := s.meta.SetDepartment(ctx, r.ID, DepartmentArchived); err != nil {
		return fmt.Errorf("archive report: %w", err)
	}
	s.publish(ctx, "report.archived."+events.Token(r.PatientID), r)
	return nil
}

func (s *reportService) SoftDelete(ctx context.Context, ref Ref, req DeleteRequest) (*DeletedReport, error) {
	technician := strings.TrimSpace(req.TechnicianID)
	if technician == "" {
		return nil, fmt.Errorf("%w: technicianId is required", ErrInvalidInput)
	}
	at := s.now()
	if req.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: timestamp must be RFC 3339", ErrInvalidInput)
		}
		at = t
	}

	r, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	target := DeletedPath(r.PatientID, r.Name)
	if err := s.objects.Move(ctx, r.ObjectKey, target); err != nil {
		if errors.Is(err, s3pkg.ErrObjectExists) {
			return nil, fmt.Errorf("%w: %q holds an earlier deleted report", ErrReportExists, target)
		}
		return nil, fmt.Errorf("move object to %q: %w", target, err)
	}

	log := reqctx.Logger(ctx).With("report_id", r.ID, "from", r.ObjectKey, "to", target)

	url, ttl, err := s.objects.PresignGet(ctx, target, s.ttl)
	if err != nil {
		log.Error("report object relocated but not re-signed", "err", err)
		return nil, fmt.Errorf("sign object %q: %w", target, err)
	}

	snapshot := *r
	snapshot.URL = url
	snapshot.ExpiryTime = s.now().Add(ttl).UTC()
	snapshot.ObjectKey = target
	deleted := &DeletedReport{
		Report:       snapshot,
		TechnicianID: technician,
		Timestamp:    at.UTC(),
		Reason:       strings.TrimSpace(req.Reason),
	}

	if err := s.meta.MoveToDeleted(ctx, r.ID, deleted); err != nil {
		log.Error("report object relocated but metadata not archived", "err", err)
		return nil, fmt.Errorf("archive deleted report: %w", err)
	}

	s.publish(ctx, "report.deleted."+events.Token(r.PatientID), deleted)
	return deleted, nil
}

func (s *reportService) AppendInstruction(ctx context.Context, ref Ref, instruction string) ([]string, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return nil, fmt.Errorf("%w: instruction is required", ErrInvalidInput)
	}
	r, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	list, err := s.meta.AppendInstruction(ctx, r.ID, instruction)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("append instruction: %w", err)
	}
	return list, nil
}

// FindOrphans lists objects under the patient's prefix that no live row
// points at, skipping the DELETED namespace.
func (s *reportService) FindOrphans(ctx context.Context, patientID string) ([]string, error) {
	if err := validSegment("patientId", strings.TrimSpace(patientID)); err != nil {
		return nil, err
	}
	patientID = strings.TrimSpace(patientID)

	keys, err := s.objects.List(ctx, patientID+"/")
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	rows, err := s.meta.Search(ctx, Filter{PatientID: patientID})
	if err != nil {
		return nil, fmt.Errorf("search reports: %w", err)
	}

	known := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		known[r.ObjectKey] = struct{}{}
	}

	deletedPrefix := patientID + "/" + DeletedNamespace + "/"
	orphans := []string{}
	for _, k := range keys {
		if strings.HasPrefix(k, deletedPrefix) {
			continue
		}
		if _, ok := known[k]; !ok {
			orphans = append(orphans, k)
		}
	}
	return orphans, nil
}

func (s *reportService) resolve(ctx context.Context, ref Ref) (*Report, error) {
	switch {
	case ref.ID != uuid.Nil:
		return s.meta.Get(ctx, ref.ID)
	case ref.Path != "":
		return s.meta.FindByObjectKey(ctx, strings.Trim(ref.Path, "/"))
	case ref.Name != "":
		matches, err := s.meta.FindByName(ctx, ref.Name)
		if err != nil {
			return nil, fmt.Errorf("find report by name: %w", err)
		}
		switch len(matches) {
		case 0:
			return nil, ErrNotFound
		case 1:
			return matches[0], nil
		default:
			return nil, ErrAmbiguousName
		}
	default:
		return nil, fmt.Errorf("%w: report id, path or name is required", ErrInvalidInput)
	}
}

func (s *reportService) publish(ctx context.Context, subject string, payload any) {
	if err := s.pub.Publish(ctx, subject, payload); err != nil {
		reqctx.Logger(ctx).Warn("publish event failed", "subject", subject, "err", err)
	}
}

// sizeKB converts bytes to kilobytes rounded to two decimals.
func sizeKB(n int64) float64 {
	return math.Round(float64(n)/1024*100) / 100
}
