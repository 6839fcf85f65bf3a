package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	s3pkg "github.com/Alijeyrad/ehms_backend/pkg/s3"
)

// memObjects is an in-memory ObjectStore.
type memObjects struct {
	mu        sync.Mutex
	objects   map[string][]byte
	types     map[string]string
	uploadErr error
	moveErr   error
	signErr   error
	calls     []string
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memObjects) Upload(_ context.Context, key, contentType string, body io.Reader, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "upload:"+key)
	if m.uploadErr != nil {
		return m.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memObjects) Move(_ context.Context, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "move:"+from+"->"+to)
	if m.moveErr != nil {
		return m.moveErr
	}
	if _, taken := m.objects[to]; taken {
		return fmt.Errorf("move %q: %w", to, s3pkg.ErrObjectExists)
	}
	data, ok := m.objects[from]
	if !ok {
		return errors.New("no such key")
	}
	m.objects[to] = data
	delete(m.objects, from)
	return nil
}

func (m *memObjects) PresignGet(_ context.Context, key string, ttl time.Duration) (string, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.signErr != nil {
		return "", 0, m.signErr
	}
	ttl = s3pkg.PresignTTL(ttl)
	return "https://signed.example/" + key + "?ttl=" + ttl.String(), ttl, nil
}

func (m *memObjects) content(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.objects[key])
}

func (m *memObjects) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memObjects) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// memMeta is an in-memory MetadataStore.
type memMeta struct {
	mu        sync.Mutex
	live      map[uuid.UUID]*Report
	deleted   []*DeletedReport
	insertErr error
	moveErr   error
	writes    int
}

func newMemMeta() *memMeta {
	return &memMeta{live: map[uuid.UUID]*Report{}}
}

func clone(r *Report) *Report {
	c := *r
	c.Instructions = append([]string{}, r.Instructions...)
	return &c
}

func (m *memMeta) Insert(_ context.Context, r *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.insertErr != nil {
		return m.insertErr
	}
	for _, existing := range m.live {
		if existing.ObjectKey == r.ObjectKey {
			return ErrReportExists
		}
	}
	m.live[r.ID] = clone(r)
	return nil
}

func (m *memMeta) Get(_ context.Context, id uuid.UUID) (*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.live[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(r), nil
}

func (m *memMeta) FindByName(_ context.Context, name string) ([]*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Report
	for _, r := range m.live {
		if r.Name == name {
			out = append(out, clone(r))
		}
	}
	return out, nil
}

func (m *memMeta) FindByObjectKey(_ context.Context, key string) (*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.live {
		if r.ObjectKey == key {
			return clone(r), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memMeta) Search(_ context.Context, f Filter) ([]*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Report
	for _, r := range m.live {
		if f.PatientID != "" && r.PatientID != f.PatientID {
			continue
		}
		if f.Department != "" && r.Department != f.Department {
			continue
		}
		if f.StartDate != "" && r.UploadDate < f.StartDate {
			continue
		}
		if f.EndDate != "" && r.UploadDate > f.EndDate {
			continue
		}
		out = append(out, clone(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UploadDate != out[j].UploadDate {
			return out[i].UploadDate < out[j].UploadDate
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *memMeta) UpdateLink(_ context.Context, id uuid.UUID, url string, expiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	r, ok := m.live[id]
	if !ok {
		return ErrNotFound
	}
	r.URL = url
	r.ExpiryTime = expiry
	return nil
}

func (m *memMeta) SetDepartment(_ context.Context, id uuid.UUID, department string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	r, ok := m.live[id]
	if !ok {
		return ErrNotFound
	}
	r.Department = department
	return nil
}

func (m *memMeta) AppendInstruction(_ context.Context, id uuid.UUID, instruction string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	r, ok := m.live[id]
	if !ok {
		return nil, ErrNotFound
	}
	r.Instructions = append(r.Instructions, instruction)
	return append([]string{}, r.Instructions...), nil
}

func (m *memMeta) MoveToDeleted(_ context.Context, id uuid.UUID, d *DeletedReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.moveErr != nil {
		return m.moveErr
	}
	if _, ok := m.live[id]; !ok {
		return ErrNotFound
	}
	delete(m.live, id)
	cp := *d
	m.deleted = append(m.deleted, &cp)
	return nil
}

func (m *memMeta) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// recordingPublisher captures published subjects.
type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func fileBody(s string) (io.Reader, int64) {
	return bytes.NewReader([]byte(s)), int64(len(s))
}
