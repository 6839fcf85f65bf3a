package s3

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Alijeyrad/ehms_backend/config"
)

func TestCopySource(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"P1/Radiology/scan.pdf", "reports/P1/Radiology/scan.pdf"},
		{"P1/Lab/blood test.pdf", "reports/P1/Lab/blood%20test.pdf"},
		{"P1/Lab/a+b.pdf", "reports/P1/Lab/a+b.pdf"},
	}
	for _, tt := range tests {
		if got := CopySource("reports", tt.key); got != tt.want {
			t.Errorf("CopySource(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestNew_RequiresBucket(t *testing.T) {
	if _, err := New(config.S3Config{Region: "us-east-1"}); err == nil {
		t.Fatal("expected error without bucket")
	}
}

// fakeBucket serves the subset of the S3 path-style API that Move uses.
type fakeBucket struct {
	mu       sync.Mutex
	objects  map[string]bool
	requests []string
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/reports/")
	b.requests = append(b.requests, r.Method+" "+key)

	switch r.Method {
	case http.MethodHead:
		if !b.objects[key] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		src := r.Header.Get("X-Amz-Copy-Source")
		src, _ = url.PathUnescape(src)
		b.objects[key] = b.objects[strings.TrimPrefix(src, "reports/")]
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><CopyObjectResult><ETag>"e"</ETag></CopyObjectResult>`))
	case http.MethodDelete:
		delete(b.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (b *fakeBucket) has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.objects[key]
}

func (b *fakeBucket) sawMethod(method string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.requests {
		if strings.HasPrefix(r, method+" ") {
			return true
		}
	}
	return false
}

func newTestClient(t *testing.T, b *fakeBucket) *Client {
	t.Helper()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	c, err := New(config.S3Config{
		Endpoint:        srv.URL,
		Region:          "us-east-1",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		Bucket:          "reports",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestMove(t *testing.T) {
	b := &fakeBucket{objects: map[string]bool{"P1/Radiology/scan.pdf": true}}
	c := newTestClient(t, b)

	if err := c.Move(context.Background(), "P1/Radiology/scan.pdf", "P1/DELETED/scan.pdf"); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if !b.has("P1/DELETED/scan.pdf") {
		t.Error("target missing after move")
	}
	if b.has("P1/Radiology/scan.pdf") {
		t.Error("source still present after move")
	}
}

func TestMove_TargetExists(t *testing.T) {
	b := &fakeBucket{objects: map[string]bool{
		"P1/Cardiology/scan.pdf": true,
		"P1/DELETED/scan.pdf":    true,
	}}
	c := newTestClient(t, b)

	err := c.Move(context.Background(), "P1/Cardiology/scan.pdf", "P1/DELETED/scan.pdf")
	if !errors.Is(err, ErrObjectExists) {
		t.Fatalf("Move() error = %v, want ErrObjectExists", err)
	}
	if b.sawMethod(http.MethodPut) || b.sawMethod(http.MethodDelete) {
		t.Errorf("move touched objects: %v", b.requests)
	}
	if !b.has("P1/Cardiology/scan.pdf") {
		t.Error("source removed")
	}
}

func TestPresignTTL(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{time.Hour, time.Hour},
		{MaxPresignTTL, MaxPresignTTL},
		{180 * 24 * time.Hour, MaxPresignTTL},
		{0, MaxPresignTTL},
	}
	for _, tt := range tests {
		if got := PresignTTL(tt.in); got != tt.want {
			t.Errorf("PresignTTL(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPresignGet_ClampsExpiry(t *testing.T) {
	c := newTestClient(t, &fakeBucket{objects: map[string]bool{}})

	tests := []struct {
		ttl         time.Duration
		wantTTL     time.Duration
		wantExpires string
	}{
		{180 * 24 * time.Hour, MaxPresignTTL, "604800"},
		{2 * time.Hour, 2 * time.Hour, "7200"},
	}
	for _, tt := range tests {
		raw, ttl, err := c.PresignGet(context.Background(), "P1/Radiology/scan.pdf", tt.ttl)
		if err != nil {
			t.Fatalf("PresignGet failed: %v", err)
		}
		if ttl != tt.wantTTL {
			t.Errorf("ttl = %v, want %v", ttl, tt.wantTTL)
		}
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("bad url %q: %v", raw, err)
		}
		if got := u.Query().Get("X-Amz-Expires"); got != tt.wantExpires {
			t.Errorf("X-Amz-Expires = %q, want %q", got, tt.wantExpires)
		}
	}
}
