package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/Alijeyrad/ehms_backend/internal/service/appointment"
	"github.com/Alijeyrad/ehms_backend/internal/service/patient"
	"github.com/Alijeyrad/ehms_backend/internal/service/report"
	"github.com/Alijeyrad/ehms_backend/pkg/recaptcha"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeReports struct {
	err error

	upload      report.UploadRequest
	uploadBody  []byte
	fetch       report.FetchRequest
	patientID   string
	ref         report.Ref
	deleteReq   report.DeleteRequest
	instruction string
	reports     []*report.Report
}

func (f *fakeReports) Upload(_ context.Context, req report.UploadRequest) (*report.Report, error) {
	f.upload = req
	if req.Body != nil {
		f.uploadBody, _ = io.ReadAll(req.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &report.Report{
		Name:       req.FileName,
		PatientID:  req.PatientID,
		Department: req.Department,
		ObjectKey:  report.ObjectPath(req.PatientID, req.Department, req.SubDepartment, req.FileName),
	}, nil
}

func (f *fakeReports) ListByPatient(_ context.Context, patientID string) ([]*report.Report, error) {
	f.patientID = patientID
	if f.err != nil {
		return nil, f.err
	}
	return f.list(), nil
}

func (f *fakeReports) Fetch(_ context.Context, req report.FetchRequest) ([]*report.Report, error) {
	f.fetch = req
	if f.err != nil {
		return nil, f.err
	}
	return f.list(), nil
}

func (f *fakeReports) list() []*report.Report {
	if f.reports == nil {
		return []*report.Report{}
	}
	return f.reports
}

func (f *fakeReports) RegenerateSignedURL(_ context.Context, ref report.Ref) (*report.Report, error) {
	f.ref = ref
	if f.err != nil {
		return nil, f.err
	}
	return &report.Report{
		URL:        "https://objects.test/signed",
		ExpiryTime: time.Date(2024, 7, 13, 10, 30, 0, 0, time.UTC),
	}, nil
}

func (f *fakeReports) Archive(_ context.Context, ref report.Ref) error {
	f.ref = ref
	return f.err
}

func (f *fakeReports) SoftDelete(_ context.Context, ref report.Ref, req report.DeleteRequest) (*report.DeletedReport, error) {
	f.ref = ref
	f.deleteReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &report.DeletedReport{TechnicianID: req.TechnicianID}, nil
}

func (f *fakeReports) AppendInstruction(_ context.Context, ref report.Ref, instruction string) ([]string, error) {
	f.ref = ref
	f.instruction = instruction
	if f.err != nil {
		return nil, f.err
	}
	return []string{"A", instruction}, nil
}

func (f *fakeReports) FindOrphans(context.Context, string) ([]string, error) {
	return []string{}, f.err
}

type fakeAppointments struct {
	res  *appointment.AdvanceResult
	list []map[string]any
	err  error
}

func (f *fakeAppointments) AdvanceStatuses(context.Context, time.Time) (*appointment.AdvanceResult, error) {
	return f.res, f.err
}

func (f *fakeAppointments) List(context.Context) ([]map[string]any, error) {
	return f.list, f.err
}

type fakePatients struct {
	records map[string]patient.Record
	family  []patient.Record
	err     error
}

func (f *fakePatients) Get(_ context.Context, id string) (patient.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	if id == "" {
		return nil, patient.ErrInvalidInput
	}
	rec, ok := f.records[id]
	if !ok {
		return nil, patient.ErrNotFound
	}
	return rec, nil
}

func (f *fakePatients) Family(context.Context, string) ([]patient.Record, error) {
	return f.family, f.err
}

type fakeVerifier struct {
	res *recaptcha.Result
	err error
}

func (f fakeVerifier) Verify(context.Context, string) (*recaptcha.Result, error) {
	return f.res, f.err
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestApp(reports report.Service, appts appointment.Service, patients patient.Service, v CaptchaVerifier) *fiber.App {
	app := fiber.New()

	rh := NewReportHandler(reports, 1<<20)
	app.Post("/upload-report", rh.Upload)
	app.Post("/fetch-reports", rh.Fetch)
	app.Post("/get-reports", rh.ListByPatient)
	app.Post("/regenerate-signed-url", rh.RegenerateSignedURL)
	app.Post("/archive-report", rh.Archive)
	app.Post("/delete-report", rh.Delete)
	app.Post("/add-instruction", rh.AddInstruction)

	ah := NewAppointmentHandler(appts)
	app.Get("/appointments", ah.List)
	app.Post("/update-appointments", ah.Advance)

	ph := NewPatientHandler(patients)
	app.Get("/get-patient", ph.Get)
	app.Get("/get-family", ph.Family)

	app.Post("/api/verify-recaptcha", NewCaptchaHandler(v).Verify)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return do(t, app, req)
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, []byte) {
	t.Helper()
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, b
}

func multipartUpload(t *testing.T, fields map[string]string, fileName string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if fileName != "" {
		fw, err := w.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/upload-report", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return v
}

// ---------------------------------------------------------------------------
// Reports
// ---------------------------------------------------------------------------

func TestUpload(t *testing.T) {
	reports := &fakeReports{}
	app := newTestApp(reports, &fakeAppointments{}, &fakePatients{}, fakeVerifier{})

	req := multipartUpload(t, map[string]string{
		"patientId":  "P1",
		"department": "Radiology",
		"notes":      "left knee",
	}, "scan.pdf", []byte("%PDF-1.4"))

	code, body := do(t, app, req)
	if code != fiber.StatusOK {
		t.Fatalf("status = %d, body = %s", code, body)
	}

	// fileName falls back to the uploaded file's name.
	if reports.upload.FileName != "scan.pdf" {
		t.Errorf("FileName = %q, want scan.pdf", reports.upload.FileName)
	}
	if reports.upload.PatientID != "P1" || reports.upload.Department != "Radiology" || reports.upload.Notes != "left knee" {
		t.Errorf("upload request = %+v", reports.upload)
	}
	if string(reports.uploadBody) != "%PDF-1.4" || reports.upload.Size != int64(len("%PDF-1.4")) {
		t.Errorf("body = %q size = %d", reports.uploadBody, reports.upload.Size)
	}

	got := decode[struct {
		Message  string        `json:"message"`
		Metadata report.Report `json:"metadata"`
	}](t, body)
	if got.Message == "" || got.Metadata.ObjectKey != "P1/Radiology/scan.pdf" {
		t.Errorf("response = %+v", got)
	}
}

func TestUpload_Errors(t *testing.T) {
	tests := []struct {
		name     string
		svcErr   error
		file     string
		content  []byte
		wantCode int
		wantMsg  string
	}{
		{"no file", nil, "", nil, fiber.StatusBadRequest, "No file uploaded"},
		{"too large", nil, "big.bin", bytes.Repeat([]byte("x"), 2<<20), fiber.StatusRequestEntityTooLarge, "File too large"},
		{"validation", report.ErrInvalidInput, "scan.pdf", []byte("x"), fiber.StatusBadRequest, ""},
		{"duplicate", report.ErrReportExists, "scan.pdf", []byte("x"), fiber.StatusConflict, ""},
		{"backend", errors.New("s3: connection reset by peer"), "scan.pdf", []byte("x"), fiber.StatusInternalServerError, "Failed to upload file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{BodyLimit: 8 << 20})
			app.Post("/upload-report", NewReportHandler(&fakeReports{err: tt.svcErr}, 1<<20).Upload)

			req := multipartUpload(t, map[string]string{"patientId": "P1", "department": "Lab"}, tt.file, tt.content)
			code, body := do(t, app, req)
			if code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", code, tt.wantCode, body)
			}
			msg := decode[map[string]string](t, body)["error"]
			if tt.wantMsg != "" && msg != tt.wantMsg {
				t.Errorf("error = %q, want %q", msg, tt.wantMsg)
			}
			if strings.Contains(msg, "connection reset") {
				t.Errorf("backend detail leaked: %q", msg)
			}
		})
	}
}

func TestFetch(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		svcErr   error
		wantCode int
		wantBody string
	}{
		{"empty body lists all", "", nil, fiber.StatusOK, "[]"},
		{"range", `{"department":"Lab","startDate":"2024-01-01","endDate":"2024-01-31"}`, nil, fiber.StatusOK, "[]"},
		{"bad date", `{"startDate":"01/01/2024"}`, report.ErrInvalidInput, fiber.StatusBadRequest, ""},
		{"malformed json", `{"startDate":`, nil, fiber.StatusBadRequest, ""},
		{"backend", `{}`, errors.New("pq: connection refused"), fiber.StatusInternalServerError, `{"error":"Failed to fetch reports"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reports := &fakeReports{err: tt.svcErr}
			app := newTestApp(reports, &fakeAppointments{}, &fakePatients{}, fakeVerifier{})

			code, body := doJSON(t, app, http.MethodPost, "/fetch-reports", tt.body)
			if code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", code, tt.wantCode, body)
			}
			if tt.wantBody != "" && string(body) != tt.wantBody {
				t.Errorf("body = %s, want %s", body, tt.wantBody)
			}
		})
	}
}

func TestFetch_PassesFilter(t *testing.T) {
	reports := &fakeReports{}
	app := newTestApp(reports, &fakeAppointments{}, &fakePatients{}, fakeVerifier{})

	doJSON(t, app, http.MethodPost, "/fetch-reports", `{"department":"Lab","startDate":"2024-01-01","endDate":"2024-01-31"}`)
	want := report.FetchRequest{Department: "Lab", StartDate: "2024-01-01", EndDate: "2024-01-31"}
	if reports.fetch != want {
		t.Errorf("fetch = %+v, want %+v", reports.fetch, want)
	}
}

func TestGetReports(t *testing.T) {
	reports := &fakeReports{}
	app := newTestApp(reports, &fakeAppointments{}, &fakePatients{}, fakeVerifier{})

	code, body := doJSON(t, app, http.MethodPost, "/get-reports", `{"patientId":"P1"}`)
	if code != fiber.StatusOK || string(body) != "[]" {
		t.Errorf("got %d %s, want 200 []", code, body)
	}
	if reports.patientID != "P1" {
		t.Errorf("patientID = %q", reports.patientID)
	}

	code, _ = doJSON(t, app, http.MethodPost, "/get-reports?patientId=P2", "")
	if code != fiber.StatusOK || reports.patientID != "P2" {
		t.Errorf("query fallback: got %d patientID %q", code, reports.patientID)
	}
}

func TestRegenerateSignedURL(t *testing.T) {
	reports := &fakeReports{}
	app := newTestApp(reports, &fakeAppointments{}, &fakePatients{}, fakeVerifier{})

	code, body := doJSON(t, app, http.MethodPost, "/regenerate-signed-url", `{"filePath":"P1/Radiology/scan.pdf"}`)
	if code != fiber.StatusOK {
		t.Fatalf("status = %d (%s)", code, body)
	}
	got := decode[map[string]string](t, body)
	if got["signedUrl"] != "https://objects.test/signed" || got["expiryTime"] != "2024-07-13T10:30:00Z" {
		t.Errorf("response = %v", got)
	}
	if reports.ref.Path != "P1/Radiology/scan.pdf" || reports.ref.ID != uuid.Nil {
		t.Errorf("ref = %+v", reports.ref)
	}
}

func TestArchiveAndDelete_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		svcErr   error
		wantCode int
	}{
		{"archive ok", "/archive-report", `{"name":"scan.pdf"}`, nil, fiber.StatusOK},
		{"archive missing", "/archive-report", `{"name":"scan.pdf"}`, report.ErrNotFound, fiber.StatusNotFound},
		{"archive ambiguous", "/archive-report", `{"name":"scan.pdf"}`, report.ErrAmbiguousName, fiber.StatusConflict},
		{"archive empty body", "/archive-report", ``, nil, fiber.StatusBadRequest},
		{"delete ok", "/delete-report", `{"name":"scan.pdf","technicianId":"T1","reason":"dup"}`, nil, fiber.StatusOK},
		{"delete invalid", "/delete-report", `{"name":"scan.pdf"}`, report.ErrInvalidInput, fiber.StatusBadRequest},
		{"delete target taken", "/delete-report", `{"name":"scan.pdf","technicianId":"T1"}`, fmt.Errorf("%w: P1/DELETED/scan.pdf", report.ErrReportExists), fiber.StatusConflict},
		{"delete backend", "/delete-report", `{"name":"scan.pdf","technicianId":"T1"}`, errors.New("copy failed"), fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(&fakeReports{err: tt.svcErr}, &fakeAppointments{}, &fakePatients{}, fakeVerifier{})
			code, body := doJSON(t, app, http.MethodPost, tt.path, tt.body)
			if code != tt.wantCode {
				t.Errorf("status = %d, want %d (%s)", code, tt.wantCode, body)
			}
			if code == fiber.StatusOK {
				if decode[map[string]string](t, body)["message"] == "" {
					t.Errorf("missing message: %s", body)
				}
			}
		})
	}
}

func TestDelete_PassesFields(t *testing.T) {
	reports := &fakeReports{}
	app := newTestApp(reports, &fakeAppointments{}, &fakePatients{}, fakeVerifier{})

	id := uuid.Must(uuid.NewV7())
	doJSON(t, app, http.MethodPost, "/delete-report",
		`{"id":"`+id.String()+`","technicianId":"T1","timestamp":"2024-01-15T10:30:00Z","reason":"duplicate"}`)

	if reports.ref.ID != id {
		t.Errorf("ref = %+v, want id %s", reports.ref, id)
	}
	want := report.DeleteRequest{TechnicianID: "T1", Timestamp: "2024-01-15T10:30:00Z", Reason: "duplicate"}
	if reports.deleteReq != want {
		t.Errorf("delete request = %+v, want %+v", reports.deleteReq, want)
	}
}

func TestAddInstruction(t *testing.T) {
	reports := &fakeReports{}
	app := newTestApp(reports, &fakeAppointments{}, &fakePatients{}, fakeVerifier{})

	id := uuid.Must(uuid.NewV7())
	code, body := doJSON(t, app, http.MethodPost, "/add-instruction", `{"reportId":"`+id.String()+`","instruction":"B"}`)
	if code != fiber.StatusOK {
		t.Fatalf("status = %d (%s)", code, body)
	}
	got := decode[[]string](t, body)
	if len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Errorf("instructions = %v", got)
	}
	if reports.ref.ID != id || reports.instruction != "B" {
		t.Errorf("ref = %+v instruction = %q", reports.ref, reports.instruction)
	}
}

func TestRefFrom(t *testing.T) {
	id := uuid.Must(uuid.NewV7())
	tests := []struct {
		name            string
		id, path, fname string
		want            report.Ref
	}{
		{"uuid", id.String(), "", "", report.Ref{ID: id}},
		{"uuid wins but keeps name", id.String(), "", "scan.pdf", report.Ref{ID: id, Name: "scan.pdf"}},
		{"non-uuid id is a name", "scan.pdf", "", "", report.Ref{Name: "scan.pdf"}},
		{"path", "", " P1/Lab/a.pdf ", "", report.Ref{Path: "P1/Lab/a.pdf"}},
		{"empty", "", "", "", report.Ref{}},
	}
	for _, tt := range tests {
		if got := refFrom(tt.id, tt.path, tt.fname); got != tt.want {
			t.Errorf("%s: refFrom() = %+v, want %+v", tt.name, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Appointments
// ---------------------------------------------------------------------------

func TestAppointments(t *testing.T) {
	appts := &fakeAppointments{
		res:  &appointment.AdvanceResult{Examined: 5, Updated: 3, Skipped: 1, Errors: []error{appointment.ErrInvalidDate}},
		list: []map[string]any{{"id": "a1", "Status": "Late"}},
	}
	app := newTestApp(&fakeReports{}, appts, &fakePatients{}, fakeVerifier{})

	code, body := doJSON(t, app, http.MethodPost, "/update-appointments", "")
	if code != fiber.StatusOK {
		t.Fatalf("status = %d (%s)", code, body)
	}
	got := decode[map[string]any](t, body)
	for k, want := range map[string]float64{"examined": 5, "updated": 3, "skipped": 1, "failed": 1} {
		if got[k] != want {
			t.Errorf("%s = %v, want %v", k, got[k], want)
		}
	}
	if got["message"] == "" {
		t.Error("missing message")
	}

	code, body = doJSON(t, app, http.MethodGet, "/appointments", "")
	list := decode[[]map[string]any](t, body)
	if code != fiber.StatusOK || len(list) != 1 || list[0]["id"] != "a1" {
		t.Errorf("GET /appointments = %d %s", code, body)
	}
}

func TestAppointments_BackendError(t *testing.T) {
	app := newTestApp(&fakeReports{}, &fakeAppointments{err: errors.New("unavailable")}, &fakePatients{}, fakeVerifier{})

	code, body := doJSON(t, app, http.MethodPost, "/update-appointments", "")
	if code != fiber.StatusInternalServerError || !strings.Contains(string(body), "Failed to update appointments") {
		t.Errorf("got %d %s", code, body)
	}
}

// ---------------------------------------------------------------------------
// Patients
// ---------------------------------------------------------------------------

func TestGetPatient(t *testing.T) {
	patients := &fakePatients{records: map[string]patient.Record{
		"P1": {"id": "P1", "Name": "Ada", "FamilyId": "F1"},
	}}
	app := newTestApp(&fakeReports{}, &fakeAppointments{}, patients, fakeVerifier{})

	tests := []struct {
		name       string
		path       string
		wantCode   int
		wantExists any
	}{
		{"found", "/get-patient?patientId=P1", fiber.StatusOK, true},
		{"missing", "/get-patient?patientId=P9", fiber.StatusNotFound, false},
		{"no id", "/get-patient", fiber.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := doJSON(t, app, http.MethodGet, tt.path, "")
			if code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", code, tt.wantCode, body)
			}
			got := decode[map[string]any](t, body)
			if got["exists"] != tt.wantExists {
				t.Errorf("exists = %v, want %v", got["exists"], tt.wantExists)
			}
		})
	}
}

func TestGetFamily(t *testing.T) {
	patients := &fakePatients{family: []patient.Record{}}
	app := newTestApp(&fakeReports{}, &fakeAppointments{}, patients, fakeVerifier{})

	code, body := doJSON(t, app, http.MethodGet, "/get-family?patientId=P1", "")
	if code != fiber.StatusOK || string(body) != `{"family":[]}` {
		t.Errorf("got %d %s", code, body)
	}
}

// ---------------------------------------------------------------------------
// reCAPTCHA
// ---------------------------------------------------------------------------

func TestVerifyRecaptcha(t *testing.T) {
	tests := []struct {
		name string
		v    fakeVerifier
		want string
	}{
		{"success", fakeVerifier{res: &recaptcha.Result{Success: true}}, `{"success":true}`},
		{"rejected", fakeVerifier{res: &recaptcha.Result{Success: false}}, `{"success":false}`},
		{"backend error", fakeVerifier{err: errors.New("timeout")}, `{"success":false}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(&fakeReports{}, &fakeAppointments{}, &fakePatients{}, tt.v)
			code, body := doJSON(t, app, http.MethodPost, "/api/verify-recaptcha", `{"token":"t"}`)
			if code != fiber.StatusOK || string(body) != tt.want {
				t.Errorf("got %d %s, want 200 %s", code, body, tt.want)
			}
		})
	}
}
