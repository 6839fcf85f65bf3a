package handler

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/Alijeyrad/ehms_backend/internal/service/report"
)

type ReportHandler struct {
	svc report.Service
	// maxUpload caps the uploaded file size in bytes; zero means no cap.
	maxUpload int64
}

func NewReportHandler(svc report.Service, maxUpload int64) *ReportHandler {
	return &ReportHandler{svc: svc, maxUpload: maxUpload}
}

// refFrom builds a report reference from request fields. An id that is not
// a UUID is taken as a report name, which older clients send.
func refFrom(id, path, name string) report.Ref {
	var ref report.Ref
	id = strings.TrimSpace(id)
	if parsed, err := uuid.Parse(id); err == nil {
		ref.ID = parsed
	} else if id != "" && name == "" {
		name = id
	}
	ref.Path = strings.TrimSpace(path)
	ref.Name = strings.TrimSpace(name)
	return ref
}

// POST /upload-report
// Multipart: file, patientId, fileName, department, subDepartment?, notes?
func (h *ReportHandler) Upload(c fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "No file uploaded")
	}
	if h.maxUpload > 0 && fh.Size > h.maxUpload {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "File too large"})
	}

	fileName := strings.TrimSpace(c.FormValue("fileName"))
	if fileName == "" {
		fileName = fh.Filename
	}

	f, err := fh.Open()
	if err != nil {
		return fail(c, err, "Failed to upload file")
	}
	defer f.Close()

	rep, err := h.svc.Upload(c.Context(), report.UploadRequest{
		PatientID:     c.FormValue("patientId"),
		Department:    c.FormValue("department"),
		SubDepartment: c.FormValue("subDepartment"),
		FileName:      fileName,
		ContentType:   fh.Header.Get(fiber.HeaderContentType),
		Notes:         c.FormValue("notes"),
		Body:          f,
		Size:          fh.Size,
	})
	if err != nil {
		return fail(c, err, "Failed to upload file")
	}

	return ok(c, fiber.Map{
		"message":  "Report uploaded successfully",
		"metadata": rep,
	})
}

// POST /fetch-reports
func (h *ReportHandler) Fetch(c fiber.Ctx) error {
	var body struct {
		Department string `json:"department"`
		StartDate  string `json:"startDate"`
		EndDate    string `json:"endDate"`
	}
	if err := bindOptional(c, &body); err != nil {
		return badRequest(c, "invalid request body")
	}

	reports, err := h.svc.Fetch(c.Context(), report.FetchRequest{
		Department: body.Department,
		StartDate:  body.StartDate,
		EndDate:    body.EndDate,
	})
	if err != nil {
		return fail(c, err, "Failed to fetch reports")
	}
	return ok(c, reports)
}

// POST /get-reports
// The patient ID may also come as a query parameter.
func (h *ReportHandler) ListByPatient(c fiber.Ctx) error {
	var body struct {
		PatientID string `json:"patientId"`
	}
	if err := bindOptional(c, &body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.PatientID == "" {
		body.PatientID = c.Query("patientId")
	}

	reports, err := h.svc.ListByPatient(c.Context(), body.PatientID)
	if err != nil {
		return fail(c, err, "Failed to retrieve reports")
	}
	return ok(c, reports)
}

// POST /regenerate-signed-url
func (h *ReportHandler) RegenerateSignedURL(c fiber.Ctx) error {
	var body struct {
		ReportID string `json:"reportId"`
		FilePath string `json:"filePath"`
		FileName string `json:"fileName"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	rep, err := h.svc.RegenerateSignedURL(c.Context(), refFrom(body.ReportID, body.FilePath, body.FileName))
	if err != nil {
		return fail(c, err, "Failed to regenerate signed URL")
	}
	return ok(c, fiber.Map{
		"signedUrl":  rep.URL,
		"expiryTime": rep.ExpiryTime.Format(time.RFC3339),
	})
}

// POST /archive-report
func (h *ReportHandler) Archive(c fiber.Ctx) error {
	var body struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	if err := h.svc.Archive(c.Context(), refFrom(body.ID, "", body.Name)); err != nil {
		return fail(c, err, "Failed to archive report")
	}
	return message(c, "Report archived successfully")
}

// POST /delete-report
func (h *ReportHandler) Delete(c fiber.Ctx) error {
	var body struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		TechnicianID string `json:"technicianId"`
		Timestamp    string `json:"timestamp"`
		Reason       string `json:"reason"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	_, err := h.svc.SoftDelete(c.Context(), refFrom(body.ID, "", body.Name), report.DeleteRequest{
		TechnicianID: body.TechnicianID,
		Timestamp:    body.Timestamp,
		Reason:       body.Reason,
	})
	if err != nil {
		return fail(c, err, "Failed to delete report")
	}
	return message(c, "Report deleted successfully")
}

// POST /add-instruction
func (h *ReportHandler) AddInstruction(c fiber.Ctx) error {
	var body struct {
		ReportID    string `json:"reportId"`
		Instruction string `json:"instruction"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	list, err := h.svc.AppendInstruction(c.Context(), refFrom(body.ReportID, "", ""), body.Instruction)
	if err != nil {
		return fail(c, err, "Failed to add instruction")
	}
	return ok(c, list)
}
