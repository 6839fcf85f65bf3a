package handler

import (
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/ehms_backend/internal/service/appointment"
)

type AppointmentHandler struct {
	svc appointment.Service
	now func() time.Time
}

func NewAppointmentHandler(svc appointment.Service) *AppointmentHandler {
	return &AppointmentHandler{svc: svc, now: time.Now}
}

// GET /appointments
func (h *AppointmentHandler) List(c fiber.Ctx) error {
	appts, err := h.svc.List(c.Context())
	if err != nil {
		return fail(c, err, "Failed to fetch appointments")
	}
	return ok(c, appts)
}

// POST /update-appointments
// Runs the status engine now. Per-record failures are counted, not fatal.
func (h *AppointmentHandler) Advance(c fiber.Ctx) error {
	res, err := h.svc.AdvanceStatuses(c.Context(), h.now())
	if err != nil {
		return fail(c, err, "Failed to update appointments")
	}
	return ok(c, fiber.Map{
		"message":  "Appointment statuses updated",
		"examined": res.Examined,
		"updated":  res.Updated,
		"skipped":  res.Skipped,
		"failed":   res.Failed(),
	})
}
