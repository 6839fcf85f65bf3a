package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/ehms_backend/internal/service/patient"
)

type PatientHandler struct {
	svc patient.Service
}

func NewPatientHandler(svc patient.Service) *PatientHandler {
	return &PatientHandler{svc: svc}
}

// GET /get-patient?patientId=
func (h *PatientHandler) Get(c fiber.Ctx) error {
	rec, err := h.svc.Get(c.Context(), c.Query("patientId"))
	if err != nil {
		if errors.Is(err, patient.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"exists": false})
		}
		return fail(c, err, "Failed to fetch patient")
	}
	return ok(c, fiber.Map{"exists": true, "data": rec})
}

// GET /get-family?patientId=
func (h *PatientHandler) Family(c fiber.Ctx) error {
	family, err := h.svc.Family(c.Context(), c.Query("patientId"))
	if err != nil {
		return fail(c, err, "Failed to fetch family")
	}
	return ok(c, fiber.Map{"family": family})
}
