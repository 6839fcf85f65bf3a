package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/ehms_backend/internal/api/http/handler"
)

func (r *Router) registerPatientRoutes(app fiber.Router, ph *handler.PatientHandler) {
	app.Get("/get-patient", ph.Get)
	app.Get("/get-family", ph.Family)
}
