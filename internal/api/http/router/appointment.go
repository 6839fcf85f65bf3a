package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/ehms_backend/internal/api/http/handler"
)

func (r *Router) registerAppointmentRoutes(app fiber.Router, ah *handler.AppointmentHandler) {
	app.Get("/appointments", ah.List)
	app.Post("/update-appointments", ah.Advance)
}
