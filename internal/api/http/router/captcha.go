package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/ehms_backend/internal/api/http/handler"
)

func (r *Router) registerCaptchaRoutes(app fiber.Router, ch *handler.CaptchaHandler) {
	app.Group("/api").Post("/verify-recaptcha", ch.Verify)
}
