package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/ehms_backend/internal/api/http/handler"
)

func (r *Router) registerReportRoutes(app fiber.Router, rh *handler.ReportHandler) {
	app.Post("/upload-report", rh.Upload)
	app.Post("/fetch-reports", rh.Fetch)
	app.Post("/get-reports", rh.ListByPatient)
	app.Post("/regenerate-signed-url", rh.RegenerateSignedURL)
	app.Post("/archive-report", rh.Archive)
	app.Post("/delete-report", rh.Delete)
	app.Post("/add-instruction", rh.AddInstruction)
}
