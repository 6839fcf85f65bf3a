package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/ehms_backend/internal/service/appointment"
	"github.com/Alijeyrad/ehms_backend/internal/service/patient"
	"github.com/Alijeyrad/ehms_backend/internal/service/report"
	"github.com/Alijeyrad/ehms_backend/pkg/reqctx"
)

func ok(c fiber.Ctx, body any) error {
	return c.JSON(body)
}

func message(c fiber.Ctx, msg string) error {
	return c.JSON(fiber.Map{"message": msg})
}

func badRequest(c fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func notFound(c fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": msg})
}

func conflict(c fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": msg})
}

func internalError(c fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msg})
}

// fail maps service sentinels to client errors. Anything else is logged
// with the request ID and answered with the endpoint's fixed message.
func fail(c fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, report.ErrInvalidInput),
		errors.Is(err, patient.ErrInvalidInput),
		errors.Is(err, appointment.ErrInvalidDate):
		return badRequest(c, err.Error())
	case errors.Is(err, report.ErrNotFound),
		errors.Is(err, patient.ErrNotFound),
		errors.Is(err, appointment.ErrNotFound):
		return notFound(c, err.Error())
	case errors.Is(err, report.ErrAmbiguousName),
		errors.Is(err, report.ErrReportExists):
		return conflict(c, err.Error())
	default:
		reqctx.Logger(c.Context()).Error(fallback,
			"method", c.Method(),
			"path", c.Path(),
			"err", err,
		)
		return internalError(c, fallback)
	}
}

// bindOptional decodes a JSON body when one is present. An empty body
// leaves out untouched.
func bindOptional(c fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	return c.Bind().JSON(out)
}
