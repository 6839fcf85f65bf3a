package handler

import (
	"context"

	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/ehms_backend/pkg/recaptcha"
	"github.com/Alijeyrad/ehms_backend/pkg/reqctx"
)

type CaptchaVerifier interface {
	Verify(ctx context.Context, token string) (*recaptcha.Result, error)
}

type CaptchaHandler struct {
	verifier CaptchaVerifier
}

func NewCaptchaHandler(v CaptchaVerifier) *CaptchaHandler {
	return &CaptchaHandler{verifier: v}
}

// POST /api/verify-recaptcha
// Any failure to verify answers {success:false}.
func (h *CaptchaHandler) Verify(c fiber.Ctx) error {
	var body struct {
		Token string `json:"token"`
	}
	if err := bindOptional(c, &body); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.verifier.Verify(c.Context(), body.Token)
	if err != nil {
		reqctx.Logger(c.Context()).Warn("recaptcha verification failed", "err", err)
		return ok(c, fiber.Map{"success": false})
	}
	return ok(c, fiber.Map{"success": res.Success})
}
