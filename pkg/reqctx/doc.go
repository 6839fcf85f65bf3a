// Package reqctx carries request-scoped data from the HTTP layer into
// services.
//
// The request ID middleware stores a RequestMeta on every request. Services
// never read fiber locals; they call Logger(ctx) to get a slog.Logger already
// tagged with the request ID:
//
//	reqctx.Logger(ctx).Error("metadata insert failed", "err", err)
//
// Background jobs (the appointment scheduler) run without RequestMeta and get
// the default logger.
//
// All context keys are private unexported types to prevent collisions.
package reqctx
