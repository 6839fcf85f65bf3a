package http

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/Alijeyrad/ehms_backend/config"
	"github.com/Alijeyrad/ehms_backend/internal/api/http/router"
	"github.com/Alijeyrad/ehms_backend/internal/app"
)

// Options assembles the full server graph: infrastructure, services, the
// appointment scheduler, event workers and the HTTP server.
func Options(cfg *config.Config, timeout time.Duration) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		app.InfraModule,
		app.ServiceModule,
		app.SchedulerModule,
		app.WorkerModule,
		router.Module,
		Module, // This is the http.Module from server.go

		// Invoke *fiber.App because that's what NewServer returns.
		// This forces the creation of fiber.App, triggering the OnStart hook.
		fx.Invoke(func(*fiber.App) {}),

		fx.StopTimeout(timeout),
		fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
	)
}

// Start runs the server until SIGINT or SIGTERM.
func Start(cfg *config.Config, timeout time.Duration) {
	fx.New(Options(cfg, timeout)).Run()
}
