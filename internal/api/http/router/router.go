package router

import (
	"context"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"github.com/Alijeyrad/ehms_backend/config"
	"github.com/Alijeyrad/ehms_backend/internal/api/http/handler"
	"github.com/Alijeyrad/ehms_backend/internal/service/appointment"
	"github.com/Alijeyrad/ehms_backend/internal/service/patient"
	"github.com/Alijeyrad/ehms_backend/internal/service/report"
	"github.com/Alijeyrad/ehms_backend/pkg/recaptcha"
)

// Module provides the Router to the fx graph.
var Module = fx.Module("router", fx.Provide(NewRouter))

const readinessTimeout = 2 * time.Second

type Params struct {
	fx.In

	Cfg            *config.Config
	DB             *entsql.Driver `optional:"true"`
	ReportSvc      report.Service
	AppointmentSvc appointment.Service
	PatientSvc     patient.Service
	Captcha        *recaptcha.Client
}

type Router struct {
	p Params
}

func NewRouter(p Params) *Router {
	return &Router{p: p}
}

// Register mounts every route at the root, where existing clients call them.
func (r *Router) Register(app *fiber.App) {
	// 1. Health & Metrics
	r.registerSystemRoutes(app)

	// 2. Initialize Handlers
	reportH := handler.NewReportHandler(r.p.ReportSvc, int64(r.p.Cfg.Reports.MaxUploadMB)<<20)
	appointmentH := handler.NewAppointmentHandler(r.p.AppointmentSvc)
	patientH := handler.NewPatientHandler(r.p.PatientSvc)
	captchaH := handler.NewCaptchaHandler(r.p.Captcha)

	// 3. Delegate to sub-files
	r.registerReportRoutes(app, reportH)
	r.registerAppointmentRoutes(app, appointmentH)
	r.registerPatientRoutes(app, patientH)
	r.registerCaptchaRoutes(app, captchaH)
}

func (r *Router) registerSystemRoutes(app *fiber.App) {
	app.Get(healthcheck.LivenessEndpoint, healthcheck.New())
	app.Get(healthcheck.ReadinessEndpoint, healthcheck.New(healthcheck.Config{
		Probe: r.ready,
	}))
	app.Get(healthcheck.StartupEndpoint, healthcheck.New())

	if r.p.Cfg.Observability.Enabled && r.p.Cfg.Observability.Metrics.Enabled {
		path := r.p.Cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		app.Get(path, adaptor.HTTPHandler(promhttp.Handler()))
	}
}

// ready reports whether the metadata database answers a ping.
func (r *Router) ready(c fiber.Ctx) bool {
	if r.p.DB == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
	defer cancel()
	return r.p.DB.DB().PingContext(ctx) == nil
}
