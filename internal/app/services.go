package app

import (
	"fmt"

	"cloud.google.com/go/firestore"
	entsql "entgo.io/ent/dialect/sql"
	"go.uber.org/fx"

	"github.com/Alijeyrad/ehms_backend/config"
	"github.com/Alijeyrad/ehms_backend/internal/repo"
	"github.com/Alijeyrad/ehms_backend/internal/service/appointment"
	"github.com/Alijeyrad/ehms_backend/internal/service/patient"
	"github.com/Alijeyrad/ehms_backend/internal/service/report"
	"github.com/Alijeyrad/ehms_backend/pkg/events"
	s3pkg "github.com/Alijeyrad/ehms_backend/pkg/s3"
)

// ServiceModule provides all application service dependencies.
var ServiceModule = fx.Module("services",
	fx.Provide(
		ProvideReportService,
		ProvideAppointmentService,
		ProvidePatientService,
	),
)

func ProvideReportService(drv *entsql.Driver, objects *s3pkg.Client, pub events.Publisher, cfg *config.Config) report.Service {
	return report.New(objects, repo.NewReports(drv), pub, cfg.Reports.SignedURLTTL())
}

func ProvideAppointmentService(client *firestore.Client, pub events.Publisher, cfg *config.Config) (appointment.Service, error) {
	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return nil, fmt.Errorf("scheduler timezone: %w", err)
	}
	return appointment.New(repo.NewAppointments(client), pub, loc, cfg.Scheduler.Concurrency), nil
}

func ProvidePatientService(client *firestore.Client) patient.Service {
	return patient.New(repo.NewPatients(client))
}
