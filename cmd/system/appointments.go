package system

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/Alijeyrad/ehms_backend/config"
	"github.com/Alijeyrad/ehms_backend/internal/app"
	"github.com/Alijeyrad/ehms_backend/internal/service/appointment"
	"github.com/Alijeyrad/ehms_backend/internal/service/report"
	"github.com/Alijeyrad/ehms_backend/pkg/logs"
	"github.com/Alijeyrad/ehms_backend/pkg/reqctx"
)

// withServices reads the config, starts the infra and service graph, hands
// the populated targets to run and stops the graph afterwards.
func withServices(cmd *cobra.Command, run func(ctx context.Context) error, targets ...any) error {
	cfgPath, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg, err := config.ReadConfig(filepath.Dir(cfgPath))
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	slog.SetDefault(logs.New(cfg))

	fxApp := fx.New(
		fx.Supply(cfg),
		app.InfraModule,
		app.ServiceModule,
		fx.Populate(targets...),
		fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
	)
	if err := fxApp.Err(); err != nil {
		return err
	}

	timeout := time.Duration(cfg.Server.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	startCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := fxApp.Stop(stopCtx); err != nil {
			slog.Warn("shutdown failed", "err", err)
		}
	}()

	return run(cmd.Context())
}

func NewAdvanceAppointmentsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "advance-appointments",
		Short: "Run the appointment status engine once",
		Long: `Marks Upcoming appointments whose time has passed today as Late, and
Upcoming or Late appointments from earlier days as Failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var svc appointment.Service
			return withServices(cmd, func(ctx context.Context) error {
				ctx = reqctx.WithJob(ctx, "advance-appointments")
				res, err := svc.AdvanceStatuses(ctx, time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "examined=%d updated=%d skipped=%d failed=%d\n",
					res.Examined, res.Updated, res.Skipped, res.Failed())
				if res.Failed() > 0 {
					return fmt.Errorf("%d appointments not advanced: %w", res.Failed(), res.Err())
				}
				return nil
			}, &svc)
		},
	}

	return cmd
}

func NewOrphansCommand() *cobra.Command {
	var patientID string

	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "List stored report objects that have no metadata row",
		RunE: func(cmd *cobra.Command, args []string) error {
			var svc report.Service
			return withServices(cmd, func(ctx context.Context) error {
				keys, err := svc.FindOrphans(ctx, patientID)
				if err != nil {
					return err
				}
				for _, k := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return nil
			}, &svc)
		},
	}

	cmd.Flags().StringVar(&patientID, "patient", "", "Patient ID whose objects are checked")
	_ = cmd.MarkFlagRequired("patient")

	return cmd
}
