package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"

	"github.com/Alijeyrad/ehms_backend/config"
	"github.com/Alijeyrad/ehms_backend/internal/service/appointment"
	"github.com/Alijeyrad/ehms_backend/pkg/observability"
	redispkg "github.com/Alijeyrad/ehms_backend/pkg/redis"
	"github.com/Alijeyrad/ehms_backend/pkg/reqctx"
)

const (
	advanceJobName = "advance-appointments"
	advanceLockKey = "ehms:lock:advance-appointments"
)

// SchedulerModule runs the appointment status engine on the configured cron
// spec. Cron times are evaluated in UTC.
var SchedulerModule = fx.Module("scheduler",
	fx.Provide(NewAdvanceJob),
	fx.Invoke(RegisterScheduler),
)

// AdvanceJob is one guarded run of AdvanceStatuses. With a locker, only the
// replica that wins the lease runs.
type AdvanceJob struct {
	svc     appointment.Service
	locker  *redispkg.Locker
	lockTTL time.Duration
	now     func() time.Time
}

type AdvanceJobParams struct {
	fx.In

	Cfg   *config.Config
	Svc   appointment.Service
	Redis *redis.Client `optional:"true"`
}

func NewAdvanceJob(p AdvanceJobParams) *AdvanceJob {
	var locker *redispkg.Locker
	if p.Redis != nil {
		locker = redispkg.NewLocker(p.Redis)
	}
	return &AdvanceJob{
		svc:     p.Svc,
		locker:  locker,
		lockTTL: p.Cfg.Scheduler.LockTTL(),
		now:     time.Now,
	}
}

// Run advances statuses once. A lease held elsewhere is not an error; the
// run returns a nil result.
func (j *AdvanceJob) Run(ctx context.Context) (res *appointment.AdvanceResult, err error) {
	ctx = reqctx.WithJob(ctx, advanceJobName)
	ctx, end := observability.StartJob(ctx, advanceJobName, attribute.Bool("locked", j.locker != nil))
	defer func() { end(err) }()

	log := reqctx.Logger(ctx)

	if j.locker != nil {
		lock, err := j.locker.Acquire(ctx, advanceLockKey, j.lockTTL)
		if err != nil {
			if errors.Is(err, redispkg.ErrLockHeld) {
				log.Info("another replica holds the lock; skipping run")
				return nil, nil
			}
			return nil, fmt.Errorf("acquire scheduler lock: %w", err)
		}
		defer func() {
			// The run's context may be done by now.
			if _, rerr := lock.Release(context.WithoutCancel(ctx)); rerr != nil {
				log.Warn("scheduler lock release failed", "key", lock.Key(), "err", rerr)
			}
		}()
	}

	res, err = j.svc.AdvanceStatuses(ctx, j.now())
	if err != nil {
		return nil, err
	}
	if res.Failed() > 0 {
		log.Warn("some appointments were not advanced", "failed", res.Failed(), "err", res.Err())
	}
	return res, nil
}

type SchedulerParams struct {
	fx.In

	Lc  fx.Lifecycle
	Cfg *config.Config
	Job *AdvanceJob
}

func RegisterScheduler(p SchedulerParams) error {
	if !p.Cfg.Scheduler.Enabled {
		slog.Info("appointment scheduler disabled")
		return nil
	}

	c := cron.New(cron.WithLocation(time.UTC))
	ctx, cancel := context.WithCancel(context.Background())

	sched, err := cron.ParseStandard(p.Cfg.Scheduler.Spec)
	if err != nil {
		cancel()
		return fmt.Errorf("scheduler spec %q: %w", p.Cfg.Scheduler.Spec, err)
	}
	c.Schedule(sched, cron.FuncJob(func() {
		if _, err := p.Job.Run(ctx); err != nil {
			slog.Error("scheduled appointment status run failed", "job", advanceJobName, "err", err)
		}
	}))

	p.Lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			c.Start()
			slog.Info("appointment scheduler started",
				"spec", p.Cfg.Scheduler.Spec,
				"next", sched.Next(time.Now().UTC()),
			)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			done := c.Stop()
			select {
			case <-done.Done():
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
	return nil
}
