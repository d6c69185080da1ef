// Package jobs schedules background maintenance.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"push-device-service/internal/store"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Janitor purges expired pending registrations on a cron schedule.
type Janitor struct {
	store store.Store
	sched *cron.Cron
	now   func() time.Time
}

func NewJanitor(st store.Store, schedule string) (*Janitor, error) {
	j := &Janitor{
		store: st,
		sched: cron.New(cron.WithParser(cronParser), cron.WithLocation(time.UTC)),
		now:   time.Now,
	}
	if _, err := j.sched.AddFunc(schedule, j.runOnce); err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}
	return j, nil
}

func (j *Janitor) runOnce() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()
	if _, err := j.PurgeExpired(context.Background()); err != nil {
		zap.L().Error("janitor: purge failed", zap.Error(err))
	}
}

func (j *Janitor) PurgeExpired(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	n, err := j.store.PurgeExpiredPending(ctx, j.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		zap.L().Info("janitor: purged expired pending registrations", zap.Int("count", n))
	}
	return n, nil
}

// Run starts the schedule and blocks until ctx is done, then waits for a
// running job to finish.
func (j *Janitor) Run(ctx context.Context) error {
	j.sched.Start()
	<-ctx.Done()
	<-j.sched.Stop().Done()
	return nil
}
