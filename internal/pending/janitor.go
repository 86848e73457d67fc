package pending

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper is implemented by stores that can purge expired drafts in bulk.
type Sweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Janitor periodically sweeps expired drafts out of a persistent store.
type Janitor struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// NewJanitor schedules a sweep of the given store. schedule is a cron spec,
// e.g. "@every 10m".
func NewJanitor(store Sweeper, schedule string, logger *zap.Logger) (*Janitor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		removed, err := store.DeleteExpired(context.Background())
		if err != nil {
			logger.Warn("sweeping expired drafts", zap.Error(err))
			return
		}
		if removed > 0 {
			logger.Info("swept expired drafts", zap.Int64("removed", removed))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule pending sweep: %w", err)
	}

	return &Janitor{cron: c, logger: logger}, nil
}

func (j *Janitor) Start() {
	j.cron.Start()
}

func (j *Janitor) Stop() {
	j.cron.Stop()
}
