package lifecycle

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"meeting-insights-go/internal/store"
)

type SweepResult struct {
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// Sweeper deletes recordings whose retention deadline has passed. Each
// meeting is handled on its own: one failure does not stop the batch.
type Sweeper struct {
	store     store.Store
	manager   *Manager
	interval  time.Duration
	batchSize int
	now       func() time.Time
	log       *logrus.Entry
}

func NewSweeper(st store.Store, manager *Manager, interval time.Duration, batchSize int, log *logrus.Entry) *Sweeper {
	return &Sweeper{
		store:     st,
		manager:   manager,
		interval:  interval,
		batchSize: batchSize,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log.WithField("component", "retention-sweeper"),
	}
}

// Sweep walks every due meeting in pages of batchSize. The cursor moves past
// meetings that failed, so they cannot starve the ones behind them.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.now()
	var cursor store.RetentionCursor
	for {
		due, err := s.store.ListRetentionDue(ctx, now, cursor, s.batchSize)
		if err != nil {
			return res, err
		}
		for _, m := range due {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			log := s.log.WithFields(logrus.Fields{"meeting_id": m.ID, "owner_id": m.OwnerID})
			if err := s.manager.DeleteAudio(ctx, m); err != nil {
				res.Failed++
				log.WithError(err).Warn("retention delete failed")
				continue
			}
			res.Deleted++
			log.Info("recording deleted by retention policy")
		}
		if s.batchSize <= 0 || len(due) < s.batchSize {
			break
		}
		cursor = store.CursorAfter(due[len(due)-1])
	}
	if res.Deleted+res.Failed > 0 {
		s.log.WithFields(logrus.Fields{"deleted": res.Deleted, "failed": res.Failed}).Info("retention sweep finished")
	}
	return res, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.log.WithError(err).Error("retention sweep failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
