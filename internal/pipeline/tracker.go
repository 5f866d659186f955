package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"
	"meeting-insights-go/internal/store"
	"meeting-insights-go/internal/types"
)

// Tracker persists status transitions. Every write goes through the store's
// retry helper; a write that still fails surfaces as a storage StageError.
type Tracker struct {
	store store.Store
	retry store.RetryPolicy
	log   *logrus.Entry
}

func NewTracker(st store.Store, retry store.RetryPolicy, log *logrus.Entry) *Tracker {
	return &Tracker{store: st, retry: retry, log: log.WithField("component", "tracker")}
}

// Advance moves the meeting to status, writing upd in the same row update.
func (t *Tracker) Advance(ctx context.Context, meetingID string, status types.MeetingStatus, upd *types.MeetingUpdate) (types.Meeting, error) {
	var out types.Meeting
	err := store.WithRetry(ctx, t.retry, t.log.WithField("meeting_id", meetingID), func(ctx context.Context) error {
		m, err := t.store.UpdateMeetingStatus(ctx, meetingID, status, upd)
		if err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return types.Meeting{}, types.NewStageError(types.StageStorage, "failed to save progress", err)
	}
	t.log.WithFields(logrus.Fields{"meeting_id": meetingID, "status": status}).Debug("status written")
	return out, nil
}

// Fail writes the terminal FAILED status with a user-facing message.
func (t *Tracker) Fail(ctx context.Context, meetingID, message string) (types.Meeting, error) {
	return t.Advance(ctx, meetingID, types.StatusFailed, &types.MeetingUpdate{ErrorMessage: &message})
}
