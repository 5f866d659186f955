package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"meeting-insights-go/internal/types"
)

var (
	ErrNotFound = errors.New("meeting not found")
	// ErrMeetingFinalized is returned for any status write to a COMPLETED or FAILED meeting.
	ErrMeetingFinalized = errors.New("meeting is finalized")
	ErrInvalidUpdate    = errors.New("invalid meeting update")
)

// Store is the record store the pipeline and its collaborators depend on.
// Every write is scoped to a single meeting row.
type Store interface {
	CreateMeeting(ctx context.Context, m types.NewMeeting) (types.Meeting, error)
	UpdateMeetingStatus(ctx context.Context, id string, status types.MeetingStatus, upd *types.MeetingUpdate) (types.Meeting, error)
	GetMeeting(ctx context.Context, id string) (types.Meeting, error)
	ListMeetings(ctx context.Context, ownerID string) ([]types.Meeting, error)

	// ListRetentionDue returns completed meetings whose retention deadline is
	// at or before now and whose audio is still present, ordered by deadline
	// then id and starting strictly after the cursor. limit <= 0 means no limit.
	ListRetentionDue(ctx context.Context, now time.Time, after RetentionCursor, limit int) ([]types.Meeting, error)
	SetRetentionDeadline(ctx context.Context, id string, deadline *time.Time) error
	// ClearAudio nulls audio_path and stamps audio_deleted_at. Transcript and
	// summary are left untouched.
	ClearAudio(ctx context.Context, id string, deletedAt time.Time) error

	// RetentionDays returns the owner's retention window. ok is false when the
	// owner never configured one; a nil days with ok means auto-deletion is off.
	RetentionDays(ctx context.Context, ownerID string) (days *int, ok bool, err error)
	SetRetentionDays(ctx context.Context, ownerID string, days *int) error

	Close() error
}

// RetentionCursor is a position in the retention-due order. The zero value
// starts from the beginning.
type RetentionCursor struct {
	Deadline time.Time
	ID       string
}

// CursorAfter returns the cursor positioned at m.
func CursorAfter(m types.Meeting) RetentionCursor {
	c := RetentionCursor{ID: m.ID}
	if m.RetentionDeadline != nil {
		c.Deadline = *m.RetentionDeadline
	}
	return c
}

func (c RetentionCursor) before(deadline time.Time, id string) bool {
	if !deadline.Equal(c.Deadline) {
		return deadline.After(c.Deadline)
	}
	return id > c.ID
}

// applyStatus validates a status write against the current row and applies
// it in place. Both stores share it so their semantics cannot drift.
func applyStatus(m *types.Meeting, status types.MeetingStatus, upd *types.MeetingUpdate, now time.Time) error {
	if m.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrMeetingFinalized, m.ID, m.Status)
	}
	if status != m.Status {
		if err := types.CheckTransition(m.Status, status); err != nil {
			return err
		}
	}

	if upd != nil {
		if upd.AudioPath != nil {
			m.AudioPath = upd.AudioPath
		}
		if upd.AudioSizeBytes != nil {
			m.AudioSizeBytes = *upd.AudioSizeBytes
		}
		if upd.AudioDurationSeconds != nil {
			m.AudioDurationSeconds = *upd.AudioDurationSeconds
		}
		if upd.TranscriptText != nil {
			m.TranscriptText = upd.TranscriptText
		}
		if upd.TranscriptConfidence != nil {
			m.TranscriptConfidence = upd.TranscriptConfidence
		}
		if upd.TranscriptLanguage != nil {
			m.TranscriptLanguage = *upd.TranscriptLanguage
		}
		if upd.NLPFeatures != nil {
			m.NLPFeatures = upd.NLPFeatures
		}
		if upd.Summary != nil {
			m.Summary = upd.Summary
		}
		if upd.ErrorMessage != nil {
			m.ErrorMessage = upd.ErrorMessage
		}
		if upd.RetentionDeadline != nil {
			m.RetentionDeadline = upd.RetentionDeadline
		}
	}

	switch status {
	case types.StatusFailed:
		if m.ErrorMessage == nil || *m.ErrorMessage == "" {
			msg := "processing failed"
			m.ErrorMessage = &msg
		}
		// nothing is promoted for a failed meeting
		m.AudioPath = nil
		m.RetentionDeadline = nil
	case types.StatusCompleted:
		if m.TranscriptText == nil || m.Summary == nil {
			return fmt.Errorf("%w: completed meeting %s needs transcript and summary", ErrInvalidUpdate, m.ID)
		}
		m.ErrorMessage = nil
	default:
		if upd != nil && upd.ErrorMessage != nil {
			return fmt.Errorf("%w: errorMessage is only set on FAILED", ErrInvalidUpdate)
		}
	}

	m.Status = status
	m.UpdatedAt = now
	return nil
}

func validateNew(m types.NewMeeting) (types.NewMeeting, error) {
	if m.OwnerID == "" {
		return m, fmt.Errorf("%w: owner id is required", ErrInvalidUpdate)
	}
	if m.Title == "" {
		return m, fmt.Errorf("%w: title is required", ErrInvalidUpdate)
	}
	if m.Category == "" {
		m.Category = types.DefaultCategory
	}
	return m, nil
}

func validateDays(days *int) error {
	if days != nil && *days < 0 {
		return fmt.Errorf("%w: retention days must not be negative", ErrInvalidUpdate)
	}
	return nil
}
