package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"meeting-insights-go/internal/types"
)

type MemoryStore struct {
	mu        sync.Mutex
	meetings  map[string]types.Meeting
	retention map[string]*int
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		meetings:  make(map[string]types.Meeting),
		retention: make(map[string]*int),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) CreateMeeting(_ context.Context, nm types.NewMeeting) (types.Meeting, error) {
	nm, err := validateNew(nm)
	if err != nil {
		return types.Meeting{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	meeting := types.Meeting{
		ID:        uuid.NewString(),
		OwnerID:   nm.OwnerID,
		Title:     nm.Title,
		Category:  nm.Category,
		Status:    types.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.meetings[meeting.ID] = meeting
	return meeting, nil
}

func (m *MemoryStore) UpdateMeetingStatus(_ context.Context, id string, status types.MeetingStatus, upd *types.MeetingUpdate) (types.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meeting, ok := m.meetings[id]
	if !ok {
		return types.Meeting{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := applyStatus(&meeting, status, upd, m.now()); err != nil {
		return types.Meeting{}, err
	}
	m.meetings[id] = meeting
	return meeting, nil
}

func (m *MemoryStore) GetMeeting(_ context.Context, id string) (types.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meeting, ok := m.meetings[id]
	if !ok {
		return types.Meeting{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return meeting, nil
}

func (m *MemoryStore) ListMeetings(_ context.Context, ownerID string) ([]types.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Meeting, 0)
	for _, meeting := range m.meetings {
		if ownerID == "" || meeting.OwnerID == ownerID {
			out = append(out, meeting)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListRetentionDue(_ context.Context, now time.Time, after RetentionCursor, limit int) ([]types.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Meeting, 0)
	for _, meeting := range m.meetings {
		if meeting.Status != types.StatusCompleted || meeting.AudioPath == nil || meeting.AudioDeletedAt != nil {
			continue
		}
		if meeting.RetentionDeadline == nil || meeting.RetentionDeadline.After(now) {
			continue
		}
		if !after.before(*meeting.RetentionDeadline, meeting.ID) {
			continue
		}
		out = append(out, meeting)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].RetentionDeadline, out[j].RetentionDeadline
		if !a.Equal(*b) {
			return a.Before(*b)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) SetRetentionDeadline(_ context.Context, id string, deadline *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	meeting, ok := m.meetings[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if meeting.Status != types.StatusCompleted {
		return fmt.Errorf("%w: retention applies to completed meetings only", ErrInvalidUpdate)
	}
	meeting.RetentionDeadline = deadline
	meeting.UpdatedAt = m.now()
	m.meetings[id] = meeting
	return nil
}

func (m *MemoryStore) ClearAudio(_ context.Context, id string, deletedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	meeting, ok := m.meetings[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	meeting.AudioPath = nil
	meeting.AudioDeletedAt = &deletedAt
	meeting.UpdatedAt = m.now()
	m.meetings[id] = meeting
	return nil
}

func (m *MemoryStore) RetentionDays(_ context.Context, ownerID string) (*int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	days, ok := m.retention[ownerID]
	if !ok || days == nil {
		return nil, ok, nil
	}
	d := *days
	return &d, true, nil
}

func (m *MemoryStore) SetRetentionDays(_ context.Context, ownerID string, days *int) error {
	if err := validateDays(days); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if days == nil {
		m.retention[ownerID] = nil
		return nil
	}
	d := *days
	m.retention[ownerID] = &d
	return nil
}

func (m *MemoryStore) Close() error { return nil }
