package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"meeting-insights-go/internal/store"
	"meeting-insights-go/internal/types"
)

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Manager owns a recording's path from temporary upload storage through the
// processed directory into permanent storage, and its deletion.
type Manager struct {
	tempDir      string
	processedDir string
	artifacts    ArtifactStore
	store        store.Store
	retry        store.RetryPolicy
	locks        *keyedMutex
	now          func() time.Time
	log          *logrus.Entry
}

func NewManager(tempDir, processedDir string, artifacts ArtifactStore, st store.Store, retry store.RetryPolicy, log *logrus.Entry) (*Manager, error) {
	for _, dir := range []string{tempDir, processedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return &Manager{
		tempDir:      tempDir,
		processedDir: processedDir,
		artifacts:    artifacts,
		store:        st,
		retry:        retry,
		locks:        newKeyedMutex(),
		now:          func() time.Time { return time.Now().UTC() },
		log:          log.WithField("component", "lifecycle"),
	}, nil
}

// TempName returns a unique temp-storage path for an upload: owner id,
// timestamp and a random suffix, keeping the original extension.
func (m *Manager) TempName(ownerID, originalName string) string {
	owner := unsafeName.ReplaceAllString(ownerID, "_")
	ext := strings.ToLower(filepath.Ext(originalName))
	return filepath.Join(m.tempDir, fmt.Sprintf("%s_%d_%s%s", owner, m.now().UnixNano(), uuid.NewString()[:8], ext))
}

// Adopt moves a file from outside the pipeline (drop folder, manifest) into
// temp storage under a unique name and returns the new path.
func (m *Manager) Adopt(ownerID, srcPath string) (string, error) {
	dst := m.TempName(ownerID, srcPath)
	if err := os.Rename(srcPath, dst); err == nil {
		return dst, nil
	}
	// cross-device: copy then remove
	if err := copyFile(srcPath, dst); err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("adopt %s: %w", srcPath, err)
	}
	if err := os.Remove(srcPath); err != nil {
		m.log.WithField("path", srcPath).WithError(err).Warn("adopted file left at source")
	}
	return dst, nil
}

// ProcessedPath is where the audio stage writes the normalized recording.
func (m *Manager) ProcessedPath(meetingID string) string {
	return filepath.Join(m.processedDir, meetingID+".wav")
}

// ArtifactKey names a meeting's recording in permanent storage.
func ArtifactKey(meetingID string) string {
	return meetingID + ".wav"
}

// Promote copies the processed recording into permanent storage under the
// meeting id. A second call for the same meeting returns the existing
// location without writing again.
func (m *Manager) Promote(ctx context.Context, meetingID, processedPath string) (string, error) {
	unlock := m.locks.Lock(meetingID)
	defer unlock()

	key := ArtifactKey(meetingID)
	loc, exists, err := m.artifacts.Stat(ctx, key)
	if err != nil {
		return "", fmt.Errorf("stat artifact: %w", err)
	}
	if exists {
		m.log.WithField("meeting_id", meetingID).Debug("artifact already promoted")
		return loc, nil
	}
	loc, err = m.artifacts.Put(ctx, key, processedPath)
	if err != nil {
		return "", fmt.Errorf("promote %s: %w", meetingID, err)
	}
	m.log.WithFields(logrus.Fields{"meeting_id": meetingID, "location": loc}).Info("recording promoted")
	return loc, nil
}

// Demote removes a promoted artifact. Used when the completion write fails
// after promotion so a failed meeting never owns a permanent file.
func (m *Manager) Demote(ctx context.Context, meetingID string) error {
	unlock := m.locks.Lock(meetingID)
	defer unlock()
	return m.artifacts.Remove(ctx, ArtifactKey(meetingID))
}

// CleanupIntermediate deletes the given files, logging instead of failing.
func (m *Manager) CleanupIntermediate(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		err := os.Remove(p)
		switch {
		case err == nil:
			m.log.WithField("path", p).Debug("intermediate file removed")
		case errors.Is(err, os.ErrNotExist):
			m.log.WithField("path", p).Debug("intermediate file already gone")
		default:
			m.log.WithField("path", p).WithError(err).Warn("failed to remove intermediate file")
		}
	}
}

// AbortCleanup removes the temp upload and processed output of a meeting that
// will never complete. Permanent storage is not touched.
func (m *Manager) AbortCleanup(meetingID, tempPath string) {
	m.CleanupIntermediate(tempPath, m.ProcessedPath(meetingID))
}

// FinishCleanup removes the intermediates of a completed meeting; the
// promoted artifact stays.
func (m *Manager) FinishCleanup(meetingID, tempPath string) {
	m.CleanupIntermediate(tempPath, m.ProcessedPath(meetingID))
}

// RetentionDeadline computes the deletion time. nil or 0 days disables it.
func RetentionDeadline(from time.Time, days *int) *time.Time {
	if days == nil || *days <= 0 {
		return nil
	}
	t := from.Add(time.Duration(*days) * 24 * time.Hour)
	return &t
}

// ScheduleRetention stores the meeting's retention deadline.
func (m *Manager) ScheduleRetention(ctx context.Context, meetingID string, days *int) (*time.Time, error) {
	if days != nil && *days < 0 {
		return nil, fmt.Errorf("retention days must not be negative")
	}
	deadline := RetentionDeadline(m.now(), days)
	err := store.WithRetry(ctx, m.retry, m.log, func(ctx context.Context) error {
		return m.store.SetRetentionDeadline(ctx, meetingID, deadline)
	})
	if err != nil {
		return nil, err
	}
	return deadline, nil
}

// DeleteAudio removes a meeting's permanent recording and clears its
// audio path. Transcript and summary stay.
func (m *Manager) DeleteAudio(ctx context.Context, meeting types.Meeting) error {
	unlock := m.locks.Lock(meeting.ID)
	err := m.artifacts.Remove(ctx, ArtifactKey(meeting.ID))
	unlock()
	if err != nil {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return store.WithRetry(ctx, m.retry, m.log, func(ctx context.Context) error {
		return m.store.ClearAudio(ctx, meeting.ID, m.now())
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// keyedMutex serializes work per key. Entries are dropped when the last
// holder releases them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
