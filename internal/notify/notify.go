package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Sink receives terminal pipeline outcomes. Callers treat errors as
// best-effort: a failed notification never changes a meeting.
type Sink interface {
	NotifyCompleted(ctx context.Context, ownerID, meetingID, title, summaryPreview string) error
	NotifyFailed(ctx context.Context, ownerID, meetingID, title, errorMessage string) error
}

// Event is the payload sent to webhooks.
type Event struct {
	Type      string    `json:"type"`
	OwnerID   string    `json:"ownerId"`
	MeetingID string    `json:"meetingId"`
	Title     string    `json:"title"`
	Preview   string    `json:"preview,omitempty"`
	Error     string    `json:"error,omitempty"`
	SentAt    time.Time `json:"sentAt"`
}

const (
	EventCompleted = "meeting.completed"
	EventFailed    = "meeting.failed"
)

// LogSink writes notifications to the log.
type LogSink struct {
	log *logrus.Entry
}

func NewLogSink(log *logrus.Entry) *LogSink {
	return &LogSink{log: log.WithField("component", "notify")}
}

func (s *LogSink) NotifyCompleted(_ context.Context, ownerID, meetingID, title, preview string) error {
	s.log.WithFields(logrus.Fields{
		"owner_id":   ownerID,
		"meeting_id": meetingID,
		"title":      title,
		"preview":    preview,
	}).Info("meeting ready")
	return nil
}

func (s *LogSink) NotifyFailed(_ context.Context, ownerID, meetingID, title, errorMessage string) error {
	s.log.WithFields(logrus.Fields{
		"owner_id":   ownerID,
		"meeting_id": meetingID,
		"title":      title,
		"error":      errorMessage,
	}).Warn("meeting processing failed")
	return nil
}

// WebhookSink posts an Event as JSON.
type WebhookSink struct {
	url    string
	client *http.Client
}

func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	return &WebhookSink{url: url, client: &http.Client{Timeout: timeout}}
}

func (s *WebhookSink) NotifyCompleted(ctx context.Context, ownerID, meetingID, title, preview string) error {
	return s.post(ctx, Event{Type: EventCompleted, OwnerID: ownerID, MeetingID: meetingID, Title: title, Preview: preview})
}

func (s *WebhookSink) NotifyFailed(ctx context.Context, ownerID, meetingID, title, errorMessage string) error {
	return s.post(ctx, Event{Type: EventFailed, OwnerID: ownerID, MeetingID: meetingID, Title: title, Error: errorMessage})
}

func (s *WebhookSink) post(ctx context.Context, ev Event) error {
	ev.SentAt = time.Now().UTC()
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Multi fans out to every sink and joins their errors.
type Multi []Sink

func (m Multi) NotifyCompleted(ctx context.Context, ownerID, meetingID, title, preview string) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.NotifyCompleted(ctx, ownerID, meetingID, title, preview))
	}
	return errors.Join(errs...)
}

func (m Multi) NotifyFailed(ctx context.Context, ownerID, meetingID, title, errorMessage string) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.NotifyFailed(ctx, ownerID, meetingID, title, errorMessage))
	}
	return errors.Join(errs...)
}
