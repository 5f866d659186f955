package types

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a status change skips or reverses a stage.
var ErrInvalidTransition = errors.New("invalid status transition")

var statusOrder = []MeetingStatus{
	StatusPending,
	StatusProcessingAudio,
	StatusTranscribing,
	StatusProcessingNLP,
	StatusSummarizing,
	StatusCompleted,
	StatusFailed,
}

// Statuses returns every status in display order.
func Statuses() []MeetingStatus {
	out := make([]MeetingStatus, len(statusOrder))
	copy(out, statusOrder)
	return out
}

// ParseStatus validates a stored status string.
func ParseStatus(s string) (MeetingStatus, error) {
	for _, st := range statusOrder {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown meeting status %q", s)
}

// IsTerminal reports whether no further transitions are allowed.
func (s MeetingStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Step is the zero-based position of the status in the progress bar.
func (s MeetingStatus) Step() int {
	for i, st := range statusOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// CanTransition enforces the pipeline state machine edges.
func CanTransition(from, to MeetingStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	switch from {
	case StatusPending:
		return to == StatusProcessingAudio
	case StatusProcessingAudio:
		return to == StatusTranscribing
	case StatusTranscribing:
		return to == StatusProcessingNLP
	case StatusProcessingNLP:
		return to == StatusSummarizing
	case StatusSummarizing:
		return to == StatusCompleted
	default:
		return false
	}
}

// CheckTransition wraps CanTransition with a descriptive error.
func CheckTransition(from, to MeetingStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
