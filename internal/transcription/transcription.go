package transcription

import (
	"context"
	"strings"
)

// Result is the text recognized from one normalized recording.
type Result struct {
	Text            string
	// Confidence is on a 0-100 scale; nil when the backend did not report one.
	Confidence      *float64
	Language        string
	DurationSeconds float64
}

// Adapter turns a normalized audio file into text.
type Adapter interface {
	Transcribe(ctx context.Context, audioPath string) (Result, error)
}

// clampConfidence keeps backend confidence on the 0-100 scale.
func clampConfidence(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := min(max(*v, 0), 100)
	return &c
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
