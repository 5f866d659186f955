package types

import (
	"errors"
	"fmt"
)

// Stage names one ordered step of the pipeline.
type Stage string

const (
	StageAudio         Stage = "audio"
	StageTranscription Stage = "transcription"
	StageLinguistic    Stage = "linguistic"
	StageSummarization Stage = "summarization"
	StageStorage       Stage = "storage"
)

// Fatal reports whether a failure in this stage aborts the pipeline.
func (s Stage) Fatal() bool {
	return s != StageLinguistic
}

// StageError is a stage-aware failure. Message is safe to show to the meeting
// owner; Err keeps the internal cause for logs.
type StageError struct {
	Stage   Stage
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Detail includes the wrapped cause, for logs only.
func (e *StageError) Detail() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
}

// NewStageError builds a StageError.
func NewStageError(stage Stage, message string, err error) *StageError {
	return &StageError{Stage: stage, Message: message, Err: err}
}

// AsStageError turns any error into a StageError for the given stage. Errors
// that are not already stage-aware get a generic message so internals do not
// leak into errorMessage.
func AsStageError(stage Stage, err error) *StageError {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	return &StageError{Stage: stage, Message: fmt.Sprintf("%s failed", stage), Err: err}
}
