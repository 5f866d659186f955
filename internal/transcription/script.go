package transcription

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"meeting-insights-go/internal/executor"
	"meeting-insights-go/internal/types"
)

type scriptOutput struct {
	Success    bool     `json:"success"`
	Error      string   `json:"error"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
	Language   string   `json:"language"`
	Duration   float64  `json:"duration"`
}

// ScriptAdapter runs a local whisper-based transcription script.
type ScriptAdapter struct {
	command []string
	runner  executor.Runner
	timeout time.Duration
	log     *logrus.Entry
}

func NewScriptAdapter(command []string, runner executor.Runner, timeout time.Duration, log *logrus.Entry) *ScriptAdapter {
	return &ScriptAdapter{
		command: command,
		runner:  runner,
		timeout: timeout,
		log:     log.WithField("component", "transcription"),
	}
}

func (a *ScriptAdapter) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	name, args, err := executor.Command(a.command, audioPath)
	if err != nil {
		return Result{}, types.NewStageError(types.StageTranscription, "transcriber is not configured", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	res, runErr := a.runner.Run(ctx, name, args...)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Result{}, types.NewStageError(types.StageTranscription, "transcription timed out", runErr)
	}

	var out scriptOutput
	if err := executor.DecodeJSON(res.Stdout, &out); err != nil {
		if runErr != nil {
			err = runErr
		}
		return Result{}, types.NewStageError(types.StageTranscription, "transcription failed", err)
	}
	if !out.Success {
		return Result{}, types.NewStageError(types.StageTranscription, "unsupported audio", errors.New(out.Error))
	}

	text := cleanText(out.Text)
	if text == "" {
		return Result{}, types.NewStageError(types.StageTranscription, "empty transcript", nil)
	}

	confidence := clampConfidence(out.Confidence)
	log := a.log.WithFields(logrus.Fields{"chars": len(text), "language": out.Language})
	if confidence != nil {
		log = log.WithField("confidence", *confidence)
	}
	log.Info("transcription completed")

	return Result{
		Text:            text,
		Confidence:      confidence,
		Language:        out.Language,
		DurationSeconds: out.Duration,
	}, nil
}
