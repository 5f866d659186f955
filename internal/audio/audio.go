package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"meeting-insights-go/internal/executor"
	"meeting-insights-go/internal/types"
)

const (
	MinSizeBytes = 1024
	MaxSizeBytes = 50 * 1024 * 1024
)

// SupportedExtensions lists the upload formats the normalizer accepts.
var SupportedExtensions = []string{".mp3", ".wav", ".m4a", ".mp4", ".ogg", ".flac", ".webm"}

// Result describes the normalized 16 kHz mono recording.
type Result struct {
	NormalizedPath  string
	DurationSeconds float64
	SampleRate      int
	Channels        int
	SizeBytes       int64
}

// Adapter normalizes an uploaded recording into outputPath.
type Adapter interface {
	Normalize(ctx context.Context, sourcePath, outputPath string) (Result, error)
}

// scriptOutput is what the audio processor prints on stdout.
type scriptOutput struct {
	Success    bool    `json:"success"`
	Error      string  `json:"error"`
	OutputPath string  `json:"output_path"`
	Duration   float64 `json:"duration"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
}

// ScriptAdapter runs the external audio processor.
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
		log:     log.WithField("component", "audio"),
	}
}

// Normalize validates the upload, runs the processor under the stage timeout
// and checks the produced file. outputPath is removed on every failure path.
func (a *ScriptAdapter) Normalize(ctx context.Context, sourcePath, outputPath string) (Result, error) {
	if err := ValidateSource(sourcePath); err != nil {
		return Result{}, err
	}

	name, args, err := executor.Command(a.command, sourcePath, outputPath)
	if err != nil {
		return Result{}, types.NewStageError(types.StageAudio, "audio processor is not configured", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	a.log.WithField("source", filepath.Base(sourcePath)).Info("normalizing audio")
	res, runErr := a.runner.Run(ctx, name, args...)

	var out scriptOutput
	decodeErr := executor.DecodeJSON(res.Stdout, &out)
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		a.removePartial(outputPath)
		return Result{}, types.NewStageError(types.StageAudio, "audio processing timed out", runErr)
	case decodeErr == nil && !out.Success:
		a.removePartial(outputPath)
		return Result{}, types.NewStageError(types.StageAudio, "audio decode failed", errors.New(out.Error))
	case runErr != nil:
		a.removePartial(outputPath)
		return Result{}, types.NewStageError(types.StageAudio, "audio decode failed", runErr)
	case decodeErr != nil:
		a.removePartial(outputPath)
		return Result{}, types.NewStageError(types.StageAudio, "audio decode failed", decodeErr)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		a.removePartial(outputPath)
		return Result{}, types.NewStageError(types.StageAudio, "normalized audio is missing", err)
	}
	if info.Size() == 0 {
		a.removePartial(outputPath)
		return Result{}, types.NewStageError(types.StageAudio, "normalized audio is empty", nil)
	}

	channels := out.Channels
	if channels == 0 {
		channels = 1
	}
	result := Result{
		NormalizedPath:  outputPath,
		DurationSeconds: out.Duration,
		SampleRate:      out.SampleRate,
		Channels:        channels,
		SizeBytes:       info.Size(),
	}
	a.log.WithFields(logrus.Fields{
		"duration_s":  result.DurationSeconds,
		"sample_rate": result.SampleRate,
		"size_bytes":  result.SizeBytes,
	}).Info("audio normalized")
	return result, nil
}

func (a *ScriptAdapter) removePartial(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		a.log.WithField("path", path).WithError(err).Warn("failed to remove partial audio output")
	}
}

// ValidateSource checks that the upload is a readable audio file within size bounds.
func ValidateSource(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return types.NewStageError(types.StageAudio, "audio file is unreadable", err)
	}
	if !info.Mode().IsRegular() {
		return types.NewStageError(types.StageAudio, "audio file is unreadable", fmt.Errorf("%s is not a regular file", path))
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !IsSupported(ext) {
		return types.NewStageError(types.StageAudio,
			fmt.Sprintf("unsupported audio format %q", ext), nil)
	}
	if info.Size() < MinSizeBytes {
		return types.NewStageError(types.StageAudio, "audio file is too small", nil)
	}
	if info.Size() > MaxSizeBytes {
		return types.NewStageError(types.StageAudio, "audio file is too large (max 50 MB)", nil)
	}
	return nil
}

// IsSupported reports whether ext (with leading dot) is an accepted upload format.
func IsSupported(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}
