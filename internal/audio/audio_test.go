package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"meeting-insights-go/internal/executor"
	"meeting-insights-go/internal/types"
)

type fakeRunner struct {
	run func(ctx context.Context, name string, args ...string) (executor.Result, error)
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (executor.Result, error) {
	return f.run(ctx, name, args...)
}

func nullLog() *logrus.Entry {
	l, _ := test.NewNullLogger()
	return logrus.NewEntry(l)
}

func writeUpload(t *testing.T, dir, name string, size int) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(strings.Repeat("a", size)), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestNormalizeSuccess(t *testing.T) {
	dir := t.TempDir()
	src := writeUpload(t, dir, "demo.wav", 4096)
	out := filepath.Join(dir, "processed.wav")

	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (executor.Result, error) {
		if name != "python3" || args[len(args)-1] != out {
			t.Fatalf("unexpected command %s %v", name, args)
		}
		if err := os.WriteFile(out, []byte("RIFF...."), 0o644); err != nil {
			t.Fatal(err)
		}
		return executor.Result{Stdout: `{"success": true, "output_path": "` + out + `", "duration": 45.0, "sample_rate": 16000, "channels": 1}`}, nil
	}}

	a := NewScriptAdapter([]string{"python3", "audio_processor.py"}, runner, time.Minute, nullLog())
	res, err := a.Normalize(context.Background(), src, out)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if res.DurationSeconds != 45 || res.SampleRate != 16000 || res.Channels != 1 {
		t.Errorf("result = %+v", res)
	}
	if res.SizeBytes != 8 {
		t.Errorf("SizeBytes = %d, want 8", res.SizeBytes)
	}
}

func TestNormalizeFailures(t *testing.T) {
	tests := []struct {
		name    string
		upload  string
		size    int
		run     func(out string) (executor.Result, error)
		wantMsg string
	}{
		{
			name:    "unsupported extension",
			upload:  "notes.txt",
			size:    4096,
			wantMsg: `unsupported audio format ".txt"`,
		},
		{
			name:    "too small",
			upload:  "tiny.wav",
			size:    10,
			wantMsg: "audio file is too small",
		},
		{
			name:   "script reports failure and leaves partial file",
			upload: "demo.wav",
			size:   4096,
			run: func(out string) (executor.Result, error) {
				_ = os.WriteFile(out, []byte("partial"), 0o644)
				return executor.Result{Stdout: `{"success": false, "error": "could not decode"}`}, nil
			},
			wantMsg: "audio decode failed",
		},
		{
			name:   "process crash",
			upload: "demo.wav",
			size:   4096,
			run: func(out string) (executor.Result, error) {
				return executor.Result{ExitCode: 1}, errors.New("exit status 1")
			},
			wantMsg: "audio decode failed",
		},
		{
			name:   "zero length output",
			upload: "demo.wav",
			size:   4096,
			run: func(out string) (executor.Result, error) {
				_ = os.WriteFile(out, nil, 0o644)
				return executor.Result{Stdout: `{"success": true, "duration": 1}`}, nil
			},
			wantMsg: "normalized audio is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			src := writeUpload(t, dir, tt.upload, tt.size)
			out := filepath.Join(dir, "processed.wav")
			calls := 0
			runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (executor.Result, error) {
				calls++
				return tt.run(out)
			}}

			a := NewScriptAdapter([]string{"python3", "audio_processor.py"}, runner, time.Minute, nullLog())
			_, err := a.Normalize(context.Background(), src, out)
			var se *types.StageError
			if !errors.As(err, &se) {
				t.Fatalf("error = %v, want StageError", err)
			}
			if se.Stage != types.StageAudio || se.Message != tt.wantMsg {
				t.Errorf("stage error = %s / %q, want %q", se.Stage, se.Message, tt.wantMsg)
			}
			if tt.run == nil && calls != 0 {
				t.Errorf("runner called %d times for invalid input", calls)
			}
			if _, statErr := os.Stat(out); !errors.Is(statErr, os.ErrNotExist) {
				t.Errorf("output file left behind: %v", statErr)
			}
		})
	}
}

func TestNormalizeTimeout(t *testing.T) {
	dir := t.TempDir()
	src := writeUpload(t, dir, "demo.m4a", 4096)
	out := filepath.Join(dir, "processed.wav")
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (executor.Result, error) {
		_ = os.WriteFile(out, []byte("half"), 0o644)
		<-ctx.Done()
		return executor.Result{ExitCode: -1}, ctx.Err()
	}}

	a := NewScriptAdapter([]string{"python3", "audio_processor.py"}, runner, 20*time.Millisecond, nullLog())
	_, err := a.Normalize(context.Background(), src, out)
	if err == nil || err.Error() != "audio processing timed out" {
		t.Fatalf("error = %v, want timeout", err)
	}
	if _, statErr := os.Stat(out); !errors.Is(statErr, os.ErrNotExist) {
		t.Errorf("partial output left behind")
	}
}

func TestValidateSourceMissing(t *testing.T) {
	err := ValidateSource(filepath.Join(t.TempDir(), "gone.wav"))
	if err == nil || err.Error() != "audio file is unreadable" {
		t.Fatalf("error = %v", err)
	}
}
