package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Result captures one finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes external commands. Script-backed stage adapters depend on
// this interface so tests can substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

type execRunner struct{}

// New creates a Runner backed by os/exec.
func New() Runner {
	return &execRunner{}
}

// Run executes name with args. The command is killed when ctx is done.
func (e *execRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, fmt.Errorf("command '%s' aborted: %w", name, ctxErr)
		}
		// Include stderr in error message for debugging
		if s := strings.TrimSpace(res.Stderr); s != "" {
			return res, fmt.Errorf("command '%s' failed: %w\nstderr: %s", name, err, lastLines(s, 5))
		}
		return res, fmt.Errorf("command '%s' failed: %w", name, err)
	}
	return res, nil
}

// Command splits a configured command line into the binary and its leading args.
func Command(parts []string, extra ...string) (string, []string, error) {
	if len(parts) == 0 || strings.TrimSpace(parts[0]) == "" {
		return "", nil, errors.New("empty command")
	}
	args := make([]string, 0, len(parts)-1+len(extra))
	args = append(args, parts[1:]...)
	args = append(args, extra...)
	return parts[0], args, nil
}

// DecodeJSON reads the JSON object a script printed on stdout. Scripts may log
// progress lines before it, so the last line that starts with '{' wins when the
// whole output is not a single document.
func DecodeJSON(stdout string, v any) error {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return errors.New("empty output")
	}
	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return nil
	}
	lines := strings.Split(trimmed, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		if err := json.Unmarshal([]byte(line), v); err != nil {
			return fmt.Errorf("decode output: %w", err)
		}
		return nil
	}
	return fmt.Errorf("no JSON object in output")
}

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
