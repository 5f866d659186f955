package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestCanTransitionHappyPath(t *testing.T) {
	path := []MeetingStatus{
		StatusPending,
		StatusProcessingAudio,
		StatusTranscribing,
		StatusProcessingNLP,
		StatusSummarizing,
		StatusCompleted,
	}
	for i := 0; i < len(path)-1; i++ {
		if !CanTransition(path[i], path[i+1]) {
			t.Fatalf("CanTransition(%s, %s) = false, want true", path[i], path[i+1])
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from MeetingStatus
		to   MeetingStatus
		want bool
	}{
		{StatusPending, StatusFailed, true},
		{StatusTranscribing, StatusFailed, true},
		{StatusSummarizing, StatusFailed, true},
		{StatusPending, StatusTranscribing, false},
		{StatusTranscribing, StatusProcessingAudio, false},
		{StatusProcessingNLP, StatusCompleted, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusPending, false},
		{StatusFailed, StatusFailed, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckTransitionWrapsSentinel(t *testing.T) {
	err := CheckTransition(StatusCompleted, StatusSummarizing)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("error = %v, want ErrInvalidTransition", err)
	}
}

func TestStatusOrder(t *testing.T) {
	all := Statuses()
	want := []string{"PENDING", "PROCESSING_AUDIO", "TRANSCRIBING", "PROCESSING_NLP", "SUMMARIZING", "COMPLETED", "FAILED"}
	if len(all) != len(want) {
		t.Fatalf("len = %d, want %d", len(all), len(want))
	}
	for i, s := range all {
		if string(s) != want[i] {
			t.Errorf("status[%d] = %s, want %s", i, s, want[i])
		}
		if s.Step() != i {
			t.Errorf("%s.Step() = %d, want %d", s, s.Step(), i)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if _, err := ParseStatus("SUMMARIZING"); err != nil {
		t.Fatalf("ParseStatus: %v", err)
	}
	if _, err := ParseStatus("done"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestStageErrorMessageHidesCause(t *testing.T) {
	cause := errors.New("exit status 2: Traceback ...")
	err := NewStageError(StageTranscription, "empty transcript", cause)
	if err.Error() != "empty transcript" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected Unwrap to expose cause")
	}

	generic := AsStageError(StageAudio, cause)
	if generic.Error() != "audio failed" {
		t.Fatalf("generic message = %q", generic.Error())
	}
	if StageLinguistic.Fatal() {
		t.Fatal("linguistic stage must be non-fatal")
	}
}
