package executor

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Success bool   `json:"success"`
		Text    string `json:"text"`
	}
	tests := []struct {
		name    string
		stdout  string
		want    payload
		wantErr bool
	}{
		{"single document", `{"success": true, "text": "hi"}`, payload{true, "hi"}, false},
		{"progress before json", "loading model\n50%\n{\"success\": true, \"text\": \"ok\"}\n", payload{true, "ok"}, false},
		{"empty", "   ", payload{}, true},
		{"no json", "done\n", payload{}, true},
		{"broken json", "{\"success\": tru", payload{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got payload
			err := DecodeJSON(tt.stdout, &got)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("DecodeJSON() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCommand(t *testing.T) {
	name, args, err := Command([]string{"python3", "scripts/x.py"}, "in.wav", "out.wav")
	if err != nil {
		t.Fatal(err)
	}
	if name != "python3" || strings.Join(args, " ") != "scripts/x.py in.wav out.wav" {
		t.Fatalf("Command() = %s %v", name, args)
	}
	if _, _, err := Command(nil); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestRunMissingBinary(t *testing.T) {
	res, err := New().Run(context.Background(), "definitely-not-a-real-binary-xyz")
	if err == nil {
		t.Fatal("expected error")
	}
	if res.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", res.ExitCode)
	}
}

func TestRunHonorsTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New().Run(ctx, "sleep", "5")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "aborted") {
		t.Errorf("error = %v, want aborted", err)
	}
}
