package transcription

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"meeting-insights-go/internal/executor"
	"meeting-insights-go/internal/types"
)

type fakeRunner struct {
	res executor.Result
	err error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (executor.Result, error) {
	return f.res, f.err
}

func nullLog() *logrus.Entry {
	l, _ := test.NewNullLogger()
	return logrus.NewEntry(l)
}

func floatPtr(v float64) *float64 { return &v }

func sameConfidence(got, want *float64) bool {
	if got == nil || want == nil {
		return got == want
	}
	return *got == *want
}

func TestScriptAdapter(t *testing.T) {
	tests := []struct {
		name     string
		runner   *fakeRunner
		want     string
		wantConf *float64
		wantErr  string
	}{
		{
			name:     "success",
			runner:   &fakeRunner{res: executor.Result{Stdout: `{"success": true, "text": "  hello   team ", "confidence": 87.5, "language": "en"}`}},
			want:     "hello team",
			wantConf: floatPtr(87.5),
		},
		{
			name:     "confidence clamped",
			runner:   &fakeRunner{res: executor.Result{Stdout: `{"success": true, "text": "hello team", "confidence": 140, "language": "en"}`}},
			want:     "hello team",
			wantConf: floatPtr(100),
		},
		{
			name:   "no confidence reported",
			runner: &fakeRunner{res: executor.Result{Stdout: `{"success": true, "text": "hello team", "language": "en"}`}},
			want:   "hello team",
		},
		{
			name:    "empty transcript",
			runner:  &fakeRunner{res: executor.Result{Stdout: `{"success": true, "text": "   "}`}},
			wantErr: "empty transcript",
		},
		{
			name:    "script failure",
			runner:  &fakeRunner{res: executor.Result{Stdout: `{"success": false, "error": "bad header"}`}},
			wantErr: "unsupported audio",
		},
		{
			name:    "crash without output",
			runner:  &fakeRunner{res: executor.Result{ExitCode: 1}, err: errors.New("exit status 1")},
			wantErr: "transcription failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewScriptAdapter([]string{"python3", "transcribe.py"}, tt.runner, time.Minute, nullLog())
			res, err := a.Transcribe(context.Background(), "processed/m1.wav")
			if tt.wantErr != "" {
				var se *types.StageError
				if !errors.As(err, &se) || se.Message != tt.wantErr {
					t.Fatalf("error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Transcribe() error = %v", err)
			}
			if res.Text != tt.want || res.Language != "en" {
				t.Errorf("result = %+v", res)
			}
			if !sameConfidence(res.Confidence, tt.wantConf) {
				t.Errorf("confidence = %v, want %v", res.Confidence, tt.wantConf)
			}
		})
	}
}

func TestHTTPAdapterPublishPollDownload(t *testing.T) {
	var polls int32
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if _, _, err := r.FormFile("audio"); err != nil {
			t.Errorf("missing audio part: %v", err)
		}
		fmt.Fprint(w, `{"Code":200,"Status":"ok","Data":{"MediaId":"m-1","Status":"Queued"}}`)
	})
	mux.HandleFunc("/getstatus", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("mediaId") != "m-1" {
			t.Errorf("mediaId = %q", r.URL.Query().Get("mediaId"))
		}
		if atomic.AddInt32(&polls, 1) < 2 {
			fmt.Fprint(w, `{"Code":200,"Data":{"Status":"Processing"}}`)
			return
		}
		fmt.Fprintf(w, `{"Code":200,"Data":{"Status":"Success","Language":"en","Confidence":91,"TranscriptionTextURL":"%s/text/m-1"}}`, srv.URL)
	})
	mux.HandleFunc("/text/m-1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "we agreed to ship on friday")
	})

	audioPath := filepath.Join(t.TempDir(), "m-1.wav")
	if err := os.WriteFile(audioPath, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := NewHTTPAdapter(srv.URL+"/", 5*time.Millisecond, 10, 5*time.Second, nullLog())
	res, err := a.Transcribe(context.Background(), audioPath)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if res.Text != "we agreed to ship on friday" || !sameConfidence(res.Confidence, floatPtr(91)) || res.Language != "en" {
		t.Errorf("result = %+v", res)
	}
}

func TestHTTPAdapterFailedStatus(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Code":200,"Data":{"MediaId":"m-2","Status":"Queued"}}`)
	})
	mux.HandleFunc("/getstatus", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Code":200,"Reason":"codec","Data":{"Status":"Failed"}}`)
	})

	audioPath := filepath.Join(t.TempDir(), "m-2.wav")
	if err := os.WriteFile(audioPath, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	a := NewHTTPAdapter(srv.URL, time.Millisecond, 5, time.Second, nullLog())
	_, err := a.Transcribe(context.Background(), audioPath)
	if err == nil || err.Error() != "unsupported audio" {
		t.Fatalf("error = %v, want unsupported audio", err)
	}
}

func TestHTTPAdapterEmptyTranscript(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"Code":200,"Data":{"MediaId":"m-3","Status":"Success","TranscriptionURL":"%s/text"}}`, srv.URL)
	})
	mux.HandleFunc("/text", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "  \n ")
	})

	audioPath := filepath.Join(t.TempDir(), "m-3.wav")
	if err := os.WriteFile(audioPath, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	a := NewHTTPAdapter(srv.URL, time.Millisecond, 5, time.Second, nullLog())
	_, err := a.Transcribe(context.Background(), audioPath)
	if err == nil || err.Error() != "empty transcript" {
		t.Fatalf("error = %v, want empty transcript", err)
	}
}
