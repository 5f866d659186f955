package summarizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"meeting-insights-go/internal/types"
)

func nullLog() *logrus.Entry {
	l, _ := test.NewNullLogger()
	return logrus.NewEntry(l)
}

type fakeProvider struct {
	name  string
	out   string
	err   error
	mu    sync.Mutex
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Generate(ctx context.Context, req Request) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.out, f.err
}

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

const goodSummary = `{"executiveSummary": "The team agreed to ship the beta on Friday.", "keyDecisions": ["Ship beta Friday"], "actionItems": [{"task": "Prepare release notes", "assignee": "Alice", "deadline": null, "priority": "HIGH"}], "nextSteps": ["Send notes"], "keyTopics": ["release"], "sentiment": "Positive"}`

func TestNormalizeCoercesProse(t *testing.T) {
	raw := "```json\n" + `{
  "executiveSummary": "  The team reviewed the quarterly budget and hiring plan.  ",
  "keyDecisions": "Budget approved. Hiring paused until Q3.",
  "actionItems": [
    {"task": "Update forecast", "assignee": "n/a", "deadline": "TBD", "priority": "urgent"},
    {"task": "  ", "assignee": "Bob"},
    "Book the offsite"
  ],
  "nextSteps": "- Share the forecast\n- Schedule follow-up\n",
  "sentiment": "mixed"
}` + "\n```"

	got, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got.ExecutiveSummary != "The team reviewed the quarterly budget and hiring plan." {
		t.Errorf("ExecutiveSummary = %q", got.ExecutiveSummary)
	}
	if want := []string{"Budget approved.", "Hiring paused until Q3."}; !reflect.DeepEqual(got.KeyDecisions, want) {
		t.Errorf("KeyDecisions = %#v, want %#v", got.KeyDecisions, want)
	}
	if want := []string{"Share the forecast", "Schedule follow-up"}; !reflect.DeepEqual(got.NextSteps, want) {
		t.Errorf("NextSteps = %#v, want %#v", got.NextSteps, want)
	}
	if got.KeyTopics == nil || len(got.KeyTopics) != 0 {
		t.Errorf("KeyTopics = %#v, want empty array", got.KeyTopics)
	}
	if len(got.ActionItems) != 2 {
		t.Fatalf("ActionItems = %+v", got.ActionItems)
	}
	first := got.ActionItems[0]
	if first.Assignee != nil || first.Deadline != nil || first.Priority != "high" {
		t.Errorf("first action item = %+v", first)
	}
	if got.ActionItems[1].Task != "Book the offsite" || got.ActionItems[1].Priority != "medium" {
		t.Errorf("second action item = %+v", got.ActionItems[1])
	}
	if got.Sentiment != "neutral" {
		t.Errorf("Sentiment = %q", got.Sentiment)
	}
}

func TestNormalizeDropsPlaceholderItems(t *testing.T) {
	raw := `{
  "executiveSummary": "Quick status check with no outcomes recorded.",
  "keyDecisions": ["None"],
  "nextSteps": ["N/A", "- Follow up with legal", {"text": "tbd"}, {"step": "Send recap"}],
  "keyTopics": "none"
}`
	got, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got.KeyDecisions == nil || len(got.KeyDecisions) != 0 {
		t.Errorf("KeyDecisions = %#v, want empty array", got.KeyDecisions)
	}
	if want := []string{"Follow up with legal", "Send recap"}; !reflect.DeepEqual(got.NextSteps, want) {
		t.Errorf("NextSteps = %#v, want %#v", got.NextSteps, want)
	}
	if len(got.KeyTopics) != 0 {
		t.Errorf("KeyTopics = %#v, want empty", got.KeyTopics)
	}
}

func TestNormalizeRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no json", "I could not summarize this meeting."},
		{"short summary", `{"executiveSummary": "Short."}`},
		{"missing summary", `{"keyDecisions": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Normalize(tt.raw); err == nil {
				t.Fatal("Normalize() error = nil")
			}
		})
	}
}

func TestNormalizeUnwrapsSummaryEnvelope(t *testing.T) {
	got, err := Normalize(`{"success": true, "summary": ` + goodSummary + `}`)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got.Sentiment != "positive" || got.ActionItems[0].Priority != "high" || *got.ActionItems[0].Assignee != "Alice" {
		t.Errorf("summary = %+v", got)
	}
}

func TestRouterFallback(t *testing.T) {
	tests := []struct {
		name            string
		fallback        bool
		primaryErr      error
		primaryOut      string
		secondaryErr    error
		wantErr         bool
		wantSecondCalls int
	}{
		{name: "primary succeeds", fallback: true, primaryOut: goodSummary},
		{name: "primary fails, fallback succeeds", fallback: true, primaryErr: errors.New("boom"), wantSecondCalls: 1},
		{name: "primary fails, fallback disabled", fallback: false, primaryErr: errors.New("boom"), wantErr: true},
		{name: "both fail", fallback: true, primaryErr: errors.New("boom"), secondaryErr: errors.New("down"), wantErr: true, wantSecondCalls: 1},
		{name: "primary returns prose", fallback: true, primaryOut: "Sorry, no JSON.", wantSecondCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &fakeProvider{name: ProviderGeneric, out: tt.primaryOut, err: tt.primaryErr}
			secondary := &fakeProvider{name: ProviderSpecialized, out: goodSummary, err: tt.secondaryErr}
			r, err := NewRouter(primary, secondary, ProviderGeneric, tt.fallback, nullLog())
			if err != nil {
				t.Fatal(err)
			}
			got, err := r.Summarize(context.Background(), Request{Transcript: "hello"})
			if tt.wantErr {
				var se *types.StageError
				if !errors.As(err, &se) || se.Stage != types.StageSummarization {
					t.Fatalf("error = %v, want summarization StageError", err)
				}
				if strings.Contains(se.Message, ProviderGeneric) || strings.Contains(se.Message, ProviderSpecialized) {
					t.Errorf("user message leaks provider name: %q", se.Message)
				}
			} else if err != nil || got == nil {
				t.Fatalf("Summarize() = %v, %v", got, err)
			}
			if primary.Calls() != 1 {
				t.Errorf("primary calls = %d, want 1", primary.Calls())
			}
			if secondary.Calls() != tt.wantSecondCalls {
				t.Errorf("fallback calls = %d, want %d", secondary.Calls(), tt.wantSecondCalls)
			}
		})
	}
}

func TestRouterSwitch(t *testing.T) {
	generic := &fakeProvider{name: ProviderGeneric, out: goodSummary}
	specialized := &fakeProvider{name: ProviderSpecialized, out: goodSummary}
	r, err := NewRouter(generic, specialized, ProviderGeneric, false, nullLog())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Switch("bogus"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("Switch(bogus) = %v", err)
	}
	if err := r.Switch(ProviderSpecialized); err != nil {
		t.Fatal(err)
	}
	r.SetFallback(true)
	if cur, fb := r.Current(); cur != ProviderSpecialized || !fb {
		t.Errorf("Current() = %s, %v", cur, fb)
	}
	if _, err := r.Summarize(context.Background(), Request{Transcript: "hi"}); err != nil {
		t.Fatal(err)
	}
	if generic.Calls() != 0 || specialized.Calls() != 1 {
		t.Errorf("calls generic=%d specialized=%d", generic.Calls(), specialized.Calls())
	}
}

// blockingProvider signals entered, then waits for release before failing.
type blockingProvider struct {
	fakeProvider
	entered chan struct{}
	release chan struct{}
}

func (b *blockingProvider) Generate(ctx context.Context, req Request) (string, error) {
	b.fakeProvider.Generate(ctx, req)
	close(b.entered)
	<-b.release
	return "", errors.New("upstream reset")
}

func TestRouterSwitchDoesNotAffectCallInFlight(t *testing.T) {
	generic := &blockingProvider{
		fakeProvider: fakeProvider{name: ProviderGeneric},
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	specialized := &fakeProvider{name: ProviderSpecialized, out: goodSummary}
	r, err := NewRouter(generic, specialized, ProviderGeneric, true, nullLog())
	if err != nil {
		t.Fatal(err)
	}

	type result struct {
		summary *types.Summary
		err     error
	}
	done := make(chan result, 1)
	go func() {
		s, err := r.Summarize(context.Background(), Request{Transcript: "hello"})
		done <- result{s, err}
	}()

	<-generic.entered
	if err := r.Switch(ProviderSpecialized); err != nil {
		t.Fatal(err)
	}
	r.SetFallback(false)
	close(generic.release)

	res := <-done
	// the call started with fallback on, so the alternate provider still runs
	if res.err != nil || res.summary == nil {
		t.Fatalf("in-flight Summarize() = %v, %v", res.summary, res.err)
	}
	if specialized.Calls() != 1 {
		t.Fatalf("fallback calls = %d, want 1", specialized.Calls())
	}

	if _, err := r.Summarize(context.Background(), Request{Transcript: "again"}); err != nil {
		t.Fatal(err)
	}
	if generic.Calls() != 1 || specialized.Calls() != 2 {
		t.Errorf("calls after switch generic=%d specialized=%d, want 1 and 2", generic.Calls(), specialized.Calls())
	}
}

func TestNewRouterUnknownProvider(t *testing.T) {
	_, err := NewRouter(&fakeProvider{name: ProviderGeneric}, &fakeProvider{name: ProviderSpecialized}, "openai", false, nullLog())
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("error = %v", err)
	}
}

func TestGatewayProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		content := strings.ReplaceAll(goodSummary, `"`, `\"`)
		fmt.Fprintf(w, `{"choices": [{"message": {"role": "assistant", "content": "%s"}}]}`, content)
	}))
	defer srv.Close()

	p := NewGatewayProvider(srv.URL, "secret", "mixtral-8x7b-32768", 5*time.Second, nullLog())
	raw, err := p.Generate(context.Background(), Request{Transcript: "hello", Title: "Sync"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if _, err := Normalize(raw); err != nil {
		t.Fatalf("Normalize(gateway output) error = %v", err)
	}

	bad := NewGatewayProvider(srv.URL, "wrong", "m", 5*time.Second, nullLog())
	_, err = bad.Generate(context.Background(), Request{Transcript: "hello"})
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Kind != KindAuth {
		t.Fatalf("error = %v, want auth ProviderError", err)
	}
}

func TestGatewayProviderRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": "slow down"}`)
	}))
	defer srv.Close()

	p := NewGatewayProvider(srv.URL, "k", "m", 5*time.Second, nullLog())
	_, err := p.Generate(context.Background(), Request{Transcript: "hello"})
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Kind != KindRateLimited {
		t.Fatalf("error = %v, want rate_limited", err)
	}
}

func TestBuildPrompt(t *testing.T) {
	long := strings.Repeat("a", MaxTranscriptChars+500)
	p := BuildPrompt(Request{
		Transcript:      long,
		Title:           "Weekly sync",
		DurationSeconds: 90,
		Features:        &types.LinguisticFeatures{Entities: []string{"Alice (PERSON)"}, Sentiment: "positive", SentimentPolarity: 0.4},
	})
	for _, want := range []string{"Meeting Title: Weekly sync", "Category: OTHER", "Duration: 1.5 minutes", "Alice (PERSON)"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(p, strings.Repeat("a", MaxTranscriptChars+1)) {
		t.Error("transcript not truncated")
	}
}

func TestGeminiProviderWithoutKey(t *testing.T) {
	p := NewGeminiProvider("", "gemini-2.5-flash", time.Second, nullLog())
	_, err := p.Generate(context.Background(), Request{Transcript: "hello"})
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Kind != KindAuth || pe.Provider != ProviderGeneric {
		t.Fatalf("error = %v", err)
	}
}
