package report

import (
	"archive/zip"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"meeting-insights-go/internal/types"
)

func readDocumentXML(t *testing.T, path string) string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open docx: %v", err)
	}
	defer zr.Close()
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatal(err)
		}
		return string(data)
	}
	t.Fatal("word/document.xml not found")
	return ""
}

func TestWriteDocx(t *testing.T) {
	bob := "Bob"
	transcript := "We met. We shipped. We celebrated."
	m := types.Meeting{
		ID:                   "m-1",
		Title:                "Launch review",
		Category:             "PLANNING",
		Status:               types.StatusCompleted,
		AudioDurationSeconds: 95,
		TranscriptText:       &transcript,
		Summary: &types.Summary{
			ExecutiveSummary: "The launch went well and follow-ups were assigned.",
			KeyDecisions:     []string{"Keep the launch date"},
			ActionItems:      []types.ActionItem{{Task: "Write postmortem", Assignee: &bob, Priority: types.PriorityHigh}},
			NextSteps:        []string{},
			KeyTopics:        []string{"launch"},
			Sentiment:        types.SentimentPositive,
		},
	}
	out := filepath.Join(t.TempDir(), "m-1.docx")
	if err := WriteDocx(m, out); err != nil {
		t.Fatalf("WriteDocx() error = %v", err)
	}
	xml := readDocumentXML(t, out)
	for _, want := range []string{"Launch review", "Keep the launch date", "Write postmortem", "owner: Bob", "We celebrated."} {
		if !strings.Contains(xml, want) {
			t.Errorf("document missing %q", want)
		}
	}
	if strings.Contains(xml, "Next Steps") {
		t.Error("empty section rendered")
	}
}

func TestWriteDocxNeedsSummary(t *testing.T) {
	m := types.Meeting{ID: "m-2", Status: types.StatusFailed}
	if err := WriteDocx(m, filepath.Join(t.TempDir(), "x.docx")); err == nil {
		t.Fatal("expected error for meeting without summary")
	}
}

func TestParagraphs(t *testing.T) {
	text := strings.Repeat("One sentence here. ", 12)
	got := paragraphs(text)
	if len(got) != 3 {
		t.Fatalf("paragraphs = %d, want 3", len(got))
	}
}
