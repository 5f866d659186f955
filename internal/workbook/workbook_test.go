package workbook

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	"meeting-insights-go/internal/types"
)

func writeManifest(t *testing.T, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(t.TempDir(), "batch.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadManifest(t *testing.T) {
	path := writeManifest(t, [][]interface{}{
		{"Meeting Title", "Owner", "Category", "Audio File"},
		{"Weekly sync", "alice", "standup", "weekly.wav"},
		{"", "", "", "/abs/retro.m4a"},
		{"No file", "bob", "PLANNING", ""},
	})

	rows, err := LoadManifest(path, "", "inbox-owner")
	if err != nil {
		t.Fatalf("LoadManifest() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	first := rows[0]
	if first.Title != "Weekly sync" || first.OwnerID != "alice" || first.Category != "STANDUP" {
		t.Errorf("first = %+v", first)
	}
	if first.File != filepath.Join(filepath.Dir(path), "weekly.wav") || first.Row != 2 {
		t.Errorf("first file = %s row %d", first.File, first.Row)
	}
	second := rows[1]
	if second.OwnerID != "inbox-owner" || second.Title != "retro" || second.Category != types.DefaultCategory || second.File != "/abs/retro.m4a" {
		t.Errorf("second = %+v", second)
	}
}

func TestLoadManifestNeedsFileColumn(t *testing.T) {
	path := writeManifest(t, [][]interface{}{{"Title", "Owner"}, {"x", "y"}})
	if _, err := LoadManifest(path, "", ""); err == nil || !strings.Contains(err.Error(), "no audio file column") {
		t.Fatalf("error = %v", err)
	}
}

func TestExport(t *testing.T) {
	alice := "Alice"
	audio := "/data/recordings/m-1.wav"
	conf := 88.0
	deadline := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	msg := "empty transcript"
	meetings := []types.Meeting{
		{
			ID: "m-1", Title: "Weekly", Category: "STANDUP", Status: types.StatusCompleted,
			AudioPath: &audio, AudioDurationSeconds: 45, TranscriptConfidence: &conf, RetentionDeadline: &deadline,
			Summary: &types.Summary{
				ExecutiveSummary: "Shipped the beta.",
				KeyDecisions:     []string{"Ship Friday", "Freeze scope"},
				ActionItems: []types.ActionItem{
					{Task: "Notes", Assignee: &alice, Priority: types.PriorityHigh},
					{Task: "Demo", Priority: types.PriorityLow},
				},
				KeyTopics: []string{"release"},
				Sentiment: types.SentimentPositive,
			},
		},
		{ID: "m-2", Title: "Broken", Category: "OTHER", Status: types.StatusFailed, ErrorMessage: &msg},
	}

	var buf bytes.Buffer
	if err := Export(&buf, meetings); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if got := f.GetSheetList(); len(got) != 3 || got[0] != SheetMeetings {
		t.Fatalf("sheets = %v", got)
	}
	rows, err := f.GetRows(SheetMeetings)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[1][0] != "m-1" || rows[1][9] != "Ship Friday\nFreeze scope" || rows[2][14] != "empty transcript" {
		t.Errorf("meetings rows = %q", rows)
	}
	actions, _ := f.GetRows(SheetActions)
	if len(actions) != 3 || actions[1][2] != "Notes" || actions[1][3] != "Alice" {
		t.Errorf("action rows = %q", actions)
	}
	stats, _ := f.GetRows(SheetStats)
	found := false
	for _, r := range stats {
		if len(r) == 2 && r[0] == "Failure rate" && r[1] == "0.5" {
			found = true
		}
	}
	if !found {
		t.Errorf("stats rows = %q", stats)
	}
}
