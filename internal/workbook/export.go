package workbook

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"meeting-insights-go/internal/aggregator"
	"meeting-insights-go/internal/types"
)

const (
	SheetMeetings = "Meetings"
	SheetActions  = "Action Items"
	SheetStats    = "Stats"
)

var meetingHeader = []interface{}{
	"ID", "Title", "Category", "Status", "Created", "Duration (s)", "Confidence",
	"Sentiment", "Executive Summary", "Key Decisions", "Next Steps", "Key Topics",
	"Audio", "Retention Deadline", "Error",
}

// Export writes meetings and their aggregate stats as an xlsx workbook.
func Export(w io.Writer, meetings []types.Meeting) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetMeetings); err != nil {
		return err
	}
	for _, name := range []string{SheetActions, SheetStats} {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if err := writeMeetings(f, meetings); err != nil {
		return fmt.Errorf("meetings sheet: %w", err)
	}
	if err := writeActions(f, meetings); err != nil {
		return fmt.Errorf("actions sheet: %w", err)
	}
	if err := writeStats(f, aggregator.Aggregate(meetings)); err != nil {
		return fmt.Errorf("stats sheet: %w", err)
	}
	for _, name := range []string{SheetMeetings, SheetActions, SheetStats} {
		if err := f.SetRowStyle(name, 1, 1, bold); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(SheetMeetings, "I", "I", 60); err != nil {
		return err
	}
	return f.Write(w)
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func writeMeetings(f *excelize.File, meetings []types.Meeting) error {
	if err := setRow(f, SheetMeetings, 1, meetingHeader); err != nil {
		return err
	}
	for i, m := range meetings {
		row := []interface{}{
			m.ID, m.Title, m.Category, string(m.Status), m.CreatedAt.Format(time.RFC3339),
			m.AudioDurationSeconds, floatOrEmpty(m.TranscriptConfidence),
		}
		if s := m.Summary; s != nil {
			row = append(row, s.Sentiment, s.ExecutiveSummary, joinLines(s.KeyDecisions), joinLines(s.NextSteps), strings.Join(s.KeyTopics, ", "))
		} else {
			row = append(row, "", "", "", "", "")
		}
		row = append(row, stringOrEmpty(m.AudioPath), timeOrEmpty(m.RetentionDeadline), stringOrEmpty(m.ErrorMessage))
		if err := setRow(f, SheetMeetings, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeActions(f *excelize.File, meetings []types.Meeting) error {
	if err := setRow(f, SheetActions, 1, []interface{}{"Meeting ID", "Meeting", "Task", "Assignee", "Deadline", "Priority"}); err != nil {
		return err
	}
	row := 2
	for _, m := range meetings {
		if m.Summary == nil {
			continue
		}
		for _, a := range m.Summary.ActionItems {
			if err := setRow(f, SheetActions, row, []interface{}{
				m.ID, m.Title, a.Task, stringOrEmpty(a.Assignee), stringOrEmpty(a.Deadline), a.Priority,
			}); err != nil {
				return err
			}
			row++
		}
	}
	return nil
}

func writeStats(f *excelize.File, s aggregator.Stats) error {
	rows := [][]interface{}{
		{"Metric", "Value"},
		{"Total meetings", s.Total},
		{"Failure rate", s.FailureRate},
		{"Average duration (s)", s.AvgDurationSeconds},
		{"Average confidence", s.AvgConfidence},
		{"Recordings deleted by retention", s.AudioDeleted},
		{"Top topics", strings.Join(s.TopTopics, ", ")},
	}
	for _, st := range types.Statuses() {
		rows = append(rows, []interface{}{"Status " + string(st), s.ByStatus[st]})
	}
	for _, k := range sortedKeys(s.ByCategory) {
		rows = append(rows, []interface{}{"Category " + k, s.ByCategory[k]})
	}
	for _, k := range sortedKeys(s.BySentiment) {
		rows = append(rows, []interface{}{"Sentiment " + k, s.BySentiment[k]})
	}
	for _, p := range []string{types.PriorityHigh, types.PriorityMedium, types.PriorityLow} {
		rows = append(rows, []interface{}{"Actions " + p, s.ActionsByPriority[p]})
	}
	for i, r := range rows {
		if err := setRow(f, SheetStats, i+1, r); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinLines(items []string) string {
	return strings.Join(items, "\n")
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func floatOrEmpty(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func timeOrEmpty(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
