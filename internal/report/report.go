package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/docx"
	"meeting-insights-go/internal/types"
)

const (
	fontName = "Calibri"
	fontSize = 11
)

// WriteDocx renders one meeting's summary, action items and transcript as a
// Word document at outputPath.
func WriteDocx(m types.Meeting, outputPath string) error {
	if m.Status != types.StatusCompleted || m.Summary == nil {
		return fmt.Errorf("meeting %s has no summary (status %s)", m.ID, m.Status)
	}
	doc, err := godocx.NewDocument()
	if err != nil {
		return err
	}
	s := m.Summary

	addRun(doc.AddParagraph(""), m.Title, true, 18)
	meta := fmt.Sprintf("%s | %s | %s", m.Category, m.CreatedAt.Format("2006-01-02 15:04"), formatDuration(m.AudioDurationSeconds))
	addRun(doc.AddParagraph(""), meta, false, 9)

	heading(doc, "Executive Summary")
	addRun(doc.AddParagraph(""), s.ExecutiveSummary, false, fontSize)

	bullets(doc, "Key Decisions", s.KeyDecisions)

	if len(s.ActionItems) > 0 {
		heading(doc, "Action Items")
		for _, a := range s.ActionItems {
			p := doc.AddParagraph("")
			addRun(p, fmt.Sprintf("[%s] ", strings.ToUpper(a.Priority)), true, fontSize)
			addRun(p, a.Task, false, fontSize)
			var extra []string
			if a.Assignee != nil {
				extra = append(extra, "owner: "+*a.Assignee)
			}
			if a.Deadline != nil {
				extra = append(extra, "due: "+*a.Deadline)
			}
			if len(extra) > 0 {
				addRun(p, " ("+strings.Join(extra, ", ")+")", false, fontSize)
			}
		}
	}

	bullets(doc, "Next Steps", s.NextSteps)
	if len(s.KeyTopics) > 0 {
		heading(doc, "Key Topics")
		addRun(doc.AddParagraph(""), strings.Join(s.KeyTopics, ", "), false, fontSize)
	}
	heading(doc, "Sentiment")
	addRun(doc.AddParagraph(""), s.Sentiment, false, fontSize)

	if m.TranscriptText != nil {
		heading(doc, "Transcript")
		for _, para := range paragraphs(*m.TranscriptText) {
			addRun(doc.AddParagraph(""), para, false, 10)
		}
	}
	return doc.SaveTo(outputPath)
}

func heading(doc *docx.RootDoc, text string) {
	doc.AddParagraph("")
	addRun(doc.AddParagraph(""), text, true, 14)
}

func bullets(doc *docx.RootDoc, title string, items []string) {
	if len(items) == 0 {
		return
	}
	heading(doc, title)
	for _, it := range items {
		addRun(doc.AddParagraph(""), "• "+it, false, fontSize)
	}
}

func addRun(p *docx.Paragraph, text string, bold bool, size uint64) {
	run := p.AddText(text).Font(fontName).Size(size).Color("000000")
	if bold {
		run.Bold(true)
	}
}

// paragraphs splits a transcript into chunks of a few sentences so the
// document does not carry one giant paragraph.
func paragraphs(text string) []string {
	const perParagraph = 5
	var out []string
	var cur []string
	for _, sentence := range strings.SplitAfter(text, ". ") {
		if strings.TrimSpace(sentence) == "" {
			continue
		}
		cur = append(cur, strings.TrimSpace(sentence))
		if len(cur) == perParagraph {
			out = append(out, strings.Join(cur, " "))
			cur = nil
		}
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, " "))
	}
	return out
}

func formatDuration(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	return d.String()
}
