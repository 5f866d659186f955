package summarizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"meeting-insights-go/internal/types"
)

// MinExecutiveSummaryChars is the shortest executive summary accepted.
const MinExecutiveSummaryChars = 20

var bulletPrefix = regexp.MustCompile(`^\s*(?:[-*•]+\s*|\d+[.)]\s+)`)

var emptyMarkers = map[string]bool{
	"":     true,
	"null": true,
	"none": true,
	"n/a":  true,
	"na":   true,
	"tbd":  true,
	"-":    true,
}

// Normalize turns a provider's raw output into the canonical summary schema.
// Array fields are always arrays, whatever shape the model produced.
func Normalize(raw string) (*types.Summary, error) {
	doc := extractJSON(raw)
	if doc == "" {
		return nil, errors.New("no JSON object in model output")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(doc), &obj); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	// Some prompts make the model wrap the result in {"summary": {...}}.
	if inner, ok := obj["summary"].(map[string]any); ok {
		if _, has := obj["executiveSummary"]; !has {
			obj = inner
		}
	}

	exec, _ := obj["executiveSummary"].(string)
	exec = strings.TrimSpace(exec)
	if len([]rune(exec)) < MinExecutiveSummaryChars {
		return nil, fmt.Errorf("executive summary too short (%d chars)", len([]rune(exec)))
	}

	return &types.Summary{
		ExecutiveSummary: exec,
		KeyDecisions:     stringList(obj["keyDecisions"]),
		ActionItems:      actionItems(obj["actionItems"]),
		NextSteps:        stringList(obj["nextSteps"]),
		KeyTopics:        stringList(obj["keyTopics"]),
		Sentiment:        sentiment(obj["sentiment"]),
	}, nil
}

func stringList(v any) []string {
	out := []string{}
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			switch s := item.(type) {
			case string:
				if s, ok := listItem(s); ok {
					out = append(out, s)
				}
			case map[string]any:
				// {"text": "..."} or {"decision": "..."} style items
				for _, k := range []string{"text", "decision", "step", "topic", "title", "description"} {
					if str, ok := s[k].(string); ok {
						if str, ok := listItem(str); ok {
							out = append(out, str)
							break
						}
					}
				}
			}
		}
	case string:
		out = append(out, splitProse(t)...)
	}
	return out
}

// splitProse splits free text into items: one per line when the text has
// several lines, one per sentence otherwise.
func splitProse(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	var parts []string
	if strings.Contains(strings.TrimSpace(s), "\n") {
		parts = strings.Split(s, "\n")
	} else {
		parts = splitSentences(s)
	}
	out := []string{}
	for _, p := range parts {
		if p, ok := listItem(p); ok {
			out = append(out, p)
		}
	}
	return out
}

// listItem strips bullets and numbering. Blank items and placeholders such
// as "None" are rejected.
func listItem(s string) (string, bool) {
	s = strings.TrimSpace(bulletPrefix.ReplaceAllString(s, ""))
	if emptyMarkers[strings.ToLower(s)] {
		return "", false
	}
	return s, true
}

func splitSentences(s string) []string {
	var parts []string
	start := 0
	r := []rune(s)
	for i := 0; i < len(r); i++ {
		switch r[i] {
		case ';':
			parts = append(parts, string(r[start:i]))
			start = i + 1
		case '.', '!', '?':
			if i+1 == len(r) || r[i+1] == ' ' {
				parts = append(parts, string(r[start:i+1]))
				start = i + 1
			}
		}
	}
	if start < len(r) {
		parts = append(parts, string(r[start:]))
	}
	return parts
}

func actionItems(v any) []types.ActionItem {
	out := []types.ActionItem{}
	var list []any
	switch t := v.(type) {
	case []any:
		list = t
	case map[string]any:
		list = []any{t}
	case string:
		for _, s := range splitProse(t) {
			list = append(list, s)
		}
	}
	for _, item := range list {
		switch it := item.(type) {
		case string:
			if task := strings.TrimSpace(bulletPrefix.ReplaceAllString(it, "")); task != "" {
				out = append(out, types.ActionItem{Task: task, Priority: types.PriorityMedium})
			}
		case map[string]any:
			task, _ := it["task"].(string)
			if task = strings.TrimSpace(task); task == "" {
				continue
			}
			out = append(out, types.ActionItem{
				Task:     task,
				Assignee: optional(it["assignee"]),
				Deadline: optional(it["deadline"]),
				Priority: priority(it["priority"]),
			})
		}
	}
	return out
}

func optional(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if emptyMarkers[strings.ToLower(s)] {
		return nil
	}
	return &s
}

func priority(v any) string {
	s, _ := v.(string)
	switch strings.ToLower(strings.TrimSpace(s)) {
	case types.PriorityHigh, "urgent", "critical":
		return types.PriorityHigh
	case types.PriorityLow:
		return types.PriorityLow
	default:
		return types.PriorityMedium
	}
}

func sentiment(v any) string {
	s, _ := v.(string)
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case types.SentimentPositive, types.SentimentNegative, types.SentimentNeutral:
		return s
	default:
		return types.SentimentNeutral
	}
}

// extractJSON finds the first balanced JSON object in a string and returns it.
// It strips common markdown fences first.
func extractJSON(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	for _, r := range []string{"```json", "```", "`json"} {
		s = strings.ReplaceAll(s, r, "")
	}

	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start : i+1])
			}
		}
	}
	return ""
}
