package notify

import (
	"fmt"
	"strings"

	"meeting-insights-go/internal/types"
)

// PreviewChars bounds the executive summary excerpt in a notification.
const PreviewChars = 200

// Preview builds the short text sent with a completion notification: the
// start of the executive summary and the most urgent action item.
func Preview(s *types.Summary) string {
	if s == nil {
		return ""
	}
	text := strings.TrimSpace(s.ExecutiveSummary)
	if r := []rune(text); len(r) > PreviewChars {
		text = strings.TrimSpace(string(r[:PreviewChars])) + "..."
	}

	top, ok := topAction(s.ActionItems)
	if !ok {
		return text
	}
	line := fmt.Sprintf("Top action (%s): %s", top.Priority, top.Task)
	if top.Assignee != nil {
		line += " - " + *top.Assignee
	}
	return text + "\n" + line
}

func topAction(items []types.ActionItem) (types.ActionItem, bool) {
	rank := map[string]int{types.PriorityHigh: 3, types.PriorityMedium: 2, types.PriorityLow: 1}
	best, highest := types.ActionItem{}, 0
	for _, it := range items {
		if rank[it.Priority] > highest {
			highest = rank[it.Priority]
			best = it
		}
	}
	return best, highest > 0
}
