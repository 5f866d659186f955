package aggregator

import (
	"sort"

	"meeting-insights-go/internal/types"
)

// TopTopicsN bounds Stats.TopTopics.
const TopTopicsN = 5

// Stats summarizes a set of meetings for the export workbook.
type Stats struct {
	Total              int                         `json:"total"`
	ByStatus           map[types.MeetingStatus]int `json:"by_status"`
	ByCategory         map[string]int              `json:"by_category"`
	BySentiment        map[string]int              `json:"by_sentiment"`
	ActionsByPriority  map[string]int              `json:"actions_by_priority"`
	FailureRate        float64                     `json:"failure_rate"`
	AvgDurationSeconds float64                     `json:"avg_duration_seconds"`
	AvgConfidence      float64                     `json:"avg_confidence"`
	AudioDeleted       int                         `json:"audio_deleted"`
	TopTopics          []string                    `json:"top_topics"`
}

func Aggregate(meetings []types.Meeting) Stats {
	s := Stats{
		Total:             len(meetings),
		ByStatus:          map[types.MeetingStatus]int{},
		ByCategory:        map[string]int{},
		BySentiment:       map[string]int{},
		ActionsByPriority: map[string]int{},
		TopTopics:         []string{},
	}
	topics := map[string]int{}
	var durTotal, confTotal float64
	var durN, confN, terminal int
	for _, m := range meetings {
		s.ByStatus[m.Status]++
		if m.Category != "" {
			s.ByCategory[m.Category]++
		}
		if m.Status.IsTerminal() {
			terminal++
		}
		if m.AudioDurationSeconds > 0 {
			durTotal += m.AudioDurationSeconds
			durN++
		}
		if m.TranscriptConfidence != nil {
			confTotal += *m.TranscriptConfidence
			confN++
		}
		if m.AudioDeletedAt != nil {
			s.AudioDeleted++
		}
		if m.Summary == nil {
			continue
		}
		s.BySentiment[m.Summary.Sentiment]++
		for _, a := range m.Summary.ActionItems {
			s.ActionsByPriority[a.Priority]++
		}
		for _, t := range m.Summary.KeyTopics {
			topics[t]++
		}
	}
	if terminal > 0 {
		s.FailureRate = float64(s.ByStatus[types.StatusFailed]) / float64(terminal)
	}
	if durN > 0 {
		s.AvgDurationSeconds = durTotal / float64(durN)
	}
	if confN > 0 {
		s.AvgConfidence = confTotal / float64(confN)
	}

	type tc struct {
		t string
		c int
	}
	var arr []tc
	for k, v := range topics {
		arr = append(arr, tc{k, v})
	}
	sort.Slice(arr, func(i, j int) bool {
		if arr[i].c != arr[j].c {
			return arr[i].c > arr[j].c
		}
		return arr[i].t < arr[j].t
	})
	for i := 0; i < len(arr) && i < TopTopicsN; i++ {
		s.TopTopics = append(s.TopTopics, arr[i].t)
	}
	return s
}
