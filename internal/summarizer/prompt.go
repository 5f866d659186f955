package summarizer

import (
	"fmt"
	"math"
	"strings"
)

// MaxTranscriptChars bounds the transcript sent to a model.
const MaxTranscriptChars = 4000

const systemPrompt = `You are an expert meeting summarizer. Analyze the transcript and generate a structured summary in JSON format.

Your response MUST be valid JSON with this exact structure:
{
    "executiveSummary": "A concise 2-3 sentence summary of the main points",
    "keyDecisions": ["Decision 1", "Decision 2"],
    "actionItems": [
        {
            "task": "Specific task description",
            "assignee": "Person name or role (or null if not mentioned)",
            "deadline": "When it's due (or null if not mentioned)",
            "priority": "high" | "medium" | "low"
        }
    ],
    "nextSteps": ["Step 1", "Step 2"],
    "keyTopics": ["Topic1", "Topic2", "Topic3"],
    "sentiment": "positive" | "negative" | "neutral"
}

Guidelines:
- executiveSummary: 2-3 sentences max, capture the essence
- keyDecisions: important decisions, agreements, or conclusions
- actionItems: concrete tasks with priority (high for urgent, medium for moderate, low for nice-to-have)
- nextSteps: what needs to happen after this meeting
- keyTopics: 3-5 main topics discussed (single words or short phrases)
- sentiment: overall tone of the meeting

Return ONLY the JSON object, no additional text.`

// BuildPrompt renders the user prompt for one meeting.
func BuildPrompt(req Request) string {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Meeting"
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = "OTHER"
	}
	minutes := math.Round(req.DurationSeconds/60*10) / 10

	var b strings.Builder
	fmt.Fprintf(&b, "Meeting Title: %s\nCategory: %s\nDuration: %.1f minutes\n\n", title, category, minutes)

	if f := req.Features; f != nil {
		b.WriteString("Linguistic context:\n")
		if len(f.Entities) > 0 {
			fmt.Fprintf(&b, "- Entities: %s\n", strings.Join(f.Entities, ", "))
		}
		if len(f.KeyPhrases) > 0 {
			fmt.Fprintf(&b, "- Key phrases: %s\n", strings.Join(f.KeyPhrases, ", "))
		}
		if len(f.Topics) > 0 {
			fmt.Fprintf(&b, "- Topics: %s\n", strings.Join(f.Topics, ", "))
		}
		if f.Sentiment != "" {
			fmt.Fprintf(&b, "- Sentiment: %s (%.2f)\n", f.Sentiment, f.SentimentPolarity)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Transcript:\n%s\n\nGenerate the summary in the required JSON format.", truncate(req.Transcript, MaxTranscriptChars))
	return b.String()
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
