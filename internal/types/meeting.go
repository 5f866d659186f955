package types

import "time"

// MeetingStatus is the persisted pipeline state of a meeting.
type MeetingStatus string

// Stable values stored in the record store. Order matters for progress display.
const (
	StatusPending         MeetingStatus = "PENDING"
	StatusProcessingAudio MeetingStatus = "PROCESSING_AUDIO"
	StatusTranscribing    MeetingStatus = "TRANSCRIBING"
	StatusProcessingNLP   MeetingStatus = "PROCESSING_NLP"
	StatusSummarizing     MeetingStatus = "SUMMARIZING"
	StatusCompleted       MeetingStatus = "COMPLETED"
	StatusFailed          MeetingStatus = "FAILED"
)

// DefaultCategory is used when a submission carries no category.
const DefaultCategory = "OTHER"

type Meeting struct {
	ID                   string              `json:"id"`
	OwnerID              string              `json:"ownerId"`
	Title                string              `json:"title"`
	Category             string              `json:"category"`
	Status               MeetingStatus       `json:"status"`
	AudioPath            *string             `json:"audioPath"`
	AudioSizeBytes       int64               `json:"audioSizeBytes"`
	AudioDurationSeconds float64             `json:"audioDurationSeconds"`
	TranscriptText       *string             `json:"transcriptText"`
	TranscriptConfidence *float64            `json:"transcriptConfidence"`
	TranscriptLanguage   string              `json:"transcriptLanguage,omitempty"`
	NLPFeatures          *LinguisticFeatures `json:"nlpFeatures"`
	Summary              *Summary            `json:"summary"`
	ErrorMessage         *string             `json:"errorMessage"`
	RetentionDeadline    *time.Time          `json:"retentionDeadline"`
	AudioDeletedAt       *time.Time          `json:"audioDeletedAt"`
	CreatedAt            time.Time           `json:"createdAt"`
	UpdatedAt            time.Time           `json:"updatedAt"`
}

// NewMeeting carries the fields supplied at creation.
type NewMeeting struct {
	OwnerID  string
	Title    string
	Category string
}

// MeetingUpdate lists the optional fields written together with a status change.
// Nil fields are left untouched.
type MeetingUpdate struct {
	AudioPath            *string
	AudioSizeBytes       *int64
	AudioDurationSeconds *float64
	TranscriptText       *string
	TranscriptConfidence *float64
	TranscriptLanguage   *string
	NLPFeatures          *LinguisticFeatures
	Summary              *Summary
	ErrorMessage         *string
	RetentionDeadline    *time.Time
}

// LinguisticFeatures is the enrichment bag produced by the linguistic stage.
type LinguisticFeatures struct {
	Entities          []string `json:"entities"`
	KeyPhrases        []string `json:"keyPhrases"`
	Topics            []string `json:"topics"`
	Sentiment         string   `json:"sentiment"`
	SentimentPolarity float64  `json:"sentimentPolarity"`
}

type Summary struct {
	ExecutiveSummary string       `json:"executiveSummary"`
	KeyDecisions     []string     `json:"keyDecisions"`
	ActionItems      []ActionItem `json:"actionItems"`
	NextSteps        []string     `json:"nextSteps"`
	KeyTopics        []string     `json:"keyTopics"`
	Sentiment        string       `json:"sentiment"`
}

type ActionItem struct {
	Task     string  `json:"task"`
	Assignee *string `json:"assignee"`
	Deadline *string `json:"deadline"`
	Priority string  `json:"priority"`
}

const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)
