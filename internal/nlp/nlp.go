package nlp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"meeting-insights-go/internal/executor"
	"meeting-insights-go/internal/types"
)

// Polarity above PositiveThreshold is positive, below NegativeThreshold negative.
const (
	PositiveThreshold = 0.1
	NegativeThreshold = -0.1
)

// Adapter extracts linguistic features from a transcript.
type Adapter interface {
	Analyze(ctx context.Context, text string) (types.LinguisticFeatures, error)
}

type entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

type scriptOutput struct {
	Success    bool     `json:"success"`
	Error      string   `json:"error"`
	Entities   []entity `json:"entities"`
	KeyPhrases []struct {
		Phrase string `json:"phrase"`
	} `json:"key_phrases"`
	Topics []struct {
		Term string `json:"term"`
	} `json:"topics"`
	Sentiment struct {
		Polarity     float64 `json:"polarity"`
		Subjectivity float64 `json:"subjectivity"`
	} `json:"sentiment"`
}

// ScriptAdapter runs the spaCy/TextBlob analysis script. The transcript is
// passed as a single argument.
type ScriptAdapter struct {
	command []string
	runner  executor.Runner
	timeout time.Duration
	log     *logrus.Entry
}

func NewScriptAdapter(command []string, runner executor.Runner, timeout time.Duration, log *logrus.Entry) *ScriptAdapter {
	return &ScriptAdapter{
		command: command,
		runner:  runner,
		timeout: timeout,
		log:     log.WithField("component", "nlp"),
	}
}

func (a *ScriptAdapter) Analyze(ctx context.Context, text string) (types.LinguisticFeatures, error) {
	if strings.TrimSpace(text) == "" {
		return types.LinguisticFeatures{}, types.NewStageError(types.StageLinguistic, "no text to analyze", nil)
	}
	name, args, err := executor.Command(a.command, text)
	if err != nil {
		return types.LinguisticFeatures{}, types.NewStageError(types.StageLinguistic, "linguistic analyzer is not configured", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	res, runErr := a.runner.Run(ctx, name, args...)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return types.LinguisticFeatures{}, types.NewStageError(types.StageLinguistic, "linguistic analysis timed out", runErr)
	}

	var out scriptOutput
	if err := executor.DecodeJSON(res.Stdout, &out); err != nil {
		if runErr != nil {
			err = runErr
		}
		return types.LinguisticFeatures{}, types.NewStageError(types.StageLinguistic, "linguistic analysis failed", err)
	}
	if !out.Success {
		return types.LinguisticFeatures{}, types.NewStageError(types.StageLinguistic, "linguistic analysis failed", errors.New(out.Error))
	}

	features := toFeatures(out)
	a.log.WithFields(logrus.Fields{
		"entities":  len(features.Entities),
		"topics":    len(features.Topics),
		"sentiment": features.Sentiment,
	}).Info("linguistic analysis completed")
	return features, nil
}

func toFeatures(out scriptOutput) types.LinguisticFeatures {
	f := types.LinguisticFeatures{
		Entities:          []string{},
		KeyPhrases:        []string{},
		Topics:            []string{},
		SentimentPolarity: out.Sentiment.Polarity,
		Sentiment:         SentimentLabel(out.Sentiment.Polarity),
	}
	seen := map[string]bool{}
	for _, e := range out.Entities {
		if strings.TrimSpace(e.Text) == "" {
			continue
		}
		s := FormatEntity(e.Text, e.Label)
		if seen[s] {
			continue
		}
		seen[s] = true
		f.Entities = append(f.Entities, s)
	}
	for _, p := range out.KeyPhrases {
		if s := strings.TrimSpace(p.Phrase); s != "" {
			f.KeyPhrases = append(f.KeyPhrases, s)
		}
	}
	for _, t := range out.Topics {
		if s := strings.TrimSpace(t.Term); s != "" {
			f.Topics = append(f.Topics, s)
		}
	}
	return f
}

// FormatEntity renders an entity as "Name (LABEL)".
func FormatEntity(text, label string) string {
	text = strings.TrimSpace(text)
	label = strings.ToUpper(strings.TrimSpace(label))
	if label == "" {
		return text
	}
	return fmt.Sprintf("%s (%s)", text, label)
}

// SentimentLabel maps a polarity score onto positive, neutral or negative.
func SentimentLabel(polarity float64) string {
	switch {
	case polarity > PositiveThreshold:
		return types.SentimentPositive
	case polarity < NegativeThreshold:
		return types.SentimentNegative
	default:
		return types.SentimentNeutral
	}
}
