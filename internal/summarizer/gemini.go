package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

// GeminiProvider is the fast generic provider backed by the Gemini API.
type GeminiProvider struct {
	apiKey  string
	model   string
	timeout time.Duration
	log     *logrus.Entry
}

func NewGeminiProvider(apiKey, model string, timeout time.Duration, log *logrus.Entry) *GeminiProvider {
	return &GeminiProvider{
		apiKey:  apiKey,
		model:   model,
		timeout: timeout,
		log:     log.WithField("component", "summarizer-gemini"),
	}
}

func (p *GeminiProvider) Name() string { return ProviderGeneric }

func (p *GeminiProvider) Generate(ctx context.Context, req Request) (string, error) {
	if p.apiKey == "" {
		return "", providerError(p.Name(), KindAuth, errors.New("GEMINI_API_KEY not configured"))
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", providerError(p.Name(), KindUnavailable, fmt.Errorf("create client: %w", err))
	}

	temperature := float32(0.3)
	cfg := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
	}

	start := time.Now()
	result, err := client.Models.GenerateContent(ctx, p.model, genai.Text(BuildPrompt(req)), cfg)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", providerError(p.Name(), KindTimeout, err)
		}
		return "", providerError(p.Name(), kindForMessage(err.Error()), fmt.Errorf("generate content: %w", err))
	}

	var text strings.Builder
	if result != nil && len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
		for _, part := range result.Candidates[0].Content.Parts {
			if part.Text != "" {
				text.WriteString(part.Text)
			}
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", providerError(p.Name(), KindInvalidResponse, errors.New("empty response from Gemini"))
	}

	p.log.WithFields(logrus.Fields{
		"model":      p.model,
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Debug("gemini summary generated")
	return text.String(), nil
}
