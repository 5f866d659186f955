package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// GatewayProvider is the specialized provider: an OpenAI-compatible chat
// completions endpoint (Groq by default) asked for JSON output.
type GatewayProvider struct {
	url     string
	apiKey  string
	model   string
	client  *http.Client
	timeout time.Duration
	log     *logrus.Entry
}

func NewGatewayProvider(url, apiKey, model string, timeout time.Duration, log *logrus.Entry) *GatewayProvider {
	return &GatewayProvider{
		url:     url,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		log:     log.WithField("component", "summarizer-gateway"),
	}
}

func (p *GatewayProvider) Name() string { return ProviderSpecialized }

func (p *GatewayProvider) Generate(ctx context.Context, req Request) (string, error) {
	if p.url == "" || p.apiKey == "" {
		return "", providerError(p.Name(), KindAuth, errors.New("llm gateway not configured"))
	}

	reqBody := map[string]any{
		"model": p.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": BuildPrompt(req)},
		},
		"temperature":     0.3,
		"max_tokens":      1500,
		"response_format": map[string]string{"type": "json_object"},
	}
	data, _ := json.Marshal(reqBody)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(data))
	if err != nil {
		return "", providerError(p.Name(), KindUnavailable, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", providerError(p.Name(), KindTimeout, err)
		}
		return "", providerError(p.Name(), KindUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	p.log.WithField("http_status", resp.StatusCode).Debug("llm raw:\n" + string(body))
	if resp.StatusCode >= 400 {
		return "", providerError(p.Name(), kindForStatus(resp.StatusCode),
			fmt.Errorf("llm gateway returned %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	// Try choices[0].message.content (OpenAI-like), then the raw body.
	if inner := extractContentFromChoices(body); inner != "" {
		return inner, nil
	}
	if fallback := extractJSON(string(body)); fallback != "" {
		return fallback, nil
	}
	return "", providerError(p.Name(), KindInvalidResponse, errors.New("no JSON found in LLM output"))
}

// extractContentFromChoices attempts to read openai-style choices[0].message.content JSON
func extractContentFromChoices(body []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return ""
	}

	choices, ok := obj["choices"].([]any)
	if !ok || len(choices) == 0 {
		return ""
	}
	c0, _ := choices[0].(map[string]any)
	if c0 == nil {
		return ""
	}
	msg, _ := c0["message"].(map[string]any)
	if msg == nil {
		return ""
	}
	content, _ := msg["content"].(string)
	return extractJSON(content)
}
