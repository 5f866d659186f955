package summarizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"meeting-insights-go/internal/types"
)

// Router selects between the two providers. The selection and fallback flag
// are read once per call, so an admin switch only affects later calls.
type Router struct {
	mu        sync.RWMutex
	providers map[string]Provider
	current   string
	fallback  bool
	log       *logrus.Entry
}

// NewRouter needs exactly one generic and one specialized provider.
func NewRouter(generic, specialized Provider, current string, fallback bool, log *logrus.Entry) (*Router, error) {
	if generic == nil || specialized == nil {
		return nil, errors.New("router needs both providers")
	}
	r := &Router{
		providers: map[string]Provider{
			ProviderGeneric:     generic,
			ProviderSpecialized: specialized,
		},
		fallback: fallback,
		log:      log.WithField("component", "summarizer-router"),
	}
	if _, ok := r.providers[current]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, current)
	}
	r.current = current
	return r, nil
}

// Current returns the selected provider and whether fallback is enabled.
func (r *Router) Current() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current, r.fallback
}

// Switch changes the provider used by subsequent calls.
func (r *Router) Switch(name string) error {
	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	r.mu.Lock()
	prev := r.current
	r.current = name
	r.mu.Unlock()
	r.log.WithFields(logrus.Fields{"from": prev, "to": name}).Info("summarization provider switched")
	return nil
}

func (r *Router) SetFallback(enabled bool) {
	r.mu.Lock()
	r.fallback = enabled
	r.mu.Unlock()
	r.log.WithField("fallback", enabled).Info("summarization fallback updated")
}

func (r *Router) alternate(name string) string {
	if name == ProviderGeneric {
		return ProviderSpecialized
	}
	return ProviderGeneric
}

// Summarize calls the current provider and, when it fails and fallback is
// enabled, the other provider exactly once. The returned error is a
// summarization StageError carrying the last provider failure.
func (r *Router) Summarize(ctx context.Context, req Request) (*types.Summary, error) {
	r.mu.RLock()
	primary := r.providers[r.current]
	secondary := r.providers[r.alternate(r.current)]
	fallback := r.fallback
	r.mu.RUnlock()

	summary, err := r.run(ctx, primary, req)
	if err == nil {
		return summary, nil
	}
	log := r.log.WithField("provider", primary.Name()).WithError(err)
	if !fallback {
		log.Warn("summarization failed, fallback disabled")
		return nil, stageError(err)
	}
	log.Warn("summarization failed, trying fallback provider")

	summary, err = r.run(ctx, secondary, req)
	if err != nil {
		r.log.WithField("provider", secondary.Name()).WithError(err).Warn("fallback summarization failed")
		return nil, stageError(err)
	}
	return summary, nil
}

func (r *Router) run(ctx context.Context, p Provider, req Request) (*types.Summary, error) {
	start := time.Now()
	raw, err := p.Generate(ctx, req)
	if err != nil {
		var pe *ProviderError
		if !errors.As(err, &pe) {
			err = providerError(p.Name(), KindUnavailable, err)
		}
		return nil, err
	}
	summary, err := Normalize(raw)
	if err != nil {
		return nil, providerError(p.Name(), KindInvalidResponse, err)
	}
	r.log.WithFields(logrus.Fields{
		"provider":      p.Name(),
		"action_items":  len(summary.ActionItems),
		"key_decisions": len(summary.KeyDecisions),
		"elapsed_ms":    time.Since(start).Milliseconds(),
	}).Info("summary generated")
	return summary, nil
}

// stageError keeps provider names and raw responses out of the user message.
func stageError(err error) error {
	msg := "summary generation failed"
	var pe *ProviderError
	if errors.As(err, &pe) {
		switch pe.Kind {
		case KindRateLimited:
			msg = "summarization service is busy, try again later"
		case KindTimeout:
			msg = "summarization timed out"
		case KindAuth, KindUnavailable:
			msg = "summarization service is unavailable"
		}
	}
	return types.NewStageError(types.StageSummarization, msg, err)
}
