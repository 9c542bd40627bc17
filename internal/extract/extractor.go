// Package extract implements the fetch/extract capability: static and
// browser-rendered fetching plus guided (CSS selector) and smart (AI) field
// extraction.
package extract

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/scrapeflow/scrapeflow/internal/scrape"
)

// Fetcher retrieves the raw HTML for a target URL.
type Fetcher interface {
	FetchHTML(ctx context.Context, url string) (string, error)
}

// Service dispatches a job spec to the right fetcher and extraction strategy.
// It implements scrape.Extractor.
type Service struct {
	static   Fetcher
	headless Fetcher
	llm      *LLMClient
	logger   *zap.Logger
}

// NewService constructs a Service. headless and llm may be nil; requests that
// need them fail with a descriptive error.
func NewService(static Fetcher, headless Fetcher, llm *LLMClient, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{static: static, headless: headless, llm: llm, logger: logger}
}

// Extract fetches the page and produces the job's structured result.
func (s *Service) Extract(ctx context.Context, spec scrape.JobSpec) (map[string]any, error) {
	fetcher := s.static
	if spec.RenderJS() {
		if s.headless == nil {
			return nil, errors.New("browser rendering requested but not enabled")
		}
		fetcher = s.headless
	}

	html, err := fetcher.FetchHTML(ctx, spec.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", spec.URL, err)
	}

	switch spec.Mode {
	case scrape.ModeGuided:
		return ExtractSelectors(html, spec.Selectors)
	case scrape.ModeSmart:
		if spec.Instruction == "" {
			return map[string]any{"error": "no instruction provided for smart mode"}, nil
		}
		if s.llm == nil {
			return nil, errors.New("smart mode is not configured")
		}
		return s.llm.Analyze(ctx, html, spec.Instruction)
	default:
		return nil, fmt.Errorf("unknown mode %q", spec.Mode)
	}
}
