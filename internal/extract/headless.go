package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ErrHeadlessDisabled indicates browser rendering has been disabled via
// configuration.
var ErrHeadlessDisabled = errors.New("headless rendering disabled")

// HeadlessConfig tunes the browser-rendered fetcher.
type HeadlessConfig struct {
	UserAgent      string
	MaxConcurrency int
	RenderTimeout  time.Duration
}

// HeadlessFetcher renders pages in headless Chrome so JavaScript-generated
// content is present in the returned DOM snapshot.
type HeadlessFetcher struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	logger          *zap.Logger
	sem             chan struct{}
	timeout         time.Duration
	userAgent       string
}

// NewHeadlessFetcher starts a shared browser process for rendering. Callers
// must Close it on shutdown.
func NewHeadlessFetcher(cfg HeadlessConfig, logger *zap.Logger) (*HeadlessFetcher, error) {
	if cfg.MaxConcurrency <= 0 {
		return nil, ErrHeadlessDisabled
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		allocatorCancel()
		browserCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &HeadlessFetcher{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		logger:          logger,
		sem:             make(chan struct{}, cfg.MaxConcurrency),
		timeout:         cfg.RenderTimeout,
		userAgent:       cfg.UserAgent,
	}, nil
}

// Close tears down the browser and allocator contexts.
func (f *HeadlessFetcher) Close() error {
	if f == nil {
		return nil
	}
	f.browserCancel()
	f.allocatorCancel()
	return nil
}

// FetchHTML navigates to rawURL in a fresh tab and returns the rendered DOM.
func (f *HeadlessFetcher) FetchHTML(ctx context.Context, rawURL string) (string, error) {
	if f == nil {
		return "", ErrHeadlessDisabled
	}

	select {
	case f.sem <- struct{}{}:
		defer func() { <-f.sem }()
	case <-ctx.Done():
		return "", fmt.Errorf("acquire render slot: %w", ctx.Err())
	}

	tabCtx, cancelTab := chromedp.NewContext(f.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, f.timeout)
	defer cancelTask()

	stop := forwardCancel(ctx, cancelTask)
	defer stop()

	var html string
	tasks := chromedp.Tasks{
		emulation.SetUserAgentOverride(f.userAgent),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
