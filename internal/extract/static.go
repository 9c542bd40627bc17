package extract

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// StaticConfig tunes the plain-HTTP fetcher.
type StaticConfig struct {
	UserAgent      string
	RequestTimeout time.Duration
}

// StaticFetcher retrieves pages over plain HTTP using a Colly collector.
// JavaScript is never executed; use the headless fetcher for that.
type StaticFetcher struct {
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// NewStaticFetcher constructs a configured StaticFetcher.
func NewStaticFetcher(cfg StaticConfig, logger *zap.Logger) *StaticFetcher {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	base := colly.NewCollector(
		colly.Async(false),
		colly.UserAgent(cfg.UserAgent),
		colly.IgnoreRobotsTxt(),
	)
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.RequestTimeout)

	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaticFetcher{baseCollector: base, logger: logger}
}

// FetchHTML retrieves the page body for rawURL.
func (f *StaticFetcher) FetchHTML(ctx context.Context, rawURL string) (string, error) {
	collector := f.baseCollector.Clone()
	resultCh := make(chan staticResult, 1)
	var once sync.Once
	send := func(res staticResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnResponse(func(r *colly.Response) {
		send(staticResult{body: string(r.Body)})
	})
	collector.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		if r != nil && r.StatusCode != 0 {
			err = fmt.Errorf("status %d: %w", r.StatusCode, err)
		}
		send(staticResult{err: err})
	})

	if err := collector.Visit(rawURL); err != nil {
		return "", err
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return res.body, res.err
	default:
		return "", errors.New("fetch produced no result")
	}
}

type staticResult struct {
	body string
	err  error
}
