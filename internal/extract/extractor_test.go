package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapeflow/scrapeflow/internal/scrape"
)

type fakeFetcher struct {
	html string
	err  error
}

func (f *fakeFetcher) FetchHTML(_ context.Context, _ string) (string, error) {
	return f.html, f.err
}

const productPage = `<!DOCTYPE html>
<html>
<head><title>Widget Shop</title></head>
<body>
  <h1 class="product-name">  Deluxe Widget  </h1>
  <span class="price">$19.99</span>
  <span class="price">$24.99</span>
  <div id="stock">In stock</div>
</body>
</html>`

func TestExtractSelectorsFirstMatchTrimmed(t *testing.T) {
	out, err := ExtractSelectors(productPage, map[string]string{
		"name":  ".product-name",
		"price": ".price",
		"stock": "#stock",
	})
	require.NoError(t, err)

	assert.Equal(t, "Deluxe Widget", out["name"])
	assert.Equal(t, "$19.99", out["price"], "first match wins")
	assert.Equal(t, "In stock", out["stock"])
}

func TestExtractSelectorsMissingFieldIsNil(t *testing.T) {
	out, err := ExtractSelectors(productPage, map[string]string{
		"rating": ".rating",
		"name":   ".product-name",
	})
	require.NoError(t, err)

	val, present := out["rating"]
	require.True(t, present, "absent selector still appears in result")
	assert.Nil(t, val)
	assert.Equal(t, "Deluxe Widget", out["name"])
}

func TestServiceGuidedExtraction(t *testing.T) {
	svc := NewService(&fakeFetcher{html: productPage}, nil, nil, nil)

	out, err := svc.Extract(context.Background(), scrape.JobSpec{
		URL:       "https://shop.example.com/widget",
		Mode:      scrape.ModeGuided,
		Selectors: map[string]string{"name": ".product-name"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Deluxe Widget", out["name"])
}

func TestServiceFetchErrorPropagates(t *testing.T) {
	svc := NewService(&fakeFetcher{err: errors.New("connection refused")}, nil, nil, nil)

	_, err := svc.Extract(context.Background(), scrape.JobSpec{
		URL:       "https://down.example.com",
		Mode:      scrape.ModeGuided,
		Selectors: map[string]string{"name": "h1"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestServiceSmartWithoutInstruction(t *testing.T) {
	svc := NewService(&fakeFetcher{html: productPage}, nil, nil, nil)

	out, err := svc.Extract(context.Background(), scrape.JobSpec{
		URL:  "https://shop.example.com/widget",
		Mode: scrape.ModeSmart,
	})
	require.NoError(t, err, "missing instruction is not a job failure")
	assert.Equal(t, "no instruction provided for smart mode", out["error"])
}

func TestServiceSmartWithoutClient(t *testing.T) {
	svc := NewService(&fakeFetcher{html: productPage}, nil, nil, nil)

	_, err := svc.Extract(context.Background(), scrape.JobSpec{
		URL:         "https://shop.example.com/widget",
		Mode:        scrape.ModeSmart,
		Instruction: "extract the product name",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestServiceRenderRequiresHeadless(t *testing.T) {
	svc := NewService(&fakeFetcher{html: productPage}, nil, nil, nil)

	_, err := svc.Extract(context.Background(), scrape.JobSpec{
		URL:       "https://spa.example.com",
		Mode:      scrape.ModeGuided,
		Selectors: map[string]string{"name": "h1"},
		Options:   map[string]bool{"renderJs": true},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser rendering")
}

func TestNewLLMClientDisabledWithoutEndpoint(t *testing.T) {
	assert.Nil(t, NewLLMClient(LLMConfig{Model: "gpt-4o-mini", Timeout: time.Second}, nil))
}
