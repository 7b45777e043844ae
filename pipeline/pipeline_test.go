package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/amazon-reviews-scraper/config"
	"github.com/aluiziolira/amazon-reviews-scraper/models"
	"github.com/aluiziolira/amazon-reviews-scraper/scraper"
)

type scrapeCall struct {
	url        string
	maxReviews int
}

type mockScraper struct {
	mu      sync.Mutex
	calls   []scrapeCall
	reviews map[string][]models.Review
	errs    map[string]error
	onCall  func(url string)
}

func (ms *mockScraper) ScrapeProductReviews(_ context.Context, productURL string, maxReviews int) ([]models.Review, error) {
	ms.mu.Lock()
	ms.calls = append(ms.calls, scrapeCall{url: productURL, maxReviews: maxReviews})
	onCall := ms.onCall
	ms.mu.Unlock()

	if onCall != nil {
		onCall(productURL)
	}
	if err, ok := ms.errs[productURL]; ok {
		return nil, err
	}
	return ms.reviews[productURL], nil
}

func (ms *mockScraper) recorded() []scrapeCall {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return append([]scrapeCall(nil), ms.calls...)
}

func makeReviews(asin string, ids ...string) []models.Review {
	reviews := make([]models.Review, 0, len(ids))
	for _, id := range ids {
		reviews = append(reviews, models.Review{
			ReviewID:    id,
			ProductASIN: asin,
			Rating:      4,
			Title:       "Title " + id,
			Text:        "Text " + id,
		})
	}
	return reviews
}

func newTestPipeline(t *testing.T, s ReviewScraper, cfg *config.Config) *Pipeline {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	p, err := NewPipeline(s, cfg, discardLogger())
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPipelineContinuesAfterFailedProduct(t *testing.T) {
	ms := &mockScraper{
		reviews: map[string][]models.Review{
			"https://www.amazon.com/dp/B000000002": makeReviews("B000000002", "R1", "R2"),
		},
		errs: map[string]error{
			"https://www.amazon.com/dp/B000000001": &scraper.ExtractionError{
				URL:  "https://www.amazon.com/dp/B000000001",
				Page: 1,
				Err:  scraper.ErrNotFound{Err: errors.New("Not Found")},
			},
		},
	}
	p := newTestPipeline(t, ms, nil)

	result := p.Run(context.Background(), "run-1", []models.ProductRequest{
		{URL: "https://www.amazon.com/dp/B000000001"},
		{URL: "https://www.amazon.com/dp/B000000002"},
	})

	if result.RunID != "run-1" {
		t.Fatalf("run id = %q", result.RunID)
	}
	if len(result.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(result.Records))
	}
	if result.Records[0]["reviewId"] != "R1" || result.Records[1]["reviewId"] != "R2" {
		t.Fatalf("unexpected record order: %v", result.Records)
	}
	if result.SucceededProducts != 1 || result.FailedProducts != 1 {
		t.Fatalf("succeeded=%d failed=%d", result.SucceededProducts, result.FailedProducts)
	}
	if len(result.FailedURLs) != 1 || result.FailedURLs[0] != "https://www.amazon.com/dp/B000000001" {
		t.Fatalf("failed urls = %v", result.FailedURLs)
	}
	if len(result.Products) != 2 || result.Products[0].OK() || !result.Products[1].OK() {
		t.Fatalf("product results = %+v", result.Products)
	}
}

func TestPipelineResolvesMaxReviews(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxReviewsPerProduct = 25
	ms := &mockScraper{}
	p := newTestPipeline(t, ms, cfg)

	p.Run(context.Background(), "", []models.ProductRequest{
		{URL: "https://www.amazon.com/dp/B000000001"},
		{URL: "https://www.amazon.com/dp/B000000002", MaxReviews: 7},
	})

	calls := ms.recorded()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	if calls[0].maxReviews != 25 || calls[1].maxReviews != 7 {
		t.Fatalf("max reviews = %d, %d", calls[0].maxReviews, calls[1].maxReviews)
	}
}

func TestPipelineValidationAndDedup(t *testing.T) {
	invalid := models.Review{ReviewID: "", Rating: 4, Title: "no id"}
	first := makeReviews("B000000001", "R1", "R2")
	second := append(makeReviews("B000000002", "R2", "R3"), invalid)

	ms := &mockScraper{
		reviews: map[string][]models.Review{
			"https://www.amazon.com/dp/B000000001": first,
			"https://www.amazon.com/dp/B000000002": second,
		},
	}
	p := newTestPipeline(t, ms, nil)

	result := p.Run(context.Background(), "", []models.ProductRequest{
		{URL: "https://www.amazon.com/dp/B000000001"},
		{URL: "https://www.amazon.com/dp/B000000002"},
	})

	if len(result.Records) != 3 {
		t.Fatalf("records = %d, want 3", len(result.Records))
	}
	if result.DuplicateCount != 1 || result.InvalidCount != 1 {
		t.Fatalf("duplicates=%d invalid=%d", result.DuplicateCount, result.InvalidCount)
	}
	if result.RunID == "" {
		t.Fatalf("expected generated run id")
	}

	metrics := p.GetMetrics()
	if metrics["processed_reviews"].(int64) != 3 {
		t.Fatalf("processed = %v", metrics["processed_reviews"])
	}
	validation := metrics["validation_errors"].(map[string]int)
	if validation["duplicate_review"] != 1 || validation["invalid_record"] != 1 {
		t.Fatalf("validation = %v", validation)
	}
}

func TestPipelineStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ms := &mockScraper{
		reviews: map[string][]models.Review{
			"https://www.amazon.com/dp/B000000001": makeReviews("B000000001", "R1"),
			"https://www.amazon.com/dp/B000000002": makeReviews("B000000002", "R2"),
		},
		onCall: func(string) { cancel() },
	}
	p := newTestPipeline(t, ms, nil)

	result := p.Run(ctx, "", []models.ProductRequest{
		{URL: "https://www.amazon.com/dp/B000000001"},
		{URL: "https://www.amazon.com/dp/B000000002"},
	})

	if got := len(ms.recorded()); got != 1 {
		t.Fatalf("scraper calls = %d, want 1", got)
	}
	if len(result.Records) != 1 {
		t.Fatalf("records = %d, want collected data kept", len(result.Records))
	}
}

func TestPipelineDedupeCacheEvicts(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DedupeCacheSize = 2

	ids := make([]string, 0, 3)
	for i := 1; i <= 3; i++ {
		ids = append(ids, fmt.Sprintf("R%d", i))
	}
	ms := &mockScraper{
		reviews: map[string][]models.Review{
			"https://www.amazon.com/dp/B000000001": makeReviews("B000000001", ids...),
			"https://www.amazon.com/dp/B000000002": makeReviews("B000000002", "R3", "R1"),
		},
	}
	p := newTestPipeline(t, ms, cfg)

	result := p.Run(context.Background(), "", []models.ProductRequest{
		{URL: "https://www.amazon.com/dp/B000000001"},
		{URL: "https://www.amazon.com/dp/B000000002"},
	})

	// R3 is still cached; R1 was evicted and is accepted again.
	if len(result.Records) != 4 || result.DuplicateCount != 1 {
		t.Fatalf("records=%d duplicates=%d", len(result.Records), result.DuplicateCount)
	}
}

func TestPipelineRunAcceptsNilContext(t *testing.T) {
	ms := &mockScraper{
		reviews: map[string][]models.Review{
			"https://www.amazon.com/dp/B000000001": makeReviews("B000000001", "R1"),
		},
	}
	p := newTestPipeline(t, ms, nil)

	var ctx context.Context
	result := p.Run(ctx, "", []models.ProductRequest{{URL: "https://www.amazon.com/dp/B000000001"}})
	if len(result.Records) != 1 || result.SucceededProducts != 1 {
		t.Fatalf("records=%d succeeded=%d", len(result.Records), result.SucceededProducts)
	}
}

func TestNewPipelineRequiresScraper(t *testing.T) {
	if _, err := NewPipeline(nil, config.DefaultConfig(), discardLogger()); err == nil {
		t.Fatalf("expected error for nil scraper")
	}
}

func TestPipelineProgressReportingStops(t *testing.T) {
	p := newTestPipeline(t, &mockScraper{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	p.StartProgressReporting(ctx, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	cancel()
}
