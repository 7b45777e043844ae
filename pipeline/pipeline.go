package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/amazon-reviews-scraper/config"
	"github.com/aluiziolira/amazon-reviews-scraper/models"
	"github.com/aluiziolira/amazon-reviews-scraper/parser"
	"github.com/aluiziolira/amazon-reviews-scraper/scraper"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ReviewScraper extracts the reviews of a single product.
type ReviewScraper interface {
	ScrapeProductReviews(ctx context.Context, productURL string, maxReviews int) ([]models.Review, error)
}

// Pipeline runs products through the scraper one at a time, validating and
// de-duplicating reviews into a single dataset.
type Pipeline struct {
	scraper    ReviewScraper
	maxReviews int
	seen       *lru.Cache[string, struct{}]
	logger     *slog.Logger
	now        func() time.Time

	metrics metrics
}

// NewPipeline builds a pipeline around s.
func NewPipeline(s ReviewScraper, cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	if s == nil {
		return nil, errors.New("pipeline: scraper is required")
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	seen, err := lru.New[string, struct{}](cfg.DedupeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}

	return &Pipeline{
		scraper:    s,
		maxReviews: cfg.MaxReviewsPerProduct,
		seen:       seen,
		logger:     logger.With(slog.String("component", "pipeline")),
		now:        time.Now,
		metrics:    newMetrics(),
	}, nil
}

// Run scrapes every request in order. A failing product is logged and
// skipped; cancellation stops the run but keeps what was collected.
// An empty runID is replaced with a fresh UUID.
func (p *Pipeline) Run(ctx context.Context, runID string, requests []models.ProductRequest) *models.RunResult {
	if ctx == nil {
		ctx = context.Background()
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	result := &models.RunResult{
		RunID:     runID,
		Records:   make([]models.Record, 0),
		Products:  make([]models.ProductResult, 0, len(requests)),
		StartTime: p.now(),
	}

	for i, request := range requests {
		if ctx.Err() != nil {
			p.logger.Warn("run cancelled, skipping remaining products",
				slog.Int("remaining", len(requests)-i),
			)
			break
		}

		maxReviews := request.MaxReviews
		if maxReviews <= 0 {
			maxReviews = p.maxReviews
		}

		logger := p.logger.With(slog.String("url", request.URL))
		logger.Info("scraping product",
			slog.Int("index", i+1),
			slog.Int("total", len(requests)),
			slog.Int("max_reviews", maxReviews),
		)

		start := p.now()
		reviews, err := p.scraper.ScrapeProductReviews(ctx, request.URL, maxReviews)
		productResult := models.ProductResult{
			Request:  request,
			Reviews:  reviews,
			Err:      err,
			Duration: p.now().Sub(start),
		}
		result.Products = append(result.Products, productResult)

		if err != nil {
			result.FailedProducts++
			result.FailedURLs = append(result.FailedURLs, request.URL)
			p.metrics.incrementFailed()
			logger.Error("product failed",
				slog.String("category", scraper.ErrorLabel(err)),
				slog.Any("error", err),
			)
			continue
		}

		accepted := p.collect(reviews, result)
		result.SucceededProducts++
		logger.Info("product scraped",
			slog.Int("reviews", len(reviews)),
			slog.Int("accepted", accepted),
			slog.Duration("duration", productResult.Duration),
		)
	}

	result.EndTime = p.now()
	return result
}

// collect validates and de-duplicates reviews into result and returns the
// number of records appended.
func (p *Pipeline) collect(reviews []models.Review, result *models.RunResult) int {
	accepted := 0
	for i := range reviews {
		review := &reviews[i]
		if err := parser.ValidateReview(review); err != nil {
			result.InvalidCount++
			p.metrics.addValidation("invalid_record")
			p.logger.Debug("dropping invalid review",
				slog.String("review_id", review.ReviewID),
				slog.Any("error", err),
			)
			continue
		}

		if found, _ := p.seen.ContainsOrAdd(review.ReviewID, struct{}{}); found {
			result.DuplicateCount++
			p.metrics.addValidation("duplicate_review")
			continue
		}

		result.Records = append(result.Records, review.Record())
		p.metrics.incrementProcessed()
		accepted++
	}
	return accepted
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartProgressReporting logs counters every interval until ctx is done.
func (p *Pipeline) StartProgressReporting(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				snapshot := p.GetMetrics()
				validation := snapshot["validation_errors"].(map[string]int)
				p.logger.Info("progress",
					slog.Int64("processed_reviews", snapshot["processed_reviews"].(int64)),
					slog.Int64("failed_products", snapshot["failed_products"].(int64)),
					slog.Int("invalid", validation["invalid_record"]),
					slog.Int("duplicates", validation["duplicate_review"]),
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}

type metrics struct {
	mu         *sync.Mutex
	processed  int64
	failed     int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		mu:         &sync.Mutex{},
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) incrementFailed() {
	m.mu.Lock()
	m.failed++
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_reviews": m.processed,
		"failed_products":   m.failed,
		"validation_errors": copyValidation,
	}
}
