// Package scraper fetches review listing pages and turns them into reviews.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/amazon-reviews-scraper/config"
	"github.com/aluiziolira/amazon-reviews-scraper/models"
	"github.com/aluiziolira/amazon-reviews-scraper/parser"
	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

const (
	ctxResponseKey = "response"
	ctxStatusKey   = "status"
)

// Scraper walks the review listing of one product at a time. Pages are
// fetched sequentially and requests are spaced by the configured delay.
type Scraper struct {
	cfg       *config.Config
	collector *colly.Collector
	limiter   *rate.Limiter
	retry     *retryManager
	logger    *slog.Logger
	Metrics   *Metrics
	now       func() time.Time

	requestCount int64
	pageCount    int64
	errorCount   int64

	mu           sync.Mutex
	errorsByType map[string]int
}

// Stats summarises the requests a Scraper has made so far.
type Stats struct {
	Requests     int
	Pages        int
	Errors       int
	Retries      int
	ErrorsByType map[string]int
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config, logger *slog.Logger) (*Scraper, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "scraper"))

	proxy := http.ProxyFromEnvironment
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		if proxyURL.Host == "" {
			return nil, fmt.Errorf("proxy url must include a host")
		}
		proxy = http.ProxyURL(proxyURL)
	}

	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: proxy,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	s := &Scraper{
		cfg:          cfg,
		collector:    collector,
		limiter:      newLimiter(cfg.SleepBetweenRequests),
		logger:       logger,
		Metrics:      NewMetrics(),
		now:          time.Now,
		errorsByType: make(map[string]int),
	}
	s.retry = newRetryManager(cfg, s.Metrics, logger)
	s.configureHandlers()
	return s, nil
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// ScrapeProductReviews collects up to maxReviews reviews for the product at
// productURL, walking listing pages in order. A non-positive maxReviews uses
// the configured default. Failures are returned as *ExtractionError.
func (s *Scraper) ScrapeProductReviews(ctx context.Context, productURL string, maxReviews int) (_ []models.Review, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if maxReviews <= 0 {
		maxReviews = s.cfg.MaxReviewsPerProduct
	}
	defer func() {
		if err != nil {
			s.Metrics.IncProduct("failed")
			return
		}
		s.Metrics.IncProduct("succeeded")
	}()

	product, err := parser.ResolveProduct(productURL)
	if err != nil {
		s.recordError(err)
		return nil, &ExtractionError{URL: productURL, Err: err}
	}

	logger := s.logger.With(slog.String("asin", product.ASIN))
	reviews := make([]models.Review, 0, min(maxReviews, 100))

	for page := 1; ; page++ {
		if s.cfg.MaxPages > 0 && page > s.cfg.MaxPages {
			logger.Info("page limit reached", slog.Int("max_pages", s.cfg.MaxPages))
			break
		}

		pageURL := product.ReviewsURL(page, s.cfg.SortBy)
		parsed, attempts, err := s.fetchPage(ctx, pageURL, product)
		if err != nil {
			if page > 1 && errors.Is(err, parser.ErrUnrecognizedPage) {
				logger.Warn("unrecognized listing markup, treating as last page",
					slog.Int("page", page),
					slog.String("url", pageURL),
				)
				break
			}
			return nil, &ExtractionError{URL: productURL, Page: page, Attempts: attempts, Err: err}
		}
		atomic.AddInt64(&s.pageCount, 1)
		s.Metrics.IncPages()

		if len(parsed.Reviews) == 0 {
			logger.Debug("no reviews on page, pagination exhausted", slog.Int("page", page))
			break
		}

		scrapedAt := s.now().UTC()
		for _, review := range parsed.Reviews {
			review.ProductASIN = product.ASIN
			review.ProductURL = productURL
			review.ScrapedAt = scrapedAt
			reviews = append(reviews, review)
		}
		logger.Debug("parsed review page",
			slog.Int("page", page),
			slog.Int("page_reviews", len(parsed.Reviews)),
			slog.Int("total", len(reviews)),
		)

		if len(reviews) >= maxReviews || !parsed.HasNextPage {
			break
		}
	}

	if len(reviews) > maxReviews {
		reviews = slices.Clip(reviews[:maxReviews])
	}
	s.Metrics.AddReviews(len(reviews))
	return reviews, nil
}

// Stats returns a snapshot of request counters.
func (s *Scraper) Stats() Stats {
	s.mu.Lock()
	byType := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		byType[k] = v
	}
	s.mu.Unlock()

	return Stats{
		Requests:     int(atomic.LoadInt64(&s.requestCount)),
		Pages:        int(atomic.LoadInt64(&s.pageCount)),
		Errors:       int(atomic.LoadInt64(&s.errorCount)),
		Retries:      s.retry.TotalRetries(),
		ErrorsByType: byType,
	}
}

func (s *Scraper) configureHandlers() {
	s.collector.OnRequest(func(r *colly.Request) {
		if s.cfg.AcceptLanguage != "" {
			r.Headers.Set("Accept-Language", s.cfg.AcceptLanguage)
		}
		current := atomic.AddInt64(&s.requestCount, 1)
		s.logger.Debug("requesting page",
			slog.Int64("requests", current),
			slog.String("url", r.URL.String()),
		)
	})

	s.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxResponseKey, r)
	})

	s.collector.OnError(func(r *colly.Response, err error) {
		if r == nil || r.Ctx == nil {
			return
		}
		r.Ctx.Put(ctxStatusKey, r.StatusCode)
	})
}

// fetchPage downloads and parses one listing page, retrying transient failures.
func (s *Scraper) fetchPage(ctx context.Context, pageURL string, product parser.ProductLocator) (*parser.ReviewPage, int, error) {
	var page *parser.ReviewPage
	attempts, err := s.retry.Do(ctx, func(attempt int) error {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		body, err := s.get(pageURL)
		if err == nil {
			page, err = parser.ParseReviewPage(body, product)
			if errors.Is(err, parser.ErrCaptcha) {
				err = ErrBlocked{Err: err}
			}
		}
		if err != nil {
			category := s.recordError(err)
			s.logger.Warn("page request failed",
				slog.String("url", pageURL),
				slog.Int("attempt", attempt),
				slog.String("category", category),
				slog.Any("error", err),
			)
		}
		return err
	})
	if err != nil {
		return nil, attempts, err
	}
	return page, attempts, nil
}

func (s *Scraper) get(pageURL string) ([]byte, error) {
	reqCtx := colly.NewContext()
	start := time.Now()
	err := s.collector.Request(http.MethodGet, pageURL, nil, reqCtx, nil)
	s.Metrics.ObserveDuration(time.Since(start))
	if err != nil {
		s.Metrics.IncRequest("error")
		status, _ := reqCtx.GetAny(ctxStatusKey).(int)
		return nil, classifyError(err, status)
	}

	resp, ok := reqCtx.GetAny(ctxResponseKey).(*colly.Response)
	if !ok || resp == nil {
		s.Metrics.IncRequest("error")
		return nil, fmt.Errorf("no response captured for %s", pageURL)
	}
	s.Metrics.IncRequest("success")
	return resp.Body, nil
}

func (s *Scraper) recordError(err error) string {
	atomic.AddInt64(&s.errorCount, 1)
	category := errorTypeLabel(err)

	s.mu.Lock()
	s.errorsByType[category]++
	s.mu.Unlock()

	s.Metrics.IncError(category)
	return category
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch {
		case statusCode == http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case statusCode == http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case statusCode == http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		case statusCode >= http.StatusInternalServerError:
			return ErrServer{Status: statusCode, Err: wrapped}
		}
	}

	if err == nil {
		return nil
	}
	return err
}
