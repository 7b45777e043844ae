// Package models defines data structures for the scraper.
package models

import "time"

// ProductRequest identifies one product whose reviews should be collected.
// MaxReviews of zero means the configured default applies.
type ProductRequest struct {
	URL        string `json:"productUrl"`
	MaxReviews int    `json:"maxReviews,omitempty"`
}

// Review represents a single customer review extracted from a listing page.
type Review struct {
	ReviewID     string    `json:"reviewId"`
	ProductASIN  string    `json:"productAsin"`
	ProductURL   string    `json:"productUrl"`
	Author       string    `json:"author"`
	Rating       float64   `json:"ratingScore"`
	Title        string    `json:"reviewTitle"`
	Text         string    `json:"reviewText"`
	Date         string    `json:"reviewDate"`
	ReviewedIn   string    `json:"reviewedIn"`
	Variant      string    `json:"variant"`
	Verified     bool      `json:"isVerified"`
	HelpfulVotes int       `json:"helpfulVotes"`
	ReviewURL    string    `json:"reviewUrl"`
	ScrapedAt    time.Time `json:"scrapedAt"`
}

// Record is the exported, schema-less form of a review.
type Record map[string]any

// RecordFields lists the keys every Record produced by Review.Record carries.
var RecordFields = []string{
	"author",
	"helpfulVotes",
	"isVerified",
	"productAsin",
	"productUrl",
	"ratingScore",
	"reviewDate",
	"reviewId",
	"reviewText",
	"reviewTitle",
	"reviewUrl",
	"reviewedIn",
	"scrapedAt",
	"variant",
}

// Record converts the review into a Record. Every field is always present,
// so all records of a run share one key set.
func (r Review) Record() Record {
	scrapedAt := ""
	if !r.ScrapedAt.IsZero() {
		scrapedAt = r.ScrapedAt.UTC().Format(time.RFC3339)
	}
	return Record{
		"author":       r.Author,
		"helpfulVotes": r.HelpfulVotes,
		"isVerified":   r.Verified,
		"productAsin":  r.ProductASIN,
		"productUrl":   r.ProductURL,
		"ratingScore":  r.Rating,
		"reviewDate":   r.Date,
		"reviewId":     r.ReviewID,
		"reviewText":   r.Text,
		"reviewTitle":  r.Title,
		"reviewUrl":    r.ReviewURL,
		"reviewedIn":   r.ReviewedIn,
		"scrapedAt":    scrapedAt,
		"variant":      r.Variant,
	}
}

// ProductResult is the outcome of extracting one product: either Reviews or Err.
type ProductResult struct {
	Request  ProductRequest
	Reviews  []Review
	Err      error
	Duration time.Duration
}

// OK reports whether the extraction succeeded.
func (r ProductResult) OK() bool {
	return r.Err == nil
}

// RunResult holds the overall result of a scraping run.
type RunResult struct {
	RunID             string
	Records           []Record
	Products          []ProductResult
	StartTime         time.Time
	EndTime           time.Time
	SucceededProducts int
	FailedProducts    int
	DuplicateCount    int
	InvalidCount      int
	FailedURLs        []string
}
