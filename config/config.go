package config

import (
	"fmt"
	"net/url"
	"time"
)

// Sort orders accepted by the review listing.
const (
	SortRecent  = "recent"
	SortHelpful = "helpful"
)

// Config holds scraper configuration.
type Config struct {
	UserAgent            string
	Timeout              time.Duration
	Proxy                string
	RetryCount           int
	SleepBetweenRequests time.Duration
	MaxReviewsPerProduct int
	MaxPages             int
	SortBy               string
	AcceptLanguage       string
	DedupeCacheSize      int

	OutputFile    string
	CSVOutputFile string
	Verbose       bool
	MetricsAddr   string
}

// DefaultConfig returns conservative defaults for the review listing.
func DefaultConfig() *Config {
	return DefaultSettings().Config()
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Proxy != "" {
		parsed, err := url.Parse(c.Proxy)
		if err != nil {
			return fmt.Errorf("invalid proxy URL: %w", err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("proxy URL must include a host")
		}
	}
	if c.RetryCount < 0 {
		return fmt.Errorf("retry count cannot be negative")
	}
	if c.SleepBetweenRequests < 0 {
		return fmt.Errorf("sleep between requests cannot be negative")
	}
	if c.MaxReviewsPerProduct <= 0 {
		return fmt.Errorf("max reviews per product must be positive")
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("max pages cannot be negative")
	}
	if c.SortBy != SortRecent && c.SortBy != SortHelpful {
		return fmt.Errorf("sort order must be %s or %s", SortRecent, SortHelpful)
	}
	if c.DedupeCacheSize <= 0 {
		return fmt.Errorf("dedupe cache size must be positive")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}

	return nil
}
