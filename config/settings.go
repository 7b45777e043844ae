// Package config loads scraper settings and turns them into runtime configuration.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/amazon-reviews-scraper/storage"
	"gopkg.in/yaml.v2"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Settings mirrors the settings file. Every key is optional.
type Settings struct {
	UserAgent            string  `json:"user_agent" yaml:"user_agent"`
	MaxReviewsPerProduct int     `json:"max_reviews_per_product" yaml:"max_reviews_per_product"`
	RequestTimeout       float64 `json:"request_timeout" yaml:"request_timeout"`
	Proxy                *string `json:"proxy" yaml:"proxy"`
	RetryCount           int     `json:"retry_count" yaml:"retry_count"`
	SleepBetweenRequests float64 `json:"sleep_between_requests" yaml:"sleep_between_requests"`
	MaxPages             int     `json:"max_pages" yaml:"max_pages"`
	SortBy               string  `json:"sort_by" yaml:"sort_by"`
	AcceptLanguage       string  `json:"accept_language" yaml:"accept_language"`
	DedupeCacheSize      int     `json:"dedupe_cache_size" yaml:"dedupe_cache_size"`
}

// DefaultSettings returns the hardcoded fallbacks.
func DefaultSettings() Settings {
	return Settings{
		UserAgent:            defaultUserAgent,
		MaxReviewsPerProduct: 100,
		RequestTimeout:       20,
		Proxy:                nil,
		RetryCount:           3,
		SleepBetweenRequests: 1.0,
		MaxPages:             50,
		SortBy:               SortRecent,
		AcceptLanguage:       "en-US,en;q=0.9",
		DedupeCacheSize:      10000,
	}
}

// LoadSettings overlays the file at path on top of DefaultSettings. It never
// fails: a missing or malformed file is logged and the defaults are returned,
// and individual invalid values fall back to their default.
func LoadSettings(store *storage.Manager, path string, logger *slog.Logger) Settings {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = storage.NewManager(logger)
	}
	defaults := DefaultSettings()

	exists, err := store.Exists(path)
	if err != nil {
		logger.Error("failed to load settings, using defaults", slog.String("path", path), slog.Any("error", err))
		return defaults
	}
	if !exists {
		logger.Warn("settings file not found, using defaults", slog.String("path", path))
		return defaults
	}

	var data []byte
	err = store.OpenForRead(path, func(r io.Reader) error {
		var readErr error
		data, readErr = io.ReadAll(r)
		return readErr
	})
	if err != nil {
		logger.Error("failed to load settings, using defaults", slog.String("path", path), slog.Any("error", err))
		return defaults
	}

	loaded, err := decodeSettings(path, data, logger)
	if err != nil {
		logger.Error("failed to load settings, using defaults", slog.String("path", path), slog.Any("error", err))
		return defaults
	}

	loaded.sanitize(logger)
	logger.Info("loaded settings", slog.String("path", path))
	return loaded
}

// decodeSettings overlays the keys of a settings document on the defaults.
// Only a document that is not an object is rejected as a whole; a key whose
// value cannot be converted keeps its default.
func decodeSettings(path string, data []byte, logger *slog.Logger) (Settings, error) {
	raw := make(map[string]any)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Settings{}, fmt.Errorf("decode yaml settings: %w", err)
		}
	default:
		trimmed := strings.TrimSpace(string(data))
		if !strings.HasPrefix(trimmed, "{") {
			return Settings{}, fmt.Errorf("settings file must contain a JSON object")
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return Settings{}, fmt.Errorf("decode json settings: %w", err)
		}
	}

	settings := DefaultSettings()
	settings.apply(raw, logger)
	return settings, nil
}

func (s *Settings) apply(raw map[string]any, logger *slog.Logger) {
	for key, value := range raw {
		ok := true
		switch key {
		case "user_agent":
			ok = setString(&s.UserAgent, value)
		case "max_reviews_per_product":
			ok = setInt(&s.MaxReviewsPerProduct, value)
		case "request_timeout":
			ok = setFloat(&s.RequestTimeout, value)
		case "proxy":
			if value == nil {
				s.Proxy = nil
				break
			}
			var proxy string
			if ok = setString(&proxy, value); ok {
				s.Proxy = &proxy
			}
		case "retry_count":
			ok = setInt(&s.RetryCount, value)
		case "sleep_between_requests":
			ok = setFloat(&s.SleepBetweenRequests, value)
		case "max_pages":
			ok = setInt(&s.MaxPages, value)
		case "sort_by":
			ok = setString(&s.SortBy, value)
		case "accept_language":
			ok = setString(&s.AcceptLanguage, value)
		case "dedupe_cache_size":
			ok = setInt(&s.DedupeCacheSize, value)
		default:
			logger.Warn("unknown setting ignored", slog.String("key", key))
		}
		if !ok {
			logger.Warn("invalid setting type, using default", slog.String("key", key), slog.Any("value", value))
		}
	}
}

func setString(dst *string, value any) bool {
	v, ok := value.(string)
	if ok {
		*dst = v
	}
	return ok
}

// setInt accepts integers, integral floats and numeric strings.
func setInt(dst *int, value any) bool {
	switch v := value.(type) {
	case int:
		*dst = v
	case int64:
		*dst = int(v)
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.Abs(v) > math.MaxInt32 {
			return false
		}
		*dst = int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return false
		}
		*dst = n
	default:
		return false
	}
	return true
}

// setFloat accepts finite numbers and numeric strings.
func setFloat(dst *float64, value any) bool {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return false
		}
		f = parsed
	default:
		return false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	*dst = f
	return true
}

func (s *Settings) sanitize(logger *slog.Logger) {
	defaults := DefaultSettings()
	invalid := func(key string, value any) {
		logger.Warn("invalid setting, using default", slog.String("key", key), slog.Any("value", value))
	}

	if strings.TrimSpace(s.UserAgent) == "" {
		invalid("user_agent", s.UserAgent)
		s.UserAgent = defaults.UserAgent
	}
	if s.MaxReviewsPerProduct <= 0 {
		invalid("max_reviews_per_product", s.MaxReviewsPerProduct)
		s.MaxReviewsPerProduct = defaults.MaxReviewsPerProduct
	}
	if s.RequestTimeout <= 0 || math.IsNaN(s.RequestTimeout) {
		invalid("request_timeout", s.RequestTimeout)
		s.RequestTimeout = defaults.RequestTimeout
	}
	if s.Proxy != nil && strings.TrimSpace(*s.Proxy) == "" {
		s.Proxy = nil
	}
	if s.RetryCount < 0 {
		invalid("retry_count", s.RetryCount)
		s.RetryCount = defaults.RetryCount
	}
	if s.SleepBetweenRequests < 0 || math.IsNaN(s.SleepBetweenRequests) {
		invalid("sleep_between_requests", s.SleepBetweenRequests)
		s.SleepBetweenRequests = defaults.SleepBetweenRequests
	}
	if s.MaxPages < 0 {
		invalid("max_pages", s.MaxPages)
		s.MaxPages = defaults.MaxPages
	}
	sortBy := strings.ToLower(strings.TrimSpace(s.SortBy))
	if sortBy != SortRecent && sortBy != SortHelpful {
		invalid("sort_by", s.SortBy)
		sortBy = defaults.SortBy
	}
	s.SortBy = sortBy
	if strings.TrimSpace(s.AcceptLanguage) == "" {
		s.AcceptLanguage = defaults.AcceptLanguage
	}
	if s.DedupeCacheSize <= 0 {
		invalid("dedupe_cache_size", s.DedupeCacheSize)
		s.DedupeCacheSize = defaults.DedupeCacheSize
	}
}

// Config converts the settings into a runtime configuration.
func (s Settings) Config() *Config {
	proxy := ""
	if s.Proxy != nil {
		proxy = strings.TrimSpace(*s.Proxy)
	}
	return &Config{
		UserAgent:            s.UserAgent,
		Timeout:              seconds(s.RequestTimeout),
		Proxy:                proxy,
		RetryCount:           s.RetryCount,
		SleepBetweenRequests: seconds(s.SleepBetweenRequests),
		MaxReviewsPerProduct: s.MaxReviewsPerProduct,
		MaxPages:             s.MaxPages,
		SortBy:               s.SortBy,
		AcceptLanguage:       s.AcceptLanguage,
		DedupeCacheSize:      s.DedupeCacheSize,
		OutputFile:           "data/sample_output.json",
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
