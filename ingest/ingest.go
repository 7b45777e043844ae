// Package ingest reads and normalizes the list of products to scrape.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"

	"github.com/aluiziolira/amazon-reviews-scraper/models"
	"github.com/aluiziolira/amazon-reviews-scraper/storage"
)

var (
	// ErrNotArray is returned when the input document is not a JSON array.
	ErrNotArray = errors.New("input must be a JSON array")
	// ErrNoValidProducts is returned when no entry carries a usable URL.
	ErrNoValidProducts = errors.New("input contains no valid products")
)

// LoadProducts reads path and normalizes its entries.
func LoadProducts(store *storage.Manager, path string, logger *slog.Logger) ([]models.ProductRequest, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = storage.NewManager(logger)
	}

	var data []byte
	err := store.OpenForRead(path, func(r io.Reader) error {
		var readErr error
		data, readErr = io.ReadAll(r)
		return readErr
	})
	if err != nil {
		return nil, fmt.Errorf("read input %s: %w", path, err)
	}

	products, err := ParseProducts(data, logger)
	if err != nil {
		return nil, fmt.Errorf("load input %s: %w", path, err)
	}
	logger.Info("loaded input", slog.String("path", path), slog.Int("products", len(products)))
	return products, nil
}

// ParseProducts normalizes a JSON array of product entries. Each entry is an
// object with "productUrl" or "url" and an optional positive "maxReviews".
// Invalid entries are skipped with a warning; input order is preserved.
func ParseProducts(data []byte, logger *slog.Logger) ([]models.ProductRequest, error) {
	if logger == nil {
		logger = slog.Default()
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrNotArray
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}

	products := make([]models.ProductRequest, 0, len(entries))
	for i, raw := range entries {
		entryLogger := logger.With(slog.Int("entry", i))

		var entry map[string]any
		if err := json.Unmarshal(raw, &entry); err != nil || entry == nil {
			entryLogger.Warn("skipping input entry that is not an object")
			continue
		}

		productURL := entryURL(entry)
		if productURL == "" {
			entryLogger.Warn("skipping input entry without productUrl or url")
			continue
		}

		request := models.ProductRequest{URL: productURL}
		if value, ok := entry["maxReviews"]; ok && value != nil {
			if n, valid := positiveInt(value); valid {
				request.MaxReviews = n
			} else {
				entryLogger.Warn("ignoring invalid maxReviews",
					slog.String("url", productURL),
					slog.Any("maxReviews", value),
				)
			}
		}
		products = append(products, request)
	}

	if len(products) == 0 {
		return nil, ErrNoValidProducts
	}
	return products, nil
}

func entryURL(entry map[string]any) string {
	for _, key := range []string{"productUrl", "url"} {
		if value, ok := entry[key].(string); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

func positiveInt(value any) (int, bool) {
	n, ok := value.(float64)
	if !ok || n < 1 || n != math.Trunc(n) || n > math.MaxInt32 {
		return 0, false
	}
	return int(n), true
}
