package parser

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidProductURL is returned when no ASIN can be found in a product locator.
var ErrInvalidProductURL = errors.New("invalid product URL")

const defaultHost = "www.amazon.com"

var (
	asinPathPattern = regexp.MustCompile(`/(?:dp|gp/product|gp/aw/d|product-reviews)/([A-Z0-9]{10})(?:[/?#]|$)`)
	bareASINPattern = regexp.MustCompile(`^[A-Z0-9]{10}$`)
)

// ProductLocator is a resolved product: its ASIN and the site it lives on.
type ProductLocator struct {
	ASIN   string
	Scheme string
	Host   string
}

// ResolveProduct extracts the ASIN and site from a product URL or a bare ASIN.
func ResolveProduct(raw string) (ProductLocator, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ProductLocator{}, fmt.Errorf("%w: empty", ErrInvalidProductURL)
	}

	if bareASINPattern.MatchString(raw) {
		return ProductLocator{ASIN: raw, Scheme: "https", Host: defaultHost}, nil
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return ProductLocator{}, fmt.Errorf("%w: %v", ErrInvalidProductURL, err)
	}
	if parsed.Host == "" {
		return ProductLocator{}, fmt.Errorf("%w: %q has no host", ErrInvalidProductURL, raw)
	}

	matches := asinPathPattern.FindStringSubmatch(parsed.Path)
	if len(matches) < 2 {
		return ProductLocator{}, fmt.Errorf("%w: no ASIN in %q", ErrInvalidProductURL, raw)
	}

	scheme := parsed.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return ProductLocator{ASIN: matches[1], Scheme: scheme, Host: parsed.Host}, nil
}

// ReviewsURL builds the review listing URL for the given page (1-based).
func (p ProductLocator) ReviewsURL(page int, sortBy string) string {
	if page < 1 {
		page = 1
	}
	query := url.Values{}
	query.Set("pageNumber", strconv.Itoa(page))
	query.Set("reviewerType", "all_reviews")
	if sortBy != "" {
		query.Set("sortBy", sortBy)
	}

	u := url.URL{
		Scheme:   p.Scheme,
		Host:     p.Host,
		Path:     "/product-reviews/" + p.ASIN + "/",
		RawQuery: query.Encode(),
	}
	return u.String()
}

// ReviewPermalink returns the canonical link for a single review.
func (p ProductLocator) ReviewPermalink(reviewID string) string {
	if reviewID == "" {
		return ""
	}
	u := url.URL{
		Scheme: p.Scheme,
		Host:   p.Host,
		Path:   "/gp/customer-reviews/" + reviewID + "/",
	}
	return u.String()
}
