package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/amazon-reviews-scraper/models"
)

var (
	whitespacePattern = regexp.MustCompile(`\s+`)
	ratingPattern     = regexp.MustCompile(`(\d+(?:[.,]\d+)?)`)
	reviewedInPattern = regexp.MustCompile(`(?i)^reviewed in (.+?) on (.+)$`)
	helpfulPattern    = regexp.MustCompile(`([\d,.]+)`)
)

var dateLayouts = []string{
	"January 2, 2006",
	"2 January 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"2006-01-02",
}

// ValidateReview ensures the scraper captured the required fields.
func ValidateReview(r *models.Review) error {
	if r == nil {
		return fmt.Errorf("review is nil")
	}
	if strings.TrimSpace(r.ReviewID) == "" {
		return fmt.Errorf("review missing id")
	}
	if r.Rating < 0 || r.Rating > 5 {
		return fmt.Errorf("review %s has rating %.1f outside 0-5", r.ReviewID, r.Rating)
	}
	if strings.TrimSpace(r.Title) == "" && strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("review %s has neither title nor text", r.ReviewID)
	}
	return nil
}

// CleanText collapses runs of whitespace and trims the result.
func CleanText(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

// ParseRating converts "4.0 out of 5 stars" (or "4,0 von 5 Sternen") to 4.0.
// Unparseable text yields 0.
func ParseRating(text string) float64 {
	match := ratingPattern.FindString(text)
	if match == "" {
		return 0
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", "."), 64)
	if err != nil {
		return 0
	}
	return value
}

// ParseReviewDate splits "Reviewed in the United States on January 2, 2024"
// into the marketplace and an ISO date. Dates in unknown layouts are
// returned as found.
func ParseReviewDate(text string) (reviewedIn, date string) {
	text = CleanText(text)
	if text == "" {
		return "", ""
	}

	rawDate := text
	if matches := reviewedInPattern.FindStringSubmatch(text); len(matches) == 3 {
		reviewedIn = strings.TrimSpace(matches[1])
		rawDate = strings.TrimSpace(matches[2])
	}

	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, rawDate); err == nil {
			return reviewedIn, parsed.Format("2006-01-02")
		}
	}
	return reviewedIn, rawDate
}

// ParseHelpfulVotes converts "1,234 people found this helpful" to 1234.
// "One person found this helpful" counts as 1.
func ParseHelpfulVotes(text string) int {
	text = CleanText(text)
	if text == "" {
		return 0
	}
	if strings.HasPrefix(strings.ToLower(text), "one ") {
		return 1
	}
	match := helpfulPattern.FindString(text)
	if match == "" {
		return 0
	}
	digits := strings.NewReplacer(",", "", ".", "").Replace(match)
	value, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return value
}
