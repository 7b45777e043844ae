package parser

import (
	"errors"
	"testing"

	"github.com/aluiziolira/amazon-reviews-scraper/models"
)

func TestValidateReview(t *testing.T) {
	tests := []struct {
		name    string
		review  *models.Review
		wantErr bool
	}{
		{
			name:    "valid review",
			review:  &models.Review{ReviewID: "R1", Rating: 5, Title: "Great", Text: "Loved it"},
			wantErr: false,
		},
		{
			name:    "title only",
			review:  &models.Review{ReviewID: "R1", Rating: 3, Title: "Fine"},
			wantErr: false,
		},
		{
			name:    "nil review",
			review:  nil,
			wantErr: true,
		},
		{
			name:    "missing id",
			review:  &models.Review{Rating: 5, Title: "Great"},
			wantErr: true,
		},
		{
			name:    "rating out of range",
			review:  &models.Review{ReviewID: "R1", Rating: 7, Title: "Great"},
			wantErr: true,
		},
		{
			name:    "no title or text",
			review:  &models.Review{ReviewID: "R1", Rating: 4},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateReview(tt.review)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateReview() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{name: "english", input: "4.0 out of 5 stars", expected: 4},
		{name: "half star", input: "3.5 out of 5 stars", expected: 3.5},
		{name: "decimal comma", input: "2,0 von 5 Sternen", expected: 2},
		{name: "surrounding whitespace", input: "  5.0 out of 5 stars ", expected: 5},
		{name: "empty string", input: "", expected: 0},
		{name: "no digits", input: "five stars", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseRating(tt.input)
			if result != tt.expected {
				t.Errorf("ParseRating(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestParseReviewDate(t *testing.T) {
	tests := []struct {
		name           string
		input          string
		wantReviewedIn string
		wantDate       string
	}{
		{
			name:           "us marketplace",
			input:          "Reviewed in the United States on January 2, 2024",
			wantReviewedIn: "the United States",
			wantDate:       "2024-01-02",
		},
		{
			name:           "uk day first",
			input:          "Reviewed in the United Kingdom on 14 March 2023",
			wantReviewedIn: "the United Kingdom",
			wantDate:       "2023-03-14",
		},
		{
			name:           "bare date",
			input:          "December 25, 2022",
			wantReviewedIn: "",
			wantDate:       "2022-12-25",
		},
		{
			name:           "unknown layout kept verbatim",
			input:          "Reviewed in India on 2024年1月2日",
			wantReviewedIn: "India",
			wantDate:       "2024年1月2日",
		},
		{
			name:           "empty string",
			input:          "",
			wantReviewedIn: "",
			wantDate:       "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reviewedIn, date := ParseReviewDate(tt.input)
			if reviewedIn != tt.wantReviewedIn || date != tt.wantDate {
				t.Errorf("ParseReviewDate(%q) = (%q, %q), want (%q, %q)", tt.input, reviewedIn, date, tt.wantReviewedIn, tt.wantDate)
			}
		})
	}
}

func TestParseHelpfulVotes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{name: "plural", input: "12 people found this helpful", expected: 12},
		{name: "thousands separator", input: "1,234 people found this helpful", expected: 1234},
		{name: "one person", input: "One person found this helpful", expected: 1},
		{name: "empty string", input: "", expected: 0},
		{name: "no digits", input: "Helpful", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseHelpfulVotes(tt.input)
			if result != tt.expected {
				t.Errorf("ParseHelpfulVotes(%q) = %d, want %d", tt.input, result, tt.expected)
			}
		})
	}
}

func TestResolveProduct(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantASIN string
		wantHost string
		wantErr  bool
	}{
		{name: "dp url", input: "https://www.amazon.com/Some-Product-Name/dp/B0ABCDEF12/ref=sr_1_1?keywords=x", wantASIN: "B0ABCDEF12", wantHost: "www.amazon.com"},
		{name: "gp product", input: "https://www.amazon.de/gp/product/B0ABCDEF12", wantASIN: "B0ABCDEF12", wantHost: "www.amazon.de"},
		{name: "reviews url", input: "https://www.amazon.co.uk/product-reviews/B0ABCDEF12/", wantASIN: "B0ABCDEF12", wantHost: "www.amazon.co.uk"},
		{name: "bare asin", input: "B0ABCDEF12", wantASIN: "B0ABCDEF12", wantHost: "www.amazon.com"},
		{name: "no asin", input: "https://www.amazon.com/s?k=headphones", wantErr: true},
		{name: "no host", input: "/dp/B0ABCDEF12", wantErr: true},
		{name: "empty", input: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			product, err := ResolveProduct(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidProductURL) {
					t.Fatalf("expected ErrInvalidProductURL, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveProduct(%q): %v", tt.input, err)
			}
			if product.ASIN != tt.wantASIN || product.Host != tt.wantHost {
				t.Fatalf("ResolveProduct(%q) = %+v", tt.input, product)
			}
		})
	}
}

func TestReviewsURL(t *testing.T) {
	product := ProductLocator{ASIN: "B0ABCDEF12", Scheme: "https", Host: "www.amazon.com"}

	got := product.ReviewsURL(3, "recent")
	want := "https://www.amazon.com/product-reviews/B0ABCDEF12/?pageNumber=3&reviewerType=all_reviews&sortBy=recent"
	if got != want {
		t.Fatalf("ReviewsURL = %q, want %q", got, want)
	}

	if got := product.ReviewsURL(0, ""); got != "https://www.amazon.com/product-reviews/B0ABCDEF12/?pageNumber=1&reviewerType=all_reviews" {
		t.Fatalf("ReviewsURL(0) = %q", got)
	}
}
