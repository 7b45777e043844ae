// Package parser extracts reviews from listing pages and normalizes their fields.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/amazon-reviews-scraper/models"
)

var (
	// ErrUnrecognizedPage means the body is HTML but not a review listing.
	ErrUnrecognizedPage = errors.New("unrecognized review page markup")
	// ErrCaptcha means the site answered with a robot check instead of content.
	ErrCaptcha = errors.New("robot check page")
)

const (
	reviewListSelector = "#cm_cr-review_list"
	reviewSelector     = `[data-hook="review"]`
	ratingSelector     = `[data-hook="review-star-rating"], [data-hook="cmps-review-star-rating"]`
	titleSelector      = `[data-hook="review-title"]`
	dateSelector       = `[data-hook="review-date"]`
	bodySelector       = `[data-hook="review-body"]`
	variantSelector    = `[data-hook="format-strip"], [data-hook="format-strip-linkless"]`
	verifiedSelector   = `[data-hook="avp-badge"], [data-hook="avp-badge-linkless"]`
	helpfulSelector    = `[data-hook="helpful-vote-statement"]`
	captchaSelector    = `form[action*="validateCaptcha"], #captchacharacters`
)

// ReviewPage holds the reviews found on one listing page.
type ReviewPage struct {
	Reviews     []models.Review
	HasNextPage bool
}

// ParseReviewPage extracts every review on a listing page. Reviews carry the
// fields visible in the markup; product fields are left to the caller.
func ParseReviewPage(body []byte, product ProductLocator) (*ReviewPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	if doc.Find(captchaSelector).Length() > 0 {
		return nil, ErrCaptcha
	}

	reviewNodes := doc.Find(reviewSelector)
	if doc.Find(reviewListSelector).Length() == 0 && reviewNodes.Length() == 0 {
		return nil, ErrUnrecognizedPage
	}

	page := &ReviewPage{
		Reviews:     make([]models.Review, 0, reviewNodes.Length()),
		HasNextPage: hasNextPage(doc),
	}
	reviewNodes.Each(func(_ int, sel *goquery.Selection) {
		if review, ok := extractReview(sel, product); ok {
			page.Reviews = append(page.Reviews, review)
		}
	})
	return page, nil
}

func extractReview(sel *goquery.Selection, product ProductLocator) (models.Review, bool) {
	id, _ := sel.Attr("id")
	id = strings.TrimSpace(id)
	// Without an id a review can be neither deduplicated nor linked.
	if id == "" {
		return models.Review{}, false
	}

	titleSel := sel.Find(titleSelector).First()
	title := titleText(titleSel)
	text := CleanText(sel.Find(bodySelector).First().Text())

	ratingText := sel.Find(ratingSelector).First().Find(".a-icon-alt").Text()
	if strings.TrimSpace(ratingText) == "" {
		ratingText = titleSel.Find(".a-icon-alt").Text()
	}

	reviewedIn, date := ParseReviewDate(sel.Find(dateSelector).First().Text())

	reviewURL := ""
	if href, ok := titleSel.Attr("href"); ok && strings.TrimSpace(href) != "" {
		reviewURL = absoluteURL(product, href)
	} else {
		reviewURL = product.ReviewPermalink(id)
	}

	return models.Review{
		ReviewID:     id,
		Author:       CleanText(sel.Find(".a-profile-name").First().Text()),
		Rating:       ParseRating(ratingText),
		Title:        title,
		Text:         text,
		Date:         date,
		ReviewedIn:   reviewedIn,
		Variant:      CleanText(sel.Find(variantSelector).First().Text()),
		Verified:     sel.Find(verifiedSelector).Length() > 0,
		HelpfulVotes: ParseHelpfulVotes(sel.Find(helpfulSelector).First().Text()),
		ReviewURL:    reviewURL,
	}, true
}

// titleText drops the star rating some locales render inside the title link.
func titleText(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	clone := sel.Clone()
	clone.Find(".a-icon-alt, .a-letter-space, i").Remove()
	return CleanText(clone.Text())
}

func hasNextPage(doc *goquery.Document) bool {
	last := doc.Find("ul.a-pagination li.a-last").First()
	if last.Length() == 0 || last.HasClass("a-disabled") {
		return false
	}
	return last.Find("a[href]").Length() > 0
}

func absoluteURL(product ProductLocator, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	base := &url.URL{Scheme: product.Scheme, Host: product.Host, Path: "/"}
	return base.ResolveReference(ref).String()
}
