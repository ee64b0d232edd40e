package platform

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

const maxDescriptionLength = 5000

var reviewsPattern = regexp.MustCompile(`(?i)\d+\.?\d*\s*Reviews?`)

// cleanText collapses whitespace runs and trims both ends
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func stripReviews(s string) string {
	return strings.TrimSpace(reviewsPattern.ReplaceAllString(s, ""))
}

// first returns the first element matched by any selector, in order.
// Selectors that fail to compile are logged and skipped.
func first(logger *slog.Logger, doc *goquery.Document, selectors ...string) *goquery.Selection {
	for _, selector := range selectors {
		matcher, err := cascadia.Compile(selector)
		if err != nil {
			logger.Warn("Invalid selector",
				slog.String("selector", selector),
				slog.String("error", err.Error()),
			)
			continue
		}

		sel := doc.FindMatcher(matcher)
		if sel.Length() > 0 {
			return sel.First()
		}
	}

	return nil
}

// firstText is first followed by the element's raw text
func firstText(logger *slog.Logger, doc *goquery.Document, selectors ...string) string {
	sel := first(logger, doc, selectors...)
	if sel == nil {
		return ""
	}
	return sel.Text()
}
