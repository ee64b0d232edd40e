package platform

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cuongbtq/applytrack/internal/domain"
)

// linkedInSuccessPhrases are looked for inside the Easy Apply dialog
var linkedInSuccessPhrases = []string{
	"application sent",
	"your application was sent",
	"done",
}

// LinkedIn adapts linkedin.com job pages
type LinkedIn struct {
	base
	strategies []strategy
}

// NewLinkedIn returns the LinkedIn adapter
func NewLinkedIn(logger *slog.Logger) *LinkedIn {
	l := &LinkedIn{
		base: newBase(domain.PlatformLinkedIn, []string{"linkedin.com"}, []string{"button"}, logger),
	}
	l.strategies = []strategy{
		{name: "unified-top-card", run: l.extractTopCard},
		{name: "attribute-pattern", run: l.extractPattern},
		{name: "fallback", run: l.extractFallback},
	}
	return l
}

// Extract runs the LinkedIn strategies in order
func (l *LinkedIn) Extract(page *Page) *domain.JobRecord {
	return l.extract(page, l.strategies)
}

// Classify checks submit first so a final "Submit application" button is
// never taken for a fresh apply button.
func (l *LinkedIn) Classify(c Control) domain.ApplyFlow {
	text := c.text()
	aria := c.aria()
	classes := c.class()

	switch {
	case strings.Contains(text, "submit application") ||
		strings.Contains(aria, "submit application") ||
		text == "submit":
		return domain.FlowSubmit

	case strings.Contains(text, "easy apply") ||
		strings.Contains(aria, "easy apply"):
		return domain.FlowEasyApply

	case strings.Contains(text, "submit"):
		return domain.FlowNone

	case strings.HasPrefix(text, "apply") ||
		strings.Contains(aria, "apply to") ||
		(strings.Contains(classes, "jobs-apply-button") && !strings.Contains(text, "easy")):
		return domain.FlowExternalApply
	}

	return domain.FlowNone
}

// Completed looks for the post-submit dialog
func (l *LinkedIn) Completed(doc *goquery.Document) bool {
	found := false
	doc.Find(`[role="dialog"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.ToLower(cleanText(s.Text()))
		for _, phrase := range linkedInSuccessPhrases {
			if strings.Contains(text, phrase) {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

func (l *LinkedIn) extractTopCard(doc *goquery.Document) *fields {
	title := firstText(l.logger, doc,
		"h1.t-24.t-bold",
		"h1.job-title",
		".job-details-jobs-unified-top-card__job-title",
	)
	company := firstText(l.logger, doc,
		".job-details-jobs-unified-top-card__company-name a",
		".job-details-jobs-unified-top-card__company-name",
		".jobs-unified-top-card__company-name",
	)
	location := firstText(l.logger, doc,
		`span[dir="ltr"] span.tvm__text--low-emphasis`,
		".job-details-jobs-unified-top-card__bullet",
		".jobs-unified-top-card__bullet",
	)
	if i := strings.Index(location, "·"); i >= 0 {
		location = location[:i]
	}
	description := firstText(l.logger, doc,
		".jobs-description-content__text",
		".jobs-description__content",
		".jobs-box__html-content",
	)

	return &fields{title: title, company: company, location: location, description: description}
}

func (l *LinkedIn) extractPattern(doc *goquery.Document) *fields {
	return &fields{
		title:       firstText(l.logger, doc, "h1"),
		company:     firstText(l.logger, doc, `[class*="company"]`),
		location:    firstText(l.logger, doc, `[class*="location"]`),
		description: firstText(l.logger, doc, `[class*="description"]`),
	}
}

func (l *LinkedIn) extractFallback(doc *goquery.Document) *fields {
	return &fields{
		title:   firstText(l.logger, doc, "h1"),
		company: firstText(l.logger, doc, `a[href*="company"]`),
	}
}
