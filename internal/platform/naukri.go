package platform

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cuongbtq/applytrack/internal/domain"
)

var naukriSuccessPhrases = []string{
	"applied successfully",
	"you have successfully applied",
	"application submitted",
}

// Naukri adapts naukri.com job pages
type Naukri struct {
	base
	strategies []strategy
}

// NewNaukri returns the Naukri adapter
func NewNaukri(logger *slog.Logger) *Naukri {
	n := &Naukri{
		base: newBase(domain.PlatformNaukri, []string{"naukri.com"}, []string{"button", "a"}, logger),
	}
	n.strategies = []strategy{
		{name: "jd-header", run: n.extractHeader},
		{name: "attribute-pattern", run: n.extractPattern},
		{name: "fallback", run: n.extractFallback},
	}
	return n
}

// Extract runs the Naukri strategies in order
func (n *Naukri) Extract(page *Page) *domain.JobRecord {
	return n.extract(page, n.strategies)
}

// Classify checks the company-site redirect before the generic apply match
func (n *Naukri) Classify(c Control) domain.ApplyFlow {
	text := c.text()
	classes := c.class()

	switch {
	case strings.Contains(text, "company site") ||
		strings.Contains(classes, "company-site-button") ||
		c.ID == "company-site-button":
		return domain.FlowExternalApply

	case strings.Contains(text, "apply") ||
		strings.Contains(classes, "apply-button") ||
		strings.Contains(c.ID, "apply"):
		return domain.FlowDirectApply
	}

	return domain.FlowNone
}

// Completed looks for Naukri's applied banner
func (n *Naukri) Completed(doc *goquery.Document) bool {
	text := strings.ToLower(cleanText(doc.Find("body").Text()))
	for _, phrase := range naukriSuccessPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

func (n *Naukri) extractHeader(doc *goquery.Document) *fields {
	return &fields{
		title: firstText(n.logger, doc, "h1", `[class*="title"]`),
		company: stripReviews(firstText(n.logger, doc,
			`[class="styles_jd-header-comp-name__MvqAI"]`,
			`[class*="comp-name"]`,
			`[class*="company"]`,
		)),
		location: firstText(n.logger, doc,
			`[class="styles_jhc__location__W_pVs"]`,
			".loc-wrap",
			".location",
			`[class*="location"]`,
		),
		description: firstText(n.logger, doc,
			".dang-inner-html",
			".job-description",
			`[class*="jd-desc"]`,
			`[class*="description"]`,
		),
	}
}

func (n *Naukri) extractPattern(doc *goquery.Document) *fields {
	return &fields{
		title:       firstText(n.logger, doc, "h1"),
		company:     stripReviews(firstText(n.logger, doc, `[class*="company"]`)),
		location:    firstText(n.logger, doc, `[class*="location"]`),
		description: firstText(n.logger, doc, `[class*="description"]`),
	}
}

func (n *Naukri) extractFallback(doc *goquery.Document) *fields {
	return &fields{
		title:   firstText(n.logger, doc, "h1"),
		company: stripReviews(firstText(n.logger, doc, `[class*="comp"]`)),
	}
}
