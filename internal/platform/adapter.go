// Package platform recognises job board pages, extracts job records from
// them and classifies clicked controls into application flows.
package platform

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cuongbtq/applytrack/internal/domain"
)

// Adapter is implemented once per supported job board.
// None of its methods return errors: every internal failure degrades to a miss.
type Adapter interface {
	// Platform returns the board tag stamped on extracted records
	Platform() domain.Platform
	// Matches reports whether the adapter handles pages on host
	Matches(host string) bool
	// Extract returns a record with a non-empty title and company, or nil
	Extract(page *Page) *domain.JobRecord
	// Classify returns the flow a control starts, or domain.FlowNone
	Classify(c Control) domain.ApplyFlow
	// Control resolves a clicked element to the control the board reacts to
	Control(target *goquery.Selection) (Control, bool)
	// Completed reports whether doc shows the in-page success signal
	Completed(doc *goquery.Document) bool
}

// fields is the raw result of one extraction strategy
type fields struct {
	title       string
	company     string
	location    string
	description string
}

type strategy struct {
	name string
	run  func(doc *goquery.Document) *fields
}

// base carries what every board shares
type base struct {
	platform domain.Platform
	hosts    []string
	tags     []string
	logger   *slog.Logger
	now      func() time.Time
}

func newBase(p domain.Platform, hosts, tags []string, logger *slog.Logger) base {
	return base{
		platform: p,
		hosts:    hosts,
		tags:     tags,
		logger:   logger.With(slog.String("platform", string(p))),
		now:      time.Now,
	}
}

func (b *base) Platform() domain.Platform { return b.platform }

func (b *base) Matches(host string) bool {
	host = strings.ToLower(host)
	for _, h := range b.hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func (b *base) Control(target *goquery.Selection) (Control, bool) {
	return resolveControl(target, b.tags)
}

// extract runs strategies in order and returns the first result with both a
// title and a company. A panicking strategy counts as a miss.
func (b *base) extract(page *Page, strategies []strategy) *domain.JobRecord {
	if page == nil {
		return nil
	}
	doc := page.Document()

	for _, s := range strategies {
		f := b.try(s, doc)
		if f == nil {
			continue
		}

		f.title = cleanText(f.title)
		f.company = cleanText(f.company)
		if f.title == "" || f.company == "" {
			continue
		}

		b.logger.Debug("Job details extracted",
			slog.String("strategy", s.name),
			slog.String("job_title", f.title),
			slog.String("company_name", f.company),
		)

		return &domain.JobRecord{
			JobTitle:    f.title,
			CompanyName: f.company,
			Location:    cleanText(f.location),
			Description: truncate(cleanText(f.description), maxDescriptionLength),
			JobURL:      page.URL(),
			Platform:    b.platform,
			AppliedAt:   b.now().UTC(),
		}
	}

	b.logger.Info("No extraction strategy matched",
		slog.String("url", page.URL()),
	)
	return nil
}

func (b *base) try(s strategy, doc *goquery.Document) (f *fields) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("Extraction strategy failed",
				slog.String("strategy", s.name),
				slog.String("error", fmt.Sprint(r)),
			)
			f = nil
		}
	}()

	return s.run(doc)
}

// Registry selects an adapter by page origin
type Registry struct {
	adapters []Adapter
}

// NewRegistry returns a registry holding every supported board
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		adapters: []Adapter{
			NewLinkedIn(logger),
			NewNaukri(logger),
		},
	}
}

// ForURL returns the adapter for rawURL's host
func (r *Registry) ForURL(rawURL string) (Adapter, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, false
	}

	for _, a := range r.adapters {
		if a.Matches(u.Hostname()) {
			return a, true
		}
	}

	return nil, false
}
