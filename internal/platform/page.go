package platform

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// Page holds the current DOM of one page visit. The document is replaced
// wholesale on every mutation; watchers are notified after each replace.
type Page struct {
	mu       sync.RWMutex
	url      string
	doc      *goquery.Document
	watchers map[uint64]chan struct{}
	nextID   uint64
}

// NewPage parses r as the initial DOM of rawURL
func NewPage(rawURL string, r io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	return &Page{
		url:      rawURL,
		doc:      doc,
		watchers: make(map[uint64]chan struct{}),
	}, nil
}

// NewPageFromHTML is NewPage over a string
func NewPageFromHTML(rawURL, html string) (*Page, error) {
	return NewPage(rawURL, strings.NewReader(html))
}

// URL returns the address of the page
func (p *Page) URL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.url
}

// Document returns the current DOM snapshot
func (p *Page) Document() *goquery.Document {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.doc
}

// Replace swaps in a new DOM for the same URL and notifies watchers
func (p *Page) Replace(r io.Reader) error {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return fmt.Errorf("failed to parse page: %w", err)
	}

	p.mu.Lock()
	p.doc = doc
	p.notifyLocked()
	p.mu.Unlock()

	return nil
}

// ReplaceHTML is Replace over a string
func (p *Page) ReplaceHTML(html string) error {
	return p.Replace(strings.NewReader(html))
}

// Watch returns a channel that receives a value after each DOM change.
// Notifications coalesce; the returned func unsubscribes.
func (p *Page) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.watchers[id] = ch
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.watchers, id)
			p.mu.Unlock()
		})
	}
}

func (p *Page) notifyLocked() {
	for _, ch := range p.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
