package platform

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxControlDepth bounds how far a click target is walked up to its control
const maxControlDepth = 5

// Control describes the interactive element a user clicked
type Control struct {
	Tag       string `json:"tag"`
	Text      string `json:"text"`
	AriaLabel string `json:"ariaLabel"`
	Class     string `json:"class"`
	ID        string `json:"id"`
	Role      string `json:"role"`
}

func (c Control) text() string  { return strings.ToLower(cleanText(c.Text)) }
func (c Control) aria() string  { return strings.ToLower(strings.TrimSpace(c.AriaLabel)) }
func (c Control) class() string { return c.Class }

// isControl reports whether c is a clickable control under the given tags
func (c Control) isControl(tags []string) bool {
	if c.Role == "button" {
		return true
	}
	for _, tag := range tags {
		if strings.EqualFold(c.Tag, tag) {
			return true
		}
	}
	return false
}

func controlFromSelection(sel *goquery.Selection) Control {
	node := sel.Get(0)
	class, _ := sel.Attr("class")
	id, _ := sel.Attr("id")
	aria, _ := sel.Attr("aria-label")
	role, _ := sel.Attr("role")

	return Control{
		Tag:       strings.ToLower(node.Data),
		Text:      cleanText(sel.Text()),
		AriaLabel: aria,
		Class:     class,
		ID:        id,
		Role:      role,
	}
}

// resolveControl walks up from the clicked element to the nearest control
// whose tag is in tags (or role="button"), at most maxControlDepth levels.
func resolveControl(target *goquery.Selection, tags []string) (Control, bool) {
	sel := target.First()
	for i := 0; i < maxControlDepth && sel.Length() > 0; i++ {
		if goquery.NodeName(sel) == "body" {
			break
		}
		c := controlFromSelection(sel)
		if c.isControl(tags) {
			return c, true
		}
		sel = sel.Parent()
	}

	return Control{}, false
}
