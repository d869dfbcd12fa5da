package main

import (
	"log"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// minRowCells is the cell count that qualifies a candidate as row-like when
// it carries no address signal.
const minRowCells = 4

// RowLocator is one structural fingerprint for finding message rows.
// Locators are tried most-specific-first; the first validated non-empty
// result set wins.
type RowLocator interface {
	Name() string
	Locate(doc *goquery.Document) []*html.Node
}

// selectorLocator matches rows by a CSS selector.
type selectorLocator struct {
	name     string
	selector string
}

func (l *selectorLocator) Name() string { return l.name }

func (l *selectorLocator) Locate(doc *goquery.Document) []*html.Node {
	return doc.Find(l.selector).Nodes
}

// RowCatalog locates and validates message rows in the host tree.
type RowCatalog struct {
	host      *Host
	selectors SelectorSet
	locators  []RowLocator
}

// NewRowCatalog builds a catalog whose locator order follows the settings'
// prioritized row fingerprints.
func NewRowCatalog(host *Host, selectors SelectorSet) *RowCatalog {
	locators := make([]RowLocator, 0, len(selectors.Rows))
	for _, sel := range selectors.Rows {
		locators = append(locators, &selectorLocator{name: sel, selector: sel})
	}
	return &RowCatalog{host: host, selectors: selectors, locators: locators}
}

// AddLocator appends a locator to the end of the cascade.
func (c *RowCatalog) AddLocator(l RowLocator) {
	c.locators = append(c.locators, l)
}

// FindRows returns the first validated non-empty row set the cascade yields.
// It never fails: an empty result means the host is not ready and the caller
// should retry on a timer.
func (c *RowCatalog) FindRows() []Row {
	doc := c.host.Document()

	for _, locator := range c.locators {
		candidates := locator.Locate(doc)
		rows := make([]Row, 0, len(candidates))
		for _, n := range candidates {
			if !validRowNode(n) {
				continue
			}
			rows = append(rows, c.parseRow(n))
		}
		if len(rows) > 0 {
			debugLog("row catalog: %d rows via %q", len(rows), locator.Name())
			return rows
		}
	}

	return nil
}

// WaitForRows retries FindRows on a fixed interval until rows appear or the
// attempt budget is exhausted, in which case it logs a diagnostic and gives
// up with an empty result.
func (c *RowCatalog) WaitForRows(attempts int, sleep func()) []Row {
	for i := 0; i < attempts; i++ {
		if rows := c.FindRows(); len(rows) > 0 {
			return rows
		}
		if i < attempts-1 {
			sleep()
		}
	}
	log.Printf("row catalog: no message rows after %d attempts, giving up", attempts)
	return nil
}

// validRowNode requires row-like signals so menus, toolbars and the engine's
// own synthetic rows never pass as messages.
func validRowNode(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if getAttr(n, attrMark) != "" {
		return false
	}

	sel := wrapNode(n)
	if sel.Find("[email]").Length() > 0 {
		return true
	}
	if strings.Contains(sel.Text(), "@") {
		return true
	}
	return cellCount(sel) >= minRowCells
}

func cellCount(sel *goquery.Selection) int {
	return sel.Find("td").Length() + sel.Find(`[role="gridcell"]`).Length()
}

// parseRow reads a Row's display fields through the configured fallback
// selectors; every field degrades to empty rather than failing the scan.
func (c *RowCatalog) parseRow(n *html.Node) Row {
	sel := wrapNode(n)
	s := c.selectors

	row := Row{
		Node:     n,
		Sender:   firstText(sel, s.RowSender...),
		Subject:  firstText(sel, s.RowSubject...),
		Snippet:  firstText(sel, s.RowSnippet...),
		DateText: firstText(sel, s.RowDate...),
		ThreadID: firstAttr(n, s.ThreadIDKeys...),
		Label:    getAttr(n, "data-label"),
		Unread:   hasClass(n, "unread") || sel.Find(".subject b, b .subject").Length() > 0,
		Starred:  hasClass(n, "starred") || sel.Find(`[aria-label="Starred"]`).Length() > 0,
	}

	if row.Sender == "" {
		if email, ok := sel.Find("[email]").Attr("email"); ok {
			row.Sender = email
		}
	}
	return row
}

// wrapNode returns a goquery selection scoped to one node's subtree.
func wrapNode(n *html.Node) *goquery.Selection {
	return goquery.NewDocumentFromNode(n).Selection
}

// firstText returns the trimmed text of the first selector that matches.
func firstText(sel *goquery.Selection, selectors ...string) string {
	for _, s := range selectors {
		found := sel.Find(s)
		if found.Length() > 0 {
			if text := strings.TrimSpace(found.First().Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

func firstAttr(n *html.Node, keys ...string) string {
	for _, key := range keys {
		if v := getAttr(n, key); v != "" {
			return v
		}
	}
	return ""
}
