package main

import (
	"fmt"
	"sync"

	"golang.org/x/net/html"
)

// Bundle is a named group of rows that can be collectively shown or hidden.
type Bundle struct {
	Label   string
	Members []Row
	Open    bool

	toggleNode *html.Node
}

// BundleRegistry groups labeled rows into bundles and enforces the single
// invariant that matters here: at most one bundle is open at any time.
type BundleRegistry struct {
	host *Host

	mu      sync.Mutex
	bundles map[string]*Bundle
	order   []string
}

func NewBundleRegistry(host *Host) *BundleRegistry {
	return &BundleRegistry{host: host, bundles: make(map[string]*Bundle)}
}

// Rebuild recomputes bundle membership from the current row set. Open state
// survives a rebuild for labels that still exist; everything else resets to
// closed and hidden.
func (r *BundleRegistry) Rebuild(rows []Row) {
	r.mu.Lock()
	wasOpen := ""
	for label, b := range r.bundles {
		if b.Open {
			wasOpen = label
		}
	}

	old := r.bundles
	r.bundles = make(map[string]*Bundle)
	r.order = nil

	for _, row := range rows {
		if row.Label == "" {
			continue
		}
		b := r.bundles[row.Label]
		if b == nil {
			b = &Bundle{Label: row.Label}
			if prev := old[row.Label]; prev != nil {
				b.toggleNode = prev.toggleNode
			}
			r.bundles[row.Label] = b
			r.order = append(r.order, row.Label)
		}
		b.Members = append(b.Members, row)
	}

	// Toggle rows from labels that vanished this scan.
	for label, b := range old {
		if r.bundles[label] == nil && b.toggleNode != nil {
			r.host.RemoveNode(b.toggleNode)
		}
	}

	bundles := make([]*Bundle, 0, len(r.order))
	for _, label := range r.order {
		r.bundles[label].Open = r.bundles[label].Label == wasOpen
		bundles = append(bundles, r.bundles[label])
	}
	r.mu.Unlock()

	for _, b := range bundles {
		r.render(b)
	}
}

// Toggle opens the named bundle, closing every other one first, or closes it
// if it was the open one. Exclusivity flows through CloseAllBundles, the
// single choke point, so a dual-open state is unreachable.
func (r *BundleRegistry) Toggle(label string) error {
	r.mu.Lock()
	b := r.bundles[label]
	r.mu.Unlock()
	if b == nil {
		return fmt.Errorf("no bundle %q", label)
	}

	wasOpen := b.Open
	r.CloseAllBundles()
	if wasOpen {
		return nil
	}

	r.mu.Lock()
	b.Open = true
	r.mu.Unlock()
	r.render(b)
	return nil
}

// CloseAllBundles closes every bundle. Used by explicit close and by
// exclusivity enforcement.
func (r *BundleRegistry) CloseAllBundles() {
	r.mu.Lock()
	open := make([]*Bundle, 0, 1)
	for _, b := range r.bundles {
		if b.Open {
			b.Open = false
			open = append(open, b)
		}
	}
	r.mu.Unlock()

	for _, b := range open {
		r.render(b)
	}
}

// OpenBundle returns the label of the currently open bundle, or "".
func (r *BundleRegistry) OpenBundle() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for label, b := range r.bundles {
		if b.Open {
			return label
		}
	}
	return ""
}

// Bundles returns the bundle labels in display order.
func (r *BundleRegistry) Bundles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// render applies a bundle's state to the host tree: member visibility and
// the toggle row's affordance text.
func (r *BundleRegistry) render(b *Bundle) {
	for _, row := range b.Members {
		if !r.host.Contains(row.Node) {
			continue
		}
		setRowHidden(row.Node, !b.Open)
	}

	first := firstAttachedMember(r.host, b)
	if first == nil {
		if b.toggleNode != nil {
			r.host.RemoveNode(b.toggleNode)
		}
		return
	}

	if b.toggleNode == nil {
		b.toggleNode = buildToggleNode()
	}
	setToggleText(b.toggleNode, b)
	if err := r.host.InsertBefore(first.Parent, b.toggleNode, first); err != nil {
		debugLog("bundle %q: toggle insert failed: %v", b.Label, err)
	}
}

// Cleanup removes toggle rows and unhides every member. Idempotent.
func (r *BundleRegistry) Cleanup() {
	r.mu.Lock()
	bundles := make([]*Bundle, 0, len(r.bundles))
	for _, b := range r.bundles {
		bundles = append(bundles, b)
	}
	r.bundles = make(map[string]*Bundle)
	r.order = nil
	r.mu.Unlock()

	for _, b := range bundles {
		for _, row := range b.Members {
			if r.host.Contains(row.Node) {
				setRowHidden(row.Node, false)
			}
		}
		if b.toggleNode != nil {
			r.host.RemoveNode(b.toggleNode)
		}
	}
}

func firstAttachedMember(host *Host, b *Bundle) *html.Node {
	for _, row := range b.Members {
		if host.Contains(row.Node) && row.Node.Parent != nil {
			return row.Node
		}
	}
	return nil
}

func setRowHidden(n *html.Node, hidden bool) {
	if hidden {
		addClass(n, "inboxlens-hidden")
		setAttr(n, "style", "display:none")
		return
	}
	removeClass(n, "inboxlens-hidden")
	removeAttr(n, "style")
}

func buildToggleNode() *html.Node {
	tr := newElement("tr")
	markSynthetic(tr, markBundleToggle)
	setAttr(tr, "class", "inboxlens-bundle")

	td := newElement("td")
	setAttr(td, "colspan", "8")
	td.AppendChild(newText(""))
	tr.AppendChild(td)
	return tr
}

func setToggleText(node *html.Node, b *Bundle) {
	text := fmt.Sprintf("▸ %s (%d)", b.Label, len(b.Members))
	if b.Open {
		text = fmt.Sprintf("▾ %s (%d) — view all", b.Label, len(b.Members))
	}
	setAttr(node, "data-label", b.Label)
	if td := node.FirstChild; td != nil && td.FirstChild != nil {
		td.FirstChild.Data = text
	}
}
