package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Attribute marking synthetic elements so the engine can recognize (and the
// row catalog can exclude) its own insertions.
const (
	attrMark  = "data-inboxlens"
	attrInert = "data-inboxlens-inert"

	markHeader       = "header"
	markOverlay      = "overlay"
	markBundleToggle = "bundle-toggle"
)

// ErrInteractionUnsupported is returned when no interaction bridge is
// attached to the host; strategies treat it as "affordance unavailable".
var ErrInteractionUnsupported = errors.New("host has no interaction bridge")

// MutationRecord describes one structural change to the host tree.
type MutationRecord struct {
	Parent  *html.Node
	Added   []*html.Node
	Removed []*html.Node
}

// InteractionKind distinguishes synthetic input sequences.
type InteractionKind string

const (
	InteractPointer InteractionKind = "pointer"
	InteractKeys    InteractionKind = "keys"
)

// Interaction is a synthesized user-input sequence delivered to the host
// page. Pointer interactions carry the realistic event step order the host's
// own handlers expect.
type Interaction struct {
	Kind   InteractionKind
	Target *html.Node
	Steps  []string
	Keys   string
}

// PageLoader fetches and parses a document for a URL.
type PageLoader func(url string) (*html.Node, error)

// InteractionFunc delivers a synthetic input sequence to the live page. The
// host page may re-render its tree in response.
type InteractionFunc func(Interaction) error

// Host is the live page surface the engine observes and augments. The
// underlying tree is externally mutated at any suspension point, so every
// read re-validates attachment and every write goes through Host so that
// mutation subscribers fire.
type Host struct {
	mu          sync.Mutex
	doc         *html.Node
	location    string
	loader      PageLoader
	interactor  InteractionFunc
	subscribers map[int]func(MutationRecord)
	nextSubID   int
}

// NewHost wraps an already-parsed document.
func NewHost(doc *html.Node, location string) *Host {
	return &Host{
		doc:         doc,
		location:    location,
		subscribers: make(map[int]func(MutationRecord)),
	}
}

// NewHostFromHTML parses src and wraps it.
func NewHostFromHTML(src, location string) (*Host, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parsing page: %w", err)
	}
	return NewHost(doc, location), nil
}

// LoadPage fetches a live page over HTTP and parses it.
func LoadPage(client *http.Client, url string) (*html.Node, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", url, err)
	}
	return doc, nil
}

// SetLoader installs the page loader used by Navigate.
func (h *Host) SetLoader(loader PageLoader) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loader = loader
}

// SetInteractor installs the bridge that delivers synthetic input.
func (h *Host) SetInteractor(fn InteractionFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.interactor = fn
}

// Location returns the current page URL.
func (h *Host) Location() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.location
}

// Root returns the live document root.
func (h *Host) Root() *html.Node {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.doc
}

// Document returns a goquery view over the live tree. The view shares nodes
// with the tree; it is a lens, not a snapshot.
func (h *Host) Document() *goquery.Document {
	h.mu.Lock()
	defer h.mu.Unlock()
	return goquery.NewDocumentFromNode(h.doc)
}

// Navigate replaces the current document with the one at url. Mutation
// subscriptions do not survive navigation; callers re-observe after load.
func (h *Host) Navigate(url string) error {
	h.mu.Lock()
	loader := h.loader
	h.mu.Unlock()

	if loader == nil {
		return fmt.Errorf("navigating to %s: no page loader", url)
	}

	doc, err := loader(url)
	if err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}

	h.mu.Lock()
	h.doc = doc
	h.location = url
	h.subscribers = make(map[int]func(MutationRecord))
	h.mu.Unlock()
	return nil
}

// Subscribe registers a structural-change callback and returns its cancel
// function. Cancel is idempotent.
func (h *Host) Subscribe(fn func(MutationRecord)) func() {
	h.mu.Lock()
	id := h.nextSubID
	h.nextSubID++
	h.subscribers[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subscribers, id)
		h.mu.Unlock()
	}
}

// Contains reports whether n is still attached to the current document.
func (h *Host) Contains(n *html.Node) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.containsLocked(n)
}

func (h *Host) containsLocked(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == h.doc {
			return true
		}
	}
	return false
}

// InsertBefore inserts node under parent immediately before ref. A nil ref
// appends. Safe to repeat: inserting an already-positioned node is a no-op.
func (h *Host) InsertBefore(parent, node, ref *html.Node) error {
	h.mu.Lock()
	if !h.containsLocked(parent) {
		h.mu.Unlock()
		return fmt.Errorf("insert: parent detached from document")
	}
	if ref != nil && ref.Parent != parent {
		h.mu.Unlock()
		return fmt.Errorf("insert: reference node not a child of parent")
	}
	if node.Parent == parent && node.NextSibling == ref {
		h.mu.Unlock()
		return nil
	}
	if node.Parent != nil {
		node.Parent.RemoveChild(node)
	}
	parent.InsertBefore(node, ref)
	h.mu.Unlock()

	h.notify(MutationRecord{Parent: parent, Added: []*html.Node{node}})
	return nil
}

// AppendChild appends node as parent's last child.
func (h *Host) AppendChild(parent, node *html.Node) error {
	return h.InsertBefore(parent, node, nil)
}

// RemoveNode detaches node from the tree. Removing an already-detached node
// is a no-op.
func (h *Host) RemoveNode(node *html.Node) {
	h.mu.Lock()
	parent := node.Parent
	if parent == nil {
		h.mu.Unlock()
		return
	}
	parent.RemoveChild(node)
	h.mu.Unlock()

	h.notify(MutationRecord{Parent: parent, Removed: []*html.Node{node}})
}

// notify is called without the lock held so subscribers may re-enter the
// host (stability checks re-insert headers from inside their callback).
func (h *Host) notify(rec MutationRecord) {
	h.mu.Lock()
	fns := make([]func(MutationRecord), 0, len(h.subscribers))
	for _, fn := range h.subscribers {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(rec)
	}
}

// Interact delivers a synthetic input sequence to the page. Input aimed at
// an inert synthetic element is swallowed so the host's own handlers never
// see it.
func (h *Host) Interact(in Interaction) error {
	h.mu.Lock()
	interactor := h.interactor
	h.mu.Unlock()

	if in.Target != nil && getAttr(in.Target, attrInert) == "true" {
		return nil
	}
	if interactor == nil {
		return ErrInteractionUnsupported
	}
	return interactor(in)
}

// Body returns the document's body element, or nil if the tree has none.
func (h *Host) Body() *html.Node {
	doc := h.Document()
	sel := doc.Find("body")
	if len(sel.Nodes) == 0 {
		return nil
	}
	return sel.Nodes[0]
}

// DOM node helpers. The engine builds its synthetic elements directly so the
// host's own parser never runs on engine-generated markup.

func newElement(tag string) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: tag}
}

func newText(text string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: text}
}

func getAttr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(getAttr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func addClass(n *html.Node, class string) {
	if hasClass(n, class) {
		return
	}
	existing := getAttr(n, "class")
	if existing == "" {
		setAttr(n, "class", class)
		return
	}
	setAttr(n, "class", existing+" "+class)
}

func removeClass(n *html.Node, class string) {
	fields := strings.Fields(getAttr(n, "class"))
	kept := fields[:0]
	for _, c := range fields {
		if c != class {
			kept = append(kept, c)
		}
	}
	setAttr(n, "class", strings.Join(kept, " "))
}

// markSynthetic tags an engine-created element and suppresses all default
// interactions on it so the host cannot mistake it for a real row.
func markSynthetic(n *html.Node, kind string) {
	setAttr(n, attrMark, kind)
	setAttr(n, attrInert, "true")
	setAttr(n, "aria-hidden", "true")
	setAttr(n, "tabindex", "-1")
}

// nodeText returns the concatenated text content of n's subtree.
func nodeText(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.TextNode {
			b.WriteString(cur.Data)
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}
