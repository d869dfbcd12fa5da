package main

import (
	"log"
	"sync"
	"time"

	"golang.org/x/net/html"
)

// HeaderRecord is one synthetic header instance. Records are replaced, never
// mutated, on every re-scan.
type HeaderRecord struct {
	Category   Category
	Anchor     *html.Node
	Node       *html.Node
	InsertedAt time.Time
}

// HeaderManager inserts and repositions the non-interactive category header
// rows. The host reorders and removes rows at will, so each header gets a
// short-delay stability check plus a narrow change subscription that
// re-inserts a displaced header or drops one whose anchor disappeared.
type HeaderManager struct {
	host    *Host
	budgets Budgets

	mu      sync.Mutex
	records map[Category]*HeaderRecord
	cancels map[Category]func()
	timers  map[Category]*time.Timer
}

func NewHeaderManager(host *Host, budgets Budgets) *HeaderManager {
	return &HeaderManager{
		host:    host,
		budgets: budgets,
		records: make(map[Category]*HeaderRecord),
		cancels: make(map[Category]func()),
		timers:  make(map[Category]*time.Timer),
	}
}

// Sync ensures exactly the headers for categories that currently have rows,
// anchored at each category's first row. Headers for empty categories are
// removed.
func (m *HeaderManager) Sync(groups map[Category][]Row) {
	for _, cat := range CategoryOrder {
		rows := groups[cat]
		if len(rows) == 0 {
			m.dropHeader(cat)
			continue
		}
		m.EnsureHeader(cat, rows[0].Node)
	}
}

// EnsureHeader makes a header for category sit immediately before anchor.
// If one already occupies the correct position, this is a no-op; re-scans
// must not thrash the host tree.
func (m *HeaderManager) EnsureHeader(category Category, anchor *html.Node) {
	if anchor == nil || !m.host.Contains(anchor) || anchor.Parent == nil {
		debugLog("header %q: anchor detached, skipping", category)
		return
	}

	m.mu.Lock()
	rec := m.records[category]
	if m.positionedLocked(rec) && rec.Anchor == anchor {
		m.mu.Unlock()
		return
	}
	// Disarm the old stability hooks before touching the tree, or their own
	// removal notification would resurrect the stale header.
	stale := rec
	delete(m.records, category)
	if cancel := m.cancels[category]; cancel != nil {
		cancel()
		delete(m.cancels, category)
	}
	if timer := m.timers[category]; timer != nil {
		timer.Stop()
		delete(m.timers, category)
	}
	m.mu.Unlock()

	if stale != nil {
		m.host.RemoveNode(stale.Node)
	}
	m.removeOrphans(category)

	node := buildHeaderNode(category)
	if err := m.host.InsertBefore(anchor.Parent, node, anchor); err != nil {
		log.Printf("header %q: insert failed: %v", category, err)
		return
	}

	m.mu.Lock()
	m.records[category] = &HeaderRecord{
		Category:   category,
		Anchor:     anchor,
		Node:       node,
		InsertedAt: time.Now(),
	}
	m.resetStabilityLocked(category, anchor.Parent)
	m.mu.Unlock()
}

// positionedLocked reports whether rec's header still immediately precedes
// its anchor under the same attached parent. Anything else is stale and must
// be rebuilt, never left in place.
func (m *HeaderManager) positionedLocked(rec *HeaderRecord) bool {
	if rec == nil || rec.Node == nil || rec.Anchor == nil {
		return false
	}
	if !m.host.Contains(rec.Node) || !m.host.Contains(rec.Anchor) {
		return false
	}
	return rec.Node.Parent == rec.Anchor.Parent && rec.Node.NextSibling == rec.Anchor
}

// resetStabilityLocked arms the post-insert stability check: a one-shot
// verification after a short delay, and a narrow subscription on the
// anchor's parent for later mutations. Caller holds m.mu.
func (m *HeaderManager) resetStabilityLocked(category Category, parent *html.Node) {
	if cancel := m.cancels[category]; cancel != nil {
		cancel()
	}
	if timer := m.timers[category]; timer != nil {
		timer.Stop()
	}

	m.timers[category] = time.AfterFunc(m.budgets.StabilityDelay(), func() {
		m.checkStability(category)
	})
	m.cancels[category] = m.host.Subscribe(func(rec MutationRecord) {
		if rec.Parent == parent {
			m.checkStability(category)
		}
	})
}

// checkStability re-verifies one header's position. Displaced headers are
// re-inserted at the correct position; a header whose anchor disappeared is
// dropped rather than orphaned.
func (m *HeaderManager) checkStability(category Category) {
	m.mu.Lock()
	rec := m.records[category]
	if rec == nil || m.positionedLocked(rec) {
		m.mu.Unlock()
		return
	}
	anchor := rec.Anchor
	node := rec.Node
	anchorAlive := m.host.Contains(anchor) && anchor.Parent != nil
	m.mu.Unlock()

	if !anchorAlive {
		debugLog("header %q: anchor gone, dropping", category)
		m.dropHeader(category)
		return
	}

	debugLog("header %q: displaced, re-inserting", category)
	m.host.RemoveNode(node)
	if err := m.host.InsertBefore(anchor.Parent, node, anchor); err != nil {
		log.Printf("header %q: re-insert failed: %v", category, err)
		m.dropHeader(category)
	}
}

// dropHeader removes one category's header and its stability hooks.
func (m *HeaderManager) dropHeader(category Category) {
	m.mu.Lock()
	rec := m.records[category]
	delete(m.records, category)
	if cancel := m.cancels[category]; cancel != nil {
		cancel()
		delete(m.cancels, category)
	}
	if timer := m.timers[category]; timer != nil {
		timer.Stop()
		delete(m.timers, category)
	}
	m.mu.Unlock()

	if rec != nil {
		m.host.RemoveNode(rec.Node)
	}
	m.removeOrphans(category)
}

// removeOrphans sweeps any header nodes for category that are no longer
// tracked, which can appear when the host re-renders around us.
func (m *HeaderManager) removeOrphans(category Category) {
	doc := m.host.Document()
	sel := doc.Find(`[` + attrMark + `="` + markHeader + `"]`)
	for _, n := range sel.Nodes {
		if getAttr(n, "data-category") != string(category) {
			continue
		}
		m.mu.Lock()
		rec := m.records[category]
		tracked := rec != nil && rec.Node == n
		m.mu.Unlock()
		if !tracked {
			m.host.RemoveNode(n)
		}
	}
}

// Cleanup disconnects every stability subscription and removes every
// synthetic header. Callable at any time; idempotent.
func (m *HeaderManager) Cleanup() {
	m.mu.Lock()
	for cat, cancel := range m.cancels {
		cancel()
		delete(m.cancels, cat)
	}
	for cat, timer := range m.timers {
		timer.Stop()
		delete(m.timers, cat)
	}
	m.records = make(map[Category]*HeaderRecord)
	m.mu.Unlock()

	doc := m.host.Document()
	for _, n := range doc.Find(`[` + attrMark + `="` + markHeader + `"]`).Nodes {
		m.host.RemoveNode(n)
	}
}

// buildHeaderNode constructs the non-interactive header row.
func buildHeaderNode(category Category) *html.Node {
	tr := newElement("tr")
	markSynthetic(tr, markHeader)
	setAttr(tr, "data-category", string(category))
	setAttr(tr, "class", "inboxlens-header")

	td := newElement("td")
	setAttr(td, "colspan", "8")
	td.AppendChild(newText(string(category)))
	tr.AppendChild(td)
	return tr
}
