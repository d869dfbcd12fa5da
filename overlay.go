package main

import (
	"fmt"
	"sync"

	"golang.org/x/net/html"
)

// OverlayController owns the transient full-viewport progress surface.
// Purely presentational: it renders whatever the pipeline reports and holds
// no state of its own beyond the overlay node.
type OverlayController struct {
	host *Host

	mu   sync.Mutex
	node *html.Node
}

func NewOverlayController(host *Host) *OverlayController {
	return &OverlayController{host: host}
}

// Show inserts the overlay. Showing an already-visible overlay is a no-op.
func (o *OverlayController) Show(text string) {
	o.mu.Lock()
	if o.node != nil && o.host.Contains(o.node) {
		o.mu.Unlock()
		o.setText(text)
		return
	}

	node := newElement("div")
	markSynthetic(node, markOverlay)
	setAttr(node, "class", "inboxlens-overlay")
	setAttr(node, "style", "position:fixed;top:0;left:0;right:0;bottom:0;z-index:9999")
	node.AppendChild(newText(text))
	o.node = node
	o.mu.Unlock()

	body := o.host.Body()
	if body == nil {
		debugLog("overlay: document has no body, not showing")
		return
	}
	if err := o.host.AppendChild(body, node); err != nil {
		debugLog("overlay: insert failed: %v", err)
	}
}

// Update renders a progress event.
func (o *OverlayController) Update(ev ProgressEvent) {
	o.setText(fmt.Sprintf("Extracting %d of %d (%d%%): %s", ev.Index, ev.Total, ev.Percent, ev.Label))
}

// ShowSummary renders the final tally so failures are never silently
// invisible.
func (o *OverlayController) ShowSummary(completed, failed, total int) {
	o.setText(fmt.Sprintf("Done: %d extracted, %d failed of %d", completed, failed, total))
}

// Hide removes the overlay. Idempotent.
func (o *OverlayController) Hide() {
	o.mu.Lock()
	node := o.node
	o.node = nil
	o.mu.Unlock()

	if node != nil {
		o.host.RemoveNode(node)
	}
}

func (o *OverlayController) setText(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.node == nil || o.node.FirstChild == nil {
		return
	}
	o.node.FirstChild.Data = text
}
