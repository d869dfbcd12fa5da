package main

import (
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/net/html"
)

// ChangeWatcher subscribes to structural changes under one subtree of the
// host document, filters out irrelevant mutations, and coalesces bursts of
// host-driven re-renders into a single downstream callback.
type ChangeWatcher struct {
	host     *Host
	window   time.Duration
	callback func([]MutationRecord)

	mu      sync.Mutex
	root    *html.Node
	cancel  func()
	timer   *time.Timer
	pending []MutationRecord
}

// NewChangeWatcher creates a watcher that reports filtered batches to
// callback after a quiet period of window.
func NewChangeWatcher(host *Host, window time.Duration, callback func([]MutationRecord)) *ChangeWatcher {
	return &ChangeWatcher{host: host, window: window, callback: callback}
}

// Observe attaches the single active subscription to root. Observing a new
// root tears down the previous subscription first. A nil root logs and
// no-ops; the caller retries discovery later.
func (w *ChangeWatcher) Observe(root *html.Node) error {
	if root == nil {
		log.Printf("change watcher: target root not found, not observing")
		return fmt.Errorf("observe: target root not found")
	}

	w.Disconnect()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.root = root
	w.cancel = w.host.Subscribe(w.onMutation)
	return nil
}

// Disconnect tears down the subscription and discards pending mutations.
// Idempotent; safe to call at any time.
func (w *ChangeWatcher) Disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.root = nil
	w.pending = nil
}

func (w *ChangeWatcher) onMutation(rec MutationRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.root == nil || !underNode(rec.Parent, w.root) {
		return
	}
	if !relevantMutation(rec) {
		return
	}

	w.pending = append(w.pending, rec)
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.window, w.flush)
}

func (w *ChangeWatcher) flush() {
	w.mu.Lock()
	batch := w.pending
	w.pending = nil
	w.timer = nil
	w.mu.Unlock()

	if len(batch) == 0 || w.callback == nil {
		return
	}
	w.callback(batch)
}

// relevantMutation reports whether any added or removed node is row-shaped
// or header-shaped. Batches with neither are dropped before debouncing.
func relevantMutation(rec MutationRecord) bool {
	for _, n := range rec.Added {
		if rowShaped(n) || headerShaped(n) {
			return true
		}
	}
	for _, n := range rec.Removed {
		if rowShaped(n) || headerShaped(n) {
			return true
		}
	}
	return false
}

func rowShaped(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if n.Data == "tr" {
		return true
	}
	role := getAttr(n, "role")
	return role == "row" || role == "listitem"
}

func headerShaped(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode && getAttr(n, attrMark) == markHeader
}

// underNode reports whether n sits at or below root.
func underNode(n, root *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == root {
			return true
		}
	}
	return false
}
