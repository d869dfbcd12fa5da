package main

import (
	"strings"
	"testing"
)

func newTestBundles(t *testing.T) (*Host, *BundleRegistry, []Row) {
	t.Helper()
	host := mustHost(t, inboxPage, "https://mail.example.com/inbox")
	registry := NewBundleRegistry(host)
	catalog := NewRowCatalog(host, defaultSettings().Selectors)
	rows := catalog.FindRows()
	registry.Rebuild(rows)
	return host, registry, rows
}

func TestBundleMembership(t *testing.T) {
	host, registry, _ := newTestBundles(t)

	labels := registry.Bundles()
	if len(labels) != 1 || labels[0] != "Promos" {
		t.Fatalf("Bundles() = %v, want [Promos]", labels)
	}

	// Closed bundle members start hidden; the unlabeled row stays visible.
	if getAttr(findRowNode(t, host, "t1"), "style") != "display:none" {
		t.Error("bundled row t1 not hidden while closed")
	}
	if getAttr(findRowNode(t, host, "t3"), "style") == "display:none" {
		t.Error("unlabeled row t3 should not be hidden")
	}
}

func TestToggleExclusivity(t *testing.T) {
	host := mustHost(t, strings.Replace(inboxPage, `data-thread-id="t3"`, `data-thread-id="t3" data-label="Updates"`, 1), "about:blank")
	registry := NewBundleRegistry(host)
	catalog := NewRowCatalog(host, defaultSettings().Selectors)
	registry.Rebuild(catalog.FindRows())

	sequences := [][]string{
		{"Promos"},
		{"Promos", "Updates"},
		{"Promos", "Updates", "Promos", "Promos"},
		{"Updates", "Updates"},
	}

	openCount := func() int {
		registry.mu.Lock()
		defer registry.mu.Unlock()
		count := 0
		for _, b := range registry.bundles {
			if b.Open {
				count++
			}
		}
		return count
	}

	for _, seq := range sequences {
		registry.CloseAllBundles()
		for _, label := range seq {
			if err := registry.Toggle(label); err != nil {
				t.Fatalf("Toggle(%q) error = %v", label, err)
			}
			if openCount() > 1 {
				t.Fatalf("sequence %v: more than one bundle open", seq)
			}
		}
	}
}

func TestToggleOpensAndCloses(t *testing.T) {
	host, registry, _ := newTestBundles(t)

	if err := registry.Toggle("Promos"); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if registry.OpenBundle() != "Promos" {
		t.Fatal("bundle should be open after toggle")
	}
	if getAttr(findRowNode(t, host, "t1"), "style") == "display:none" {
		t.Error("member row still hidden while bundle open")
	}

	toggleText := host.Document().Find(`[data-inboxlens="bundle-toggle"]`).Text()
	if !strings.Contains(toggleText, "view all") {
		t.Errorf("open affordance text = %q, want view-all hint", toggleText)
	}

	if err := registry.Toggle("Promos"); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if registry.OpenBundle() != "" {
		t.Error("bundle should be closed after second toggle")
	}
	if getAttr(findRowNode(t, host, "t1"), "style") != "display:none" {
		t.Error("member row not re-hidden after close")
	}
}

func TestToggleUnknownBundle(t *testing.T) {
	_, registry, _ := newTestBundles(t)
	if err := registry.Toggle("Nope"); err == nil {
		t.Error("Toggle() of unknown label should error")
	}
}

func TestRebuildPreservesOpenState(t *testing.T) {
	_, registry, rows := newTestBundles(t)

	if err := registry.Toggle("Promos"); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	registry.Rebuild(rows)

	if registry.OpenBundle() != "Promos" {
		t.Error("open state lost across rebuild")
	}
}

func TestBundleCleanup(t *testing.T) {
	host, registry, _ := newTestBundles(t)

	registry.Cleanup()
	registry.Cleanup()

	if n := len(host.Document().Find(`[data-inboxlens="bundle-toggle"]`).Nodes); n != 0 {
		t.Errorf("%d toggle rows remain after cleanup", n)
	}
	if getAttr(findRowNode(t, host, "t1"), "style") == "display:none" {
		t.Error("member row still hidden after cleanup")
	}
}
