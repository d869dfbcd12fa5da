package main

import (
	"testing"
)

func newTestHeaderManager(t *testing.T) (*Host, *HeaderManager) {
	t.Helper()
	host := mustHost(t, inboxPage, "https://mail.example.com/inbox")
	manager := NewHeaderManager(host, testSettings().Budgets)
	t.Cleanup(manager.Cleanup)
	return host, manager
}

func TestEnsureHeaderIdempotent(t *testing.T) {
	host, manager := newTestHeaderManager(t)
	anchor := findRowNode(t, host, "t1")

	manager.EnsureHeader(CategoryToday, anchor)
	manager.EnsureHeader(CategoryToday, anchor)

	if n := countHeaders(t, host, CategoryToday); n != 1 {
		t.Fatalf("header count = %d, want exactly 1 after double insert", n)
	}

	header := host.Document().Find(`[data-inboxlens="header"]`).Nodes[0]
	if header.NextSibling != anchor {
		t.Error("header does not immediately precede its anchor")
	}
	if getAttr(header, attrInert) != "true" {
		t.Error("header is not marked inert")
	}
}

func TestEnsureHeaderDisplacedIsRebuilt(t *testing.T) {
	host, manager := newTestHeaderManager(t)
	anchor := findRowNode(t, host, "t1")
	other := findRowNode(t, host, "t3")

	manager.EnsureHeader(CategoryToday, anchor)
	header := host.Document().Find(`[data-inboxlens="header"]`).Nodes[0]

	// The host reorders: the header ends up before a different row. The
	// stability subscription must put it back.
	if err := host.InsertBefore(other.Parent, header, other); err != nil {
		t.Fatalf("displacing header: %v", err)
	}

	if n := countHeaders(t, host, CategoryToday); n != 1 {
		t.Fatalf("header count = %d, want 1 after displacement heal", n)
	}
	header = host.Document().Find(`[data-inboxlens="header"]`).Nodes[0]
	if header.NextSibling != anchor {
		t.Error("displaced header was not re-inserted before its anchor")
	}
}

func TestEnsureHeaderAnchorRemovedDropsHeader(t *testing.T) {
	host, manager := newTestHeaderManager(t)
	anchor := findRowNode(t, host, "t1")

	manager.EnsureHeader(CategoryToday, anchor)
	host.RemoveNode(anchor)

	if n := countHeaders(t, host, CategoryToday); n != 0 {
		t.Fatalf("header count = %d, want 0 after anchor removal", n)
	}
}

func TestEnsureHeaderMovesWithNewAnchor(t *testing.T) {
	host, manager := newTestHeaderManager(t)
	first := findRowNode(t, host, "t1")
	second := findRowNode(t, host, "t2")

	manager.EnsureHeader(CategoryToday, first)
	manager.EnsureHeader(CategoryToday, second)

	if n := countHeaders(t, host, CategoryToday); n != 1 {
		t.Fatalf("header count = %d, want 1 after re-anchoring", n)
	}
	header := host.Document().Find(`[data-inboxlens="header"]`).Nodes[0]
	if header.NextSibling != second {
		t.Error("header did not move to the new anchor")
	}
}

func TestSyncInsertsAndRemoves(t *testing.T) {
	host, manager := newTestHeaderManager(t)
	catalog := NewRowCatalog(host, defaultSettings().Selectors)
	rows := catalog.FindRows()
	th := ComputeThresholds(testNow)

	manager.Sync(GroupByCategory(rows, th))

	for _, cat := range []Category{CategoryToday, CategoryYesterday, CategoryOlder} {
		if n := countHeaders(t, host, cat); n != 1 {
			t.Errorf("%s header count = %d, want 1", cat, n)
		}
	}
	if n := countHeaders(t, host, CategoryLast7Days); n != 0 {
		t.Errorf("Last 7 days header count = %d, want 0 (no rows)", n)
	}

	// Today's only row disappears; the next sync must drop its header.
	host.RemoveNode(findRowNode(t, host, "t1"))
	rows = catalog.FindRows()
	manager.Sync(GroupByCategory(rows, th))

	if n := countHeaders(t, host, CategoryToday); n != 0 {
		t.Errorf("Today header count = %d, want 0 after its rows vanished", n)
	}
}

func TestHeaderCleanupIdempotent(t *testing.T) {
	host, manager := newTestHeaderManager(t)
	manager.EnsureHeader(CategoryToday, findRowNode(t, host, "t1"))
	manager.EnsureHeader(CategoryYesterday, findRowNode(t, host, "t2"))

	manager.Cleanup()
	manager.Cleanup()

	if n := len(host.Document().Find(`[data-inboxlens="header"]`).Nodes); n != 0 {
		t.Fatalf("%d synthetic headers remain after cleanup", n)
	}

	// The manager still works after cleanup.
	manager.EnsureHeader(CategoryToday, findRowNode(t, host, "t2"))
	if n := countHeaders(t, host, CategoryToday); n != 1 {
		t.Errorf("header count = %d, want 1 after post-cleanup insert", n)
	}
}
