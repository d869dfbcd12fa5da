package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoadPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(inboxPage))
	}))
	defer server.Close()

	doc, err := LoadPage(server.Client(), server.URL)
	if err != nil {
		t.Fatalf("LoadPage() error = %v", err)
	}

	host := NewHost(doc, server.URL)
	if rows := NewRowCatalog(host, defaultSettings().Selectors).FindRows(); len(rows) != 3 {
		t.Errorf("fetched page yielded %d rows, want 3", len(rows))
	}
}

func TestLoadPageNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	if _, err := LoadPage(server.Client(), server.URL); err == nil {
		t.Error("LoadPage() accepted a non-200 response")
	}
}

func TestInsertBeforeIdempotent(t *testing.T) {
	host := mustHost(t, inboxPage, "about:blank")
	anchor := findRowNode(t, host, "t1")

	notifications := 0
	cancel := host.Subscribe(func(MutationRecord) { notifications++ })
	defer cancel()

	node := newElement("tr")
	if err := host.InsertBefore(anchor.Parent, node, anchor); err != nil {
		t.Fatalf("InsertBefore() error = %v", err)
	}
	// Re-inserting an already-positioned node must not touch the tree or
	// notify anyone; re-scans would otherwise feed back into themselves.
	if err := host.InsertBefore(anchor.Parent, node, anchor); err != nil {
		t.Fatalf("repeat InsertBefore() error = %v", err)
	}

	if notifications != 1 {
		t.Errorf("notifications = %d, want 1 for a repeated insert", notifications)
	}
	if node.NextSibling != anchor {
		t.Error("node not positioned before its reference")
	}
}

func TestInsertBeforeDetachedParent(t *testing.T) {
	host := mustHost(t, inboxPage, "about:blank")

	orphan := newElement("div")
	if err := host.InsertBefore(orphan, newElement("span"), nil); err == nil {
		t.Error("InsertBefore() accepted a detached parent")
	}
}

func TestRemoveNodeDetachedIsNoop(t *testing.T) {
	host := mustHost(t, inboxPage, "about:blank")

	fired := false
	cancel := host.Subscribe(func(MutationRecord) { fired = true })
	defer cancel()

	host.RemoveNode(newElement("tr"))
	if fired {
		t.Error("removing a detached node notified subscribers")
	}
}

func TestInteractSwallowsInertTargets(t *testing.T) {
	host := mustHost(t, inboxPage, "about:blank")

	delivered := false
	host.SetInteractor(func(Interaction) error {
		delivered = true
		return nil
	})

	header := buildHeaderNode(CategoryToday)
	err := host.Interact(Interaction{Kind: InteractPointer, Target: header, Steps: pointerSteps})
	if err != nil {
		t.Fatalf("Interact() error = %v", err)
	}
	if delivered {
		t.Error("input to an inert synthetic element reached the host")
	}

	if err := host.Interact(Interaction{Kind: InteractPointer, Target: findRowNode(t, host, "t1"), Steps: pointerSteps}); err != nil {
		t.Fatalf("Interact() error = %v", err)
	}
	if !delivered {
		t.Error("input to a real row never reached the host")
	}
}

func TestInteractWithoutBridge(t *testing.T) {
	host := mustHost(t, inboxPage, "about:blank")

	err := host.Interact(Interaction{Kind: InteractPointer, Target: findRowNode(t, host, "t1")})
	if err != ErrInteractionUnsupported {
		t.Errorf("Interact() error = %v, want ErrInteractionUnsupported", err)
	}
}

func TestNavigateDropsSubscriptions(t *testing.T) {
	host := mustHost(t, inboxPage, inboxURL)
	host.SetLoader(mapLoader(map[string]string{inboxURL: inboxPage}, nil))

	fired := false
	host.Subscribe(func(MutationRecord) { fired = true })

	if err := host.Navigate(inboxURL); err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}

	anchor := findRowNode(t, host, "t1")
	host.RemoveNode(anchor)
	if fired {
		t.Error("pre-navigation subscription survived the document swap")
	}
}

func TestNavigateWithoutLoader(t *testing.T) {
	host := mustHost(t, inboxPage, inboxURL)
	if err := host.Navigate("https://mail.example.com/elsewhere"); err == nil {
		t.Error("Navigate() without a loader should error")
	}
	if host.Location() != inboxURL {
		t.Error("failed navigation changed the location")
	}
}
