package main

import (
	"strings"
	"testing"
)

func TestOverlayLifecycle(t *testing.T) {
	host := mustHost(t, inboxPage, "about:blank")
	overlay := NewOverlayController(host)

	overlay.Show("Preparing…")
	overlay.Show("Preparing…")

	nodes := host.Document().Find(`[data-inboxlens="overlay"]`).Nodes
	if len(nodes) != 1 {
		t.Fatalf("overlay count = %d, want 1 after double Show", len(nodes))
	}

	overlay.Update(ProgressEvent{Label: "Quarterly report", Index: 1, Total: 4, Percent: 25})
	text := host.Document().Find(`[data-inboxlens="overlay"]`).Text()
	if !strings.Contains(text, "1 of 4") || !strings.Contains(text, "Quarterly report") {
		t.Errorf("overlay text = %q, want progress line", text)
	}

	overlay.ShowSummary(3, 1, 4)
	text = host.Document().Find(`[data-inboxlens="overlay"]`).Text()
	if !strings.Contains(text, "3 extracted, 1 failed") {
		t.Errorf("overlay text = %q, want summary line", text)
	}

	overlay.Hide()
	overlay.Hide()
	if n := len(host.Document().Find(`[data-inboxlens="overlay"]`).Nodes); n != 0 {
		t.Errorf("overlay count = %d after Hide, want 0", n)
	}
}
