package main

import (
	"testing"

	"golang.org/x/net/html"
)

// inboxPage is the list-view fixture used across tests. Dates are relative
// to testNow (Nov 15, 2025).
const inboxPage = `<html><body>
<div role="main">
<table class="message-list"><tbody>
<tr role="row" class="unread" data-thread-id="t1" data-label="Promos">
  <td><input type="checkbox"></td>
  <td><span class="sender" email="alice@example.com">Alice</span></td>
  <td><span class="subject">Quarterly report</span></td>
  <td><span class="snippet">the numbers are in</span></td>
  <td><span class="date">Nov 15, 2025</span></td>
</tr>
<tr role="row" class="read" data-thread-id="t2" data-label="Promos">
  <td><input type="checkbox"></td>
  <td><span class="sender" email="bob@example.com">Bob</span></td>
  <td><span class="subject">Lunch?</span></td>
  <td><span class="snippet">thinking tacos</span></td>
  <td><span class="date">Nov 14, 2025</span></td>
</tr>
<tr role="row" class="read" data-thread-id="t3">
  <td><input type="checkbox"></td>
  <td><span class="sender" email="carol@example.com">Carol</span></td>
  <td><span class="subject">Old thread</span></td>
  <td><span class="snippet">remember this</span></td>
  <td><span class="date">Oct 1, 2025</span></td>
</tr>
</tbody></table>
</div>
</body></html>`

// messagePage is an open-message fixture with a body long enough to count
// as extraction signal.
const messagePage = `<html><body>
<div class="message-view">
  <div class="sender">alice@example.com</div>
  <div class="subject">Quarterly report</div>
  <div class="date">Nov 15, 2025</div>
  <div class="body"><p>Hello team, the full quarterly numbers are attached below.
  Revenue is up twelve percent and churn is flat quarter over quarter.</p></div>
</div>
</body></html>`

const errorPage = `<html><body><div class="errorpage">Temporary Error</div></body></html>`

func mustHost(t *testing.T, src, location string) *Host {
	t.Helper()
	host, err := NewHostFromHTML(src, location)
	if err != nil {
		t.Fatalf("parsing fixture: %v", err)
	}
	return host
}

// testSettings returns defaults with every delay zeroed so tests never wait.
func testSettings() *Settings {
	settings := defaultSettings()
	settings.Budgets.DebounceWindowMS = 5
	settings.Budgets.StabilityDelayMS = 1
	settings.Budgets.RowRetryAttempts = 2
	settings.Budgets.RowRetryIntervalMS = 0
	settings.Budgets.SettleDelayMS = 0
	settings.Budgets.ResumeAttempts = 3
	settings.Budgets.ResumeIntervalMS = 0
	settings.Budgets.NavDelayMinMS = 0
	settings.Budgets.NavDelayMaxMS = 0
	settings.Budgets.TaskPauseMS = 0
	return settings
}

// buildMessagePane constructs the open-message surface the inline strategy
// reads, for interactors that re-render in place.
func buildMessagePane(sender, subject, body string) *html.Node {
	pane := newElement("div")
	setAttr(pane, "class", "message-view")

	for _, part := range []struct{ class, text string }{
		{"sender", sender},
		{"subject", subject},
		{"date", "Nov 15, 2025"},
		{"body", body},
	} {
		div := newElement("div")
		setAttr(div, "class", part.class)
		div.AppendChild(newText(part.text))
		pane.AppendChild(div)
	}
	return pane
}

func countHeaders(t *testing.T, host *Host, category Category) int {
	t.Helper()
	count := 0
	for _, n := range host.Document().Find(`[data-inboxlens="header"]`).Nodes {
		if getAttr(n, "data-category") == string(category) {
			count++
		}
	}
	return count
}

func findRowNode(t *testing.T, host *Host, threadID string) *html.Node {
	t.Helper()
	sel := host.Document().Find(`[data-thread-id="` + threadID + `"]`)
	if len(sel.Nodes) == 0 {
		t.Fatalf("fixture row %s not found", threadID)
	}
	return sel.Nodes[0]
}
