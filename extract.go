package main

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"golang.org/x/net/html"
)

// minBodyChars is the extraction-signal floor: a shorter body is treated as
// inconclusive (a snippet or placeholder), never as success.
const minBodyChars = 50

// pointerSteps is the realistic event order synthesized to trigger the
// host's own open-message behavior.
var pointerSteps = []string{"pointerover", "mousedown", "mouseup", "click"}

// HostBlockedError reports an explicit error or blocked page detected after
// navigating to a message. Fatal for the task, never retried.
type HostBlockedError struct {
	URL    string
	Marker string
}

func (e *HostBlockedError) Error() string {
	return fmt.Sprintf("host error page at %s (%s)", e.URL, e.Marker)
}

// attemptResult is the tagged outcome of one extraction attempt.
type attemptResult int

const (
	attemptSuccess attemptResult = iota
	attemptInconclusive
	attemptExhausted
)

// MessageReader reads extracted fields from wherever the host renders an
// open message. Readers form a cascade; the first sufficient result wins.
type MessageReader interface {
	Name() string
	Read(doc *goquery.Document) (*ExtractedMessage, bool)
}

// UnreadRestorer is one strategy for restoring a row's prior unread state.
// Restore reports whether the strategy applied; an unavailable strategy
// reports false without error so the cascade falls through.
type UnreadRestorer interface {
	Name() string
	Restore(row Row) (bool, error)
}

// ExtractionEngine runs the per-row extraction state machine: inline attempt
// first, navigation fallback with a persisted continuation, bounded resume
// polling, and unread restoration.
type ExtractionEngine struct {
	host      *Host
	store     *ContextStore
	tabID     string
	selectors SelectorSet
	budgets   Budgets
	urlTmpl   string
	converter *md.Converter
	readers   []MessageReader
	restorers []UnreadRestorer

	// Injected for tests; both default to real timing.
	sleep    func(time.Duration)
	navDelay func() time.Duration
}

// NewExtractionEngine wires the default reader and restorer cascades from
// settings.
func NewExtractionEngine(host *Host, store *ContextStore, tabID string, settings *Settings) *ExtractionEngine {
	e := &ExtractionEngine{
		host:      host,
		store:     store,
		tabID:     tabID,
		selectors: settings.Selectors,
		budgets:   settings.Budgets,
		urlTmpl:   settings.MessageURLTemplate,
		converter: md.NewConverter("", true, nil),
		sleep:     time.Sleep,
	}
	e.navDelay = func() time.Duration {
		min, max := e.budgets.NavDelayMinMS, e.budgets.NavDelayMaxMS
		if max <= min {
			return time.Duration(min) * time.Millisecond
		}
		return time.Duration(min+rand.Intn(max-min)) * time.Millisecond
	}
	e.readers = []MessageReader{
		&selectorReader{name: "open-message pane", selectors: settings.Selectors, converter: e.converter},
	}
	e.restorers = []UnreadRestorer{
		&affordanceRestorer{engine: e},
		&shortcutRestorer{engine: e},
		&cosmeticRestorer{engine: e},
	}
	return e
}

// NewTask builds a pending task for a row, capturing the unread flag before
// any interaction can clobber it.
func NewTask(row Row) *ExtractionTask {
	return &ExtractionTask{
		ID:        uuid.NewString(),
		Row:       row,
		Outcome:   OutcomePending,
		WasUnread: row.Unread,
	}
}

// ExtractTask drives one task to a terminal outcome. It never returns an
// error; failures land on the task and are counted, not thrown.
func (e *ExtractionEngine) ExtractTask(task *ExtractionTask) {
	// An earlier task's navigation may have replaced the document; the row
	// reference would then point into the discarded tree.
	task.Row = e.refreshRow(task.Row)

	task.Strategy = "inline"
	task.Attempts++

	switch e.attemptInline(task) {
	case attemptSuccess:
		task.Outcome = OutcomeSucceeded
		logExtraction(task)
		return
	case attemptExhausted:
		task.Outcome = OutcomeExhausted
		return
	}

	task.Strategy = "navigation"
	task.Attempts++
	e.attemptNavigation(task)
	if task.Outcome == OutcomeSucceeded {
		logExtraction(task)
	}
}

// attemptInline synthesizes a pointer sequence on the row so the host opens
// the message in place, waits for the page to settle, then tries the reader
// cascade. A body under the signal floor is inconclusive, not success.
func (e *ExtractionEngine) attemptInline(task *ExtractionTask) attemptResult {
	row := task.Row
	if !e.host.Contains(row.Node) {
		debugLog("task %s: row detached, skipping inline attempt", task.ID)
		return attemptInconclusive
	}

	err := e.host.Interact(Interaction{Kind: InteractPointer, Target: row.Node, Steps: pointerSteps})
	if err != nil {
		if errors.Is(err, ErrInteractionUnsupported) {
			return attemptInconclusive
		}
		debugLog("task %s: inline interaction failed: %v", task.ID, err)
		return attemptInconclusive
	}

	e.sleep(e.budgets.SettleDelay())

	if msg, ok := e.readMessage(); ok {
		task.Result = msg
		return attemptSuccess
	}
	return attemptInconclusive
}

// attemptNavigation persists a continuation, navigates to the message's own
// URL, and resumes in place. Without a discoverable or inferable URL the
// task is exhausted; the engine never guesses blindly.
func (e *ExtractionEngine) attemptNavigation(task *ExtractionTask) {
	target := e.messageURL(task.Row)
	if target == "" {
		debugLog("task %s: no message URL discoverable, exhausted", task.ID)
		task.Outcome = OutcomeExhausted
		task.Err = fmt.Errorf("no message URL discoverable")
		return
	}

	ctx := &ExtractionContext{
		TaskID:        task.ID,
		Sender:        task.Row.Sender,
		Subject:       task.Row.Subject,
		ThreadID:      task.Row.ThreadID,
		OriginURL:     e.host.Location(),
		TargetURL:     target,
		InProgress:    true,
		RestoreUnread: task.WasUnread,
	}
	if err := e.store.Put(e.tabID, ctx); err != nil {
		task.Outcome = OutcomeFailed
		task.Err = fmt.Errorf("persisting continuation: %w", err)
		return
	}

	// Uniform timing before every navigation reads as scripted.
	e.sleep(e.navDelay())

	if err := e.host.Navigate(target); err != nil {
		task.Outcome = OutcomeFailed
		task.Err = err
		e.store.Delete(e.tabID)
		return
	}

	e.resume(ctx, task)
}

// ResumePending is the on-load entry point: if a live, in-progress
// continuation exists for this tab, it is resumed exactly once. Returns the
// reconstructed task when a resumption ran.
func (e *ExtractionEngine) ResumePending() (*ExtractionTask, bool) {
	ctx, ok, err := e.store.Load(e.tabID)
	if err != nil {
		log.Printf("resume: %v", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if !ctx.InProgress {
		// Already consumed once; a leftover must not replay.
		e.store.Delete(e.tabID)
		return nil, false
	}

	task := &ExtractionTask{
		ID:        ctx.TaskID,
		Row:       Row{Sender: ctx.Sender, Subject: ctx.Subject, ThreadID: ctx.ThreadID, Unread: ctx.RestoreUnread},
		Strategy:  "navigation",
		Outcome:   OutcomePending,
		WasUnread: ctx.RestoreUnread,
	}
	e.resume(ctx, task)
	if task.Outcome == OutcomeSucceeded {
		logExtraction(task)
	}
	return task, true
}

// resume polls the current page for either an error page (abort, restore
// location, fail) or sufficient extraction signal (succeed, restore
// location). The in-progress flag is cleared before anything else so a crash
// mid-resume cannot loop.
func (e *ExtractionEngine) resume(ctx *ExtractionContext, task *ExtractionTask) {
	if err := e.store.ClearInProgress(e.tabID, ctx); err != nil {
		log.Printf("task %s: clearing in-progress flag: %v", task.ID, err)
	}
	defer e.store.Delete(e.tabID)

	for attempt := 0; attempt < e.budgets.ResumeAttempts; attempt++ {
		doc := e.host.Document()

		if marker, blocked := e.detectErrorPage(doc); blocked {
			task.Outcome = OutcomeFailed
			task.Err = &HostBlockedError{URL: e.host.Location(), Marker: marker}
			log.Printf("task %s: %v, returning to %s", task.ID, task.Err, ctx.OriginURL)
			e.restoreLocation(ctx.OriginURL)
			return
		}

		if msg, ok := e.readMessage(); ok {
			task.Result = msg
			task.Outcome = OutcomeSucceeded
			e.restoreLocation(ctx.OriginURL)
			return
		}

		if attempt < e.budgets.ResumeAttempts-1 {
			e.sleep(e.budgets.ResumeInterval())
		}
	}

	task.Outcome = OutcomeFailed
	task.Err = fmt.Errorf("no extraction signal after %d attempts", e.budgets.ResumeAttempts)
	e.restoreLocation(ctx.OriginURL)
}

func (e *ExtractionEngine) restoreLocation(origin string) {
	if origin == "" || origin == e.host.Location() {
		return
	}
	if err := e.host.Navigate(origin); err != nil {
		log.Printf("restoring location %s: %v", origin, err)
	}
}

// readMessage tries the reader cascade against the current document.
func (e *ExtractionEngine) readMessage() (*ExtractedMessage, bool) {
	doc := e.host.Document()
	for _, r := range e.readers {
		if msg, ok := r.Read(doc); ok {
			debugLog("extraction signal via %q", r.Name())
			return msg, true
		}
	}
	return nil, false
}

// messageURL prefers a link discoverable on the row itself, then one
// inferred from the row's thread identifier and the configured template.
func (e *ExtractionEngine) messageURL(row Row) string {
	if e.host.Contains(row.Node) {
		sel := wrapNode(row.Node)
		for _, s := range e.selectors.RowLink {
			if href, ok := sel.Find(s).First().Attr("href"); ok && href != "" && href != "#" {
				return href
			}
		}
	}
	if row.ThreadID != "" && strings.Contains(e.urlTmpl, "%s") {
		return fmt.Sprintf(e.urlTmpl, row.ThreadID)
	}
	return ""
}

// detectErrorPage checks the configured error-page selectors and text
// markers.
func (e *ExtractionEngine) detectErrorPage(doc *goquery.Document) (string, bool) {
	for _, s := range e.selectors.ErrorPage {
		if doc.Find(s).Length() > 0 {
			return s, true
		}
	}
	bodyText := doc.Find("body").Text()
	for _, marker := range e.selectors.ErrorMarkers {
		if strings.Contains(bodyText, marker) {
			return marker, true
		}
	}
	return "", false
}

// RestoreUnread walks the restoration cascade for a row that was unread
// before extraction. Each strategy is tried only if the previous one was
// unavailable; if all fall through, the state change is logged and accepted.
func (e *ExtractionEngine) RestoreUnread(row Row) bool {
	row = e.refreshRow(row)
	for _, r := range e.restorers {
		applied, err := r.Restore(row)
		if err != nil {
			debugLog("unread restore via %q failed: %v", r.Name(), err)
			continue
		}
		if applied {
			debugLog("unread restored via %q", r.Name())
			return true
		}
	}
	log.Printf("unread restoration unavailable for %q, accepting read state", row.Subject)
	return false
}

// refreshRow re-resolves a possibly stale row reference after navigations
// replaced the document.
func (e *ExtractionEngine) refreshRow(row Row) Row {
	if e.host.Contains(row.Node) {
		return row
	}
	doc := e.host.Document()
	if row.ThreadID != "" {
		for _, key := range e.selectors.ThreadIDKeys {
			sel := doc.Find(fmt.Sprintf(`[%s="%s"]`, key, row.ThreadID))
			if len(sel.Nodes) > 0 {
				row.Node = sel.Nodes[0]
				return row
			}
		}
	}
	if row.Subject != "" {
		for _, n := range doc.Find("tr").Nodes {
			if strings.Contains(nodeText(n), row.Subject) {
				row.Node = n
				return row
			}
		}
	}
	row.Node = nil
	return row
}

// selectRow drives the row's own selection control so toolbar affordances
// and shortcuts act on it.
func (e *ExtractionEngine) selectRow(row Row) bool {
	if !e.host.Contains(row.Node) {
		return false
	}
	sel := wrapNode(row.Node)
	for _, s := range e.selectors.RowSelect {
		found := sel.Find(s)
		if len(found.Nodes) == 0 {
			continue
		}
		err := e.host.Interact(Interaction{Kind: InteractPointer, Target: found.Nodes[0], Steps: pointerSteps})
		if err == nil {
			return true
		}
	}
	return false
}

// logExtraction emits the structured diagnostic line for one extraction.
func logExtraction(task *ExtractionTask) {
	msg := task.Result
	excerpt := msg.Body
	if len(excerpt) > 120 {
		excerpt = excerpt[:120] + "…"
	}
	log.Printf("extracted [%s] from=%q subject=%q date=%q body=%q",
		task.Strategy, msg.Sender, msg.Subject, msg.Date, excerpt)
}

// selectorReader reads the open-message surface through the configured
// fallback selectors and converts the body HTML to readable text.
type selectorReader struct {
	name      string
	selectors SelectorSet
	converter *md.Converter
}

func (r *selectorReader) Name() string { return r.name }

func (r *selectorReader) Read(doc *goquery.Document) (*ExtractedMessage, bool) {
	body := r.bodyText(doc)
	if len(strings.TrimSpace(body)) <= minBodyChars {
		return nil, false
	}

	return &ExtractedMessage{
		Sender:  firstText(doc.Selection, r.selectors.MessageSender...),
		Subject: firstText(doc.Selection, r.selectors.MessageSubject...),
		Date:    firstText(doc.Selection, r.selectors.MessageDate...),
		Body:    body,
	}, true
}

func (r *selectorReader) bodyText(doc *goquery.Document) string {
	for _, s := range r.selectors.MessageBody {
		sel := doc.Find(s)
		if len(sel.Nodes) == 0 {
			continue
		}
		var buf bytes.Buffer
		if err := html.Render(&buf, sel.Nodes[0]); err != nil {
			return nodeText(sel.Nodes[0])
		}
		text, err := r.converter.ConvertString(buf.String())
		if err != nil {
			return nodeText(sel.Nodes[0])
		}
		return strings.TrimSpace(text)
	}
	return ""
}

// affordanceRestorer selects the row and invokes the host's own mark-unread
// control if one is present near the row or in a global toolbar.
type affordanceRestorer struct {
	engine *ExtractionEngine
}

func (r *affordanceRestorer) Name() string { return "host affordance" }

func (r *affordanceRestorer) Restore(row Row) (bool, error) {
	e := r.engine
	if !e.selectRow(row) {
		return false, nil
	}

	doc := e.host.Document()
	for _, s := range e.selectors.MarkUnread {
		sel := doc.Find(s)
		if len(sel.Nodes) == 0 {
			continue
		}
		err := e.host.Interact(Interaction{Kind: InteractPointer, Target: sel.Nodes[0], Steps: pointerSteps})
		if errors.Is(err, ErrInteractionUnsupported) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// shortcutRestorer synthesizes the host's documented mark-unread shortcut
// while the row is selected.
type shortcutRestorer struct {
	engine *ExtractionEngine
}

func (r *shortcutRestorer) Name() string { return "keyboard shortcut" }

func (r *shortcutRestorer) Restore(row Row) (bool, error) {
	e := r.engine
	if !e.selectRow(row) {
		return false, nil
	}
	err := e.host.Interact(Interaction{Kind: InteractKeys, Keys: "Shift+U"})
	if errors.Is(err, ErrInteractionUnsupported) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// cosmeticRestorer toggles the row's own read/unread presentation classes.
// Display-only: host state is not changed, and the log line says so.
type cosmeticRestorer struct {
	engine *ExtractionEngine
}

func (r *cosmeticRestorer) Name() string { return "cosmetic class toggle" }

func (r *cosmeticRestorer) Restore(row Row) (bool, error) {
	if !r.engine.host.Contains(row.Node) {
		return false, nil
	}
	removeClass(row.Node, "read")
	addClass(row.Node, "unread")
	log.Printf("unread restore for %q is display-only; host state unchanged", row.Subject)
	return true, nil
}
