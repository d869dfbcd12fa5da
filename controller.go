package main

import (
	"fmt"
	"log"
	"time"

	"golang.org/x/net/html"
)

// Command is one inbound control-channel request.
type Command struct {
	Name  string
	Count int
}

// CommandResult is the small status record returned for every command.
type CommandResult struct {
	OK          bool
	Message     string
	Enabled     bool
	GroupByDate bool
	Rows        int
	Groups      map[Category]int
	OpenBundle  string
	Completed   int
	Failed      int
	Total       int
}

// Controller wires the subsystems together: it reacts to change batches with
// a re-scan, resumes pending continuations on load, and dispatches control
// commands.
type Controller struct {
	host     *Host
	settings *Settings
	store    *ContextStore
	tabID    string

	catalog *RowCatalog
	watcher *ChangeWatcher
	headers *HeaderManager
	bundles *BundleRegistry
	engine  *ExtractionEngine
	overlay *OverlayController

	now   func() time.Time
	sleep func(time.Duration)
}

func NewController(host *Host, settings *Settings, store *ContextStore, tabID string) *Controller {
	c := &Controller{
		host:     host,
		settings: settings,
		store:    store,
		tabID:    tabID,
		catalog:  NewRowCatalog(host, settings.Selectors),
		headers:  NewHeaderManager(host, settings.Budgets),
		bundles:  NewBundleRegistry(host),
		engine:   NewExtractionEngine(host, store, tabID, settings),
		overlay:  NewOverlayController(host),
		now:      time.Now,
		sleep:    time.Sleep,
	}
	c.watcher = NewChangeWatcher(host, settings.Budgets.DebounceWindow(), func([]MutationRecord) {
		c.Scan()
	})
	return c
}

// OnLoad runs the page-load sequence: resume any pending continuation,
// attach the change watcher, and do the initial scan.
func (c *Controller) OnLoad() {
	if !c.settings.Enabled {
		debugLog("disabled, not augmenting")
		return
	}

	if task, resumed := c.engine.ResumePending(); resumed {
		log.Printf("resumed continuation for %q: %s", task.Row.Subject, task.Outcome)
		if task.WasUnread {
			c.engine.RestoreUnread(task.Row)
		}
	}

	if root := c.listRoot(); root != nil {
		c.watcher.Observe(root)
	} else {
		log.Printf("message list root not found; observing nothing")
	}

	rows := c.catalog.WaitForRows(c.settings.Budgets.RowRetryAttempts, func() {
		c.sleep(c.settings.Budgets.RowRetryInterval())
	})
	if len(rows) > 0 {
		c.apply(rows)
	}
}

// Scan re-resolves rows and re-applies grouping. Host-not-ready (no rows) is
// not an error; the watcher or caller retries later.
func (c *Controller) Scan() {
	if !c.settings.Enabled {
		return
	}
	rows := c.catalog.FindRows()
	if len(rows) == 0 {
		debugLog("scan: host not ready, no rows")
		return
	}
	c.apply(rows)
}

func (c *Controller) apply(rows []Row) {
	if c.settings.GroupByDate {
		groups := GroupByCategory(rows, ComputeThresholds(c.now()))
		c.headers.Sync(groups)
	}
	c.bundles.Rebuild(rows)
}

// Extract runs the sequential pipeline over the first count rows, driving
// the overlay from pipeline progress.
func (c *Controller) Extract(count int) CommandResult {
	rows := c.catalog.WaitForRows(c.settings.Budgets.RowRetryAttempts, func() {
		c.sleep(c.settings.Budgets.RowRetryInterval())
	})
	if len(rows) == 0 {
		return CommandResult{OK: false, Message: "no message rows found"}
	}
	if count <= 0 || count > len(rows) {
		count = len(rows)
	}

	c.overlay.Show("Preparing extraction…")
	pipeline := NewPipeline(rows[:count], c.overlay.Update)
	completed, failed := pipeline.Run(c.engine)
	c.overlay.ShowSummary(completed, failed, count)
	c.overlay.Hide()

	// Navigations during extraction replace the document, taking the
	// watcher subscription and every synthetic element with it.
	if root := c.listRoot(); root != nil {
		c.watcher.Observe(root)
	}
	c.Scan()

	return CommandResult{
		OK:        failed == 0,
		Message:   fmt.Sprintf("%d succeeded, %d failed", completed, failed),
		Completed: completed,
		Failed:    failed,
		Total:     count,
	}
}

// Cleanup removes every synthetic element and disconnects all
// subscriptions. Callable at any time; idempotent.
func (c *Controller) Cleanup() {
	c.watcher.Disconnect()
	c.headers.Cleanup()
	c.bundles.Cleanup()
	c.overlay.Hide()
}

// Dispatch handles one control-channel command.
func (c *Controller) Dispatch(cmd Command) CommandResult {
	switch cmd.Name {
	case "toggle":
		c.settings.Enabled = !c.settings.Enabled
		if err := saveSettings(c.settings); err != nil {
			return CommandResult{OK: false, Message: err.Error()}
		}
		if !c.settings.Enabled {
			c.Cleanup()
		}
		return CommandResult{OK: true, Enabled: c.settings.Enabled, GroupByDate: c.settings.GroupByDate}

	case "getStatus":
		rows := c.catalog.FindRows()
		groups := make(map[Category]int)
		for cat, g := range GroupByCategory(rows, ComputeThresholds(c.now())) {
			groups[cat] = len(g)
		}
		return CommandResult{
			OK:          true,
			Enabled:     c.settings.Enabled,
			GroupByDate: c.settings.GroupByDate,
			Rows:        len(rows),
			Groups:      groups,
			OpenBundle:  c.bundles.OpenBundle(),
		}

	case "cleanup":
		c.Cleanup()
		return CommandResult{OK: true, Message: "cleaned up"}

	case "extract":
		return c.Extract(cmd.Count)

	default:
		return CommandResult{OK: false, Message: fmt.Sprintf("unknown command %q", cmd.Name)}
	}
}

// listRoot finds the message-list container through the configured fallback
// selectors.
func (c *Controller) listRoot() *html.Node {
	doc := c.host.Document()
	for _, s := range c.settings.Selectors.ListRoot {
		sel := doc.Find(s)
		if len(sel.Nodes) > 0 {
			return sel.Nodes[0]
		}
	}
	return nil
}
