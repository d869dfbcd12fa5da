package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigDir = ".inboxlens"

// getConfigPath returns the path to a file in the config directory.
func getConfigPath(filename string) string {
	return filepath.Join(defaultConfigDir, filename)
}

// SelectorSet holds the prioritized fallback selectors for every host
// surface the engine consumes. The host layout is never assumed; when it
// shifts, these are re-pinned in settings without a rebuild.
type SelectorSet struct {
	ListRoot       []string `yaml:"list_root"`
	Rows           []string `yaml:"rows"`
	RowSender      []string `yaml:"row_sender"`
	RowSubject     []string `yaml:"row_subject"`
	RowSnippet     []string `yaml:"row_snippet"`
	RowDate        []string `yaml:"row_date"`
	RowLink        []string `yaml:"row_link"`
	RowSelect      []string `yaml:"row_select"`
	ThreadIDKeys   []string `yaml:"thread_id_keys"`
	MarkUnread     []string `yaml:"mark_unread"`
	MessageSender  []string `yaml:"message_sender"`
	MessageSubject []string `yaml:"message_subject"`
	MessageBody    []string `yaml:"message_body"`
	MessageDate    []string `yaml:"message_date"`
	ErrorPage      []string `yaml:"error_page"`
	ErrorMarkers   []string `yaml:"error_markers"`
}

// Budgets names every retry count and delay the engine uses. Single-item and
// batch extraction share these; tuning one path without the other is a
// visible settings edit, not a hidden literal.
type Budgets struct {
	DebounceWindowMS   int `yaml:"debounce_window_ms"`
	StabilityDelayMS   int `yaml:"stability_delay_ms"`
	RowRetryAttempts   int `yaml:"row_retry_attempts"`
	RowRetryIntervalMS int `yaml:"row_retry_interval_ms"`
	SettleDelayMS      int `yaml:"settle_delay_ms"`
	ResumeAttempts     int `yaml:"resume_attempts"`
	ResumeIntervalMS   int `yaml:"resume_interval_ms"`
	NavDelayMinMS      int `yaml:"nav_delay_min_ms"`
	NavDelayMaxMS      int `yaml:"nav_delay_max_ms"`
	TaskPauseMS        int `yaml:"task_pause_ms"`
	ContextTTLSeconds  int `yaml:"context_ttl_seconds"`
}

func (b Budgets) DebounceWindow() time.Duration {
	return time.Duration(b.DebounceWindowMS) * time.Millisecond
}

func (b Budgets) StabilityDelay() time.Duration {
	return time.Duration(b.StabilityDelayMS) * time.Millisecond
}

func (b Budgets) RowRetryInterval() time.Duration {
	return time.Duration(b.RowRetryIntervalMS) * time.Millisecond
}

func (b Budgets) SettleDelay() time.Duration {
	return time.Duration(b.SettleDelayMS) * time.Millisecond
}

func (b Budgets) ResumeInterval() time.Duration {
	return time.Duration(b.ResumeIntervalMS) * time.Millisecond
}

func (b Budgets) TaskPause() time.Duration {
	return time.Duration(b.TaskPauseMS) * time.Millisecond
}

func (b Budgets) ContextTTL() time.Duration {
	return time.Duration(b.ContextTTLSeconds) * time.Second
}

// Settings is the durable configuration, read on startup and rewritten on
// toggle.
type Settings struct {
	Enabled            bool        `yaml:"enabled"`
	GroupByDate        bool        `yaml:"group_by_date"`
	MessageURLTemplate string      `yaml:"message_url_template"`
	Selectors          SelectorSet `yaml:"selectors"`
	Budgets            Budgets     `yaml:"budgets"`
}

// defaultSettings returns the settings written on first run.
func defaultSettings() *Settings {
	return &Settings{
		Enabled:     true,
		GroupByDate: true,
		Selectors: SelectorSet{
			ListRoot:   []string{`div[role="main"]`, `table.message-list`, "body"},
			Rows:       []string{`tr[role="row"]`, `div[role="listitem"]`, "table tr"},
			RowSender:  []string{".sender", "[email]", "td:nth-child(2)"},
			RowSubject: []string{".subject", "b", "strong", "td:nth-child(3)"},
			RowSnippet: []string{".snippet", ".preview"},
			RowDate:    []string{".date", "time", "td:last-child"},
			RowLink:    []string{"a[href]"},
			ThreadIDKeys: []string{
				"data-thread-id",
				"data-thread-perm-id",
				"data-legacy-thread-id",
			},
			RowSelect: []string{
				`input[type="checkbox"]`,
				`div[role="checkbox"]`,
			},
			MarkUnread: []string{
				`[aria-label="Mark as unread"]`,
				`[data-tooltip="Mark as unread"]`,
				`button.mark-unread`,
			},
			MessageSender:  []string{`.message-view .sender`, `h3 span[email]`, `[email]`},
			MessageSubject: []string{`.message-view .subject`, `h2[data-thread-perm-id]`, `div[role="main"] h2`},
			MessageBody:    []string{`.message-view .body`, `div[role="main"] .message-body`, `div.a3s`},
			MessageDate:    []string{`.message-view .date`, `div[role="main"] time`},
			ErrorPage:      []string{"div.errorpage", `div[jsaction*="errorPage"]`},
			ErrorMarkers: []string{
				"Temporary Error",
				"Something went wrong",
				"rate limit exceeded",
			},
		},
		Budgets: Budgets{
			DebounceWindowMS:   500,
			StabilityDelayMS:   250,
			RowRetryAttempts:   10,
			RowRetryIntervalMS: 500,
			SettleDelayMS:      800,
			ResumeAttempts:     15,
			ResumeIntervalMS:   1000,
			NavDelayMinMS:      400,
			NavDelayMaxMS:      1400,
			TaskPauseMS:        1000,
			ContextTTLSeconds:  30,
		},
	}
}

// loadSettings loads settings from the default location, falling back to
// defaults when the file is missing.
func loadSettings() (*Settings, error) {
	data, err := os.ReadFile(getConfigPath("settings.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return defaultSettings(), nil
		}
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	settings := defaultSettings()
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parsing settings YAML: %w", err)
	}

	// A settings file that zeroes a retry budget would stall the engine.
	if settings.Budgets.RowRetryAttempts < 1 {
		settings.Budgets.RowRetryAttempts = 1
	}
	if settings.Budgets.ResumeAttempts < 1 {
		settings.Budgets.ResumeAttempts = 1
	}

	return settings, nil
}

// saveSettings writes settings back to disk, creating the config directory
// if needed.
func saveSettings(settings *Settings) error {
	if err := os.MkdirAll(defaultConfigDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}

	if err := os.WriteFile(getConfigPath("settings.yaml"), data, 0644); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}

// ensureConfigExists writes the default settings file on first run.
func ensureConfigExists() error {
	if _, err := os.Stat(getConfigPath("settings.yaml")); os.IsNotExist(err) {
		return saveSettings(defaultSettings())
	}
	return nil
}
