package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/html"
)

var (
	tabID     string
	debugMode bool
	extractN  int

	debugEnabled bool
)

// SetDebugMode enables or disables debug logging.
func SetDebugMode(enabled bool) {
	debugEnabled = enabled
}

func debugLog(format string, args ...interface{}) {
	if debugEnabled {
		log.Printf("[DEBUG] "+format, args...)
	}
}

var rootCmd = &cobra.Command{
	Use:   "inboxlens",
	Short: "Webmail list augmentation and extraction engine",
	Long: `Observes a webmail message list, groups rows under synthetic date
headers and bundles, and extracts full message content when only a collapsed
summary is rendered.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		SetDebugMode(debugMode)
	},
}

var runCmd = &cobra.Command{
	Use:   "run <page-url-or-file>",
	Short: "Scan a page, apply grouping, and report the result",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		controller := mustController(args[0])
		controller.OnLoad()

		result := controller.Dispatch(Command{Name: "getStatus"})
		printStatus(result)
	},
}

var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Flip the persistent enabled flag",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		settings := mustSettings()
		settings.Enabled = !settings.Enabled
		if err := saveSettings(settings); err != nil {
			log.Fatalf("Saving settings: %v", err)
		}
		state := "disabled"
		if settings.Enabled {
			state = "enabled"
		}
		log.Printf("inboxlens %s", state)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [page-url-or-file]",
	Short: "Report settings and, given a page, row and group counts",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			settings := mustSettings()
			log.Printf("enabled=%t group_by_date=%t", settings.Enabled, settings.GroupByDate)
			return
		}
		controller := mustController(args[0])
		printStatus(controller.Dispatch(Command{Name: "getStatus"}))
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract <page-url-or-file>",
	Short: "Run the extraction pipeline over the page's rows",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		controller := mustController(args[0])
		controller.OnLoad()

		result := controller.Dispatch(Command{Name: "extract", Count: extractN})
		if !result.OK && result.Total == 0 {
			log.Fatalf("Extraction failed: %s", result.Message)
		}
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup <page-url-or-file>",
	Short: "Remove every synthetic element from the page",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		controller := mustController(args[0])
		controller.Dispatch(Command{Name: "cleanup"})
		log.Printf("cleaned up")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&tabID, "tab", "default", "Tab identifier scoping continuation state")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	extractCmd.Flags().IntVar(&extractN, "count", 0, "Number of rows to extract (0 = all)")

	rootCmd.AddCommand(runCmd, toggleCmd, statusCmd, extractCmd, cleanupCmd)
}

func mustSettings() *Settings {
	if err := ensureConfigExists(); err != nil {
		log.Fatalf("Preparing config: %v", err)
	}
	settings, err := loadSettings()
	if err != nil {
		log.Fatalf("Loading settings: %v", err)
	}
	return settings
}

// mustController loads the page and wires a controller around it, exiting on
// any startup failure.
func mustController(page string) *Controller {
	settings := mustSettings()

	loader := pageLoaderFor(page)
	doc, err := loader(page)
	if err != nil {
		log.Fatalf("Loading page: %v", err)
	}

	host := NewHost(doc, page)
	host.SetLoader(loader)

	store, err := OpenContextStore(getConfigPath("continuations.db"), settings.Budgets.ContextTTL())
	if err != nil {
		log.Fatalf("Opening continuation store: %v", err)
	}

	return NewController(host, settings, store, tabID)
}

// pageLoaderFor returns an HTTP loader for URLs and a file loader otherwise,
// so fixture pages work the same as live ones.
func pageLoaderFor(page string) PageLoader {
	if strings.HasPrefix(page, "http://") || strings.HasPrefix(page, "https://") {
		client := &http.Client{Timeout: 30 * time.Second}
		return func(url string) (*html.Node, error) {
			return LoadPage(client, url)
		}
	}
	return func(path string) (*html.Node, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening page file: %w", err)
		}
		defer f.Close()
		return html.Parse(f)
	}
}

func printStatus(result CommandResult) {
	log.Printf("enabled=%t group_by_date=%t rows=%d", result.Enabled, result.GroupByDate, result.Rows)
	for _, cat := range CategoryOrder {
		if n := result.Groups[cat]; n > 0 {
			log.Printf("  %s: %d", cat, n)
		}
	}
	if result.OpenBundle != "" {
		log.Printf("  open bundle: %s", result.OpenBundle)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
