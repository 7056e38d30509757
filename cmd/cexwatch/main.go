package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/cexwatch/cexwatch/internal/config"
	"github.com/cexwatch/cexwatch/internal/enrich"
	"github.com/cexwatch/cexwatch/internal/scraper"
	"github.com/cexwatch/cexwatch/internal/server"
	"github.com/cexwatch/cexwatch/internal/sources"
	"github.com/cexwatch/cexwatch/internal/stealth"
	"github.com/cexwatch/cexwatch/internal/store"
	"github.com/cexwatch/cexwatch/internal/webscrape"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "cexwatch",
	Short:   "Crypto exchange announcement monitor",
	Long:    "cexwatch collects announcements from crypto exchanges through layered acquisition strategies, classifies them, and serves them over a local API.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("cexwatch", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/cexwatch/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure exchanges and scraper behavior.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Announcements:")
		fmt.Printf("  Total: %d\n", stats.Total)
		fmt.Printf("  Synthetic: %d\n", stats.Synthetic)
		if stats.NewestEpoch > 0 {
			fmt.Printf("  Newest: %s\n", time.UnixMilli(stats.NewestEpoch).UTC().Format("2006-01-02 15:04 UTC"))
		}

		if len(stats.ByExchange) > 0 {
			fmt.Println("\nBy exchange:")
			printCounts(stats.ByExchange)
		}
		if len(stats.ByCategory) > 0 {
			fmt.Println("\nBy category:")
			printCounts(stats.ByCategory)
		}

		runs, err := st.GetRecentRuns(5)
		if err != nil {
			return fmt.Errorf("getting runs: %w", err)
		}
		if len(runs) > 0 {
			fmt.Println("\nRecent runs:")
			for _, r := range runs {
				fmt.Printf("  %s  found %d, kept %d, created %d, updated %d (%dms)\n",
					r.StartedAt, r.Found, r.Kept, r.Created, r.Updated, r.DurationMS)
			}
		}
		return nil
	},
}

// --- scrape command ---

var enrichContent bool

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape all configured exchanges and persist the results",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		client := buildClient()
		agg := buildAggregator(st, client)
		ctx := context.Background()

		fmt.Println("Scraping exchanges...")
		_, report, err := agg.ScrapeAll(ctx)
		if err != nil {
			return err
		}

		if err := st.RecordRun(report.RunID, report.Started, report.Duration,
			report.Found, report.Kept, report.Created, report.Updated); err != nil {
			log.Printf("recording run: %v", err)
		}

		fmt.Println("\nScrape complete:")
		fmt.Printf("  Found: %d\n", report.Found)
		fmt.Printf("  Kept after dedup: %d\n", report.Kept)
		fmt.Printf("  Created: %d\n", report.Created)
		fmt.Printf("  Updated: %d\n", report.Updated)

		if len(report.PerExchange) > 0 {
			fmt.Println("\nAnnouncements by exchange:")
			printCounts(report.PerExchange)
		}

		if enrichContent || cfg.Enrich.Enabled {
			fmt.Println("\nEnriching placeholder content...")
			result := enrich.New(st, client).Run(ctx, cfg.Enrich.Limit)
			fmt.Printf("  Enriched: %d\n", result.Enriched)
			fmt.Printf("  Failed: %d\n", result.Failed)
		}

		return nil
	},
}

func init() {
	scrapeCmd.Flags().BoolVar(&enrichContent, "enrich", false, "Fetch full content for placeholder announcements")
}

// --- health command ---

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe reachability of every acquisition strategy",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := buildClient()
		agg := buildAggregator(nil, client)

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		health := agg.HealthCheck(ctx)
		names := make([]string, 0, len(health))
		for name := range health {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			state := "DOWN"
			if health[name] {
				state = "ok"
			}
			fmt.Printf("  %-16s %s\n", name, state)
		}
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		agg := buildAggregator(nil, buildClient())

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(st, agg, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (defaults to config)")
}

// --- wiring ---

func buildClient() *stealth.Client {
	client := stealth.New()
	if cfg.Scraper.MaxRetries > 0 {
		client.MaxRetries = cfg.Scraper.MaxRetries
	}
	if cfg.Scraper.TimeoutSeconds > 0 {
		client.HTTPClient.Timeout = time.Duration(cfg.Scraper.TimeoutSeconds) * time.Second
	}
	return client
}

func buildAggregator(st *store.Store, client *stealth.Client) *scraper.Aggregator {
	registry := sources.NewRegistry(client)
	web := webscrape.New(client)
	for exchange, urls := range cfg.Scraper.Pages {
		web.SetPages(exchange, urls)
	}

	var exchangeSources []scraper.ExchangeSource
	for _, exchange := range cfg.Exchanges.Primary {
		exchangeSources = append(exchangeSources, scraper.NewExchangeScraper(exchange, registry, web, client))
	}
	for _, exchange := range cfg.Exchanges.Others {
		exchangeSources = append(exchangeSources, scraper.NewBestEffortScraper(exchange, client))
	}

	var upserter scraper.Upserter
	if st != nil {
		upserter = st
	}
	return scraper.NewAggregator(upserter, exchangeSources...)
}

func printCounts(counts map[string]int) {
	type kv struct {
		key string
		val int
	}
	var sorted []kv
	for k, v := range counts {
		sorted = append(sorted, kv{k, v})
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].val > sorted[j].val })
	for _, s := range sorted {
		fmt.Printf("  %s: %d\n", s.key, s.val)
	}
}

func openStore() (*store.Store, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return store.Open(filepath.Join(dataDir, "cexwatch.db"))
}
