package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/docrag/pkg/ingest"
	"github.com/xhad/docrag/pkg/scraper"
)

var (
	crawlDepth  int
	crawlIgnore []string
)

var crawlCmd = &cobra.Command{
	Use:   "crawl <url>",
	Short: "Find PDF links on a site and ingest them",
	Long: `Crawls same-host pages starting at url, following links up to --depth
pages away, and ingests every PDF it finds.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		return crawlAndIngest(cmd.Context(), a, args[0])
	},
}

func init() {
	crawlCmd.Flags().IntVar(&crawlDepth, "depth", -1, "link depth to follow (default from config)")
	crawlCmd.Flags().StringSliceVar(&crawlIgnore, "ignore", nil, "skip URLs containing these substrings")
	rootCmd.AddCommand(crawlCmd)
}

func crawlAndIngest(ctx context.Context, a *app, url string) error {
	depth := config.Scraper.MaxDepth
	if crawlDepth >= 0 {
		depth = crawlDepth
	}

	var pageCount int32
	s, err := scraper.NewWithConfig(scraper.ScraperConfig{
		BaseURL:        url,
		MaxDepth:       depth,
		RateLimit:      config.Scraper.RateLimit,
		IgnorePatterns: crawlIgnore,
		Timeout:        config.Scraper.Timeout,
		OnProgress: func(string) {
			atomic.AddInt32(&pageCount, 1)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize scraper: %w", err)
	}

	spinner := newSpinner(" Crawling for PDF links...")
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				spinner.Describe(color.CyanString(" Crawling for PDF links (%d pages)", atomic.LoadInt32(&pageCount)))
			}
		}
	}()

	links, err := s.DiscoverPDFs(ctx, url)
	close(done)
	_ = spinner.Finish()
	if err != nil {
		return fmt.Errorf("failed to crawl %s: %w", url, err)
	}
	if len(links) == 0 {
		color.Yellow("No PDF links found on %s", url)
		return nil
	}
	color.Green("✓ Found %d PDFs on %d pages", len(links), atomic.LoadInt32(&pageCount))

	bar := newDocBar(len(links))
	var failed int
	for _, link := range links {
		bar.start(link)
		err := fetchAndIngest(ctx, a, s, link)
		bar.done()
		if err != nil {
			if isCancelled(err) {
				return err
			}
			failed++
			color.Red("\n✗ %s: %v", link, err)
		}
	}
	bar.finish()

	if failed == len(links) {
		return fmt.Errorf("all %d documents failed", failed)
	}
	return nil
}

func fetchAndIngest(ctx context.Context, a *app, s *scraper.Scraper, link string) error {
	name, data, err := s.Fetch(ctx, link)
	if err != nil {
		return err
	}
	result, err := a.ingester.Ingest(ctx, ingest.Request{PDF: data, DocID: ingest.DocIDFromFilename(name)})
	if err != nil {
		return err
	}
	printIngestResult(result)
	return nil
}
