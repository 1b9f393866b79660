// Package scraper finds and downloads PDF documents linked from web pages.
package scraper

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/xhad/docrag/internal/logger"
)

type ScraperConfig struct {
	BaseURL        string
	MaxDepth       int
	RateLimit      float64 // requests per second
	IgnorePatterns []string
	// PageExtensions are the link suffixes followed as HTML pages.
	PageExtensions []string
	MaxBytes       int64
	Timeout        time.Duration
	OnProgress     func(url string)
}

type Scraper struct {
	config   ScraperConfig
	client   *http.Client
	limiter  *rate.Limiter
	baseHost string
}

func NewWithConfig(config ScraperConfig) (*Scraper, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth < 0 {
		config.MaxDepth = 0
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if len(config.PageExtensions) == 0 {
		config.PageExtensions = []string{".html", ".htm", "/", ""}
	}
	if config.MaxBytes == 0 {
		config.MaxBytes = 64 << 20
	}

	parsedURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, err
	}
	if parsedURL.Host == "" {
		return nil, fmt.Errorf("base url %q has no host", config.BaseURL)
	}

	return &Scraper{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		baseHost: parsedURL.Host,
	}, nil
}

func isPDFLink(u *url.URL) bool {
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}

func (s *Scraper) sameHost(u *url.URL) bool {
	return u.Host == s.baseHost
}

func (s *Scraper) ignored(urlStr string) bool {
	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return true
		}
	}
	return false
}

// shouldFollow reports whether urlStr is a same-host HTML page worth crawling.
func (s *Scraper) shouldFollow(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil || !s.sameHost(parsedURL) || s.ignored(urlStr) {
		return false
	}

	p := strings.ToLower(parsedURL.Path)
	for _, ext := range s.config.PageExtensions {
		if ext == "" {
			if path.Ext(p) == "" {
				return true
			}
			continue
		}
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	return false
}

// DiscoverPDFs crawls same-host pages from pageURL, up to MaxDepth links
// deep, and returns the sorted, de-duplicated PDF links found on them.
func (s *Scraper) DiscoverPDFs(ctx context.Context, pageURL string) ([]string, error) {
	visited := make(map[string]bool)
	found := make(map[string]bool)

	if err := s.crawl(ctx, pageURL, 0, visited, found); err != nil {
		return nil, err
	}

	pdfs := make([]string, 0, len(found))
	for u := range found {
		pdfs = append(pdfs, u)
	}
	sort.Strings(pdfs)
	return pdfs, nil
}

func (s *Scraper) crawl(ctx context.Context, urlStr string, depth int, visited, found map[string]bool) error {
	if depth > s.config.MaxDepth || visited[urlStr] {
		return nil
	}
	visited[urlStr] = true
	if s.config.OnProgress != nil {
		s.config.OnProgress(urlStr)
	}

	resp, err := s.get(ctx, urlStr)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return err
	}

	base, err := url.Parse(urlStr)
	if err != nil {
		return err
	}

	var next []string
	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, _ := selection.Attr("href")
		link, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			logger.Debug("skipping link %q on %s: %v", href, urlStr, err)
			return
		}
		link = base.ResolveReference(link)
		link.Fragment = ""

		switch {
		case isPDFLink(link):
			if s.sameHost(link) && !s.ignored(link.String()) {
				found[link.String()] = true
			}
		case s.shouldFollow(link.String()):
			next = append(next, link.String())
		}
	})

	for _, u := range next {
		if err := s.crawl(ctx, u, depth+1, visited, found); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("error crawling %s: %v", u, err)
		}
	}
	return nil
}

// Fetch downloads one document and names it after its Content-Disposition
// filename or, failing that, the last segment of its path.
func (s *Scraper) Fetch(ctx context.Context, urlStr string) (string, []byte, error) {
	resp, err := s.get(ctx, urlStr)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.config.MaxBytes+1))
	if err != nil {
		return "", nil, fmt.Errorf("failed to read %s: %w", urlStr, err)
	}
	if int64(len(body)) > s.config.MaxBytes {
		return "", nil, fmt.Errorf("%s exceeds %d bytes", urlStr, s.config.MaxBytes)
	}

	return fileName(resp), body, nil
}

func fileName(resp *http.Response) string {
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		if name := path.Base(params["filename"]); params["filename"] != "" && name != "/" {
			return name
		}
	}
	name := path.Base(resp.Request.URL.Path)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	if name == "/" || name == "." {
		return resp.Request.URL.Host
	}
	return name
}

func (s *Scraper) get(ctx context.Context, urlStr string) (*http.Response, error) {
	// Apply rate limiting
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}
	return resp, nil
}
