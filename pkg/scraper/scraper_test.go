package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSite(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`
			<html><body>
				<a href="/files/handbook.pdf">Handbook</a>
				<a href="reports/">Reports</a>
				<a href="/files/handbook.pdf#page=2">Handbook again</a>
				<a href="https://elsewhere.example/offsite.pdf">Offsite</a>
				<a href="/private/secret.pdf">Secret</a>
				<a href="/image.png">Image</a>
			</body></html>
		`))
	})
	mux.HandleFunc("/reports/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`
			<html><body>
				<a href="q1.PDF">Q1</a>
				<a href="/">Home</a>
				<a href="/archive.html">Archive</a>
			</body></html>
		`))
	})
	mux.HandleFunc("/archive.html", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<a href="/old/2019.pdf">2019</a>`))
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		switch r.URL.Path {
		case "/files/handbook.pdf":
			w.Write([]byte("%PDF-1.4 handbook"))
		case "/files/my notes.pdf":
			w.Write([]byte("%PDF-1.4 notes"))
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/download", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="Annual Report.pdf"`)
		w.Write([]byte("%PDF-1.7 report"))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testScraper(t *testing.T, baseURL string, depth int) *Scraper {
	s, err := NewWithConfig(ScraperConfig{
		BaseURL:        baseURL,
		MaxDepth:       depth,
		RateLimit:      1000,
		IgnorePatterns: []string{"/private/"},
		Timeout:        5 * time.Second,
	})
	require.NoError(t, err)
	return s
}

func TestDiscoverPDFs(t *testing.T) {
	srv := newSite(t)
	var visited []string
	s := testScraper(t, srv.URL, 1)
	s.config.OnProgress = func(u string) { visited = append(visited, u) }

	pdfs, err := s.DiscoverPDFs(context.Background(), srv.URL+"/")

	require.NoError(t, err)
	assert.Equal(t, []string{
		srv.URL + "/files/handbook.pdf",
		srv.URL + "/reports/q1.PDF",
	}, pdfs)
	assert.Equal(t, []string{srv.URL + "/", srv.URL + "/reports/"}, visited)
}

func TestDiscoverPDFs_Depth(t *testing.T) {
	srv := newSite(t)

	pdfs, err := testScraper(t, srv.URL, 0).DiscoverPDFs(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/files/handbook.pdf"}, pdfs)

	pdfs, err = testScraper(t, srv.URL, 2).DiscoverPDFs(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Contains(t, pdfs, srv.URL+"/old/2019.pdf")
}

func TestDiscoverPDFs_StartPageError(t *testing.T) {
	srv := newSite(t)

	_, err := testScraper(t, srv.URL, 1).DiscoverPDFs(context.Background(), srv.URL+"/missing")

	assert.ErrorContains(t, err, "received status code 404")
}

func TestFetch(t *testing.T) {
	srv := newSite(t)
	s := testScraper(t, srv.URL, 1)
	ctx := context.Background()

	name, body, err := s.Fetch(ctx, srv.URL+"/files/handbook.pdf")
	require.NoError(t, err)
	assert.Equal(t, "handbook.pdf", name)
	assert.Equal(t, "%PDF-1.4 handbook", string(body))

	name, _, err = s.Fetch(ctx, srv.URL+"/download")
	require.NoError(t, err)
	assert.Equal(t, "Annual Report.pdf", name)

	name, _, err = s.Fetch(ctx, srv.URL+"/files/my%20notes.pdf")
	require.NoError(t, err)
	assert.Equal(t, "my notes.pdf", name)

	_, _, err = s.Fetch(ctx, srv.URL+"/nothing.pdf")
	assert.Error(t, err)
}

func TestFetch_TooLarge(t *testing.T) {
	srv := newSite(t)
	s, err := NewWithConfig(ScraperConfig{BaseURL: srv.URL, RateLimit: 1000, MaxBytes: 4})
	require.NoError(t, err)

	_, _, err = s.Fetch(context.Background(), srv.URL+"/files/handbook.pdf")

	assert.ErrorContains(t, err, "exceeds 4 bytes")
}

func TestFetch_Cancelled(t *testing.T) {
	srv := newSite(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := testScraper(t, srv.URL, 1).Fetch(ctx, srv.URL+"/files/handbook.pdf")

	assert.Error(t, err)
}

func TestScraperConfig(t *testing.T) {
	config := ScraperConfig{
		BaseURL:        "https://example.com",
		MaxDepth:       5,
		RateLimit:      1.0,
		IgnorePatterns: []string{"/ignore/", "private"},
		Timeout:        10 * time.Second,
	}

	s, err := NewWithConfig(config)
	require.NoError(t, err)
	assert.Equal(t, config.BaseURL, s.config.BaseURL)
	assert.Equal(t, config.MaxDepth, s.config.MaxDepth)
	assert.Equal(t, int64(64<<20), s.config.MaxBytes)

	_, err = NewWithConfig(ScraperConfig{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestShouldFollow(t *testing.T) {
	config := ScraperConfig{
		BaseURL:        "https://example.com",
		IgnorePatterns: []string{"/ignore/", "private"},
		PageExtensions: []string{".html", "/"},
	}

	s, err := NewWithConfig(config)
	require.NoError(t, err)

	tests := []struct {
		url      string
		expected bool
	}{
		{"https://example.com/docs/", true},
		{"https://example.com/page.html", true},
		{"https://example.com/ignore/page.html", false},
		{"https://other-domain.com/page.html", false},
		{"https://example.com/file.pdf", false},
		{"https://example.com/private.html", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			result := s.shouldFollow(tt.url)
			assert.Equal(t, tt.expected, result)
		})
	}
}
