package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"github.com/chromedp/chromedp"
	colly "github.com/gocolly/colly/v2"
	"golang.org/x/net/html/charset"
)

var httpTransport = &http.Transport{
	DisableCompression: false,
}

// Page is the text captured from one URL at resource creation time. It is
// stored on the resource so ingestion never touches the network again.
type Page struct {
	URL     string
	Title   string
	Text    string
	FetchAt time.Time
}

// FetchConfig tunes one fetch.
type FetchConfig struct {
	Timeout  time.Duration
	MaxBytes int64
	// RenderJS prerenders the page in a headless browser before extraction,
	// for sites that assemble their content client side.
	RenderJS      bool
	RenderTimeout time.Duration
}

// FetchPage downloads a single page and extracts its readable text. Links
// are never followed; a link resource captures exactly one page.
func FetchPage(rawURL string, cfg FetchConfig) (*Page, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q", parsed.Scheme)
	}
	target := parsed.String()

	if cfg.RenderJS {
		if page, err := fetchRendered(target, cfg); err == nil {
			return page, nil
		}
		// Rendering is best effort; fall through to the plain fetch.
	}

	c := colly.NewCollector(colly.MaxDepth(1))
	c.WithTransport(httpTransport)
	if cfg.Timeout > 0 {
		c.SetRequestTimeout(cfg.Timeout)
	} else {
		c.SetRequestTimeout(30 * time.Second)
	}
	c.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

	var (
		page     *Page
		fetchErr error
	)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Accept-Encoding", "gzip, deflate, br")
	})

	c.OnResponse(func(r *colly.Response) {
		contentType := r.Headers.Get("Content-Type")
		if contentType != "" && !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml+xml") {
			fetchErr = fmt.Errorf("URL did not return an HTML page (got %s)", contentType)
			return
		}
		if cfg.MaxBytes > 0 && int64(len(r.Body)) > cfg.MaxBytes {
			fetchErr = fmt.Errorf("page exceeds %d byte limit", cfg.MaxBytes)
			return
		}

		body := r.Body
		// The standard transport decompresses gzip but not brotli.
		if strings.Contains(r.Headers.Get("Content-Encoding"), "br") {
			if decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body))); err == nil {
				body = decompressed
			}
		}
		if utf8Reader, err := charset.NewReader(bytes.NewReader(body), contentType); err == nil {
			if decoded, err := io.ReadAll(utf8Reader); err == nil && len(decoded) > 0 {
				body = decoded
			}
		}
		r.Body = body
	})

	c.OnHTML("html", func(e *colly.HTMLElement) {
		if page != nil {
			return
		}
		title := strings.TrimSpace(e.DOM.Find("title").Text())
		text := extractReadableText(e.DOM)
		page = &Page{
			URL:     target,
			Title:   title,
			Text:    text,
			FetchAt: time.Now(),
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		if fetchErr != nil {
			return
		}
		switch {
		case r.StatusCode == 403:
			fetchErr = fmt.Errorf("access forbidden (403): the site blocked the fetch")
		case r.StatusCode == 429:
			fetchErr = fmt.Errorf("rate limited (429): try again later")
		case r.StatusCode >= 500:
			fetchErr = fmt.Errorf("server error (%d) fetching page", r.StatusCode)
		default:
			fetchErr = fmt.Errorf("failed to fetch %s: %w", target, err)
		}
	})

	if err := c.Visit(target); err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", target, err)
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if page == nil || strings.TrimSpace(page.Text) == "" {
		return nil, fmt.Errorf("no readable text found at %s", target)
	}
	return page, nil
}

func fetchRendered(target string, cfg FetchConfig) (*Page, error) {
	timeout := cfg.RenderTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
	)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	var html string
	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	text := extractReadableText(doc.Selection)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("rendered page has no readable text")
	}
	return &Page{
		URL:     target,
		Title:   strings.TrimSpace(doc.Find("title").Text()),
		Text:    text,
		FetchAt: time.Now(),
	}, nil
}

// extractReadableText strips chrome (navigation, scripts, footers) and pulls
// the page's main content, preferring semantic containers over the raw body.
func extractReadableText(selection *goquery.Selection) string {
	doc := selection.Clone()
	doc.Find("script, style, nav, footer, header, aside, .nav, .navbar, .footer, .header, .sidebar, .advertisement, .ads").Remove()

	contentSelectors := []string{
		"main",
		"article",
		"[role='main']",
		".main-content",
		".content",
		"#content",
		"body",
	}

	var content strings.Builder
	for _, selector := range contentSelectors {
		found := false
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if len(text) > 100 {
				content.WriteString(text)
				content.WriteString("\n\n")
				found = true
			}
		})
		if found {
			break
		}
	}
	if content.Len() == 0 {
		content.WriteString(doc.Find("body").Text())
	}

	lines := strings.Split(content.String(), "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
