// Package webfetch downloads a web page and reduces it to readable text so it
// can be pasted into a council prompt.
package webfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds a single HTTP request
	DefaultTimeout = 30 * time.Second

	// DefaultMaxChars caps the extracted text
	DefaultMaxChars = 20000

	// maxBodyBytes caps how much HTML is read
	maxBodyBytes = 5 << 20

	userAgent = "LLM-Council-Fetcher/1.0"

	maxAttempts = 2
	retryDelay  = 2 * time.Second
)

// ErrInvalidURL rejects anything that is not an absolute http(s) URL
var ErrInvalidURL = errors.New("invalid URL")

// noise is removed before text extraction
const noise = "script, style, noscript, iframe, svg, nav, header, footer, aside, form"

// Options configures a Fetcher
type Options struct {
	Timeout    time.Duration
	MaxChars   int
	CacheTTL   time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Fetcher extracts page text with an in-memory cache in front
type Fetcher struct {
	client     *http.Client
	cache      *Cache
	maxChars   int
	retryDelay time.Duration
	logger     *zap.Logger
}

// New creates a Fetcher
func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Fetcher{
		client:     client,
		cache:      NewCache(opts.CacheTTL),
		maxChars:   opts.MaxChars,
		retryDelay: retryDelay,
		logger:     logger.With(zap.String("component", "webfetch")),
	}
}

// FetchURLContent returns the readable text of the page at rawURL
func (f *Fetcher) FetchURLContent(ctx context.Context, rawURL string) (string, error) {
	target, err := validate(rawURL)
	if err != nil {
		return "", err
	}

	if content, ok := f.cache.Get(target); ok {
		f.logger.Debug("fetch cache hit", zap.String("url", target))
		return content, nil
	}

	doc, err := f.download(ctx, target)
	if err != nil {
		return "", err
	}

	content := Truncate(ExtractText(doc), f.maxChars)
	if content == "" {
		return "", fmt.Errorf("no readable content at %s", target)
	}

	f.cache.Set(target, content)
	f.logger.Info("fetched url", zap.String("url", target), zap.Int("chars", len(content)))
	return content, nil
}

func (f *Fetcher) download(ctx context.Context, target string) (*goquery.Document, error) {
	var resp *http.Response
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err = f.get(ctx, target)
		if err == nil {
			break
		}
		if attempt < maxAttempts {
			f.logger.Warn("fetch attempt failed, retrying",
				zap.String("url", target), zap.Int("attempt", attempt), zap.Error(err))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.retryDelay):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s after %d attempts: %w", target, maxAttempts, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d for %s", resp.StatusCode, target)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

func (f *Fetcher) get(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	return f.client.Do(req)
}

// ExtractText returns the title and body text of doc with markup noise
// removed and whitespace collapsed. Block elements become line breaks.
func ExtractText(doc *goquery.Document) string {
	doc.Find(noise).Remove()

	var lines []string
	if title := collapse(doc.Find("title").First().Text()); title != "" {
		lines = append(lines, title)
	}

	root := doc.Find("main, article").First()
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	blocks := root.Find("h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, td, dd, dt")
	if blocks.Length() == 0 {
		if text := collapse(root.Text()); text != "" {
			lines = append(lines, text)
		}
		return strings.Join(lines, "\n")
	}

	blocks.Each(func(_ int, s *goquery.Selection) {
		// nested blocks are emitted by their innermost element
		if s.Find("p, li, pre, blockquote").Length() > 0 {
			return
		}
		if text := collapse(s.Text()); text != "" {
			lines = append(lines, text)
		}
	})
	return strings.Join(lines, "\n")
}

// Truncate cuts s to at most maxChars runes, marking the cut
func Truncate(s string, maxChars int) string {
	runes := []rune(s)
	if maxChars <= 0 || len(runes) <= maxChars {
		return s
	}
	return strings.TrimSpace(string(runes[:maxChars])) + "\n[truncated]"
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func validate(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	u.Fragment = ""
	return u.String(), nil
}
