package markdown

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/reinhart/webmd/internal/logger"
)

const (
	DefaultUserAgent    = "webmd/1.0"
	DefaultMaxBodyBytes = 10 * 1024 * 1024
)

// PageFetcher retrieves a webpage. Callers own the response body.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*http.Response, error)
}

type HTTPPageFetcher struct {
	client    *http.Client
	userAgent string
}

type FetcherOption func(*HTTPPageFetcher)

func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *HTTPPageFetcher) { f.client = c }
}

func WithUserAgent(ua string) FetcherOption {
	return func(f *HTTPPageFetcher) { f.userAgent = ua }
}

// WithTimeout bounds a whole fetch. Zero leaves the client without a timeout.
// The timeout is set on a copy of the current client, so a client given
// earlier with WithHTTPClient keeps its transport.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *HTTPPageFetcher) {
		c := *f.client
		c.Timeout = d
		f.client = &c
	}
}

func NewPageFetcher(opts ...FetcherOption) *HTTPPageFetcher {
	f := &HTTPPageFetcher{
		client:    http.DefaultClient,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *HTTPPageFetcher) Fetch(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL %s: %w", url, err)
	}
	return resp, nil
}

// StatusError reports a webpage response outside the 2xx range.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("failed to fetch the webpage: %s", e.Status)
}

// Converter fetches webpages and renders their body as Markdown.
type Converter struct {
	fetcher      PageFetcher
	maxBodyBytes int64
}

// NewConverter returns a Converter reading at most maxBodyBytes of each page.
// A non-positive limit selects DefaultMaxBodyBytes.
func NewConverter(fetcher PageFetcher, maxBodyBytes int64) *Converter {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Converter{fetcher: fetcher, maxBodyBytes: maxBodyBytes}
}

// ParseWebpageToMarkdown fetches url and converts the direct children of the
// page's body element.
func (c *Converter) ParseWebpageToMarkdown(ctx context.Context, url string) (string, error) {
	body, err := c.fetchBody(ctx, url)
	if err != nil {
		return "", err
	}

	md, err := FromHTML(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML from %s: %w", url, err)
	}
	return md, nil
}

// ParseWebpageToRichMarkdown fetches url like ParseWebpageToMarkdown but
// renders the whole document with html-to-markdown, keeping inline markup,
// tables and code blocks.
func (c *Converter) ParseWebpageToRichMarkdown(ctx context.Context, url string) (string, error) {
	body, err := c.fetchBody(ctx, url)
	if err != nil {
		return "", err
	}

	md, err := htmltomarkdown.ConvertString(string(body))
	if err != nil {
		return "", fmt.Errorf("failed to convert HTML from %s: %w", url, err)
	}
	return md, nil
}

// fetchBody returns the body of a 2xx response, capped at maxBodyBytes.
func (c *Converter) fetchBody(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	logger.Debug("Fetched %s: %s", url, resp.Status)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		status := resp.Status
		if status == "" {
			status = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Status: status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > c.maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds maximum size of %d bytes", c.maxBodyBytes)
	}
	return body, nil
}
