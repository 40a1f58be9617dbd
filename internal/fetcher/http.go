package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"

	"github.com/IshaanNene/ReviewGoat/internal/config"
	"github.com/IshaanNene/ReviewGoat/internal/dom"
	"github.com/IshaanNene/ReviewGoat/internal/observability"
	"github.com/IshaanNene/ReviewGoat/internal/types"
)

// HTTPPage drives a scrape over plain HTTP. Clicking the next control
// means following its href; the response replaces the current document.
type HTTPPage struct {
	client     *http.Client
	cfg        *config.FetcherConfig
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
	userAgents []string
	uaIndex    atomic.Int64

	mu      sync.Mutex
	current *dom.Document
}

// HTTPOption configures an HTTPPage.
type HTTPOption func(*HTTPPage)

// WithHTTPMetrics records request counters into m.
func WithHTTPMetrics(m *observability.Metrics) HTTPOption {
	return func(p *HTTPPage) { p.metrics = m }
}

// WithHTTPClient replaces the underlying client. The cookie jar and
// redirect policy of c are kept as given.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPPage) { p.client = c }
}

// NewHTTPPage creates an HTTP page driver.
func NewHTTPPage(cfg *config.FetcherConfig, logger *slog.Logger, opts ...HTTPOption) (*HTTPPage, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns / 2,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSInsecure,
		},
		DisableCompression: true, // decompressed in decompressReader, brotli included
	}

	maxRedirects := cfg.MaxRedirects
	redirectPolicy := func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("max redirects (%d) reached", maxRedirects)
		}
		return nil
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	p := &HTTPPage{
		client: &http.Client{
			Transport:     transport,
			Jar:           jar,
			Timeout:       cfg.RequestTimeout,
			CheckRedirect: redirectPolicy,
		},
		cfg:        cfg,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger.With("component", "http_page"),
		userAgents: cfg.UserAgents,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Open fetches rawURL and makes it the current document.
func (p *HTTPPage) Open(ctx context.Context, rawURL string) error {
	doc, err := p.fetch(ctx, rawURL)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.current = doc
	p.mu.Unlock()
	return nil
}

// Snapshot returns the current document.
func (p *HTTPPage) Snapshot(_ context.Context) (dom.Tree, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil, types.ErrNoDocument
	}
	return p.current, nil
}

// Document returns the current document, or nil before Open.
func (p *HTTPPage) Document() *dom.Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// ClickNext follows the href of the element matching selector. A control
// without a navigable href, or one pointing back at the current page,
// yields ErrNoNextTarget.
func (p *HTTPPage) ClickNext(ctx context.Context, selector string) error {
	doc := p.Document()
	if doc == nil {
		return types.ErrNoDocument
	}

	href, found := nextTarget(doc, selector)
	if !found {
		return fmt.Errorf("%w: %s", types.ErrNoNextTarget, selector)
	}
	target := ResolveHref(doc.URL(), href)
	if target == "" {
		return fmt.Errorf("%w: %q has no navigable href", types.ErrNoNextTarget, selector)
	}
	if doc.URL() != nil && CanonicalizeURL(target) == CanonicalizeURL(doc.URL().String()) {
		return fmt.Errorf("%w: next link points at the current page", types.ErrNoNextTarget)
	}

	p.logger.Debug("following next link", "url", target)
	return p.Open(ctx, target)
}

// Close releases idle connections.
func (p *HTTPPage) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// Type returns the driver type identifier.
func (p *HTTPPage) Type() string {
	return "http"
}

func (p *HTTPPage) fetch(ctx context.Context, rawURL string) (*dom.Document, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", p.nextUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	p.count(func(m *observability.Metrics) { m.RequestsTotal.Add(1) })

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		p.count(func(m *observability.Metrics) { m.RequestsFailed.Add(1) })
		return nil, &types.FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		p.count(func(m *observability.Metrics) { m.RequestsFailed.Add(1) })
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &types.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var reader io.Reader = resp.Body
	if p.cfg.MaxBodySize > 0 {
		reader = io.LimitReader(reader, p.cfg.MaxBodySize)
	}
	reader, err = decompressReader(resp, reader)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: err}
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: err}
	}
	p.count(func(m *observability.Metrics) { m.BytesDownloaded.Add(int64(len(body))) })

	finalURL := resp.Request.URL.String()
	doc, err := dom.NewDocumentFromString(string(body), finalURL)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: err}
	}

	p.logger.Debug("fetch complete",
		"url", finalURL,
		"status", resp.StatusCode,
		"size", len(body),
		"duration", time.Since(start),
	)
	return doc, nil
}

func (p *HTTPPage) count(fn func(*observability.Metrics)) {
	if p.metrics != nil {
		fn(p.metrics)
	}
}

// nextUserAgent returns the next User-Agent in rotation.
func (p *HTTPPage) nextUserAgent() string {
	if len(p.userAgents) == 0 {
		return "ReviewGoat/" + config.Version
	}
	idx := p.uaIndex.Add(1) % int64(len(p.userAgents))
	return p.userAgents[idx]
}

// decompressReader wraps a reader with the decompressor for the response's
// Content-Encoding: gzip, deflate or brotli.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}
