// Package sheet fetches the published CSV document for a spreadsheet.
package sheet

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/time/rate"
)

const csvExportURL = "https://docs.google.com/spreadsheets/d/%s/export"

// CSVURL returns the published-CSV export endpoint for a spreadsheet ID.
func CSVURL(sheetID, gid string) string {
	params := url.Values{"format": {"csv"}}
	if gid != "" {
		params.Set("gid", gid)
	}
	return fmt.Sprintf(csvExportURL, url.PathEscape(sheetID)) + "?" + params.Encode()
}

// Options configures the Fetcher.
type Options struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
}

// Fetcher downloads the published CSV with retry and rate limiting.
type Fetcher struct {
	client  *http.Client
	opts    Options
	limiter *rate.Limiter
}

// NewFetcher creates a Fetcher with the given options.
func NewFetcher(opts Options) *Fetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "sheetmap/1.0"
	}
	return &Fetcher{
		client:  &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		limiter: rate.NewLimiter(5, 5),
	}
}

// WithHTTPClient replaces the underlying HTTP client. Used by tests.
func (f *Fetcher) WithHTTPClient(hc *http.Client) *Fetcher {
	f.client = hc
	return f
}

// FetchCSV downloads the CSV body for the given spreadsheet. The returned
// reader is BOM-tolerant: published sheets are frequently served with a
// UTF-8 BOM that would otherwise corrupt the first header cell.
// A non-success final status is fatal for the run.
func (f *Fetcher) FetchCSV(ctx context.Context, sheetID, gid string) (io.ReadCloser, error) {
	rawURL := CSVURL(sheetID, gid)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sheet: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.doWithRetry(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "sheet: fetch csv")
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, eris.Errorf("sheet: unexpected status %d fetching %s", resp.StatusCode, rawURL)
	}

	decoded := transform.NewReader(resp.Body, unicode.UTF8BOM.NewDecoder())
	return &bomStrippedBody{Reader: decoded, closer: resp.Body}, nil
}

// bomStrippedBody pairs the transformed reader with the response body closer.
type bomStrippedBody struct {
	io.Reader
	closer io.Closer
}

func (b *bomStrippedBody) Close() error { return b.closer.Close() }

func (f *Fetcher) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := range f.opts.MaxRetries {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "sheet: rate limiter wait")
		}

		cloned := req.Clone(ctx)
		resp, err := f.client.Do(cloned)
		if err != nil {
			lastErr = err
			zap.L().Warn("sheet: request failed, retrying",
				zap.String("url", req.URL.String()),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			f.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = eris.Errorf("sheet: http %d from %s", resp.StatusCode, req.URL.String())
			zap.L().Warn("sheet: retryable status",
				zap.String("url", req.URL.String()),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			f.backoff(ctx, attempt)
			continue
		}

		return resp, nil
	}

	return nil, eris.Wrap(lastErr, "sheet: all retries exhausted")
}

func (f *Fetcher) backoff(ctx context.Context, attempt int) {
	base := 500 * time.Millisecond
	maxBackoff := 10 * time.Second
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > maxBackoff {
		d = maxBackoff
	}
	d += time.Duration(rand.Int64N(int64(d) / 2))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
