package render

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const sdkBaseURL = "https://maps.googleapis.com/maps/api/js"

// bootstrapCallback is the page-global callback the emitted document exposes
// for the SDK's async bootstrap.
const bootstrapCallback = "__sheetmapInit"

// Bootstrap describes a verified map SDK script source.
type Bootstrap struct {
	ScriptURL string
}

// Loader resolves the map SDK bootstrap exactly once per process. Concurrent
// renders share a single in-flight resolution; a failure rejects every
// waiter of that flight with the same error, and the next caller retries.
type Loader struct {
	client *http.Client

	group  singleflight.Group
	mu     sync.Mutex
	cached map[string]*Bootstrap
}

// NewLoader creates a Loader.
func NewLoader() *Loader {
	return &Loader{
		client: &http.Client{Timeout: 15 * time.Second},
		cached: make(map[string]*Bootstrap),
	}
}

// WithHTTPClient replaces the underlying HTTP client. Used by tests.
func (l *Loader) WithHTTPClient(hc *http.Client) *Loader {
	l.client = hc
	return l
}

// Resolve returns the bootstrap for the given credential, verifying the SDK
// endpoint on first use and memoizing the result.
func (l *Loader) Resolve(ctx context.Context, apiKey string, advanced bool) (*Bootstrap, error) {
	key := cacheKeyFor(apiKey, advanced)

	l.mu.Lock()
	if b, ok := l.cached[key]; ok {
		l.mu.Unlock()
		return b, nil
	}
	l.mu.Unlock()

	v, err, shared := l.group.Do(key, func() (any, error) {
		b, err := l.load(ctx, apiKey, advanced)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.cached[key] = b
		l.mu.Unlock()
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		zap.L().Debug("render: sdk bootstrap shared with concurrent waiter")
	}
	return v.(*Bootstrap), nil
}

func (l *Loader) load(ctx context.Context, apiKey string, advanced bool) (*Bootstrap, error) {
	params := url.Values{
		"key":      {apiKey},
		"callback": {bootstrapCallback},
		"loading":  {"async"},
	}
	if advanced {
		params.Set("libraries", "marker")
	}
	scriptURL := sdkBaseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, scriptURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "render: build sdk request")
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "render: map sdk unreachable")
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("render: map sdk bootstrap returned status %d", resp.StatusCode)
	}

	return &Bootstrap{ScriptURL: scriptURL}, nil
}

func cacheKeyFor(apiKey string, advanced bool) string {
	if advanced {
		return apiKey + "|marker"
	}
	return apiKey
}
