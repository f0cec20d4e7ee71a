package geocode

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// rewriteTransport redirects every request to the test server regardless of
// the original host.
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newRewriteClient(t *testing.T, serverURL string) *http.Client {
	t.Helper()
	target, err := url.Parse(serverURL)
	require.NoError(t, err)
	return &http.Client{Transport: rewriteTransport{target: target}}
}

func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}
