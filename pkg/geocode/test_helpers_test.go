package geocode

import (
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

// newTestLimiter never blocks.
func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

// newRewriteClient sends requests aimed at endpoint to the test server
// instead, keeping path suffix and query string intact.
func newRewriteClient(serverURL, endpoint string) *http.Client {
	return &http.Client{Transport: &redirectTransport{to: serverURL, from: endpoint}}
}

type redirectTransport struct {
	from, to string
}

func (t *redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	orig := req.URL.String()
	if !strings.HasPrefix(orig, t.from) {
		return http.DefaultTransport.RoundTrip(req)
	}

	target, err := url.Parse(t.to + strings.TrimPrefix(orig, t.from))
	if err != nil {
		return nil, err
	}
	out := req.Clone(req.Context())
	out.URL = target
	out.Host = target.Host
	return http.DefaultTransport.RoundTrip(out)
}
