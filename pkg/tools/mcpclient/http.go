package mcpclient

import (
	"net"
	"net/http"
	"time"
)

// headerTransport injects static headers (typically auth tokens) into every
// request the SDK issues.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) == 0 {
		return t.base.RoundTrip(req)
	}

	r := req.Clone(req.Context())
	for k, v := range t.headers {
		r.Header.Set(k, v)
	}

	return t.base.RoundTrip(r)
}

// newHTTPClient returns a client for the stream transports. timeout bounds
// dialing and the TLS handshake; it never caps the lifetime of a stream or a
// slow tool call.
func newHTTPClient(headers map[string]string, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	base := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: timeout}).DialContext,
		TLSHandshakeTimeout: timeout,
		MaxIdleConnsPerHost: 4,
	}

	return &http.Client{Transport: &headerTransport{base: base, headers: headers}}
}
