// Package proxy is a pass-through forwarder placed in front of remote model
// hosts that drop keep-alive connections.
package proxy

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sentinelai/sentinel/internal/logging"
)

// hopHeaders are stripped from both directions.
var hopHeaders = map[string]bool{
	"host":              true,
	"connection":        true,
	"transfer-encoding": true,
}

// Server forwards every request verbatim to the target.
type Server struct {
	target *url.URL
	client *http.Client
}

// New creates a proxy for the given target base URL.
func New(target string, timeout time.Duration) (*Server, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Server{
		target: u,
		client: &http.Client{
			Timeout: timeout,
			// The upstream drops keep-alive; open a fresh connection per call.
			Transport: &http.Transport{DisableKeepAlives: true},
		},
	}, nil
}

// ServeHTTP relays method, path, query, headers and body; any forwarding
// failure yields 502 with the error text.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	outURL := *s.target
	outURL.Path = singleJoin(s.target.Path, r.URL.Path)
	outURL.RawQuery = r.URL.RawQuery

	req, err := http.NewRequestWithContext(r.Context(), r.Method, outURL.String(), r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	copyHeaders(req.Header, r.Header)

	resp, err := s.client.Do(req)
	if err != nil {
		logging.Op().Error("proxy forward failed", "url", outURL.String(), "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		logging.Op().Warn("proxy response relay interrupted", "error", err)
	}
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if hopHeaders[strings.ToLower(key)] {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

func singleJoin(a, b string) string {
	a = strings.TrimSuffix(a, "/")
	if !strings.HasPrefix(b, "/") {
		b = "/" + b
	}
	return a + b
}
