package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestProxyRelaysRequest(t *testing.T) {
	var gotMethod, gotPath, gotQuery, gotBody, gotHeader string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotHeader = r.Header.Get("Content-Type")
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"ok": true}`))
	}))
	defer upstream.Close()

	p, err := New(upstream.URL, time.Second)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions?x=1", strings.NewReader(`{"model": "m"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Connection", "keep-alive")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if gotMethod != http.MethodPost || gotPath != "/v1/chat/completions" || gotQuery != "x=1" {
		t.Errorf("request not relayed: %s %s?%s", gotMethod, gotPath, gotQuery)
	}
	if gotBody != `{"model": "m"}` {
		t.Errorf("body not relayed: %q", gotBody)
	}
	if gotHeader != "application/json" {
		t.Errorf("content type not relayed: %q", gotHeader)
	}
	if rec.Code != http.StatusAccepted {
		t.Errorf("status not relayed: %d", rec.Code)
	}
	if rec.Header().Get("X-Upstream") != "yes" {
		t.Error("response headers not relayed")
	}
	if rec.Body.String() != `{"ok": true}` {
		t.Errorf("response body not relayed: %q", rec.Body)
	}
}

func TestProxyStripsHopHeaders(t *testing.T) {
	var sawConnection bool
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// net/http strips Connection on receipt, so assert via the raw header map.
		_, sawConnection = r.Header["Connection"]
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	p, _ := New(upstream.URL, time.Second)
	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	req.Header.Set("Connection", "keep-alive")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if sawConnection {
		t.Error("hop-by-hop Connection header must not be forwarded")
	}
}

func TestProxyUpstreamDown(t *testing.T) {
	p, _ := New("http://127.0.0.1:1", 200*time.Millisecond)
	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("502 should carry the error text")
	}
}
