package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/restman-dev/restman/internal/errdef"
	"github.com/restman-dev/restman/internal/reqdef"
)

func TestSendRoundTrip(t *testing.T) {
	var seen struct {
		method string
		path   string
		query  string
		header string
		body   string
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.method = r.Method
		seen.path = r.URL.Path
		seen.query = r.URL.RawQuery
		seen.header = r.Header.Get("X-Trace")
		payload, _ := io.ReadAll(r.Body)
		seen.body = string(payload)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":7}`))
	}))
	defer server.Close()

	req := reqdef.NewRequestContext(&reqdef.Definition{
		Name:   "create",
		Method: "POST",
		URL:    server.URL + "/items",
		Headers: []reqdef.Header{
			{Name: "X-Trace", Value: "t-1"},
		},
		Params: []reqdef.Param{
			{Key: "dry", Value: "false"},
		},
		Body: reqdef.Body{Text: `{"name":"widget"}`, ContentType: "application/json"},
	})

	resp, err := NewClient().Send(context.Background(), req, Options{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if seen.method != "POST" || seen.path != "/items" {
		t.Fatalf("wrong request line: %s %s", seen.method, seen.path)
	}
	if seen.query != "dry=false" {
		t.Fatalf("params not folded into query: %q", seen.query)
	}
	if seen.header != "t-1" {
		t.Fatalf("header lost: %q", seen.header)
	}
	if seen.body != `{"name":"widget"}` {
		t.Fatalf("body lost: %q", seen.body)
	}

	if resp.Code != http.StatusCreated || resp.Failed {
		t.Fatalf("unexpected response: %+v", resp)
	}
	var parsed map[string]int
	if err := json.Unmarshal(resp.Body, &parsed); err != nil || parsed["id"] != 7 {
		t.Fatalf("body not captured: %q", resp.Body)
	}
	if resp.Size != int64(len(resp.Body)) {
		t.Fatalf("size mismatch: %d vs %d", resp.Size, len(resp.Body))
	}
	if resp.Duration <= 0 {
		t.Fatalf("duration not measured")
	}
}

func TestSendTransportFailureProducesSyntheticResponse(t *testing.T) {
	req := reqdef.NewRequestContext(&reqdef.Definition{
		Method: "GET",
		URL:    "http://127.0.0.1:1/unreachable",
	})

	resp, err := NewClient().Send(context.Background(), req, Options{Timeout: time.Second})
	if err == nil {
		t.Fatal("expected a transport error")
	}
	if errdef.CodeOf(err) != errdef.CodeHTTP {
		t.Fatalf("wrong code: %v", errdef.CodeOf(err))
	}
	if resp == nil || !resp.Failed {
		t.Fatalf("transport failure must yield a synthetic response: %+v", resp)
	}
	if resp.TransportError == "" {
		t.Fatal("synthetic response should carry the error text")
	}
	if resp.Code != 0 {
		t.Fatalf("synthetic response must not fake a status code: %d", resp.Code)
	}
}

func TestSendRejectsUnparsableURL(t *testing.T) {
	req := reqdef.NewRequestContext(&reqdef.Definition{
		Method: "GET",
		URL:    "missing-scheme/path",
	})
	resp, err := NewClient().Send(context.Background(), req, Options{})
	if err == nil {
		t.Fatal("expected scheme error")
	}
	if resp == nil || !resp.Failed {
		t.Fatal("even a build failure must yield a failed response context")
	}
}

func TestSendRedirectPolicy(t *testing.T) {
	var hops int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			hops++
			http.Redirect(w, r, "/final", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	req := reqdef.NewRequestContext(&reqdef.Definition{Method: "GET", URL: server.URL + "/start"})

	resp, err := NewClient().Send(context.Background(), req, Options{FollowRedirects: false})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Code != http.StatusFound {
		t.Fatalf("redirects should not be followed by default, got %d", resp.Code)
	}

	resp, err = NewClient().Send(context.Background(), req, Options{FollowRedirects: true})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Code != http.StatusOK {
		t.Fatalf("redirect not followed: %d", resp.Code)
	}
	if resp.EffectiveURL != server.URL+"/final" {
		t.Fatalf("effective url should track the final hop: %q", resp.EffectiveURL)
	}
}

func TestSendContextCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req := reqdef.NewRequestContext(&reqdef.Definition{Method: "GET", URL: server.URL})
	resp, err := NewClient().Send(ctx, req, Options{})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if resp == nil || !resp.Failed {
		t.Fatal("cancellation must still yield a failed response context")
	}
}
