package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/restman-dev/restman/internal/errdef"
	"github.com/restman-dev/restman/internal/reqdef"
	"github.com/restman-dev/restman/internal/telemetry"
)

type Options struct {
	Timeout            time.Duration
	FollowRedirects    bool
	InsecureSkipVerify bool
	ProxyURL           string
	ForceHTTP2         bool
}

type Client struct {
	jar         http.CookieJar
	httpFactory func(Options) (*http.Client, error)
	telemetry   telemetry.Instrumenter
}

func NewClient() *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{jar: jar, telemetry: telemetry.Noop()}
	c.httpFactory = c.buildHTTPClient
	return c
}

// SetHTTPFactory allows callers to override how http.Client instances are created.
// Passing nil restores the default factory.
func (c *Client) SetHTTPFactory(factory func(Options) (*http.Client, error)) {
	if factory == nil {
		factory = c.buildHTTPClient
	}
	c.httpFactory = factory
}

// SetTelemetry configures the instrumenter used to emit OpenTelemetry spans.
// Passing nil restores the no-op implementation.
func (c *Client) SetTelemetry(instr telemetry.Instrumenter) {
	if instr == nil {
		instr = telemetry.Noop()
	}
	c.telemetry = instr
}

// Send performs one HTTP exchange for a fully resolved request context.
// A transport failure still yields a response: the returned context carries
// Failed plus the error text so post-response scripts have something to
// inspect, and the error reports what went wrong to the caller.
func (c *Client) Send(
	ctx context.Context,
	req *reqdef.RequestContext,
	opts Options,
) (resp *reqdef.ResponseContext, err error) {
	httpReq, err := buildHTTPRequest(ctx, req)
	if err != nil {
		return failedResponse(0, err), err
	}

	client, err := c.httpFactory(opts)
	if err != nil {
		return failedResponse(0, err), err
	}

	spanCtx, requestSpan := c.telemetry.Start(httpReq.Context(), telemetry.RequestStart{
		Request:     req,
		HTTPRequest: httpReq,
	})
	httpReq = httpReq.WithContext(spanCtx)

	defer func() {
		if requestSpan == nil {
			return
		}
		requestSpan.RecordResponse(resp)
		statusCode := 0
		if resp != nil {
			statusCode = resp.Code
		}
		requestSpan.End(telemetry.RequestResult{Err: err, StatusCode: statusCode})
	}()

	start := time.Now()
	httpResp, err := client.Do(httpReq)
	if err != nil {
		err = errdef.Wrap(errdef.CodeHTTP, err, "perform request")
		return failedResponse(time.Since(start), err), err
	}

	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil && err == nil {
			err = errdef.Wrap(errdef.CodeHTTP, closeErr, "close response body")
		}
	}()

	body, readErr := io.ReadAll(httpResp.Body)
	if readErr != nil {
		err = errdef.Wrap(errdef.CodeHTTP, readErr, "read response body")
		return failedResponse(time.Since(start), err), err
	}

	resp = &reqdef.ResponseContext{
		Status:       httpResp.Status,
		Code:         httpResp.StatusCode,
		Headers:      httpResp.Header.Clone(),
		Body:         body,
		Duration:     time.Since(start),
		Size:         int64(len(body)),
		EffectiveURL: effectiveURL(httpReq, httpResp),
	}
	return resp, nil
}

// buildHTTPRequest turns the resolved request context into an http.Request,
// folding extra query params into the URL and replaying header order.
func buildHTTPRequest(ctx context.Context, req *reqdef.RequestContext) (*http.Request, error) {
	target, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHTTP, err, "parse url %q", req.URL)
	}
	if target.Scheme == "" {
		return nil, errdef.New(errdef.CodeHTTP, "url %q is missing a scheme", req.URL)
	}

	if len(req.Params) > 0 {
		query := target.Query()
		for _, param := range req.Params {
			query.Add(param.Key, param.Value)
		}
		target.RawQuery = query.Encode()
	}

	var body io.Reader
	if req.Body.Text != "" {
		body = strings.NewReader(req.Body.Text)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHTTP, err, "build request")
	}

	for _, header := range req.Headers {
		httpReq.Header.Add(header.Name, header.Value)
	}
	if req.Body.ContentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", req.Body.ContentType)
	}
	return httpReq, nil
}

func failedResponse(duration time.Duration, cause error) *reqdef.ResponseContext {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	return &reqdef.ResponseContext{
		Failed:         true,
		TransportError: message,
		Duration:       duration,
	}
}

func effectiveURL(httpReq *http.Request, httpResp *http.Response) string {
	if httpResp != nil && httpResp.Request != nil && httpResp.Request.URL != nil {
		return httpResp.Request.URL.String()
	}
	if httpReq.URL != nil {
		return httpReq.URL.String()
	}
	return ""
}
