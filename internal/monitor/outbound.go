package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

// Outbound performs the HTTP calls made to provider endpoints and webhook
// subscribers.
type Outbound struct {
	client  *fasthttp.Client
	timeout time.Duration
}

func NewOutbound(timeout time.Duration) *Outbound {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Outbound{
		client: &fasthttp.Client{
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: 60 * time.Second,
		},
		timeout: timeout,
	}
}

// Do sends one request and returns the response status code. A JSON body is
// sent when body is non-nil.
func (o *Outbound) Do(ctx context.Context, method, url string, header map[string]string, body []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(method)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	deadline := time.Now().Add(o.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := o.client.DoDeadline(req, resp, deadline); err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	return resp.StatusCode(), nil
}
