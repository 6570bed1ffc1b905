package httputil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/qqres/errutil"
	"github.com/xeptore/qqres/must"
	"github.com/xeptore/qqres/ratelimit"
)

var ErrTooManyRequests = errors.New("too many requests")

const DefaultTimeout = 10 * time.Second

type Client struct {
	http    *http.Client
	limiter *ratelimit.Limiter
}

// NewClient wraps c. A nil c gets a client with DefaultTimeout, and a nil
// limiter gets ratelimit.MaxConcurrentRequests slots.
func NewClient(c *http.Client, limiter *ratelimit.Limiter) *Client {
	if nil == c {
		c = &http.Client{Timeout: DefaultTimeout} //nolint:exhaustruct
	}
	if nil == limiter {
		limiter = ratelimit.New(ratelimit.MaxConcurrentRequests)
	}
	return &Client{http: c, limiter: limiter}
}

// Get issues a GET request carrying header and returns the response body of
// a 200 response. Context errors are returned as is.
func (c *Client) Get(ctx context.Context, link string, header http.Header) (body []byte, err error) {
	flawP := flaw.P{"url": errutil.RedactURL(link)}

	release, err := c.limiter.Acquire(ctx)
	if nil != err {
		return nil, err
	}
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if nil != err {
		if errutil.IsContext(ctx) {
			return nil, ctx.Err()
		}
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return nil, flaw.From(fmt.Errorf("failed to create get request: %v", err)).Append(flawP)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if nil != err {
		switch {
		case errutil.IsContext(ctx):
			return nil, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return nil, context.DeadlineExceeded
		default:
			flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
			return nil, flaw.From(fmt.Errorf("failed to send get request: %v", err)).Append(flawP)
		}
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr {
			flawP["err_debug_tree"] = errutil.Tree(closeErr).FlawP()
			closeErr = flaw.From(fmt.Errorf("failed to close get response body: %v", closeErr)).Append(flawP)
			switch {
			case nil == err:
				err = closeErr
			case errutil.IsContext(ctx):
				err = flaw.From(errors.New("context was ended")).Join(closeErr)
			case errors.Is(err, context.DeadlineExceeded):
				err = flaw.From(errors.New("timeout has reached")).Join(closeErr)
			case errors.Is(err, ErrTooManyRequests):
				err = flaw.From(errors.New("too many requests")).Join(closeErr)
			case errutil.IsFlaw(err):
				err = must.BeFlaw(err).Join(closeErr)
			default:
				panic(errutil.UnknownError(err))
			}
		}
	}()
	flawP["response"] = errutil.HTTPResponseFlawPayload(resp)

	switch status := resp.StatusCode; status {
	case http.StatusOK:
		respBytes, err := ReadOptionalResponseBody(ctx, resp)
		if nil != err {
			return nil, must.AppendIfFlaw(err, flawP)
		}
		return respBytes, nil
	case http.StatusTooManyRequests:
		return nil, ErrTooManyRequests
	default:
		respBytes, err := ReadOptionalResponseBody(ctx, resp)
		if nil != err {
			return nil, must.AppendIfFlaw(err, flawP)
		}
		flawP["response_body"] = string(respBytes)
		return nil, flaw.From(fmt.Errorf("unexpected status code: %d", status)).Append(flawP)
	}
}
