package telegram

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/chatgate/core/telegram/netutil"
)

// pollHeadroom is added on top of the long-poll timeout: getUpdates holds the
// response headers until updates arrive or the poll times out.
const pollHeadroom = 10 * time.Second

// retryPolicy bounds how often a Bot API request is repeated after a transient
// network failure. The n-th retry waits n*backoff.
type retryPolicy struct {
	retries int
	backoff time.Duration
}

var defaultRetryPolicy = retryPolicy{retries: 3, backoff: 2 * time.Second}

// BuildHTTPClient returns the client used for Bot API calls next to long polls
// of the given duration. Dial failures and timeouts are retried.
func BuildHTTPClient(pollTimeout time.Duration) *http.Client {
	if pollTimeout <= 0 {
		pollTimeout = DefaultLongPollTimeout
	}
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: pollTimeout + pollHeadroom,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout:   pollTimeout + 2*pollHeadroom,
		Transport: &retryTransport{base: base, policy: defaultRetryPolicy},
	}
}

type retryTransport struct {
	base   http.RoundTripper
	policy retryPolicy
}

var errNoRewind = errors.New("telegram: request body cannot be replayed")

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	for n := 1; err != nil && n <= t.policy.retries && netutil.ShouldRetry(err); n++ {
		if waitErr := sleepCtx(req, t.policy.backoff*time.Duration(n)); waitErr != nil {
			return nil, waitErr
		}
		next, rewindErr := rewind(req)
		if rewindErr != nil {
			return nil, errors.Join(err, rewindErr)
		}
		resp, err = base.RoundTrip(next)
	}
	return resp, err
}

// rewind clones req with a fresh body.
func rewind(req *http.Request) (*http.Request, error) {
	next := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return next, nil
	}
	if req.GetBody == nil {
		return nil, errNoRewind
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	next.Body = body
	return next, nil
}

func sleepCtx(req *http.Request, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-req.Context().Done():
		return req.Context().Err()
	case <-timer.C:
		return nil
	}
}
