package fetch

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/geodata-tools/granule-dl/internal/auth"
	"github.com/geodata-tools/granule-dl/internal/logging"
)

// RetryPolicy bounds the retry loop for one logical download call.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy mirrors the backend's tolerances: 2.5s, 5s, 10s, 20s,
// 40s, 80s, then capped at 90s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   2500 * time.Millisecond,
		MaxDelay:    90 * time.Second,
	}
}

// Delay returns the backoff before re-attempting after the given 1-indexed
// failed attempt: min(MaxDelay, BaseDelay × 2^(attempt−1)).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if d > p.MaxDelay || d < 0 {
		return p.MaxDelay
	}
	return d
}

func (p RetryPolicy) validate() error {
	if p.MaxAttempts < 1 {
		return &ConfigError{Reason: fmt.Sprintf("retry policy: max attempts must be >= 1, got %d", p.MaxAttempts)}
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return &ConfigError{Reason: "retry policy: delays must be non-negative"}
	}
	return nil
}

// Executor issues GET/POST requests through the header policy, classifies
// failures, and retries transient ones with exponential backoff. It holds
// no per-call mutable state; concurrent Execute calls are independent.
type Executor struct {
	transport http.RoundTripper
	policy    *auth.HeaderPolicy
	retry     RetryPolicy
	// timeout is a read-idle bound, not a total-transfer bound: it limits
	// the wait for response headers and the gap between body reads, so a
	// hung connection is cut while a slow-but-flowing transfer is not.
	timeout       time.Duration
	postURLLength int // URLs longer than this are rewritten into POSTs
}

// NewExecutor creates an executor. transport may be nil to use the default.
func NewExecutor(transport http.RoundTripper, policy *auth.HeaderPolicy, retry RetryPolicy, timeout time.Duration, postURLLength int) *Executor {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if postURLLength <= 0 {
		postURLLength = 2000
	}
	return &Executor{
		transport:     transport,
		policy:        policy,
		retry:         retry,
		timeout:       timeout,
		postURLLength: postURLLength,
	}
}

// Execute requests the given URL, retrying transient failures per the retry
// policy. On success the response is returned with its body open for
// streaming. On terminal failure the returned error is a *RequestError
// carrying the last status and body so callers can translate it.
func (e *Executor) Execute(ctx context.Context, rawURL string, cred Credential, data url.Values, userAgent string) (*http.Response, error) {
	if err := e.retry.validate(); err != nil {
		return nil, err
	}
	// A URL the request constructor rejects cannot be downloaded under any
	// credential; surface it as a configuration problem rather than a
	// credential rejection.
	if _, err := http.NewRequest(http.MethodGet, rawURL, nil); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("invalid download url %q: %v", rawURL, err)}
	}
	log := logging.With("executor")

	body := ""
	if len(data) > 0 {
		body = data.Encode()
	}

	// Overlong URLs are rewritten once, before the first attempt: the query
	// string moves into a form-encoded POST body so backend URL-length
	// limits are respected. The rewritten form is what gets retried.
	if body == "" && len(rawURL) > e.postURLLength {
		if parsed, err := url.Parse(rawURL); err == nil && parsed.RawQuery != "" {
			body = parsed.RawQuery
			rawURL = fmt.Sprintf("%s://%s%s", parsed.Scheme, parsed.Host, parsed.Path)
			log.Debug().Str("url", rawURL).Msg("rewrote overlong GET as form POST")
		}
	}

	var lastErr *RequestError
	for attempt := 1; attempt <= e.retry.MaxAttempts; attempt++ {
		resp, err := e.attempt(ctx, rawURL, cred, body, userAgent)
		if err == nil {
			log.Info().Str("url", rawURL).Int("attempt", attempt).
				Str("credential", logging.Redact(cred.Bearer)).
				Msg("download request succeeded")
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		log.Warn().Str("url", rawURL).Int("attempt", attempt).Int("status", err.Status).
			Str("credential", logging.Redact(cred.Bearer)).
			Msg("download request failed")

		if err.Permanent {
			return nil, err
		}
		if attempt == e.retry.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.retry.Delay(attempt)):
		}
	}

	log.Error().Str("url", rawURL).Int("attempts", e.retry.MaxAttempts).Msg("all retries exhausted")
	return nil, lastErr
}

// attempt performs one try. A nil error means a 2xx response whose body the
// caller owns. All failure responses are drained and classified.
func (e *Executor) attempt(ctx context.Context, rawURL string, cred Credential, body, userAgent string) (*http.Response, *RequestError) {
	// The watchdog cancels the request when no bytes arrive within the
	// timeout; every body read rearms it, so an actively flowing transfer
	// runs as long as it needs to.
	reqCtx, cancel := context.WithCancel(ctx)
	watchdog := time.AfterFunc(e.timeout, cancel)
	abort := func() {
		watchdog.Stop()
		cancel()
	}

	var req *http.Request
	var err error
	if body == "" {
		req, err = http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	} else {
		req, err = http.NewRequestWithContext(reqCtx, http.MethodPost, rawURL, strings.NewReader(body))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		abort()
		return nil, &RequestError{URL: rawURL, Err: err}
	}

	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	if cred.Bearer != "" {
		e.policy.Apply(req, cred.Bearer, false)
	} else if cred.BasicUser != "" {
		req.SetBasicAuth(cred.BasicUser, cred.BasicPass)
	}

	resp, err := e.client(cred, req.URL.Hostname()).Do(req)
	if err != nil {
		abort()
		// Transport failures, including watchdog-cut hung connections, are
		// transient.
		return nil, &RequestError{URL: rawURL, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		resp.Body = &idleTimeoutBody{rc: resp.Body, watchdog: watchdog, timeout: e.timeout, cancel: cancel}
		return resp, nil
	}

	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	abort()

	// 401/403 means the credential is invalid or insufficient; retrying
	// cannot help. A consent-required body is likewise informational, not
	// transient, whatever its status.
	permanent := resp.StatusCode == http.StatusUnauthorized ||
		resp.StatusCode == http.StatusForbidden ||
		isConsentError(respBody)

	return nil, &RequestError{
		URL:       rawURL,
		Status:    resp.StatusCode,
		Body:      respBody,
		Permanent: permanent,
	}
}

// idleTimeoutBody rearms the attempt watchdog on every read, bounding the
// gap between reads instead of the whole transfer.
type idleTimeoutBody struct {
	rc       io.ReadCloser
	watchdog *time.Timer
	timeout  time.Duration
	cancel   context.CancelFunc
}

func (b *idleTimeoutBody) Read(p []byte) (int, error) {
	b.watchdog.Reset(b.timeout)
	return b.rc.Read(p)
}

func (b *idleTimeoutBody) Close() error {
	b.watchdog.Stop()
	b.cancel()
	return b.rc.Close()
}

// client builds a per-call client so the redirect hook can carry this
// call's credential. The transport (and its connection pool) is shared.
// Bearer credentials follow the header policy per hop; the Basic fallback
// bypasses the bearer policy and instead survives same-host hops only,
// getting stripped the moment a redirect leaves the original host.
func (e *Executor) client(cred Credential, originalHost string) *http.Client {
	if cred.Bearer == "" && cred.BasicUser != "" {
		return &http.Client{
			Transport: e.transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if strings.EqualFold(req.URL.Hostname(), originalHost) {
					req.SetBasicAuth(cred.BasicUser, cred.BasicPass)
				} else {
					req.Header.Del("Authorization")
				}
				return nil
			},
		}
	}
	return &http.Client{
		Transport:     e.transport,
		CheckRedirect: e.policy.RedirectFunc(cred.Bearer),
	}
}
