package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/geodata-tools/granule-dl/internal/logging"
)

// Token is an application-usable credential obtained by exchanging a
// user-held access token with the identity provider.
type Token struct {
	Value  string
	Source string // the user credential this token was exchanged from
}

// ExchangeError indicates the authorization-code exchange could not be
// completed. It is never retried at this level; callers may retry the whole
// download if they choose.
type ExchangeError struct {
	Step   string // "authorize" or "token"
	Status int    // HTTP status, 0 for transport failures
	Reason string
	Err    error
}

func (e *ExchangeError) Error() string {
	msg := fmt.Sprintf("unable to acquire authorization (%s step): %s", e.Step, e.Reason)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	return msg
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// Exchanger converts a user access token into an application token via the
// identity provider's authorization-code flow. Results are memoized per
// user credential for the process lifetime; the cache has no eviction since
// key cardinality is bounded by concurrent request variety.
type Exchanger struct {
	httpClient  *http.Client
	authHost    string // e.g. https://auth.example.gov
	redirectURI string
	policy      *HeaderPolicy
	userAgent   string

	mu    sync.RWMutex
	cache map[string]Token
	group singleflight.Group // at most one in-flight exchange per credential
}

// NewExchanger creates a token exchanger against the given identity
// provider host. If httpClient is nil, a default client with a 60s timeout
// is created.
func NewExchanger(httpClient *http.Client, authHost, redirectURI string, policy *HeaderPolicy, userAgent string) *Exchanger {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Exchanger{
		httpClient:  httpClient,
		authHost:    strings.TrimRight(authHost, "/"),
		redirectURI: redirectURI,
		policy:      policy,
		userAgent:   userAgent,
		cache:       make(map[string]Token),
	}
}

// Exchange returns an application token for the given user credential,
// performing the two-step code exchange on first use and serving the cached
// token afterwards.
func (e *Exchanger) Exchange(ctx context.Context, userCredential string) (Token, error) {
	e.mu.RLock()
	tok, ok := e.cache[userCredential]
	e.mu.RUnlock()
	if ok {
		return tok, nil
	}

	result, err, _ := e.group.Do(userCredential, func() (any, error) {
		// Double-check: another caller may have populated the cache
		// while this one was queued on the group.
		e.mu.RLock()
		cached, hit := e.cache[userCredential]
		e.mu.RUnlock()
		if hit {
			return cached, nil
		}

		tok, err := e.exchange(ctx, userCredential)
		if err != nil {
			return Token{}, err
		}

		e.mu.Lock()
		e.cache[userCredential] = tok
		e.mu.Unlock()
		return tok, nil
	})
	if err != nil {
		return Token{}, err
	}
	return result.(Token), nil
}

func (e *Exchanger) exchange(ctx context.Context, userCredential string) (Token, error) {
	log := logging.With("auth")

	code, err := e.authorize(ctx, userCredential)
	if err != nil {
		return Token{}, err
	}

	tok, err := e.redeem(ctx, code)
	if err != nil {
		return Token{}, err
	}

	log.Info().Str("auth_host", e.authHost).Msg("acquired shared access token")
	return Token{Value: tok, Source: userCredential}, nil
}

// authorize performs the authorization step: a GET with redirects disabled,
// so the 3xx Location header can be harvested as data rather than followed.
func (e *Exchanger) authorize(ctx context.Context, userCredential string) (string, error) {
	authorizeURL := fmt.Sprintf("%s/oauth/authorize?response_type=code&client_id=%s&redirect_uri=%s",
		e.authHost, url.QueryEscape(e.clientID()), url.QueryEscape(e.redirectURI))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authorizeURL, nil)
	if err != nil {
		return "", &ExchangeError{Step: "authorize", Reason: "failed to build request", Err: err}
	}
	// The provider needs both the app identity and the user credential to
	// issue a code on the user's behalf.
	req.Header.Set("Authorization", e.policy.AuthorizationValue(userCredential, true))
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}

	resp, err := e.noRedirectClient().Do(req)
	if err != nil {
		return "", &ExchangeError{Step: "authorize", Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return "", &ExchangeError{Step: "authorize", Status: resp.StatusCode,
			Reason: "expected a redirect from the authorization endpoint"}
	}

	// Header lookup is case-insensitive by way of http.Header.
	location := resp.Header.Get("Location")
	if location == "" {
		return "", &ExchangeError{Step: "authorize", Status: resp.StatusCode,
			Reason: "redirect carried no Location header"}
	}

	locURL, err := url.Parse(location)
	if err != nil {
		return "", &ExchangeError{Step: "authorize", Status: resp.StatusCode,
			Reason: "redirect Location is not a valid URL", Err: err}
	}
	code := locURL.Query().Get("code")
	if code == "" {
		return "", &ExchangeError{Step: "authorize", Status: resp.StatusCode,
			Reason: "redirect Location carried no authorization code"}
	}
	return code, nil
}

// redeem performs the token step: POSTing the code for an access token.
// Failures here are hard failures; an auth exchange that did not succeed is
// never classified as transient.
func (e *Exchanger) redeem(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", e.redirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.authHost+"/oauth/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", &ExchangeError{Step: "token", Reason: "failed to build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", e.policy.BasicAuthorization())
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}

	resp, err := e.noRedirectClient().Do(req)
	if err != nil {
		return "", &ExchangeError{Step: "token", Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ExchangeError{Step: "token", Status: resp.StatusCode, Reason: "failed to read response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &ExchangeError{Step: "token", Status: resp.StatusCode, Reason: "token endpoint refused the code"}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", &ExchangeError{Step: "token", Status: resp.StatusCode, Reason: "response is not valid JSON", Err: err}
	}
	if payload.AccessToken == "" {
		return "", &ExchangeError{Step: "token", Status: resp.StatusCode, Reason: "response carried no access_token"}
	}
	return payload.AccessToken, nil
}

// noRedirectClient clones the configured client with redirect-following
// suppressed, preserving its timeout and transport.
func (e *Exchanger) noRedirectClient() *http.Client {
	return &http.Client{
		Timeout:   e.httpClient.Timeout,
		Transport: e.httpClient.Transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// clientID recovers the client id half of the app identity for the
// authorize query string.
func (e *Exchanger) clientID() string {
	return e.policy.ClientID()
}
