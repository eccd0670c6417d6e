// Package auth implements credential handling for downloads from a
// federated identity-aware backend: the header policy that decides where
// bearer credentials may travel, and the token exchange against the
// identity provider.
package auth

import (
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
)

// signatureParams are query parameters that mark a URL as pre-signed.
// Attaching an Authorization header to a pre-signed URL corrupts the
// embedded signature, so the policy always refuses those.
var signatureParams = []string{
	"X-Amz-Algorithm",
	"X-Amz-Signature",
	"X-Amz-Credential",
	"Signature",
	"AWSAccessKeyId",
}

// HeaderPolicy decides, per outgoing or redirected request, whether the
// Authorization header may be attached. Bearer credentials are only sent to
// hosts in the trusted set; everywhere else a previously attached header is
// actively removed, because the HTTP client copies headers forward across
// redirects.
type HeaderPolicy struct {
	trusted  map[string]struct{}
	clientID string
	appBasic string // base64(clientID:clientSecret), empty when no app identity
}

// NewHeaderPolicy builds a policy trusting exactly the given hostnames.
// clientID/clientSecret form the optional Basic application identity used
// for combined authorization headers; pass empty strings to disable.
func NewHeaderPolicy(trustedHosts []string, clientID, clientSecret string) *HeaderPolicy {
	trusted := make(map[string]struct{}, len(trustedHosts))
	for _, h := range trustedHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			trusted[h] = struct{}{}
		}
	}
	p := &HeaderPolicy{trusted: trusted, clientID: clientID}
	if clientID != "" {
		p.appBasic = base64.StdEncoding.EncodeToString([]byte(clientID + ":" + clientSecret))
	}
	return p
}

// ClientID returns the application identity's client id, or "" when no app
// identity is configured.
func (p *HeaderPolicy) ClientID() string { return p.clientID }

// ShouldAttachCredential reports whether a bearer credential may be sent to
// the given URL. The hostname must be an exact member of the trusted set;
// substring matches are deliberately not honored. Pre-signed URLs never
// receive credentials, regardless of host.
func (p *HeaderPolicy) ShouldAttachCredential(u *url.URL) bool {
	if u == nil {
		return false
	}
	q := u.Query()
	for _, param := range signatureParams {
		if q.Has(param) {
			return false
		}
	}
	_, ok := p.trusted[strings.ToLower(u.Hostname())]
	return ok
}

// Apply sets or strips the Authorization header on req according to the
// policy. When combined is true and an application identity is configured,
// the header carries both the Basic app identity and the user bearer
// credential, as expected by the identity provider's token-sharing flow.
func (p *HeaderPolicy) Apply(req *http.Request, credential string, combined bool) {
	if credential == "" || !p.ShouldAttachCredential(req.URL) {
		// Stripping matters: the client propagates the header across
		// redirect hops unless it is removed here.
		req.Header.Del("Authorization")
		return
	}
	req.Header.Set("Authorization", p.AuthorizationValue(credential, combined))
}

// AuthorizationValue builds the Authorization header content for a bearer
// credential, optionally combined with the Basic application identity.
func (p *HeaderPolicy) AuthorizationValue(credential string, combined bool) string {
	if combined && p.appBasic != "" {
		return "Basic " + p.appBasic + ", Bearer " + credential
	}
	return "Bearer " + credential
}

// BasicAuthorization returns the Basic header value for the application
// identity alone, or "" when none is configured.
func (p *HeaderPolicy) BasicAuthorization() string {
	if p.appBasic == "" {
		return ""
	}
	return "Basic " + p.appBasic
}

// RedirectFunc returns a CheckRedirect hook that re-applies the policy on
// every redirect hop, attaching the credential when the hop lands on a
// trusted host and stripping it otherwise.
func (p *HeaderPolicy) RedirectFunc(credential string) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		p.Apply(req, credential, false)
		return nil
	}
}
