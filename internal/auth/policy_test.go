package auth

import (
	"encoding/base64"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, rawURL string) *url.URL {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u
}

func TestShouldAttachCredentialExactHostMatch(t *testing.T) {
	p := NewHeaderPolicy([]string{"auth.example.gov", "uat.auth.example.gov"}, "", "")

	tests := []struct {
		url      string
		expected bool
	}{
		{"https://auth.example.gov/oauth/authorize", true},
		{"https://AUTH.EXAMPLE.GOV/oauth/authorize", true},
		{"https://uat.auth.example.gov/data", true},
		{"https://data.example.com/granule.nc", false},
		// Substring containment must not count as trust.
		{"https://auth.example.gov.evil.com/", false},
		{"https://evil-auth.example.gov.attacker.net/", false},
		{"https://notauth.example.gov/", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, p.ShouldAttachCredential(mustParse(t, tt.url)), tt.url)
	}
}

func TestShouldAttachCredentialRefusesPresignedURLs(t *testing.T) {
	p := NewHeaderPolicy([]string{"auth.example.gov"}, "", "")

	presigned := []string{
		"https://auth.example.gov/obj?X-Amz-Algorithm=AWS4-HMAC-SHA256&X-Amz-Signature=abc",
		"https://auth.example.gov/obj?Signature=abc&Expires=123",
		"https://auth.example.gov/obj?AWSAccessKeyId=AKIA&Signature=abc",
		"https://data.example.com/obj?X-Amz-Credential=AKIA",
	}
	for _, rawURL := range presigned {
		assert.False(t, p.ShouldAttachCredential(mustParse(t, rawURL)), rawURL)
	}
}

func TestApplySetsBearerOnTrustedHost(t *testing.T) {
	p := NewHeaderPolicy([]string{"auth.example.gov"}, "", "")

	req, _ := http.NewRequest(http.MethodGet, "https://auth.example.gov/data", nil)
	p.Apply(req, "tok-123", false)

	assert.Equal(t, "Bearer tok-123", req.Header.Get("Authorization"))
}

func TestApplyStripsHeaderOnUntrustedHost(t *testing.T) {
	p := NewHeaderPolicy([]string{"auth.example.gov"}, "", "")

	// Simulates a header copied forward by the HTTP client across a
	// redirect hop onto an untrusted host.
	req, _ := http.NewRequest(http.MethodGet, "https://cdn.example.com/granule.nc", nil)
	req.Header.Set("Authorization", "Bearer tok-123")
	p.Apply(req, "tok-123", false)

	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestApplyStripsHeaderWhenNoCredential(t *testing.T) {
	p := NewHeaderPolicy([]string{"auth.example.gov"}, "", "")

	req, _ := http.NewRequest(http.MethodGet, "https://auth.example.gov/data", nil)
	req.Header.Set("Authorization", "Bearer stale")
	p.Apply(req, "", false)

	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestAuthorizationValueCombined(t *testing.T) {
	p := NewHeaderPolicy([]string{"auth.example.gov"}, "app-id", "app-secret")

	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("app-id:app-secret")) + ", Bearer tok"
	assert.Equal(t, want, p.AuthorizationValue("tok", true))

	// Without the combined flag only the bearer part is sent.
	assert.Equal(t, "Bearer tok", p.AuthorizationValue("tok", false))
}

func TestAuthorizationValueCombinedWithoutAppIdentity(t *testing.T) {
	p := NewHeaderPolicy([]string{"auth.example.gov"}, "", "")
	assert.Equal(t, "Bearer tok", p.AuthorizationValue("tok", true))
}

func TestRedirectFuncReappliesPolicyPerHop(t *testing.T) {
	p := NewHeaderPolicy([]string{"auth.example.gov"}, "", "")
	hook := p.RedirectFunc("tok-123")

	// Hop onto the trusted host: credential attached.
	trusted, _ := http.NewRequest(http.MethodGet, "https://auth.example.gov/login", nil)
	require.NoError(t, hook(trusted, nil))
	assert.Equal(t, "Bearer tok-123", trusted.Header.Get("Authorization"))

	// Hop back off: credential stripped even though the client copied it.
	untrusted, _ := http.NewRequest(http.MethodGet, "https://data.example.com/granule.nc", nil)
	untrusted.Header.Set("Authorization", "Bearer tok-123")
	require.NoError(t, hook(untrusted, nil))
	assert.Empty(t, untrusted.Header.Get("Authorization"))
}
