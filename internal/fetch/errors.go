// Package fetch implements the authenticated download core: the retrying
// request executor, consent-error translation, and the downloader that
// orchestrates them into a classified outcome.
package fetch

import (
	"fmt"
)

// OutcomeKind classifies the result of a download.
type OutcomeKind int

const (
	// OutcomeSuccess means the resource was written to the sink.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeForbidden means the server rejected the credentials (401/403)
	// and the download was not retried.
	OutcomeForbidden
	// OutcomeConsentRequired means the user must approve a usage agreement
	// before access is granted; ResolutionURL points at the approval page.
	OutcomeConsentRequired
	// OutcomeServerFailure means retries were exhausted against transient
	// failures.
	OutcomeServerFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeForbidden:
		return "forbidden"
	case OutcomeConsentRequired:
		return "consent-required"
	case OutcomeServerFailure:
		return "server-failure"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of a download call. The three failure
// kinds are mutually exclusive and exhaustive; configuration and
// token-exchange problems are surfaced as hard errors instead, since the
// call could not meaningfully proceed.
type Outcome struct {
	Kind          OutcomeKind
	BytesWritten  int64
	DurationMs    int64
	Message       string
	ResolutionURL string
}

// Credential carries the caller's proof of identity for one download. Either
// Bearer is set (modern and legacy-exchange modes) or the Basic pair is set
// (fallback mode). Values are never persisted and never logged.
type Credential struct {
	Bearer    string
	BasicUser string
	BasicPass string
}

// IsZero reports whether no credential material is present at all.
func (c Credential) IsZero() bool {
	return c.Bearer == "" && c.BasicUser == ""
}

// ConfigError indicates the download cannot proceed as configured: no
// credential with fallback disabled, or a malformed retry policy. It is
// raised immediately and never classified as a download failure.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Reason
}

// RequestError is the terminal error produced by the executor when a
// request did not succeed. Permanent marks auth rejections that must not be
// retried; everything else means retries were exhausted.
type RequestError struct {
	URL       string
	Status    int // 0 for transport-level failures
	Body      []byte
	Permanent bool
	Err       error // underlying transport error, if any
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("request to %s failed with status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }
