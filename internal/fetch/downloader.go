package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/geodata-tools/granule-dl/internal/auth"
	"github.com/geodata-tools/granule-dl/internal/logging"
	"github.com/geodata-tools/granule-dl/internal/urlutil"
)

// Options configures the downloader's auth-mode selection.
type Options struct {
	// UseExchange opts into the legacy flow that exchanges the user token
	// for an application token before downloading. Off by default; the
	// caller-supplied token is then treated as already valid.
	UseExchange bool
	// FallbackEnabled permits Basic-auth downloads when no user credential
	// is supplied.
	FallbackEnabled bool
	FallbackUser    string
	FallbackPass    string
	// RequestID, when set, is propagated to the backend as a query
	// parameter so downloads can be correlated with the originating job.
	RequestID string
}

// Downloader retrieves a resource into a destination sink using whichever
// authentication mode applies, and reports timing/size telemetry. It is the
// sole entry point the retrieval orchestration consumes for HTTP(S) URLs.
type Downloader struct {
	exec      *Executor
	exchanger *auth.Exchanger // used only when opts.UseExchange
	opts      Options
}

// NewDownloader wires a downloader. exchanger may be nil when the exchange
// mode is not configured.
func NewDownloader(exec *Executor, exchanger *auth.Exchanger, opts Options) *Downloader {
	return &Downloader{exec: exec, exchanger: exchanger, opts: opts}
}

// Download fetches url into sink. The three failure outcomes (forbidden,
// consent required, server failure) come back as a classified Outcome with
// a nil error; configuration and token-exchange problems come back as hard
// errors because the call cannot meaningfully proceed.
func (d *Downloader) Download(ctx context.Context, rawURL, accessToken string, data url.Values, sink io.Writer, userAgent string) (Outcome, error) {
	log := logging.With("download")

	cred, err := d.selectCredential(ctx, accessToken)
	if err != nil {
		return Outcome{}, err
	}

	rawURL = urlutil.WithRequestID(rawURL, d.opts.RequestID)

	start := time.Now()
	log.Info().Str("url", rawURL).Msg("timing.download.start")

	resp, err := d.exec.Execute(ctx, rawURL, cred, data, userAgent)
	if err != nil {
		return d.classifyFailure(rawURL, err)
	}
	defer resp.Body.Close()

	written, err := io.Copy(sink, resp.Body)
	if err != nil {
		return Outcome{
			Kind:    OutcomeServerFailure,
			Message: fmt.Sprintf("transfer of %s interrupted after %d bytes: %v", rawURL, written, err),
		}, nil
	}

	durationMs := time.Since(start).Milliseconds()
	d.logPerformance(rawURL, durationMs, written)

	return Outcome{Kind: OutcomeSuccess, BytesWritten: written, DurationMs: durationMs}, nil
}

// selectCredential picks the auth mode for this call: direct bearer,
// exchange-then-bearer, or the Basic fallback. An unauthenticated request
// is never attempted.
func (d *Downloader) selectCredential(ctx context.Context, accessToken string) (Credential, error) {
	if accessToken != "" {
		if d.opts.UseExchange && d.exchanger != nil {
			tok, err := d.exchanger.Exchange(ctx, accessToken)
			if err != nil {
				return Credential{}, err
			}
			return Credential{Bearer: tok.Value}, nil
		}
		return Credential{Bearer: accessToken}, nil
	}
	if d.opts.FallbackEnabled && d.opts.FallbackUser != "" {
		return Credential{BasicUser: d.opts.FallbackUser, BasicPass: d.opts.FallbackPass}, nil
	}
	return Credential{}, &ConfigError{
		Reason: "no access token supplied and fallback authentication is disabled",
	}
}

// classifyFailure maps a terminal executor error onto the outcome taxonomy.
func (d *Downloader) classifyFailure(rawURL string, err error) (Outcome, error) {
	log := logging.With("download")

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		// Context cancellation and config errors pass through untouched.
		return Outcome{}, err
	}

	if msg, resolutionURL, ok := TranslateConsentError(reqErr.Body); ok {
		log.Info().Str("url", rawURL).Str("resolution_url", resolutionURL).Msg(msg)
		return Outcome{Kind: OutcomeConsentRequired, Message: msg, ResolutionURL: resolutionURL}, nil
	}

	if reqErr.Permanent {
		msg := fmt.Sprintf("Forbidden: unable to download %s. Will not retry.", rawURL)
		log.Info().Str("url", rawURL).Int("status", reqErr.Status).Msg(msg)
		return Outcome{Kind: OutcomeForbidden, Message: msg}, nil
	}

	msg := fmt.Sprintf("unable to download %s: status %d and all retries exhausted", rawURL, reqErr.Status)
	if reqErr.Status == 0 {
		msg = fmt.Sprintf("unable to download %s: %v and all retries exhausted", rawURL, reqErr.Err)
	}
	log.Error().Str("url", rawURL).Int("status", reqErr.Status).Msg(msg)
	return Outcome{Kind: OutcomeServerFailure, Message: msg}, nil
}

// logPerformance emits the one telemetry record per successful download.
// Host and path are parsed best-effort; a garbled URL must not fail the
// download after the bytes have landed.
func (d *Downloader) logPerformance(rawURL string, durationMs, size int64) {
	host := "Unknown"
	path := ""
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
		path = u.Path
		if u.RawQuery != "" {
			path += "?" + u.RawQuery
		}
	}
	log := logging.With("download")
	log.Info().
		Int64("durationMs", durationMs).
		Str("host", host).
		Str("path", path).
		Int64("size", size).
		Msg("timing.download.end")
}
