// Package urlutil carries the URL classification and naming rules shared by
// the CLI dispatch and the download core.
package urlutil

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// IsHTTP reports whether the URL is an http(s) endpoint.
func IsHTTP(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

// IsS3 reports whether the URL addresses the blob store.
func IsS3(rawURL string) bool {
	return strings.HasPrefix(strings.ToLower(rawURL), "s3://")
}

// IsFileURL reports whether the URL is a local file reference.
func IsFileURL(rawURL string) bool {
	return strings.HasPrefix(rawURL, "file://")
}

// FileURLPath strips the file:// prefix so the remainder can be used as a
// local path.
func FileURLPath(rawURL string) string {
	return strings.TrimPrefix(rawURL, "file://")
}

// LocalhostURL rewrites localhost references to the configured development
// hostname, so URLs minted inside containers resolve from outside them.
func LocalhostURL(rawURL, localHostname string) string {
	if localHostname == "" {
		return rawURL
	}
	return strings.ReplaceAll(rawURL, "localhost", localHostname)
}

// WithRequestID adds the A-api-request-uuid query parameter to http(s)
// URLs so the platform metrics pipeline can correlate downloads with the
// originating request. Non-HTTP URLs and an empty id pass through.
func WithRequestID(rawURL, requestID string) string {
	if requestID == "" {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return rawURL
	}
	q := u.Query()
	q.Set("A-api-request-uuid", requestID)
	u.RawQuery = q.Encode()
	return u.String()
}

// DestinationFilename constructs a collision-free local filename for a URL
// inside dir: the hex sha256 of the URL, keeping the extension of the
// file named in the URL path.
func DestinationFilename(dir, rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	name := hex.EncodeToString(sum[:])

	ext := ""
	if u, err := url.Parse(rawURL); err == nil {
		ext = path.Ext(u.Path)
	}
	return filepath.Join(dir, name+ext)
}

var (
	specialChars   = regexp.MustCompile(`\/|:`)
	underscoreRuns = regexp.MustCompile(`_{2,}`)
	edgeUnderscore = regexp.MustCompile(`^_+|_+$`)
	dotUnderscore  = regexp.MustCompile(`_*\._*`)
)

// OutputNaming describes the transformations applied to a granule, used to
// derive its output filename suffixes.
type OutputNaming struct {
	Ext            string // destination extension; "" keeps the original
	VariableSubset []string
	IsRegridded    bool
	IsSubsetted    bool
	IsReformatted  bool
}

// GenerateOutputFilename derives an output filename from a source URL per
// the platform naming convention:
//
//	{basename}(_{single var})?(_regridded)?(_subsetted)?(_reformatted)?.{ext}
//
// Existing suffixes at the end of the basename are not duplicated, so
// chained services keep names stable.
func GenerateOutputFilename(rawURL string, n OutputNaming) string {
	// Everything between the last non-trailing '/' before the query and
	// the first '?'. Deliberately not a URL parser so relative paths work
	// in local testing.
	original := rawURL
	if i := strings.Index(original, "?"); i >= 0 {
		original = original[:i]
	}
	original = strings.TrimRight(original, "/")
	if i := strings.LastIndex(original, "/"); i >= 0 {
		original = original[i+1:]
	}
	if decoded, err := url.QueryUnescape(original); err == nil {
		original = decoded
	}

	originalExt := path.Ext(original)
	base := strings.TrimSuffix(original, originalExt)

	ext := n.Ext
	if ext == "" {
		ext = originalExt
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	var suffixes []string
	if len(n.VariableSubset) == 1 {
		suffixes = append(suffixes, "_"+n.VariableSubset[0])
	}
	if n.IsRegridded {
		suffixes = append(suffixes, "_regridded")
	}
	if n.IsSubsetted {
		suffixes = append(suffixes, "_subsetted")
	}
	if n.IsReformatted {
		suffixes = append(suffixes, "_reformatted")
	}
	suffixes = append(suffixes, ext)

	result := base
	// Walk suffixes in reverse, trimming any already present, so chained
	// operations don't mangle names.
	for i := len(suffixes) - 1; i >= 0; i-- {
		result = strings.TrimSuffix(result, suffixes[i])
	}
	result += strings.Join(suffixes, "")

	result = specialChars.ReplaceAllString(result, "_")
	result = underscoreRuns.ReplaceAllString(result, "_")
	result = edgeUnderscore.ReplaceAllString(result, "")
	result = dotUnderscore.ReplaceAllString(result, ".")

	return result
}
