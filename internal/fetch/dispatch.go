package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/geodata-tools/granule-dl/internal/logging"
	"github.com/geodata-tools/granule-dl/internal/urlutil"
)

// BlobStore is the slice of the blob-store collaborator the dispatcher
// consumes.
type BlobStore interface {
	Download(ctx context.Context, rawURL string, w io.Writer) error
}

// FileFetcher resolves a URL of any supported scheme into a local file:
// file:// URLs resolve in place, s3:// URLs go through the blob store, and
// http(s):// URLs go through the authenticated downloader.
type FileFetcher struct {
	dl            *Downloader
	store         BlobStore // may be nil when no blob store is configured
	destDir       string
	userAgent     string
	accessToken   string
	localHostname string
}

// NewFileFetcher wires a dispatcher writing downloads into destDir.
func NewFileFetcher(dl *Downloader, store BlobStore, destDir, userAgent, accessToken, localHostname string) *FileFetcher {
	return &FileFetcher{
		dl:            dl,
		store:         store,
		destDir:       destDir,
		userAgent:     userAgent,
		accessToken:   accessToken,
		localHostname: localHostname,
	}
}

// Fetch retrieves rawURL into the destination directory and returns the
// local path. Already-downloaded files are returned as-is, keyed by the
// hashed destination filename.
func (f *FileFetcher) Fetch(ctx context.Context, rawURL string, data url.Values) (string, Outcome, error) {
	log := logging.With("fetch")

	if urlutil.IsFileURL(rawURL) {
		return urlutil.FileURLPath(rawURL), Outcome{Kind: OutcomeSuccess}, nil
	}

	source := urlutil.LocalhostURL(rawURL, f.localHostname)

	dest := urlutil.DestinationFilename(f.destDir, rawURL)
	if _, err := os.Stat(dest); err == nil {
		log.Debug().Str("url", rawURL).Str("path", dest).Msg("already downloaded")
		return dest, Outcome{Kind: OutcomeSuccess}, nil
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", Outcome{}, fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer out.Close()

	switch {
	case urlutil.IsS3(source):
		if f.store == nil {
			return "", Outcome{}, &ConfigError{Reason: "s3 URL given but no blob store is configured"}
		}
		if err := f.store.Download(ctx, source, out); err != nil {
			os.Remove(dest)
			return "", Outcome{}, err
		}
		return dest, Outcome{Kind: OutcomeSuccess}, nil

	case urlutil.IsHTTP(source):
		outcome, err := f.dl.Download(ctx, source, f.accessToken, data, out, f.userAgent)
		if err != nil || outcome.Kind != OutcomeSuccess {
			os.Remove(dest)
			return "", outcome, err
		}
		return dest, outcome, nil

	default:
		os.Remove(dest)
		return "", Outcome{}, fmt.Errorf("unable to download a url of unknown type: %s", rawURL)
	}
}
