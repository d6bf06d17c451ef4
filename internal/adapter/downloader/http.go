package downloader

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/blake3"

	"sharpinstall/internal/domain"
)

// DefaultMaxRedirects bounds redirect chains.
const DefaultMaxRedirects = 10

// HTTPDownloader downloads prebuilt archives over HTTP(S). Redirects are
// followed by hand so that the hop count is bounded and every hop is logged.
type HTTPDownloader struct {
	client       *http.Client
	maxRedirects int
	logger       domain.Logger
}

// NewHTTPDownloader creates a downloader. timeout bounds connecting, the TLS
// handshake and waiting for response headers of each request; streaming the
// body is bounded only by the caller's context.
func NewHTTPDownloader(timeout time.Duration, maxRedirects int, logger domain.Logger) *HTTPDownloader {
	if maxRedirects <= 0 {
		maxRedirects = DefaultMaxRedirects
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = timeout
	transport.ResponseHeaderTimeout = timeout
	return &HTTPDownloader{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		maxRedirects: maxRedirects,
		logger:       logger,
	}
}

// Download fetches rawURL into destPath. A failed transfer never leaves a
// file at destPath.
func (d *HTTPDownloader) Download(ctx context.Context, rawURL, destPath string) (domain.Download, error) {
	log := domain.LoggerFromContext(ctx, d.logger)
	if err := os.Remove(destPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return domain.Download{}, &domain.DownloadError{URL: rawURL, Err: fmt.Errorf("remove stale file: %w", err)}
	}

	resp, finalURL, err := d.get(ctx, log, rawURL)
	if err != nil {
		return domain.Download{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Download{}, &domain.DownloadError{URL: finalURL, Status: resp.StatusCode}
	}

	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.Download{}, &domain.DownloadError{URL: finalURL, Err: fmt.Errorf("create dir: %w", err)}
	}

	// Write to temp file then rename atomically
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return domain.Download{}, &domain.DownloadError{URL: finalURL, Err: fmt.Errorf("create temp file: %w", err)}
	}
	tmpPath := tmp.Name()

	hasher := blake3.New()
	n, copyErr := io.Copy(io.MultiWriter(tmp, hasher), resp.Body)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(tmpPath)
		return domain.Download{}, &domain.DownloadError{URL: finalURL, Err: fmt.Errorf("write %s: %w", destPath, err)}
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return domain.Download{}, &domain.DownloadError{URL: finalURL, Err: fmt.Errorf("rename: %w", err)}
	}

	result := domain.Download{
		Path:   destPath,
		Size:   n,
		Digest: hex.EncodeToString(hasher.Sum(nil)),
	}
	log.Info("download complete", "path", destPath, "size", humanize.Bytes(uint64(n)), "blake3", result.Digest)
	return result, nil
}

// get issues GETs until a non-redirect response arrives. The caller owns the
// returned body.
func (d *HTTPDownloader) get(ctx context.Context, log domain.Logger, rawURL string) (*http.Response, string, error) {
	current, err := url.Parse(rawURL)
	if err != nil {
		return nil, rawURL, &domain.DownloadError{URL: rawURL, Err: err}
	}

	for hops := 0; ; hops++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current.String(), nil)
		if err != nil {
			return nil, current.String(), &domain.DownloadError{URL: current.String(), Err: err}
		}
		log.Debug("GET", "url", current.String())

		resp, err := d.client.Do(req)
		if err != nil {
			return nil, current.String(), &domain.DownloadError{URL: current.String(), Err: err}
		}
		if !isRedirect(resp.StatusCode) {
			return resp, current.String(), nil
		}

		location := resp.Header.Get("Location")
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		if location == "" {
			return nil, current.String(), &domain.DownloadError{
				URL: current.String(),
				Err: fmt.Errorf("HTTP %d without Location header", resp.StatusCode),
			}
		}
		if hops >= d.maxRedirects {
			return nil, current.String(), &domain.DownloadError{
				URL: rawURL,
				Err: fmt.Errorf("stopped after %d redirects", d.maxRedirects),
			}
		}

		next, err := current.Parse(location)
		if err != nil {
			return nil, current.String(), &domain.DownloadError{URL: current.String(), Err: fmt.Errorf("bad Location %q: %w", location, err)}
		}
		log.Debug("following redirect", "status", resp.StatusCode, "to", next.String())
		current = next
	}
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}
