// Package coverstore downloads resolved cover URLs to local storage. Cover
// URLs originate from external providers, so every download is validated
// before any bytes are fetched: scheme and host checks reject requests that
// could reach internal services, and a size cap bounds the transfer.
package coverstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/disintegration/imaging"
)

const (
	// MaxDownloadBytes caps a single cover download.
	MaxDownloadBytes = 5 * 1024 * 1024
	// thumbnailWidth is the width covers are resized down to when a
	// thumbnail variant is requested.
	thumbnailWidth = 300
)

var (
	// ErrInvalidScheme is returned for URLs that are not plain http(s) or
	// that point at hosts the downloader refuses to contact.
	ErrInvalidScheme = errors.New("invalid cover URL")
	// ErrTooLarge is returned when the cover exceeds MaxDownloadBytes.
	ErrTooLarge = errors.New("cover image too large")
	// ErrDownloadFailed is returned for network failures and non-2xx
	// responses.
	ErrDownloadFailed = errors.New("cover download failed")
)

// blockedHosts are never contacted regardless of what DNS says.
var blockedHosts = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"0.0.0.0":   true,
}

// Package-level variables so tests can inject a client.
var (
	downloadClient    *http.Client
	downloadOnce      sync.Once
	downloadClientNew = func() *http.Client {
		return &http.Client{Timeout: 30 * time.Second}
	}
)

func getDownloadClient() *http.Client {
	downloadOnce.Do(func() {
		downloadClient = downloadClientNew()
	})
	return downloadClient
}

// allowedExtensions whitelists the file extensions kept from the source
// URL; anything else is stored as .jpg.
var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

// Download fetches a cover URL and writes it into destDir under a random
// filename. It returns the filename relative to destDir.
func Download(ctx context.Context, coverURL, destDir string) (string, error) {
	if err := validateURL(coverURL); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	resp, err := getDownloadClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d", ErrDownloadFailed, resp.StatusCode)
	}

	if resp.ContentLength > MaxDownloadBytes {
		return "", fmt.Errorf("%w: %d bytes declared", ErrTooLarge, resp.ContentLength)
	}

	filename, err := randomFilename(coverURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	destPath := filepath.Join(destDir, filename)
	if err := writeCapped(destPath, resp.Body); err != nil {
		_ = os.Remove(destPath)
		return "", err
	}

	return filename, nil
}

// DownloadThumbnail downloads a cover and additionally writes a resized
// variant next to it, named <base>_thumb<ext>. A cover that downloads but
// does not decode as an image keeps the original file; the thumbnail is
// skipped with a warning.
func DownloadThumbnail(ctx context.Context, coverURL, destDir string) (string, error) {
	filename, err := Download(ctx, coverURL, destDir)
	if err != nil {
		return "", err
	}

	srcPath := filepath.Join(destDir, filename)
	img, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		slog.Warn("Cover is not a decodable image, skipping thumbnail",
			"file", filename, "error", err)
		return filename, nil
	}

	if img.Bounds().Dx() > thumbnailWidth {
		img = imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)
	}

	ext := filepath.Ext(filename)
	thumbName := strings.TrimSuffix(filename, ext) + "_thumb" + ext
	if err := imaging.Save(img, filepath.Join(destDir, thumbName), imaging.JPEGQuality(85)); err != nil {
		slog.Warn("Failed to write cover thumbnail", "file", thumbName, "error", err)
	}

	return filename, nil
}

// validateURL rejects URLs the downloader must not follow: non-http(s)
// schemes, well-known loopback names, and literal private or loopback IPs.
func validateURL(coverURL string) error {
	parsed, err := url.Parse(coverURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScheme, err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrInvalidScheme, parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" || blockedHosts[host] {
		return fmt.Errorf("%w: host %q", ErrInvalidScheme, host)
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return fmt.Errorf("%w: host %q", ErrInvalidScheme, host)
		}
	}

	return nil
}

// writeCapped streams the body to disk, failing once the cap is exceeded.
// The Content-Length header is advisory only, so the actual byte count is
// enforced here as well.
func writeCapped(destPath string, body io.Reader) error {
	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	written, err := io.Copy(out, io.LimitReader(body, MaxDownloadBytes+1))
	closeErr := out.Close()

	switch {
	case err != nil:
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	case written > MaxDownloadBytes:
		return fmt.Errorf("%w: more than %d bytes received", ErrTooLarge, MaxDownloadBytes)
	case closeErr != nil:
		return fmt.Errorf("%w: %v", ErrDownloadFailed, closeErr)
	}
	return nil
}

// randomFilename builds an unguessable local name, keeping the source
// extension only when it is on the whitelist.
func randomFilename(coverURL string) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	ext := ".jpg"
	if parsed, err := url.Parse(coverURL); err == nil {
		if candidate := strings.ToLower(filepath.Ext(parsed.Path)); allowedExtensions[candidate] {
			ext = candidate
		}
	}

	return hex.EncodeToString(buf) + ext, nil
}
