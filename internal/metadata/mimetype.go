package metadata

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/gallerist/token-ingest/internal/adapter"
	"github.com/gallerist/token-ingest/internal/logger"
)

// genericMIMEFallback is the last-resort answer when every sniffing step fails
const genericMIMEFallback = "image/*"

// sniffBytes is how much of the payload we fetch for binary signature sniffing
const sniffBytes = 512

// mimeResolver is one step in the detection chain. It returns the detected
// MIME type and whether the answer is confident enough to stop the chain.
type mimeResolver func(ctx context.Context, url string) (string, bool)

// MIMEDetector detects the MIME type of remote media with a chain of
// independent heuristics: response headers, binary signature sniffing, URL
// extension, then content keywords. Each step runs only if the previous one
// yields no confident answer.
type MIMEDetector struct {
	httpClient adapter.HTTPClient
	chain      []mimeResolver
}

// NewMIMEDetector creates a detector with the default resolver chain
func NewMIMEDetector(httpClient adapter.HTTPClient) *MIMEDetector {
	d := &MIMEDetector{httpClient: httpClient}
	d.chain = []mimeResolver{
		d.fromResponseHeader,
		d.fromContentSignature,
		d.fromURLExtension,
		d.fromURLKeywords,
	}
	return d
}

// Detect returns the best-effort MIME type for the given URL. It never fails;
// the fallback is a generic image type.
func (d *MIMEDetector) Detect(ctx context.Context, url string) string {
	if url == "" {
		return genericMIMEFallback
	}

	for _, resolve := range d.chain {
		if mime, ok := resolve(ctx, url); ok {
			return mime
		}
	}

	return genericMIMEFallback
}

// fromResponseHeader inspects the Content-Type of a HEAD response. Generic or
// absent content types are not a confident answer.
func (d *MIMEDetector) fromResponseHeader(ctx context.Context, url string) (string, bool) {
	resp, err := d.httpClient.Head(ctx, url)
	if err != nil {
		logger.Debug("HEAD request failed during mime detection", zap.String("url", url), zap.Error(err))
		return "", false
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	contentType := resp.Header.Get("Content-Type")
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	contentType = strings.TrimSpace(contentType)

	if contentType == "" || contentType == "application/octet-stream" {
		return "", false
	}

	return contentType, true
}

// fromContentSignature downloads the first bytes of the payload and runs
// binary signature sniffing. Transient network failures are retried briefly
// with jittered exponential backoff.
func (d *MIMEDetector) fromContentSignature(ctx context.Context, url string) (string, bool) {
	var content []byte

	operation := func() error {
		var err error
		content, err = d.httpClient.GetPartialContent(ctx, url, sniffBytes)
		if err != nil {
			var statusErr *adapter.StatusError
			if errors.As(err, &statusErr) && statusErr.StatusCode >= 400 && statusErr.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 15 * time.Second
	b.RandomizationFactor = 0.5

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		logger.Debug("partial content fetch failed during mime detection",
			zap.String("url", url), zap.Error(err))
		return "", false
	}

	if len(content) == 0 {
		return "", false
	}

	mtype := mimetype.Detect(content)
	if mtype == nil || mtype.String() == "application/octet-stream" {
		return "", false
	}

	return mtype.String(), true
}

var extensionMIMEs = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".avif": "image/avif",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".glb":  "model/gltf-binary",
	".gltf": "model/gltf+json",
	".html": "text/html",
	".htm":  "text/html",
	".pdf":  "application/pdf",
	".json": "application/json",
}

// fromURLExtension maps a known file extension in the URL path
func (d *MIMEDetector) fromURLExtension(_ context.Context, url string) (string, bool) {
	clean := url
	if idx := strings.IndexAny(clean, "?#"); idx >= 0 {
		clean = clean[:idx]
	}

	ext := strings.ToLower(path.Ext(clean))
	mime, ok := extensionMIMEs[ext]
	return mime, ok
}

// fromURLKeywords applies content-keyword heuristics; generator URLs serve
// interactive HTML payloads
func (d *MIMEDetector) fromURLKeywords(_ context.Context, url string) (string, bool) {
	lower := strings.ToLower(url)
	if strings.Contains(lower, "generator") || strings.Contains(lower, "interactive") {
		return "text/html", true
	}
	if strings.Contains(lower, "video") {
		return "video/mp4", true
	}
	return "", false
}
