package metadata_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gallerist/token-ingest/internal/adapter"
	"github.com/gallerist/token-ingest/internal/logger"
	"github.com/gallerist/token-ingest/internal/metadata"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

var pngMagic = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

// fakeHTTPClient scripts the two calls the detector makes
type fakeHTTPClient struct {
	headStatus      int
	headContentType string
	headErr         error

	partialContent []byte
	partialErr     error
}

func (f *fakeHTTPClient) Get(context.Context, string, map[string]string, interface{}) error {
	return errors.New("not used")
}

func (f *fakeHTTPClient) GetBytes(context.Context, string, map[string]string) ([]byte, error) {
	return nil, errors.New("not used")
}

func (f *fakeHTTPClient) GetPartialContent(context.Context, string, int64) ([]byte, error) {
	return f.partialContent, f.partialErr
}

func (f *fakeHTTPClient) PostBytes(context.Context, string, map[string]string, io.Reader) ([]byte, error) {
	return nil, errors.New("not used")
}

func (f *fakeHTTPClient) Head(context.Context, string) (*http.Response, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	header := http.Header{}
	if f.headContentType != "" {
		header.Set("Content-Type", f.headContentType)
	}
	return &http.Response{
		StatusCode: f.headStatus,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(nil)),
	}, nil
}

// notFound makes every HTTP step fail permanently so the chain falls through
// to the URL heuristics without retry delays
func notFound() *adapter.StatusError {
	return &adapter.StatusError{StatusCode: http.StatusNotFound, Body: "not found"}
}

func TestDetect_ResponseHeaderWins(t *testing.T) {
	client := &fakeHTTPClient{
		headStatus:      http.StatusOK,
		headContentType: "image/gif; charset=binary",
	}

	d := metadata.NewMIMEDetector(client)
	assert.Equal(t, "image/gif", d.Detect(context.Background(), "https://media.example/a"))
}

func TestDetect_GenericHeaderFallsThroughToSignature(t *testing.T) {
	client := &fakeHTTPClient{
		headStatus:      http.StatusOK,
		headContentType: "application/octet-stream",
		partialContent:  pngMagic,
	}

	d := metadata.NewMIMEDetector(client)
	assert.Equal(t, "image/png", d.Detect(context.Background(), "https://media.example/a"))
}

func TestDetect_SignatureSniffing(t *testing.T) {
	client := &fakeHTTPClient{
		headErr:        errors.New("HEAD not supported"),
		partialContent: pngMagic,
	}

	d := metadata.NewMIMEDetector(client)
	assert.Equal(t, "image/png", d.Detect(context.Background(), "https://media.example/no-extension"))
}

func TestDetect_URLExtension(t *testing.T) {
	client := &fakeHTTPClient{
		headErr:    errors.New("HEAD not supported"),
		partialErr: notFound(),
	}
	d := metadata.NewMIMEDetector(client)

	tests := []struct {
		url      string
		expected string
	}{
		{"https://media.example/a.webp", "image/webp"},
		{"https://media.example/a.MP4", "video/mp4"},
		{"https://media.example/a.svg?size=large", "image/svg+xml"},
		{"https://media.example/a.glb#model", "model/gltf-binary"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, d.Detect(context.Background(), tt.url))
		})
	}
}

func TestDetect_KeywordHeuristics(t *testing.T) {
	client := &fakeHTTPClient{
		headErr:    errors.New("HEAD not supported"),
		partialErr: notFound(),
	}
	d := metadata.NewMIMEDetector(client)

	assert.Equal(t, "text/html", d.Detect(context.Background(), "https://app.example/generator/42"))
	assert.Equal(t, "text/html", d.Detect(context.Background(), "https://app.example/Interactive/42"))
	assert.Equal(t, "video/mp4", d.Detect(context.Background(), "https://cdn.example/video/42"))
}

func TestDetect_GenericFallback(t *testing.T) {
	client := &fakeHTTPClient{
		headErr:    errors.New("HEAD not supported"),
		partialErr: notFound(),
	}
	d := metadata.NewMIMEDetector(client)

	assert.Equal(t, "image/*", d.Detect(context.Background(), "https://media.example/opaque"))
	assert.Equal(t, "image/*", d.Detect(context.Background(), ""))
}
