package headless

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webboot/internal/host"
	"github.com/GriffinCanCode/webboot/internal/providers/http/client"
)

// Fetcher resolves URLs against the page and fetches them over HTTP or from
// the local filesystem.
type Fetcher struct {
	client *client.Client
	base   *url.URL
	logger *zap.Logger
}

// NewFetcher creates a fetcher resolving relative URLs against base.
func NewFetcher(c *client.Client, base *url.URL, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{client: c, base: base, logger: logger.Named("fetch")}
}

// Base returns the URL relative references resolve against.
func (f *Fetcher) Base() *url.URL {
	u := *f.base
	return &u
}

// Resolve turns ref into an absolute URL.
func (f *Fetcher) Resolve(ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", ref, err)
	}
	return f.base.ResolveReference(u), nil
}

// Fetch implements host.Fetcher. Response bodies arrive decoded.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (*host.Response, error) {
	u, err := f.Resolve(ref)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "file":
		return f.fetchFile(u)
	case "http", "https":
		return f.fetchHTTP(ctx, u)
	default:
		return nil, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
}

// Poll runs fn through the HTTP client's circuit breaker.
func (f *Fetcher) Poll(fn func() error) error {
	return f.client.Poll(fn)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, u *url.URL) (*host.Response, error) {
	status, header, body, err := f.client.Stream(ctx, u.String())
	if err != nil {
		return nil, err
	}

	decoded, err := decodeBody(header, body)
	if err != nil {
		body.Close()
		return nil, err
	}

	f.logger.Debug("fetched",
		zap.String("url", u.String()),
		zap.Int("status", status),
		zap.String("content_type", header.Get("Content-Type")),
	)
	return &host.Response{URL: u.String(), Status: status, Header: header, Body: decoded}, nil
}

func (f *Fetcher) fetchFile(u *url.URL) (*host.Response, error) {
	path := filepath.FromSlash(u.Path)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()) {
		return &host.Response{
			URL:    u.String(),
			Status: http.StatusNotFound,
			Header: http.Header{},
			Body:   io.NopCloser(strings.NewReader("")),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	header := http.Header{}
	header.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	header.Set("Content-Type", contentTypeFor(path))

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &host.Response{URL: u.String(), Status: http.StatusOK, Header: header, Body: file}, nil
}

// contentTypeFor picks a type from the extension, sniffing the content when
// the extension is unknown.
func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wasm":
		return "application/wasm"
	case ".js", ".mjs":
		return "text/javascript; charset=utf-8"
	case ".html", ".htm":
		// No charset: the page's own declaration decides.
		return "text/html"
	case ".json", ".webmanifest":
		return "application/json"
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}

// decodeBody undoes Content-Encoding. The encoding and length headers are
// dropped once the body is decoded.
func decodeBody(header http.Header, body io.ReadCloser) (io.ReadCloser, error) {
	encoding := strings.ToLower(strings.TrimSpace(header.Get("Content-Encoding")))
	switch encoding {
	case "", "identity":
		return body, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("invalid gzip body: %w", err)
		}
		stripEncoding(header)
		return &decodedBody{Reader: zr, closeFn: func() { zr.Close() }, raw: body}, nil
	case "zstd":
		zr, err := zstd.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("invalid zstd body: %w", err)
		}
		stripEncoding(header)
		return &decodedBody{Reader: zr, closeFn: zr.Close, raw: body}, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

func stripEncoding(header http.Header) {
	header.Del("Content-Encoding")
	header.Del("Content-Length")
}

type decodedBody struct {
	io.Reader
	closeFn func()
	raw     io.ReadCloser
}

func (b *decodedBody) Close() error {
	b.closeFn()
	return b.raw.Close()
}

// FileURL returns the file URL for a local path. Directories get a trailing
// slash so relative references resolve inside them.
func FileURL(path string) (*url.URL, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	slashed := filepath.ToSlash(abs)
	if info, err := os.Stat(abs); err == nil && info.IsDir() && !strings.HasSuffix(slashed, "/") {
		slashed += "/"
	}
	return &url.URL{Scheme: "file", Path: slashed}, nil
}
