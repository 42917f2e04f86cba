package assets

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds every remote fetch.
	DefaultTimeout = 10 * time.Second
	// DefaultMaxBytes caps the size of a single remote asset.
	DefaultMaxBytes = 32 << 20
)

// Fetcher loads layer assets. It never fails: an asset that cannot be loaded is nil.
type Fetcher struct {
	root     string
	client   *http.Client
	cache    Cache
	maxBytes int64
	logger   *zap.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithStaticRoot sets the directory that "/..." references resolve against.
func WithStaticRoot(root string) Option {
	return func(f *Fetcher) { f.root = root }
}

// WithTimeout overrides the remote fetch timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.client.Timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client. The client timeout is kept if set.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c == nil {
			return
		}
		if c.Timeout <= 0 {
			c.Timeout = f.client.Timeout
		}
		f.client = c
	}
}

// WithCache caches remote assets.
func WithCache(c Cache) Option {
	return func(f *Fetcher) { f.cache = c }
}

// WithMaxBytes caps remote responses.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   &http.Client{Timeout: DefaultTimeout},
		maxBytes: DefaultMaxBytes,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the bytes referenced by ref:
//   - "/path" reads from the static root
//   - "http..." performs a GET bounded by the fetch timeout
//   - anything else yields nil
func (f *Fetcher) Fetch(ctx context.Context, ref string) []byte {
	switch {
	case strings.HasPrefix(ref, "/"):
		return f.fetchLocal(ref)
	case strings.HasPrefix(ref, "http"):
		return f.fetchRemote(ctx, ref)
	default:
		return nil
	}
}

// FetchImage fetches and decodes ref. Nil when either step fails.
func (f *Fetcher) FetchImage(ctx context.Context, ref string) image.Image {
	data := f.Fetch(ctx, ref)
	if data == nil {
		return nil
	}
	img := DecodeImage(data)
	if img == nil {
		f.logger.Debug("asset is not a decodable image", zap.String("ref", ref))
	}
	return img
}

func (f *Fetcher) fetchLocal(ref string) []byte {
	if f.root == "" {
		f.logger.Debug("no static root configured", zap.String("ref", ref))
		return nil
	}
	// Clean against "/" first so "../" cannot climb out of the root.
	rel := filepath.FromSlash(filepath.Clean("/" + strings.TrimPrefix(ref, "/")))
	path := filepath.Join(f.root, rel)
	data, err := os.ReadFile(path)
	if err != nil {
		f.logger.Debug("local asset unavailable", zap.String("ref", ref), zap.Error(err))
		return nil
	}
	return data
}

func (f *Fetcher) fetchRemote(ctx context.Context, url string) []byte {
	if f.cache != nil {
		if data, ok := f.cache.Get(ctx, url); ok {
			return data
		}
	}
	data, err := f.download(ctx, url)
	if err != nil {
		f.logger.Debug("remote asset unavailable", zap.String("url", url), zap.Error(err))
		return nil
	}
	if f.cache != nil {
		f.cache.Set(ctx, url, data)
	}
	return data
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("asset exceeds %d bytes", f.maxBytes)
	}
	return body, nil
}

// DecodeDataURI extracts the payload of a "data:<mime>;base64,<payload>" URI.
// Malformed input yields nil.
func DecodeDataURI(uri string) []byte {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil
	}
	payload = strings.TrimSpace(payload)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some encoders drop the padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil
		}
	}
	if len(data) == 0 {
		return nil
	}
	return data
}

// DecodeImage decodes PNG/JPEG/GIF/BMP/TIFF bytes honouring EXIF orientation.
func DecodeImage(data []byte) image.Image {
	if len(data) == 0 {
		return nil
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil
	}
	return img
}
