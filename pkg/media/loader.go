package media

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // photo decoders
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/webp"
)

// ImageLoadError is returned when a photo source cannot be loaded or decoded.
type ImageLoadError struct {
	Source string
	Err    error
}

func (e *ImageLoadError) Error() string {
	return fmt.Sprintf("failed to load image %s: %v", shorten(e.Source), e.Err)
}

func (e *ImageLoadError) Unwrap() error {
	return e.Err
}

// shorten keeps data URIs out of log lines.
func shorten(s string) string {
	if len(s) > 64 {
		return s[:61] + "..."
	}
	return s
}

// Loader turns a photo source into a decoded image.
type Loader interface {
	Load(ctx context.Context, source string) (image.Image, error)
}

// Fetcher downloads remote sources. *request.Client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, u, cacheKey string) ([]byte, error)
}

// SourceLoader loads data: URIs, http(s) URLs, file:// URLs and plain paths.
type SourceLoader struct {
	fetcher Fetcher
	baseDir string
}

// NewSourceLoader creates a loader. Relative paths resolve against baseDir;
// a nil fetcher rejects remote sources.
func NewSourceLoader(f Fetcher, baseDir string) *SourceLoader {
	return &SourceLoader{fetcher: f, baseDir: baseDir}
}

var errNoFetcher = errors.New("remote sources are disabled")

// Load implements Loader.
func (l *SourceLoader) Load(ctx context.Context, source string) (image.Image, error) {
	data, err := l.read(ctx, strings.TrimSpace(source))
	if err != nil {
		return nil, &ImageLoadError{Source: source, Err: err}
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &ImageLoadError{Source: source, Err: err}
	}
	return img, nil
}

func (l *SourceLoader) read(ctx context.Context, source string) ([]byte, error) {
	switch {
	case source == "":
		return nil, errors.New("empty source")
	case strings.HasPrefix(source, "data:"):
		return DecodeDataURI(source)
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		if l.fetcher == nil {
			return nil, errNoFetcher
		}
		sum := sha256.Sum256([]byte(source))
		return l.fetcher.Get(ctx, source, "photo/"+hex.EncodeToString(sum[:]))
	case strings.HasPrefix(source, "file://"):
		u, err := url.Parse(source)
		if err != nil {
			return nil, err
		}
		return os.ReadFile(u.Path)
	default:
		path := source
		if !filepath.IsAbs(path) && l.baseDir != "" {
			path = filepath.Join(l.baseDir, path)
		}
		return os.ReadFile(path)
	}
}

// DecodeDataURI returns the payload of a data: URI.
func DecodeDataURI(uri string) ([]byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, errors.New("not a data URI")
	}
	meta, payload, found := strings.Cut(rest, ",")
	if !found {
		return nil, errors.New("malformed data URI")
	}
	if strings.HasSuffix(meta, ";base64") {
		// Browsers emit both padded and unpadded payloads
		if b, err := base64.StdEncoding.DecodeString(payload); err == nil {
			return b, nil
		}
		return base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}
