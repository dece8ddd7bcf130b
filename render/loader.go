package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"

	"github.com/nothing010101/pfp/core"
)

const (
	// ImageTimeout bounds the fetch of a single remote image.
	ImageTimeout = 15 * time.Second

	// MaxImageSide is the largest width or height, in pixels, an image may
	// have to be decoded.
	MaxImageSide = 4096

	maxImageBytes = 20 << 20
)

// ErrPrivateAddress is returned when a remote image resolves to a
// loopback, private or link-local address.
var ErrPrivateAddress = errors.New("image host resolves to a non-public address")

// ImageSource resolves the src of an image element.
type ImageSource interface {
	Load(ctx context.Context, src string, allowRemote bool) (image.Image, error)
}

// Loader decodes data URIs and fetches http(s) images from public hosts.
// Decoded images are kept in a size-bounded LRU cache.
type Loader struct {
	Client *http.Client

	cache *ImageCache
}

// NewLoader returns a loader whose client refuses to dial non-public
// addresses. cacheBytes bounds the decoded image cache; zero or less uses
// DefaultCacheBytes.
func NewLoader(cacheBytes int64) *Loader {
	dialer := &net.Dialer{Timeout: 5 * time.Second, Control: refuseNonPublic}
	return &Loader{
		Client: &http.Client{
			Timeout: ImageTimeout,
			Transport: &http.Transport{
				DialContext:         dialer.DialContext,
				TLSHandshakeTimeout: 5 * time.Second,
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		cache: NewImageCache(cacheBytes),
	}
}

// CachedBytes is the estimated size of the decoded images held in memory.
func (l *Loader) CachedBytes() int64 {
	if l.cache == nil {
		return 0
	}
	return l.cache.Size()
}

func (l *Loader) Load(ctx context.Context, src string, allowRemote bool) (image.Image, error) {
	if l.cache == nil {
		l.cache = NewImageCache(0)
	}
	if img, ok := l.cache.Get(src); ok {
		return img, nil
	}

	var (
		data []byte
		err  error
	)
	switch {
	case strings.HasPrefix(src, "data:"):
		data, err = DecodeDataURI(src)
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		if !allowRemote {
			return nil, fmt.Errorf("cross-origin image %s not allowed", src)
		}
		data, err = l.fetch(ctx, src)
	default:
		return nil, fmt.Errorf("unsupported image source %q", truncate(src))
	}
	if err != nil {
		return nil, err
	}

	if _, _, err := CheckImageSize(data); err != nil {
		return nil, fmt.Errorf("image %s: %w", truncate(src), err)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", truncate(src), err)
	}
	logrus.WithFields(logrus.Fields{
		"format": format,
		"width":  img.Bounds().Dx(),
		"height": img.Bounds().Dy(),
	}).Debug("Image decoded")

	l.cache.Put(src, img)
	return img, nil
}

// CheckImageSize reads the image header and rejects images that are not
// decodable or whose sides exceed MaxImageSide.
func CheckImageSize(data []byte) (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return cfg, format, core.Wrap(core.CodeValidation, err, "unreadable image")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > MaxImageSide || cfg.Height > MaxImageSide {
		return cfg, format, core.Errorf(core.CodeValidation,
			"image is %dx%d pixels, the limit is %dx%d", cfg.Width, cfg.Height, MaxImageSide, MaxImageSide)
	}
	return cfg, format, nil
}

// PublicAddr reports whether ip may be dialed for a remote image.
func PublicAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	return ip.IsGlobalUnicast() && !ip.IsPrivate()
}

func refuseNonPublic(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return err
	}
	if !PublicAddr(ip) {
		return fmt.Errorf("%w: %s", ErrPrivateAddress, ip)
	}
	return nil
}

func (l *Loader) fetch(ctx context.Context, src string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, ImageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image %s: %w", src, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image %s: status %d", src, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
}

// DecodeDataURI returns the payload of a data: URI.
func DecodeDataURI(uri string) ([]byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, fmt.Errorf("not a data uri")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("data uri without payload")
	}
	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("data uri: %w", err)
		}
		return data, nil
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("data uri: %w", err)
	}
	return []byte(s), nil
}

// EncodeDataURI builds a base64 data URI.
func EncodeDataURI(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func truncate(s string) string {
	if len(s) > 64 {
		return s[:64] + "..."
	}
	return s
}
