// Package storage keeps profile images on the local filesystem.
package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidImage covers every rejected upload: wrong type, too large, bad
// encoding or an unsupported source.
var ErrInvalidImage = errors.New("invalid image")

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Storage defines the interface for image storage operations. Stored images
// are referred to by name, never by path.
type Storage interface {
	// StoreFromURL downloads and stores an image from a URL
	StoreFromURL(ctx context.Context, url string) (string, error)

	// StoreFromBytes stores an image from bytes
	StoreFromBytes(ctx context.Context, data []byte) (string, error)

	// Path resolves a stored name to a file path
	Path(name string) (string, error)

	// Delete removes an image from storage
	Delete(ctx context.Context, name string) error
}

// LocalStorage implements Storage interface using local filesystem
type LocalStorage struct {
	dir     string
	maxSize int64
	client  *http.Client
}

// NewLocalStorage creates the directory if needed.
func NewLocalStorage(dir string, maxSize int64) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{
		dir:     dir,
		maxSize: maxSize,
		client:  newHTTPClient(refusePrivate),
	}, nil
}

// errForbiddenAddress is returned when a download would reach a host that is
// not publicly routable.
var errForbiddenAddress = errors.New("address not allowed")

// newHTTPClient builds the download client. control runs on every dial after
// name resolution, so redirects and DNS answers are checked too.
func newHTTPClient(control func(network, address string, c syscall.RawConn) error) *http.Client {
	dialer := &net.Dialer{Timeout: 5 * time.Second, Control: control}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &http.Client{Transport: transport, Timeout: 15 * time.Second}
}

func refusePrivate(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%w: %s", errForbiddenAddress, host)
	}
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() || addr.IsMulticast() {
		return fmt.Errorf("%w: %s", errForbiddenAddress, addr)
	}
	return nil
}

func (s *LocalStorage) StoreFromURL(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: download failed: %v", ErrInvalidImage, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: download returned status %d", ErrInvalidImage, resp.StatusCode)
	}

	// Read one byte past the limit to detect oversized bodies.
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxSize+1))
	if err != nil {
		return "", fmt.Errorf("%w: read failed: %v", ErrInvalidImage, err)
	}
	return s.StoreFromBytes(ctx, data)
}

func (s *LocalStorage) StoreFromBytes(ctx context.Context, data []byte) (string, error) {
	if int64(len(data)) > s.maxSize {
		return "", fmt.Errorf("%w: larger than %d bytes", ErrInvalidImage, s.maxSize)
	}

	contentType := http.DetectContentType(data)
	ext, ok := extensions[contentType]
	if !ok {
		return "", fmt.Errorf("%w: unsupported content type %s", ErrInvalidImage, contentType)
	}

	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	return name, nil
}

func (s *LocalStorage) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: bad name %q", ErrInvalidImage, name)
	}
	return filepath.Join(s.dir, name), nil
}

func (s *LocalStorage) Delete(ctx context.Context, name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}

// Save stores a profile image given as a base64 data URL or an http(s) URL
// and returns its name. An empty value returns an empty name.
func Save(ctx context.Context, s Storage, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return "", nil

	case strings.HasPrefix(value, "data:"):
		meta, payload, ok := strings.Cut(strings.TrimPrefix(value, "data:"), ",")
		if !ok || !strings.HasPrefix(meta, "image/") || !strings.HasSuffix(meta, ";base64") {
			return "", fmt.Errorf("%w: expected a base64 image data URL", ErrInvalidImage)
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
		return s.StoreFromBytes(ctx, data)

	case strings.HasPrefix(value, "http://"), strings.HasPrefix(value, "https://"):
		return s.StoreFromURL(ctx, value)

	default:
		return "", fmt.Errorf("%w: unsupported source", ErrInvalidImage)
	}
}
