package proxy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/mwslabs/dinesync/internal/platform/timeouts"
)

// ErrAssetUnavailable indicates an asset that is neither cached nor
// fetchable from the origin.
var ErrAssetUnavailable = errors.New("asset not cached and origin unreachable")

// AssetCache stores static shell files and images on disk, keyed by the
// canonical URL, so they survive restarts and serve while offline.
type AssetCache struct {
	dir    string
	client *http.Client
}

// NewAssetCache returns a disk-backed asset cache rooted at dir.
func NewAssetCache(dir string, client *http.Client) (*AssetCache, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("cache dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create asset cache dir: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: timeouts.AssetFetch}
	}
	return &AssetCache{dir: dir, client: client}, nil
}

// Precache fetches and stores every listed path from origin. It is the
// install-time step for the app shell; individual failures are logged and
// skipped so one missing asset does not block startup.
func (a *AssetCache) Precache(ctx context.Context, origin string, paths []string) {
	origin = strings.TrimRight(origin, "/")
	for _, path := range paths {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		if _, _, err := a.fetchAndStore(ctx, origin+path); err != nil {
			log.Printf("precache %s: %v", path, err)
		}
	}
}

// Get returns the cached asset for the canonical URL, fetching and caching
// it on a miss.
func (a *AssetCache) Get(ctx context.Context, canonicalURL, fetchURL string) ([]byte, string, error) {
	body, contentType, err := a.read(canonicalURL)
	if err == nil {
		return body, contentType, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		log.Printf("read cached asset %s: %v", canonicalURL, err)
	}

	body, contentType, err = a.fetchAndStoreAs(ctx, canonicalURL, fetchURL)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s", ErrAssetUnavailable, canonicalURL)
	}
	return body, contentType, nil
}

func (a *AssetCache) fetchAndStore(ctx context.Context, url string) ([]byte, string, error) {
	return a.fetchAndStoreAs(ctx, url, url)
}

func (a *AssetCache) fetchAndStoreAs(ctx context.Context, canonicalURL, fetchURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build asset request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch asset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch asset: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read asset body: %w", err)
	}
	contentType := resp.Header.Get("Content-Type")

	if err := a.write(canonicalURL, body, contentType); err != nil {
		// Still serve the fetched bytes when only the cache write failed.
		log.Printf("cache asset %s: %v", canonicalURL, err)
	}
	return body, contentType, nil
}

func (a *AssetCache) read(canonicalURL string) ([]byte, string, error) {
	base := a.keyPath(canonicalURL)
	body, err := os.ReadFile(base)
	if err != nil {
		return nil, "", err
	}
	contentType, err := os.ReadFile(base + ".ct")
	if err != nil {
		contentType = nil
	}
	return body, string(contentType), nil
}

func (a *AssetCache) write(canonicalURL string, body []byte, contentType string) error {
	base := a.keyPath(canonicalURL)
	if err := os.WriteFile(base, body, 0o644); err != nil {
		return err
	}
	return os.WriteFile(base+".ct", []byte(contentType), 0o644)
}

func (a *AssetCache) keyPath(canonicalURL string) string {
	sum := sha256.Sum256([]byte(canonicalURL))
	return filepath.Join(a.dir, hex.EncodeToString(sum[:]))
}
