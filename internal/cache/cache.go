// Package cache manages the on-disk cover image cache and its
// grace-period cleanup.
//
// Covers are grouped per member under "mid-<id>" directories so a whole
// member can be evicted with one directory removal. File names hash the
// source URL, which keeps them filesystem safe regardless of what the
// remote CDN puts in its paths.
package cache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"golang.org/x/crypto/sha3"

	"github.com/mozbugbox/bitiwo/internal/shared"
)

const memberDirPrefix = "mid-"

// Covers stores cover images on disk, one directory per member.
type Covers struct {
	root       string
	httpClient *http.Client
	log        *log.Logger
}

// NewCovers creates a cover cache rooted at dir. The directory is
// created on demand.
func NewCovers(dir string, client *http.Client, logger *log.Logger) *Covers {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Covers{root: dir, httpClient: client, log: logger}
}

// Root returns the cache root directory.
func (c *Covers) Root() string { return c.root }

// MemberDir returns the cache directory of a member.
func (c *Covers) MemberDir(mid int64) string {
	return filepath.Join(c.root, fmt.Sprintf("%s%d", memberDirPrefix, mid))
}

// Path returns where the cover for url is stored. The file name is the
// SHA3-224 of the url.
func (c *Covers) Path(mid int64, url string) string {
	sum := sha3.Sum224([]byte(url))
	return filepath.Join(c.MemberDir(mid), fmt.Sprintf("%x.jpg", sum))
}

// Cached reports whether the cover is already on disk.
func (c *Covers) Cached(mid int64, url string) bool {
	_, err := os.Stat(c.Path(mid, url))
	return err == nil
}

// Load reads a cached cover from disk.
func (c *Covers) Load(mid int64, url string) ([]byte, error) {
	data, err := os.ReadFile(c.Path(mid, url))
	if err != nil {
		return nil, fmt.Errorf("failed to read cover: %w", err)
	}
	return data, nil
}

// Download fetches the cover and stores it, returning the cached path.
// An existing file is returned as-is without touching the network.
func (c *Covers) Download(ctx context.Context, mid int64, url string) (string, error) {
	path := c.Path(mid, url)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrTransientFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: cover fetch: status %d", shared.ErrTransientFetch, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrTransientFetch, err)
	}

	if err := os.MkdirAll(c.MemberDir(mid), 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write cover: %w", err)
	}

	c.log.Debug("cover cached", "mid", mid, "path", path)
	return path, nil
}

// Remove deletes a single cached cover. Missing files are not an error.
func (c *Covers) Remove(mid int64, url string) error {
	err := os.Remove(c.Path(mid, url))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cover: %w", err)
	}
	return nil
}

// RemoveMemberDir deletes a member's whole cache directory. Removing a
// directory that is already gone succeeds.
func (c *Covers) RemoveMemberDir(mid int64) error {
	if err := os.RemoveAll(c.MemberDir(mid)); err != nil {
		return fmt.Errorf("failed to remove cache dir: %w", err)
	}
	return nil
}
