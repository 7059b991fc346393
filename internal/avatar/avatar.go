// Package avatar caches the user's avatar image on disk.
//
// The frontend hands over a data URL; the cache keeps exactly one decoded
// copy under a fresh uuid filename. The changing filename is deliberate: the
// frontend caches images by path, so a new path forces a refresh.
package avatar

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// filePrefix marks cache files this package owns. Only these are purged, in
// case the avatars directory ever holds other resources.
const filePrefix = "user_avatar_"

// Cache stores the avatar under one directory.
type Cache struct {
	dir string
}

// NewCache creates a cache rooted at dir (typically <dataDir>/avatars).
func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

// SaveDataURL decodes a base64 data URL and stores it as the new avatar,
// removing any previously cached copies. Returns the stored file's path.
func (c *Cache) SaveDataURL(dataURL string) (string, error) {
	_, encoded, found := strings.Cut(dataURL, ",")
	if !found {
		return "", fmt.Errorf("invalid image data")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode image data: %w", err)
	}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create avatar directory: %w", err)
	}
	if err := c.purge(); err != nil {
		return "", err
	}

	path := filepath.Join(c.dir, fmt.Sprintf("%s%s.png", filePrefix, uuid.New()))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write avatar: %w", err)
	}
	return path, nil
}

// Clear removes the whole avatar cache directory and recreates it empty.
func (c *Cache) Clear() error {
	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("failed to clear avatar cache: %w", err)
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("failed to recreate avatar directory: %w", err)
	}
	return nil
}

// purge deletes previously cached avatar files.
func (c *Cache) purge() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("failed to read avatar directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), filePrefix) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove old avatar: %w", err)
		}
	}
	return nil
}
