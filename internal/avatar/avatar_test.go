package avatar

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func dataURL(raw []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)
}

func listAvatars(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "user_avatar_") {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestSaveDataURL(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "avatars")
	c := NewCache(dir)

	raw := []byte{0x89, 0x50, 0x4e, 0x47, 1, 2, 3}
	path, err := c.SaveDataURL(dataURL(raw))
	if err != nil {
		t.Fatalf("SaveDataURL failed: %v", err)
	}

	if filepath.Dir(path) != dir {
		t.Errorf("avatar stored outside cache dir: %s", path)
	}
	name := filepath.Base(path)
	if !strings.HasPrefix(name, "user_avatar_") || !strings.HasSuffix(name, ".png") {
		t.Errorf("unexpected avatar filename %q", name)
	}

	stored, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read stored avatar: %v", err)
	}
	if !bytes.Equal(stored, raw) {
		t.Error("stored avatar does not match input")
	}
}

func TestSaveDataURLReplacesPrevious(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "avatars")
	c := NewCache(dir)

	first, err := c.SaveDataURL(dataURL([]byte{1}))
	if err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	second, err := c.SaveDataURL(dataURL([]byte{2}))
	if err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	// A new filename each time, and only the newest file kept.
	if first == second {
		t.Error("avatar path did not change between saves")
	}
	if _, err := os.Stat(first); !os.IsNotExist(err) {
		t.Error("previous avatar not purged")
	}
	if avatars := listAvatars(t, dir); len(avatars) != 1 {
		t.Errorf("expected exactly 1 cached avatar, got %v", avatars)
	}
}

func TestSaveDataURLKeepsForeignFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "avatars")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	foreign := filepath.Join(dir, "background.png")
	if err := os.WriteFile(foreign, []byte("keep me"), 0644); err != nil {
		t.Fatalf("failed to write foreign file: %v", err)
	}

	c := NewCache(dir)
	if _, err := c.SaveDataURL(dataURL([]byte{1})); err != nil {
		t.Fatalf("SaveDataURL failed: %v", err)
	}

	if _, err := os.Stat(foreign); err != nil {
		t.Errorf("purge removed a file it does not own: %v", err)
	}
}

func TestSaveDataURLRejectsBadInput(t *testing.T) {
	c := NewCache(filepath.Join(t.TempDir(), "avatars"))

	if _, err := c.SaveDataURL("no comma here"); err == nil {
		t.Error("expected error for malformed data URL")
	}
	if _, err := c.SaveDataURL("data:image/png;base64,!!!not-base64!!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestClear(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "avatars")
	c := NewCache(dir)

	if _, err := c.SaveDataURL(dataURL([]byte{1})); err != nil {
		t.Fatalf("SaveDataURL failed: %v", err)
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("cache dir missing after clear: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("cache not empty after clear: %d entries", len(entries))
	}
}
