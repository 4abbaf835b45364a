// Package workdir implements scoped working-directory acquisition and
// release for tasks (spec §5 Shared resource policy, §6 Working
// filesystem layout): `<base>/<task-id>[<folder-name>]/...`, created
// before download starts and removed by Clean on every exit path except a
// successful hand-off to persistence of the output location.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Dir represents one acquired working directory. A Dir must be released
// exactly once via Clean or Keep; calling either a second time is a no-op,
// matching spec §5's "never released twice" requirement.
type Dir struct {
	Path string

	mu       sync.Mutex
	released bool
}

// Base is the root under which all task working directories, thumbnails,
// rclone configs, tokens, and watermarks live (spec §6).
type Base struct {
	root string
}

// NewBase constructs a Base rooted at root, creating it if necessary.
func NewBase(root string) (*Base, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("workdir: create base %s: %w", root, err)
	}
	return &Base{root: root}, nil
}

func (b *Base) Root() string { return b.root }

// Acquire creates `<base>/<taskID>[<folderName>]` and returns a Dir
// handle. folderName may be empty; when set (spec §4.5 same-directory
// handling) the directory is shared by every task declaring that folder,
// so Acquire is safe to call by multiple tasks with the same folderName —
// MkdirAll is idempotent.
func (b *Base) Acquire(taskID, folderName string) (*Dir, error) {
	name := taskID
	if folderName != "" {
		name = folderName
	}
	path := filepath.Join(b.root, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("workdir: acquire %s: %w", path, err)
	}
	return &Dir{Path: path}, nil
}

// Clean removes the directory tree, ignoring errors (spec §3 invariant 5:
// "removed by clean() on every exit path except successful hand-off").
// Safe to call multiple times or concurrently; only the first call acts.
func (d *Dir) Clean() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return
	}
	d.released = true
	_ = os.RemoveAll(d.Path)
}

// Keep marks the Dir as released without removing it, for the successful
// hand-off path where the output location is handed to persistence
// instead of being deleted.
func (d *Dir) Keep() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = true
}

// ThumbnailPath returns `<base>/thumbnails/<userID>.jpg`.
func (b *Base) ThumbnailPath(userID int64) string {
	return filepath.Join(b.root, "thumbnails", fmt.Sprintf("%d.jpg", userID))
}

// AutoThumbnailPath returns `<base>/thumbnails/auto/<cacheKey>.jpg`.
func (b *Base) AutoThumbnailPath(cacheKey string) string {
	return filepath.Join(b.root, "thumbnails", "auto", cacheKey+".jpg")
}

// MetadataDir returns the transient `<base>/Metadata/` directory.
func (b *Base) MetadataDir() string {
	return filepath.Join(b.root, "Metadata")
}

// RcloneConfigPath returns `<base>/rclone/<user>.conf`.
func (b *Base) RcloneConfigPath(user string) string {
	return filepath.Join(b.root, "rclone", user+".conf")
}

// TokenPath returns `<base>/tokens/<user>.pickle`.
func (b *Base) TokenPath(user string) string {
	return filepath.Join(b.root, "tokens", user+".pickle")
}

// WatermarkPath returns `<base>/watermarks/<user>.png`.
func (b *Base) WatermarkPath(user string) string {
	return filepath.Join(b.root, "watermarks", user+".png")
}
