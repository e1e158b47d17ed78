package capture

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// maxFrameSize bounds a single snapshot download.
const maxFrameSize = 20 << 20

// SnapshotCamera fetches JPEG snapshots from an IP camera's HTTP endpoint.
type SnapshotCamera struct {
	url    string
	client *http.Client

	mu     sync.Mutex
	opened bool
}

// NewSnapshotCamera creates a camera for a snapshot URL such as http://cam.local/snapshot.jpg.
func NewSnapshotCamera(url string, timeout time.Duration) *SnapshotCamera {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SnapshotCamera{url: url, client: &http.Client{Timeout: timeout}}
}

// Open verifies the camera answers with an image.
func (c *SnapshotCamera) Open(ctx context.Context) error {
	if _, err := c.fetch(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.opened = true
	c.mu.Unlock()
	return nil
}

// Capture downloads one frame.
func (c *SnapshotCamera) Capture(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	opened := c.opened
	c.mu.Unlock()
	if !opened {
		return nil, fmt.Errorf("%w: camera is closed", ErrCameraUnavailable)
	}
	return c.fetch(ctx)
}

func (c *SnapshotCamera) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create snapshot request: %w", err)
	}
	resp, err := c.client.Do(req) //nolint:gosec // operator-provided camera URL
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot returned status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("snapshot has content type %q, want an image", ct)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameSize))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

// Close releases idle connections.
func (c *SnapshotCamera) Close() error {
	c.mu.Lock()
	c.opened = false
	c.mu.Unlock()
	c.client.CloseIdleConnections()
	return nil
}

// DirectoryCamera replays image files from a directory in name order, looping forever.
type DirectoryCamera struct {
	dir string

	mu    sync.Mutex
	files []string
	next  int
}

// NewDirectoryCamera creates a camera reading frames from dir.
func NewDirectoryCamera(dir string) *DirectoryCamera {
	return &DirectoryCamera{dir: dir}
}

var frameExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".webp"}

// Open lists the frames in the directory.
func (c *DirectoryCamera) Open(ctx context.Context) error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("read frame directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(frameExtensions, strings.ToLower(filepath.Ext(e.Name()))) {
			files = append(files, filepath.Join(c.dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no image files in %s", c.dir)
	}
	slices.Sort(files)

	c.mu.Lock()
	c.files = files
	c.next = 0
	c.mu.Unlock()
	return nil
}

// Capture returns the next frame.
func (c *DirectoryCamera) Capture(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	if len(c.files) == 0 {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: camera is closed", ErrCameraUnavailable)
	}
	path := c.files[c.next]
	c.next = (c.next + 1) % len(c.files)
	c.mu.Unlock()

	data, err := os.ReadFile(path) //nolint:gosec // operator-provided frame directory
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	return data, nil
}

// Close forgets the frame list.
func (c *DirectoryCamera) Close() error {
	c.mu.Lock()
	c.files = nil
	c.mu.Unlock()
	return nil
}
