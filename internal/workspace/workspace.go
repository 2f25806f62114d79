// Package workspace owns the transient files created while serving one
// narration request. All names live under a directory derived from the
// request id, so concurrent requests never share paths.
package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Context is the per-request resource scope.
type Context struct {
	RequestID string
	dir       string
	log       *slog.Logger

	mu        sync.Mutex
	resources []string
	released  bool
}

// NewRequestID returns a collision-resistant request identifier.
func NewRequestID() string {
	return uuid.NewString()
}

// New creates the request directory under base.
func New(base, requestID string, log *slog.Logger) (*Context, error) {
	if requestID == "" {
		return nil, errors.New("workspace: request id must not be empty")
	}
	if filepath.Base(requestID) != requestID {
		return nil, fmt.Errorf("workspace: invalid request id %q", requestID)
	}
	dir := filepath.Join(base, "narrator-"+requestID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create request dir: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Context{RequestID: requestID, dir: dir, log: log}, nil
}

// Dir is the request directory.
func (c *Context) Dir() string { return c.dir }

// Register reserves a resource name inside the request directory and returns
// its path. The resource is removed by Release whether or not it was written.
func (c *Context) Register(name string) string {
	path := filepath.Join(c.dir, filepath.Base(name))
	c.mu.Lock()
	c.resources = append(c.resources, path)
	c.mu.Unlock()
	return path
}

// SegmentName is the resource name for the audio of sentence index.
func (c *Context) SegmentName(index int, format string) string {
	return fmt.Sprintf("sent_%s_%d.%s", c.RequestID, index, format)
}

// ConcatListName is the resource name for the concatenation list.
func (c *Context) ConcatListName() string {
	return fmt.Sprintf("files_%s.txt", c.RequestID)
}

// OutputName is the resource name for the merged artifact.
func (c *Context) OutputName() string {
	return fmt.Sprintf("output_%s.mp3", c.RequestID)
}

// Resources returns the registered paths in registration order.
func (c *Context) Resources() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.resources...)
}

// Release removes every registered resource and the request directory.
// Failures are logged and never returned. Safe to call more than once.
func (c *Context) Release() {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return
	}
	c.released = true
	resources := c.resources
	c.resources = nil
	c.mu.Unlock()

	for _, path := range resources {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.log.Debug("failed to remove request resource", slog.String("path", path), slog.String("error", err.Error()))
		}
	}
	if err := os.RemoveAll(c.dir); err != nil {
		c.log.Debug("failed to remove request dir", slog.String("path", c.dir), slog.String("error", err.Error()))
	}
}
