// Package local handles local filesystem storage for archived configuration snapshots.
package local

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/supporttools/GoNetGuard/pkg/config"
	"github.com/supporttools/GoNetGuard/pkg/metrics"
)

// Client represents a local filesystem client
type Client struct {
	root  string
	debug bool
}

// NewClient creates a new local storage client
func NewClient() (*Client, error) {
	if !config.CFG.Local.Enabled {
		return nil, fmt.Errorf("local storage is not enabled in configuration")
	}
	return NewClientAt(config.CFG.Local.SnapshotDirectory)
}

// NewClientAt creates a client rooted at dir
func NewClientAt(dir string) (*Client, error) {
	if dir == "" {
		return nil, fmt.Errorf("snapshot directory is not configured")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory %s: %w", dir, err)
	}
	return &Client{root: dir, debug: config.CFG.Debug}, nil
}

// Name identifies the storage in metrics and logs
func (c *Client) Name() string {
	return "local"
}

// Root returns the base directory
func (c *Client) Root() string {
	return c.root
}

// pathFor maps an archive key to a file below root
func (c *Client) pathFor(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid archive key %q", key)
	}
	return filepath.Join(c.root, clean), nil
}

// Put writes content under key, creating parent directories
func (c *Client) Put(ctx context.Context, key string, content []byte) error {
	path, err := c.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	startTime := time.Now()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0640); err != nil {
		metrics.ArchiveUploads.WithLabelValues("local", "error").Inc()
		return fmt.Errorf("failed to write snapshot %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		metrics.ArchiveUploads.WithLabelValues("local", "error").Inc()
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}
	metrics.ArchiveUploadDuration.WithLabelValues("local").Observe(time.Since(startTime).Seconds())
	metrics.ArchiveUploads.WithLabelValues("local", "success").Inc()

	if c.debug {
		log.Printf("Local Debug: wrote %d bytes to %s", len(content), path)
	}
	return nil
}

// Get reads the content stored under key
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := c.pathFor(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", key, err)
	}
	return data, nil
}

// List returns the keys of all archived files, slash separated
func (c *Client) List(ctx context.Context) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".cfg") {
			return nil
		}
		rel, err := filepath.Rel(c.root, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot directory: %w", err)
	}
	return keys, nil
}

// EnforceRetention removes archived files older than retentionDays. Zero keeps everything.
func (c *Client) EnforceRetention(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		if c.debug {
			log.Printf("Local snapshots set to keep forever, skipping retention enforcement")
		}
		return 0, nil
	}

	cutoff := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	removed := 0
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.HasSuffix(path, ".cfg") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}

		if err := os.Remove(path); err != nil {
			log.Printf("Failed to remove expired snapshot %s: %v", path, err)
			return nil
		}
		removed++
		log.Printf("Removed expired local snapshot: %s", path)
		metrics.RetentionDeletes.WithLabelValues("local").Inc()
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("failed to enforce local retention: %w", err)
	}
	return removed, nil
}
