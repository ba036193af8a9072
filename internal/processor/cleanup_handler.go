package processor

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"subrender/internal/pkg/logger"
)

// Cleanup removes per-render files. Failures are logged and never change the
// render outcome.
type Cleanup struct {
	log *logger.Logger
}

func NewCleanup(log *logger.Logger) *Cleanup {
	return &Cleanup{log: log}
}

// RemoveStaged deletes a staged input this request created.
func (c *Cleanup) RemoveStaged(in StagedInput) {
	if !in.Temp || in.Path == "" {
		return
	}
	c.remove(in.Path, "staged input")
}

// DiscardOutput deletes a partial artifact after a failed render.
func (c *Cleanup) DiscardOutput(path string) {
	if path == "" {
		return
	}
	c.remove(path, "partial output")
}

func (c *Cleanup) remove(path, kind string) {
	err := os.Remove(path)
	if err == nil {
		c.log.Debug("removed "+kind, "path", path)
		return
	}
	if os.IsNotExist(err) {
		return
	}
	c.log.Warn("cleanup failed",
		"kind", kind,
		"path", path,
		"error", err.Error(),
		"impact", "disk space not reclaimed",
	)
}

// SweepStale removes staged inputs older than maxAge, left behind by a
// process that died mid render. It returns the number of files removed.
func (c *Cleanup) SweepStale(stagingDir string, maxAge time.Duration) int {
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" || maxAge <= 0 {
		return 0
	}

	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if !os.IsNotExist(err) {
			c.log.Warn("staging sweep failed", "dir", stagingDir, "error", err.Error())
		}
		return 0
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "input_") {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(stagingDir, entry.Name())
		if err := os.Remove(path); err != nil {
			c.log.Warn("failed to remove stale staged input", "path", path, "error", err.Error())
			continue
		}
		removed++
	}

	if removed > 0 {
		c.log.Info("removed stale staged inputs", "dir", stagingDir, "count", removed)
	}
	return removed
}
