package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// Local is an inbox-directory source. File IDs hash the relative path with
// size and mtime, so a re-dropped or edited file shows up as a fresh
// candidate while an untouched file keeps its identity across scans.
type Local struct {
	dir      string
	patterns []string
	logger   *slog.Logger

	mu    sync.Mutex
	paths map[string]string // file ID -> absolute path, from the last List
}

// NewLocal creates a local inbox source rooted at dir. Patterns are
// doublestar globs matched against paths relative to dir; empty means all
// files.
func NewLocal(dir string, patterns []string, logger *slog.Logger) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("inbox directory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid pattern %q", p)
		}
	}

	return &Local{
		dir:      dir,
		patterns: patterns,
		logger:   logger,
		paths:    make(map[string]string),
	}, nil
}

// Name identifies the source.
func (l *Local) Name() string { return "local" }

// List walks the inbox and returns matching files in lexical walk order.
func (l *Local) List(ctx context.Context) ([]File, error) {
	var files []File
	paths := make(map[string]string)

	err := filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(l.dir, path)
		if err != nil {
			return err
		}
		if !l.matches(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		id := localFileID(rel, info)
		paths[id] = path
		files = append(files, File{ID: id, Name: d.Name()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk inbox %s: %w", l.dir, err)
	}

	l.mu.Lock()
	l.paths = paths
	l.mu.Unlock()

	return files, nil
}

// matches checks rel against the configured patterns.
func (l *Local) matches(rel string) bool {
	if len(l.patterns) == 0 {
		return true
	}
	rel = filepath.ToSlash(rel)
	for _, p := range l.patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		// Patterns without a path separator match the base name anywhere
		// in the inbox tree.
		if ok, _ := doublestar.Match(p, filepath.Base(rel)); ok {
			return true
		}
	}
	return false
}

// Download reads the content of a file from the last List.
func (l *Local) Download(ctx context.Context, id string) ([]byte, error) {
	l.mu.Lock()
	path, ok := l.paths[id]
	l.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown file ID: %s", id)
	}
	return os.ReadFile(path)
}

// localFileID derives a stable opaque ID from identity and content stamps.
func localFileID(rel string, info fs.FileInfo) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d", filepath.ToSlash(rel), info.Size(), info.ModTime().UnixNano())
	return "local-" + hex.EncodeToString(h.Sum(nil))[:20]
}
