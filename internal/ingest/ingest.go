// Package ingest keeps the knowledge base in sync with a directory of
// document files.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spetr/mcp-knowledge/internal/kb"
)

// Ingestor watches a directory and stores changed files as documents.
type Ingestor struct {
	kb      *kb.KnowledgeBase
	dir     string
	include []string
	exclude []string

	watcher *fsnotify.Watcher

	// Debouncing
	pendingMu    sync.Mutex
	pendingFiles map[string]time.Time
	debounceTime time.Duration
}

// Config contains ingestor configuration.
type Config struct {
	KB           *kb.KnowledgeBase
	Dir          string
	Include      []string // glob patterns, empty means everything
	Exclude      []string
	DebounceTime time.Duration // Default: 500ms
}

// New creates a new ingestor.
func New(cfg Config) (*Ingestor, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("ingest: directory not set")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounceTime := cfg.DebounceTime
	if debounceTime == 0 {
		debounceTime = 500 * time.Millisecond
	}

	return &Ingestor{
		kb:           cfg.KB,
		dir:          cfg.Dir,
		include:      cfg.Include,
		exclude:      cfg.Exclude,
		watcher:      watcher,
		pendingFiles: make(map[string]time.Time),
		debounceTime: debounceTime,
	}, nil
}

// Scan walks the directory once and ingests every matching file.
// Returns the number of documents stored.
func (in *Ingestor) Scan(ctx context.Context) (int, error) {
	count := 0
	err := filepath.WalkDir(in.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != in.dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !in.shouldIngest(path) {
			return nil
		}
		if err := in.ingestFile(ctx, path); err != nil {
			slog.Warn("failed to ingest file", "file", path, "error", err)
			return nil
		}
		count++
		return nil
	})
	return count, err
}

// Watch starts watching for file changes. An initial scan runs first, so a
// fresh database catches up before events start trickling in. Blocks until
// the context is cancelled.
func (in *Ingestor) Watch(ctx context.Context) error {
	if _, err := in.Scan(ctx); err != nil {
		return err
	}

	if err := in.addWatchDirs(); err != nil {
		return err
	}

	slog.Info("watching for document changes", "dir", in.dir)

	go in.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping ingestor")
			return in.watcher.Close()

		case event, ok := <-in.watcher.Events:
			if !ok {
				return nil
			}
			in.handleEvent(event)

		case err, ok := <-in.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "error", err)
		}
	}
}

// addWatchDirs recursively adds directories to watch.
func (in *Ingestor) addWatchDirs() error {
	return filepath.WalkDir(in.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != in.dir {
				return filepath.SkipDir
			}
			if err := in.watcher.Add(path); err != nil {
				slog.Warn("failed to watch directory", "path", path, "error", err)
			}
		}
		return nil
	})
}

// handleEvent queues a file system event for debounced processing.
func (in *Ingestor) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	path := event.Name

	// New subdirectories need their own watch.
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		if event.Has(fsnotify.Create) && !strings.HasPrefix(filepath.Base(path), ".") {
			if err := in.watcher.Add(path); err != nil {
				slog.Warn("failed to watch directory", "path", path, "error", err)
			}
		}
		return
	}

	if !in.shouldIngest(path) {
		return
	}

	in.pendingMu.Lock()
	in.pendingFiles[path] = time.Now()
	in.pendingMu.Unlock()

	slog.Debug("document file changed", "path", path, "op", event.Op.String())
}

// processDebounced processes pending files after the debounce period.
func (in *Ingestor) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			in.processPendingFiles(ctx)
		}
	}
}

// processPendingFiles ingests files that have been stable for the debounce
// period.
func (in *Ingestor) processPendingFiles(ctx context.Context) {
	in.pendingMu.Lock()
	now := time.Now()
	var toProcess []string
	for path, changedAt := range in.pendingFiles {
		if now.Sub(changedAt) >= in.debounceTime {
			toProcess = append(toProcess, path)
			delete(in.pendingFiles, path)
		}
	}
	in.pendingMu.Unlock()

	for _, path := range toProcess {
		if ctx.Err() != nil {
			return
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			// The stored document is kept; there is no tombstone for
			// removed source files.
			slog.Debug("document file removed, keeping stored copy", "file", path)
			continue
		}
		if err := in.ingestFile(ctx, path); err != nil {
			slog.Warn("failed to ingest file", "file", path, "error", err)
		}
	}
}

// ingestFile stores one file as a document keyed by its relative path.
func (in *Ingestor) ingestFile(ctx context.Context, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(content) == 0 {
		return nil
	}

	docID, err := filepath.Rel(in.dir, path)
	if err != nil {
		docID = path
	}
	docID = filepath.ToSlash(docID)

	if _, err := in.kb.AddDocument(ctx, docID, string(content)); err != nil {
		return err
	}

	slog.Info("ingested document", "doc_id", docID, "bytes", len(content))
	return nil
}

// shouldIngest applies the include and exclude patterns to a path relative
// to the watched directory.
func (in *Ingestor) shouldIngest(path string) bool {
	relPath, err := filepath.Rel(in.dir, path)
	if err != nil {
		return false
	}
	relPath = filepath.ToSlash(relPath)

	if len(in.include) > 0 {
		included := false
		for _, pattern := range in.include {
			if matchGlob(pattern, relPath) {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}

	for _, pattern := range in.exclude {
		if matchGlob(pattern, relPath) {
			return false
		}
	}
	return true
}

// Close closes the watcher.
func (in *Ingestor) Close() error {
	return in.watcher.Close()
}

// matchGlob matches a path against a pattern, with ** for recursive
// matching.
func matchGlob(pattern, path string) bool {
	if strings.Contains(pattern, "**") {
		parts := strings.Split(pattern, "**")
		if len(parts) == 2 {
			prefix := strings.TrimSuffix(parts[0], "/")
			suffix := strings.TrimPrefix(parts[1], "/")

			if prefix != "" && !strings.HasPrefix(path, prefix) {
				return false
			}
			if suffix == "" {
				return true
			}

			if strings.Contains(suffix, "*") {
				base := filepath.Base(path)
				matched, _ := filepath.Match(suffix, base)
				if matched {
					return true
				}
				remaining := path
				if prefix != "" {
					remaining = strings.TrimPrefix(path, prefix)
					remaining = strings.TrimPrefix(remaining, "/")
				}
				matched, _ = filepath.Match(suffix, remaining)
				return matched
			}

			return strings.HasSuffix(path, suffix) || strings.Contains(path, suffix)
		}
	}

	matched, _ := filepath.Match(pattern, path)
	if matched {
		return true
	}

	base := filepath.Base(path)
	matched, _ = filepath.Match(pattern, base)
	return matched
}
