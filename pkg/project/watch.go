package project

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/l3aro/phpflow/internal/config"
	"github.com/l3aro/phpflow/internal/log"
)

// DefaultDebounce is how long Watch waits after the last change before
// re-checking.
const DefaultDebounce = 250 * time.Millisecond

// Watch checks paths once and then again after every burst of changes to
// PHP files below them, passing each outcome to onReport. It returns nil
// when ctx is done.
func Watch(ctx context.Context, cfg *config.Config, paths []string, logger log.Logger, onReport func(*Report, error)) error {
	r, err := NewRunner(cfg, logger)
	if err != nil {
		return err
	}
	return r.Watch(ctx, paths, DefaultDebounce, onReport)
}

// Watch is the Runner form of the package-level Watch.
func (r *Runner) Watch(ctx context.Context, paths []string, debounce time.Duration, onReport func(*Report, error)) error {
	if len(paths) == 0 {
		paths = []string{"."}
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, p := range paths {
		root, err := watchRoot(p)
		if err != nil {
			return err
		}
		if err := r.addWatchRecursive(watcher, root); err != nil {
			return err
		}
	}

	onReport(r.Run(ctx, paths))

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	pending := map[string]bool{}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			path := filepath.Clean(event.Name)

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(path); err == nil && info.IsDir() {
					r.watchNewDir(watcher, path)
					continue
				}
			}
			if !r.relevant(path) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if len(pending) > 0 && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			pending[path] = true
			timer.Reset(debounce)
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			pending = map[string]bool{}
			r.logger.Info("files changed, re-checking", "count", len(changed), "first", changed[0])
			onReport(r.Run(ctx, paths))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

// watchRoot returns the directory to watch for p: p itself for a directory,
// its parent for a file.
func watchRoot(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return abs, nil
	}
	return filepath.Dir(abs), nil
}

// watchNewDir starts watching a directory created while watching. Failures
// are logged; the rest of the tree stays watched.
func (r *Runner) watchNewDir(watcher *fsnotify.Watcher, dir string) {
	if r.skipDir(filepath.Base(dir)) {
		return
	}
	if err := r.addWatchRecursive(watcher, dir); err != nil {
		r.logger.Warn("failed to watch directory", "path", dir, "err", err)
	}
}

func (r *Runner) addWatchRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !entry.IsDir() {
			return nil
		}
		if path != root && r.skipDir(entry.Name()) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

func (r *Runner) skipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, ex := range r.cfg.Excludes {
		if strings.EqualFold(name, ex) {
			return true
		}
	}
	return false
}

// relevant reports whether a change to path can affect the findings.
func (r *Runner) relevant(path string) bool {
	base := filepath.Base(path)
	if base == r.cfg.IgnoreFile || base == ".gitignore" {
		return true
	}
	if strings.HasPrefix(base, ".#") || strings.HasSuffix(base, ".swp") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range r.cfg.Extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}
