// Package project checks whole directory trees: it discovers PHP files,
// analyzes them on a bounded worker pool and reuses cached results for files
// whose content and rule selection are unchanged.
package project

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/l3aro/phpflow/internal/config"
	"github.com/l3aro/phpflow/internal/log"
	"github.com/l3aro/phpflow/internal/scanner"
	"github.com/l3aro/phpflow/pkg/cache"
	"github.com/l3aro/phpflow/pkg/lint"
	"github.com/l3aro/phpflow/pkg/syntax"
)

// analyzerVersion is folded into the cache fingerprint so results produced
// by an older analyzer are never reused.
const analyzerVersion = "1"

// FileError records a file that could not be checked.
type FileError struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// Report is the outcome of one run.
type Report struct {
	Diagnostics []lint.Diagnostic `json:"diagnostics"`
	Files       int               `json:"files"`
	Callables   int               `json:"callables"`
	CacheHits   int               `json:"cache_hits"`
	Errors      []FileError       `json:"errors,omitempty"`
	Duration    time.Duration     `json:"duration"`
}

// Runner checks files with one configuration. A Runner keeps its cache in
// memory between runs, so watch mode reuses it across re-checks.
type Runner struct {
	cfg         *config.Config
	logger      log.Logger
	opts        lint.Options
	fingerprint string
	store       *cache.Store

	// OnProgress, when set, is called from worker goroutines after each file.
	OnProgress func(done, total int)
}

// NewRunner prepares a Runner. The on-disk cache is loaded here; an
// unreadable cache is logged and discarded.
func NewRunner(cfg *config.Config, logger log.Logger) (*Runner, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = log.Discard()
	}
	opts, err := cfg.LintOptions()
	if err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:         cfg,
		logger:      logger,
		opts:        opts,
		fingerprint: Fingerprint(opts),
	}
	if !cfg.NoCache {
		r.store = cache.New(cache.WithDir(cfg.CacheDir))
		if err := r.store.LoadFile(); err != nil {
			logger.Warn("discarding unreadable cache", "path", r.store.Path(), "err", err)
			r.store.Clear()
		}
		logger.Debug("cache loaded", "path", r.store.Path(), "entries", r.store.Len())
	}
	return r, nil
}

// Run is NewRunner followed by a single Runner.Run.
func Run(ctx context.Context, cfg *config.Config, paths []string, logger log.Logger) (*Report, error) {
	r, err := NewRunner(cfg, logger)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, paths)
}

// Fingerprint identifies the options that change a file's findings.
func Fingerprint(opts lint.Options) string {
	return analyzerVersion + ";" + opts.Rules.String() + ";" + strings.Join(opts.IgnorePrefixes, ",")
}

// ScanOptions derives scanner options from cfg.
func ScanOptions(cfg *config.Config) scanner.Options {
	opts := scanner.DefaultOptions()
	opts.Extensions = cfg.Extensions
	opts.DefaultExcludes = cfg.Excludes
	opts.IgnoreFileName = cfg.IgnoreFile
	opts.MaxFileSize = cfg.MaxFileSize
	return opts
}

func (r *Runner) workers() int {
	if r.cfg.Workers > 0 {
		return r.cfg.Workers
	}
	return runtime.NumCPU()
}

type fileResult struct {
	diags     []lint.Diagnostic
	callables int
	hit       bool
	err       error
}

// Run checks every PHP file under paths (the current directory when paths
// is empty). Per-file failures are collected in Report.Errors; Run itself
// fails only when scanning fails or ctx is cancelled.
func (r *Runner) Run(ctx context.Context, paths []string) (*Report, error) {
	start := time.Now()
	if len(paths) == 0 {
		paths = []string{"."}
	}

	files, err := scanner.ScanPaths(paths, ScanOptions(r.cfg))
	if err != nil {
		return nil, fmt.Errorf("scanning paths: %w", err)
	}
	r.logger.Debug("scan complete", "files", len(files))

	results := make([]fileResult, len(files))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers())
	for i, path := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.checkFile(gctx, path)
			if r.OnProgress != nil {
				r.OnProgress(int(done.Add(1)), len(files))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{Files: len(files), Diagnostics: []lint.Diagnostic{}}
	for i, res := range results {
		if res.err != nil {
			r.logger.Warn("skipping file", "path", files[i], "err", res.err)
			report.Errors = append(report.Errors, FileError{Path: displayPath(files[i]), Err: res.err.Error()})
			continue
		}
		if res.hit {
			report.CacheHits++
		}
		report.Callables += res.callables
		for _, d := range res.diags {
			d.File = displayPath(d.File)
			report.Diagnostics = append(report.Diagnostics, d)
		}
	}
	lint.Sort(report.Diagnostics)

	if r.store != nil {
		r.saveCache()
	}

	report.Duration = time.Since(start)
	r.logger.Info("check complete",
		"files", report.Files,
		"callables", report.Callables,
		"diagnostics", len(report.Diagnostics),
		"cache_hits", report.CacheHits,
		"errors", len(report.Errors),
		"duration", report.Duration.Round(time.Millisecond))
	return report, nil
}

// checkFile analyzes one file, consulting the cache first. Results are
// cached under the absolute path.
func (r *Runner) checkFile(ctx context.Context, path string) fileResult {
	content, err := os.ReadFile(path)
	if err != nil {
		return fileResult{err: err}
	}
	hash := cache.HashBytes(content)

	if r.store != nil {
		if e, ok := r.store.Lookup(path, hash, r.fingerprint); ok {
			r.logger.Debug("cache hit", "path", path)
			return fileResult{diags: e.Diagnostics, callables: e.Callables, hit: true}
		}
	}

	var (
		diags []lint.Diagnostic
		n     int
	)
	tree, err := syntax.ParseContext(ctx, content)
	switch {
	case errors.Is(err, syntax.ErrEmptySource):
	case err != nil:
		return fileResult{err: err}
	default:
		diags, n = lint.CheckTree(tree, path, r.opts)
	}

	if r.store != nil {
		r.store.Put(cache.Entry{
			Path:        path,
			Hash:        hash,
			Fingerprint: r.fingerprint,
			Callables:   n,
			Diagnostics: diags,
		})
	}
	return fileResult{diags: diags, callables: n}
}

// saveCache drops entries for files that no longer exist and writes the
// cache to disk. Failures are logged, never returned.
func (r *Runner) saveCache() {
	var keep []string
	for _, p := range r.store.Paths() {
		if _, err := os.Stat(p); err == nil {
			keep = append(keep, p)
		}
	}
	if n := r.store.Prune(keep); n > 0 {
		r.logger.Debug("pruned cache entries", "removed", n)
	}
	if err := r.store.SaveFile(); err != nil {
		r.logger.Warn("failed to save cache", "path", r.store.Path(), "err", err)
	}
}

// displayPath shortens path relative to the working directory when it lies
// below it.
func displayPath(path string) string {
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(wd, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}
