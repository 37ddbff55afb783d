// Package scanner provides file tree walking functionality with ignore pattern support.
// It respects .phpflowignore and .gitignore files with gitignore semantics and
// selects PHP sources by file extension.
package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// FileInfo represents information about a discovered file.
type FileInfo struct {
	Path     string // Relative path from root
	FullPath string // Absolute path
	Language string // Detected language from extension
	Size     int64  // File size in bytes
}

// Options configures the scanner behavior.
type Options struct {
	SkipHidden      bool     // Skip hidden files and directories (starting with .)
	FollowSymlinks  bool     // Follow symlinks (within root only)
	DefaultExcludes []string // Directory names to exclude
	IgnoreFileName  string   // Name of the ignore file (default: .phpflowignore)
	UseGitIgnore    bool     // Also honour .gitignore files
	Extensions      []string // Extensions to include; empty means all files
	MaxFileSize     int64    // Skip larger files; 0 means no limit
}

// DefaultOptions returns scanner options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		SkipHidden:     true,
		FollowSymlinks: false,
		IgnoreFileName: ".phpflowignore",
		UseGitIgnore:   true,
		Extensions:     DefaultExtensions(),
		DefaultExcludes: []string{
			"node_modules",
			".git",
			"vendor",
			".idea",
			".vscode",
			".hg",
			".svn",
			"CVS",
			"storage",
			"var",
		},
	}
}

// ignoreRules is one compiled ignore file and the directory it applies to.
type ignoreRules struct {
	base    string // relative to the scan root, "" for the root
	matcher *ignore.GitIgnore
}

// Scanner provides file tree scanning capabilities.
type Scanner struct {
	opts Options
	root string
}

// New creates a new Scanner with the given options.
func New(opts Options) *Scanner {
	return &Scanner{opts: opts}
}

// Scan recursively scans the directory at root and returns a list of FileInfo.
// It respects ignore files and default exclusions.
func (s *Scanner) Scan(root string) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	s.root = absRoot

	rules, err := s.loadIgnoreRules(absRoot, "")
	if err != nil {
		return nil, fmt.Errorf("loading ignore patterns: %w", err)
	}

	var files []FileInfo

	err = filepath.Walk(absRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// Unreadable entries are skipped, the walk continues.
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		if relPath == "." {
			return nil
		}
		relPathSlash := filepath.ToSlash(relPath)

		if s.opts.SkipHidden && s.isHidden(info.Name()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			if s.isDefaultExcluded(info.Name()) || s.ignored(relPathSlash+"/", rules) {
				return filepath.SkipDir
			}
			nested, err := s.loadIgnoreRules(path, relPathSlash)
			if err == nil {
				rules = append(rules, nested...)
			}
			return nil
		}

		if s.ignored(relPathSlash, rules) {
			return nil
		}

		if info.Mode()&os.ModeSymlink != 0 {
			target, ok := s.resolveSymlink(path)
			if !ok {
				return nil
			}
			info = target
		}

		if !s.wanted(path) {
			return nil
		}
		if s.opts.MaxFileSize > 0 && info.Size() > s.opts.MaxFileSize {
			return nil
		}

		files = append(files, FileInfo{
			Path:     relPathSlash,
			FullPath: path,
			Language: DetectLanguage(filepath.Ext(path)),
			Size:     info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return files, nil
}

// resolveSymlink follows a file symlink that stays within the scan root.
func (s *Scanner) resolveSymlink(path string) (os.FileInfo, bool) {
	if !s.opts.FollowSymlinks {
		return nil, false
	}
	realPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, false
	}
	realAbs, err := filepath.Abs(realPath)
	if err != nil {
		return nil, false
	}
	if !strings.HasPrefix(realAbs, s.root+string(filepath.Separator)) && realAbs != s.root {
		return nil, false
	}
	targetInfo, err := os.Stat(realPath)
	if err != nil || targetInfo.IsDir() {
		return nil, false
	}
	return targetInfo, true
}

// isHidden checks if a file or directory name indicates it's hidden.
func (s *Scanner) isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// isDefaultExcluded checks if the name matches default exclusion patterns.
func (s *Scanner) isDefaultExcluded(name string) bool {
	for _, exclude := range s.opts.DefaultExcludes {
		if strings.EqualFold(name, exclude) {
			return true
		}
	}
	return false
}

func (s *Scanner) wanted(path string) bool {
	if len(s.opts.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range s.opts.Extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// loadIgnoreRules compiles the ignore files found in dir.
func (s *Scanner) loadIgnoreRules(dir, base string) ([]ignoreRules, error) {
	names := []string{}
	if s.opts.UseGitIgnore {
		names = append(names, ".gitignore")
	}
	if s.opts.IgnoreFileName != "" {
		names = append(names, s.opts.IgnoreFileName)
	}

	var rules []ignoreRules
	for _, name := range names {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		matcher, err := ignore.CompileIgnoreFile(path)
		if err != nil {
			return nil, fmt.Errorf("compiling %s: %w", path, err)
		}
		rules = append(rules, ignoreRules{base: base, matcher: matcher})
	}
	return rules, nil
}

// ignored reports whether any ignore file covering relPath matches it.
func (s *Scanner) ignored(relPath string, rules []ignoreRules) bool {
	for _, r := range rules {
		p := relPath
		if r.base != "" {
			if !strings.HasPrefix(relPath, r.base+"/") {
				continue
			}
			p = strings.TrimPrefix(relPath, r.base+"/")
		}
		if r.matcher.MatchesPath(p) {
			return true
		}
	}
	return false
}

// Scan is a convenience function that scans a directory with default options.
func Scan(root string) ([]FileInfo, error) {
	scanner := New(DefaultOptions())
	return scanner.Scan(root)
}

// ScanWithOptions scans a directory with custom options.
func ScanWithOptions(root string, opts Options) ([]FileInfo, error) {
	scanner := New(opts)
	return scanner.Scan(root)
}

// ScanPaths expands a mix of files and directories into a sorted,
// de-duplicated list of absolute file paths. Files named explicitly are
// kept even if an ignore file would exclude them, but must still have a
// wanted extension.
func ScanPaths(paths []string, opts Options) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	s := New(opts)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("getting absolute path: %w", err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			if s.wanted(abs) {
				add(abs)
			}
			continue
		}
		files, err := s.Scan(abs)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			add(f.FullPath)
		}
	}
	sort.Strings(out)
	return out, nil
}
