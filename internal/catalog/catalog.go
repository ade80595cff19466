// Package catalog selects analyzable source files from a workspace and
// estimates effective lines of code.
package catalog

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrNoFiles is returned when a workspace holds nothing to analyze.
var ErrNoFiles = errors.New("no analyzable source files found")

// SupportedExtensions lists the source languages the analyzer is pointed at.
var SupportedExtensions = map[string]bool{
	".java": true, ".js": true, ".jsx": true, ".ts": true, ".tsx": true,
	".py": true, ".go": true, ".rb": true, ".php": true, ".c": true,
	".cpp": true, ".cs": true, ".swift": true, ".kt": true, ".rs": true,
}

// ExcludedDirs are build output, dependency caches, bundler output and VCS
// metadata directories. Matched by path segment.
var ExcludedDirs = map[string]bool{
	"target":       true,
	"build":        true,
	"node_modules": true,
	"dist":         true,
	".git":         true,
}

// Catalog is the set of files selected for one job.
type Catalog struct {
	// Files are workspace-relative, slash-separated paths.
	Files       []string
	LinesOfCode int
}

// TotalFiles is len(Files).
func (c *Catalog) TotalFiles() int { return len(c.Files) }

// Builder walks workspaces.
type Builder struct {
	extraExcludes []string
}

// NewBuilder returns a Builder. extraExcludes are doublestar globs matched
// against workspace-relative paths in addition to ExcludedDirs.
func NewBuilder(extraExcludes []string) *Builder {
	globs := make([]string, 0, len(extraExcludes))
	for _, g := range extraExcludes {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		if !doublestar.ValidatePattern(g) {
			slog.Warn("Ignoring invalid exclude glob", "glob", g)
			continue
		}
		globs = append(globs, g)
	}
	return &Builder{extraExcludes: globs}
}

// Build walks root and returns the selected files with their line count.
func (b *Builder) Build(root string) (*Catalog, error) {
	cat := &Catalog{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			slog.Debug("Skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = normalisePath(rel)

		if d.IsDir() {
			if ExcludedDirs[d.Name()] || b.excluded(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !SupportedExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}
		if inExcludedDir(rel) || b.excluded(rel) {
			return nil
		}
		cat.Files = append(cat.Files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking workspace: %w", err)
	}
	if len(cat.Files) == 0 {
		return nil, ErrNoFiles
	}

	for _, rel := range cat.Files {
		n, err := CountLines(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			slog.Warn("Failed to count lines", "file", rel, "error", err)
			continue
		}
		cat.LinesOfCode += n
	}
	return cat, nil
}

func (b *Builder) excluded(rel string) bool {
	for _, g := range b.extraExcludes {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
	}
	return false
}

// normalisePath converts either separator style to forward slashes.
func normalisePath(p string) string {
	return strings.ReplaceAll(filepath.ToSlash(p), `\`, "/")
}

func inExcludedDir(rel string) bool {
	segments := strings.Split(rel, "/")
	for _, s := range segments[:len(segments)-1] {
		if ExcludedDirs[s] {
			return true
		}
	}
	return false
}

// CountLines counts lines that are neither blank nor pure comment syntax
// (//, /* or a leading * continuation). Not a tokenizer.
func CountLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	n := 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" ||
			strings.HasPrefix(line, "//") ||
			strings.HasPrefix(line, "/*") ||
			strings.HasPrefix(line, "*") {
			continue
		}
		n++
	}
	return n, sc.Err()
}
