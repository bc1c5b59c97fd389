package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/compozy/docqa/pkg/logger"
)

// Supporter reports whether a file can be read by the pipeline.
type Supporter interface {
	Supports(path string) bool
}

// Enumerate expands the glob patterns under root and returns the absolute,
// sorted, de-duplicated files that supported accepts. Directories, files the
// registry cannot read and matches escaping root are skipped.
func Enumerate(ctx context.Context, root string, patterns []string, supported Supporter) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("ingest: corpus folder %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("ingest: corpus path %q is not a directory", root)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("ingest: resolve %q: %w", root, err)
	}
	log := logger.FromContext(ctx)
	seen := make(map[string]struct{})
	files := make([]string, 0)
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		matches, err := doublestar.FilepathGlob(filepath.Join(absRoot, pattern))
		if err != nil {
			return nil, fmt.Errorf("ingest: glob %q failed: %w", pattern, err)
		}
		for _, match := range matches {
			if _, dup := seen[match]; dup {
				continue
			}
			seen[match] = struct{}{}
			fi, err := os.Stat(match)
			if err != nil || fi.IsDir() {
				continue
			}
			if !pathInside(absRoot, match) {
				log.Warn("Skipping file outside corpus folder", "path", match)
				continue
			}
			if supported != nil && !supported.Supports(match) {
				log.Debug("Skipping unsupported file", "path", match)
				continue
			}
			files = append(files, match)
		}
	}
	sort.Strings(files)
	return files, nil
}

func pathInside(root, target string) bool {
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return false
	}
	resolvedTarget, err := filepath.EvalSymlinks(target)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(resolvedRoot, resolvedTarget)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}
