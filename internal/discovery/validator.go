package discovery

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"shelver/internal/config"
)

// Rejection explains why a file was not offered.
type Rejection struct {
	Path   string
	Reason string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Path, r.Reason)
}

// Validator applies the watch rules to candidate files.
type Validator struct {
	roots      []string
	minSize    int64
	extensions map[string]struct{}
	exclude    []string
}

// NewValidator builds a validator from the watch configuration.
func NewValidator(cfg config.Watch) (*Validator, error) {
	for _, pattern := range cfg.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}
	v := &Validator{
		roots:   append([]string(nil), cfg.Roots...),
		minSize: cfg.MinSizeBytes,
		exclude: append([]string(nil), cfg.Exclude...),
	}
	if len(cfg.Extensions) > 0 {
		v.extensions = make(map[string]struct{}, len(cfg.Extensions))
		for _, ext := range cfg.Extensions {
			v.extensions[strings.ToLower(ext)] = struct{}{}
		}
	}
	return v, nil
}

// Check returns nil when the file should be offered.
func (v *Validator) Check(path string, info fs.FileInfo) *Rejection {
	if info == nil || !info.Mode().IsRegular() {
		return &Rejection{Path: path, Reason: "not a regular file"}
	}
	if info.Size() < v.minSize {
		return &Rejection{Path: path, Reason: fmt.Sprintf("smaller than %d bytes", v.minSize)}
	}
	if v.extensions != nil {
		if _, ok := v.extensions[strings.ToLower(filepath.Ext(path))]; !ok {
			return &Rejection{Path: path, Reason: "extension not allowed"}
		}
	}
	if pattern, ok := v.excludedBy(path); ok {
		return &Rejection{Path: path, Reason: fmt.Sprintf("excluded by %q", pattern)}
	}
	return nil
}

// SkipDir reports whether a directory under a root is excluded, so walks and
// watches can prune it.
func (v *Validator) SkipDir(path string) bool {
	if v.isRoot(path) {
		return false
	}
	_, ok := v.excludedBy(path)
	return ok
}

func (v *Validator) excludedBy(path string) (string, bool) {
	rel, ok := v.relative(path)
	if !ok {
		return "", false
	}
	for _, pattern := range v.exclude {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return pattern, true
		}
	}
	return "", false
}

// relative returns path relative to its watch root in slash form.
func (v *Validator) relative(path string) (string, bool) {
	for _, root := range v.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return filepath.ToSlash(rel), true
	}
	return "", false
}

func (v *Validator) isRoot(path string) bool {
	clean := filepath.Clean(path)
	for _, root := range v.roots {
		if filepath.Clean(root) == clean {
			return true
		}
	}
	return false
}
