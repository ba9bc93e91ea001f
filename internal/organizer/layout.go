package organizer

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"shelver/internal/config"
	"shelver/internal/queue"
	"shelver/internal/services"
	"shelver/internal/textutil"
)

// Layout renders library paths from the organizer templates.
type Layout struct {
	LibraryDir      string
	PathTemplate    string
	EpisodeTemplate string
}

// LayoutFromConfig returns the layout configured for the library.
func LayoutFromConfig(cfg *config.Config) Layout {
	return Layout{
		LibraryDir:      cfg.Paths.LibraryDir,
		PathTemplate:    cfg.Organizer.PathTemplate,
		EpisodeTemplate: cfg.Organizer.EpisodeTemplate,
	}
}

// Target returns the absolute library path for item filed under category.
// The episode template is used when season and episode are known. Placeholders
// with no value expand to nothing and empty directory segments are dropped.
func (l Layout) Target(item *queue.Item, category string) (string, error) {
	template := l.PathTemplate
	if item.HasEpisode() && l.EpisodeTemplate != "" {
		template = l.EpisodeTemplate
	}

	filename := item.DisplayName
	if strings.TrimSpace(filename) == "" {
		filename = filepath.Base(item.SourcePath)
	}
	dotExt := filepath.Ext(filename)
	replacer := strings.NewReplacer(
		"{category}", category,
		"{filename}", filename,
		"{name}", strings.TrimSuffix(filename, dotExt),
		"{ext}", strings.TrimPrefix(dotExt, "."),
		"{season}", padded(item.Season),
		"{episode}", padded(item.Episode),
		"{year}", optional(item.Year),
	)

	raw := strings.Split(template, "/")
	segments := make([]string, 0, len(raw)+1)
	segments = append(segments, l.LibraryDir)
	for i, part := range raw {
		last := i == len(raw)-1
		value := replacer.Replace(part)
		if last {
			if !strings.Contains(part, "{filename}") && !strings.Contains(part, "{ext}") && dotExt != "" {
				value += dotExt
			}
			value = textutil.SanitizeFileName(value)
			if value == "" || value == "." || value == ".." {
				return "", services.Wrap(services.ErrValidation, stageName, "render target", fmt.Sprintf("Template %q produced an empty file name", template), nil)
			}
		} else {
			value = textutil.SanitizePathSegment(value)
			if value == "" {
				continue
			}
		}
		segments = append(segments, value)
	}

	target := filepath.Join(segments...)
	rel, err := filepath.Rel(l.LibraryDir, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", services.Wrap(services.ErrValidation, stageName, "render target", fmt.Sprintf("Rendered path %q escapes the library directory", target), err)
	}
	return target, nil
}

func padded(value int) string {
	if value <= 0 {
		return ""
	}
	return fmt.Sprintf("%02d", value)
}

func optional(value int) string {
	if value <= 0 {
		return ""
	}
	return strconv.Itoa(value)
}
