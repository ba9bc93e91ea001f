package textutil

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	seasonEpisodePattern = regexp.MustCompile(`(?i)\bs(\d{1,2})[ ._-]?e(\d{1,3})\b`)
	crossEpisodePattern  = regexp.MustCompile(`\b(\d{1,2})x(\d{2,3})\b`)
	yearPattern          = regexp.MustCompile(`(?:^|[^0-9])((?:19|20)\d{2})(?:[^0-9]|$)`)
)

// Markers holds structural metadata found in a file name. Zero means absent.
type Markers struct {
	Season  int
	Episode int
	Year    int
}

// HasEpisode reports whether both season and episode were found.
func (m Markers) HasEpisode() bool {
	return m.Season > 0 && m.Episode > 0
}

// ParseMarkers extracts season/episode and year markers from a file name.
func ParseMarkers(name string) Markers {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	var m Markers
	if match := seasonEpisodePattern.FindStringSubmatch(stem); match != nil {
		m.Season, _ = strconv.Atoi(match[1])
		m.Episode, _ = strconv.Atoi(match[2])
	} else if match := crossEpisodePattern.FindStringSubmatch(stem); match != nil {
		m.Season, _ = strconv.Atoi(match[1])
		m.Episode, _ = strconv.Atoi(match[2])
	}
	if match := yearPattern.FindStringSubmatch(stem); match != nil {
		m.Year, _ = strconv.Atoi(match[1])
	}
	return m
}
