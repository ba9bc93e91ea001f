package discovery_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelver/internal/config"
	"shelver/internal/discovery"
	"shelver/internal/testsupport"
)

func TestValidatorCheck(t *testing.T) {
	root := t.TempDir()
	validator, err := discovery.NewValidator(config.Watch{
		Roots:        []string{root},
		MinSizeBytes: 4,
		Extensions:   []string{".pdf", ".mkv"},
		Exclude:      []string{"**/.*", "**/*.part", "scratch/**"},
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		rel     string
		content string
		reason  string
	}{
		{name: "accepted", rel: "report.pdf", content: "%PDF-1.7"},
		{name: "accepted nested", rel: "shows/Show.S01E01.mkv", content: "matroska"},
		{name: "extension match ignores case", rel: "SCAN.PDF", content: "%PDF-1.7"},
		{name: "too small", rel: "tiny.pdf", content: "ab", reason: "smaller than 4 bytes"},
		{name: "extension", rel: "notes.txt", content: "hello world", reason: "extension not allowed"},
		{name: "hidden", rel: ".hidden.pdf", content: "%PDF-1.7", reason: `excluded by "**/.*"`},
		{name: "hidden nested", rel: "a/.cache.pdf", content: "%PDF-1.7", reason: `excluded by "**/.*"`},
		{name: "rooted pattern", rel: "scratch/draft.pdf", content: "%PDF-1.7", reason: `excluded by "scratch/**"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(root, tt.rel)
			testsupport.WriteFile(t, path, tt.content)
			info, err := os.Stat(path)
			require.NoError(t, err)

			rejection := validator.Check(path, info)
			if tt.reason == "" {
				assert.Nil(t, rejection)
				return
			}
			require.NotNil(t, rejection)
			assert.Equal(t, tt.reason, rejection.Reason)
			assert.Contains(t, rejection.Error(), tt.rel)
		})
	}
}

func TestValidatorRejectsDirectories(t *testing.T) {
	root := t.TempDir()
	validator, err := discovery.NewValidator(config.Watch{Roots: []string{root}})
	require.NoError(t, err)

	info, err := os.Stat(root)
	require.NoError(t, err)
	rejection := validator.Check(root, info)
	require.NotNil(t, rejection)
	assert.Equal(t, "not a regular file", rejection.Reason)
}

func TestValidatorSkipDir(t *testing.T) {
	root := t.TempDir()
	validator, err := discovery.NewValidator(config.Watch{
		Roots:   []string{root},
		Exclude: []string{"**/.*", "tmp"},
	})
	require.NoError(t, err)

	assert.False(t, validator.SkipDir(root), "roots are never pruned")
	assert.True(t, validator.SkipDir(filepath.Join(root, ".git")))
	assert.True(t, validator.SkipDir(filepath.Join(root, "tmp")))
	assert.False(t, validator.SkipDir(filepath.Join(root, "docs", "tmp")))
	assert.False(t, validator.SkipDir(filepath.Join(root, "docs")))
}

func TestNewValidatorRejectsBadPattern(t *testing.T) {
	_, err := discovery.NewValidator(config.Watch{Exclude: []string{"[unclosed"}})
	assert.Error(t, err)
}
