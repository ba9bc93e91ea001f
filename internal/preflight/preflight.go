package preflight

import (
	"context"

	"shelver/internal/classification"
	"shelver/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Library directory", cfg.Paths.LibraryDir),
	}
	if cfg.Organizer.MinFreeSpaceMB > 0 {
		results = append(results, CheckFreeSpace("Library free space", cfg.Paths.LibraryDir, cfg.Organizer.MinFreeSpaceMB))
	}
	for _, root := range cfg.Watch.Roots {
		results = append(results, CheckDirectoryAccess("Watch root", root))
	}

	if cfg.Classifier.Provider == classification.ProviderLLM {
		results = append(results, CheckLLM(ctx, "Classifier LLM", cfg.LLM))
	}

	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
