package main

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"shelver/internal/categories"
	"shelver/internal/config"
	"shelver/internal/queue"
	"shelver/internal/txlog"
)

// minPrefixLength is the shortest fingerprint prefix accepted on the command line.
const minPrefixLength = 8

var hexPrefix = regexp.MustCompile(`^[0-9a-f]+$`)

type commandContext struct {
	configFlag *string
	envFlag    *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, envFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, envFlag: envFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) withStore(fn func(*config.Config, *queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open queue store: %w", err)
	}
	defer store.Close()
	return fn(cfg, store)
}

func (c *commandContext) withJournal(fn func(*txlog.Journal) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	journal, err := txlog.Open(cfg)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer journal.Close()
	return fn(journal)
}

// loadRegistry mirrors the daemon: configured categories plus every category
// already assigned in the store.
func loadRegistry(ctx context.Context, cfg *config.Config, store *queue.Store) (*categories.Registry, error) {
	registry := categories.New(cfg.Organizer.CategoryCase)
	registry.Seed(cfg.Classifier.Categories...)
	known, err := store.Categories(ctx)
	if err != nil {
		return nil, err
	}
	registry.Seed(known...)
	return registry, nil
}

// resolveItem finds the item whose fingerprint starts with arg.
func resolveItem(ctx context.Context, store *queue.Store, arg string) (*queue.Item, error) {
	prefix := strings.ToLower(strings.TrimSpace(arg))
	if len(prefix) < minPrefixLength || !hexPrefix.MatchString(prefix) {
		return nil, fmt.Errorf("fingerprint %q: need at least %d hex characters", arg, minPrefixLength)
	}
	item, err := store.FindByPrefix(ctx, prefix)
	switch {
	case errors.Is(err, queue.ErrNotFound):
		return nil, fmt.Errorf("no tracked item matches %s", prefix)
	case errors.Is(err, queue.ErrAmbiguousPrefix):
		return nil, fmt.Errorf("fingerprint prefix %s matches several items; use more characters", prefix)
	case err != nil:
		return nil, err
	}
	return item, nil
}

func resolveItems(ctx context.Context, store *queue.Store, args []string) ([]*queue.Item, error) {
	items := make([]*queue.Item, 0, len(args))
	for _, arg := range args {
		item, err := resolveItem(ctx, store, arg)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
