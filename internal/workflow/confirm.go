package workflow

import (
	"context"
	"errors"
	"fmt"

	"shelver/internal/categories"
	"shelver/internal/queue"
	"shelver/internal/services"
)

// ErrNotConfirmable is returned when an item is not awaiting a category
// decision.
var ErrNotConfirmable = errors.New("item cannot be confirmed")

// Confirm records an operator's category for a classified item and marks it
// ready to move. Confirming an item that already moved on with the same
// category succeeds without change.
func Confirm(ctx context.Context, store *queue.Store, registry *categories.Registry, fingerprint, category string) (*queue.Item, error) {
	chosen, err := registry.Register(category)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "confirm", "normalize category", "Category is empty after normalization", err)
	}
	item, err := store.GetByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: %s", queue.ErrNotFound, fingerprint)
	}

	switch item.Status {
	case queue.StatusReadyToMove, queue.StatusMoving, queue.StatusMoved:
		if item.Confirmed && registry.Resolve(item.Category) == chosen.Name {
			return item, nil
		}
		return nil, fmt.Errorf("%w: %s is %s with category %q", ErrNotConfirmable, item.ShortFingerprint(), item.Status, item.Category)
	case queue.StatusClassified:
		updated, err := store.Transition(ctx, fingerprint, queue.StatusClassified, queue.StatusReadyToMove, func(it *queue.Item) {
			it.Category = chosen.Name
			it.Confirmed = true
		})
		if errors.Is(err, queue.ErrInvalidTransition) {
			return nil, fmt.Errorf("%w: %s changed while confirming", ErrNotConfirmable, item.ShortFingerprint())
		}
		return updated, err
	default:
		return nil, fmt.Errorf("%w: %s is %s", ErrNotConfirmable, item.ShortFingerprint(), item.Status)
	}
}
