package workflow

import (
	"context"

	"shelver/internal/categories"
	"shelver/internal/classification"
	"shelver/internal/notifications"
	"shelver/internal/organizer"
	"shelver/internal/queue"
	"shelver/internal/stage"
)

// Classifier is the decision engine surface the manager needs.
type Classifier interface {
	stage.Checker
	Run(ctx context.Context, reqs []classification.Request) []classification.Outcome
}

// Mover is the organizer surface the manager needs.
type Mover interface {
	stage.Checker
	Organize(ctx context.Context, fingerprint string) (*queue.Item, error)
}

var (
	_ Classifier = (*classification.Engine)(nil)
	_ Mover      = (*organizer.Organizer)(nil)
)

// Dependencies bundles the components the manager orchestrates.
type Dependencies struct {
	Store      *queue.Store
	Registry   *categories.Registry
	Classifier Classifier
	Mover      Mover
	Publisher  notifications.Publisher
}
