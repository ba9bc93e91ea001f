package classification

import (
	"context"

	"shelver/internal/queue"
)

// Request identifies one file to classify.
type Request struct {
	Fingerprint string
	DisplayName string
}

// Result is a classifier answer. An empty category means no usable guess.
type Result struct {
	Category     string
	Confidence   float64
	Alternatives []queue.Alternative
}

// Classifier classifies one file at a time.
type Classifier interface {
	Classify(ctx context.Context, req Request) (Result, error)
}

// BatchClassifier is implemented by classifiers that accept several files in
// one call. Results are returned in request order.
type BatchClassifier interface {
	ClassifyBatch(ctx context.Context, reqs []Request) ([]Result, error)
}

// Outcome pairs a request with its final result and decision, or the error
// that prevented classification.
type Outcome struct {
	Request  Request
	Result   Result
	Decision queue.Decision
	Err      error
}
