// Package classification turns file names into library categories.
//
// A Classifier produces a category guess with a confidence; the Engine owns
// only the decision policy on top of it:
//
//   - confidence >= auto threshold: auto-classified, no confirmation needed
//   - confidence >= suggest threshold: suggestion plus alternatives, needs confirmation
//   - otherwise: manual category entry required
//
// Requests are submitted in batches when the classifier supports it. A batch
// failure falls back to bounded-parallel per-item calls so one bad item does
// not fail its neighbours. An unreachable classifier is reported with
// services.ErrClassifierUnavailable, which callers treat as a degraded-mode
// condition rather than a failure of the item.
//
// Two classifiers ship with the package: KeywordClassifier (offline glob and
// token similarity rules) and LLMClassifier (chat-completion endpoint).
package classification
