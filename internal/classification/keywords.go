package classification

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"shelver/internal/categories"
	"shelver/internal/queue"
	"shelver/internal/services"
	"shelver/internal/textutil"
)

// KeywordMatchConfidence is reported when a configured glob matches.
const KeywordMatchConfidence = 0.95

// maxAlternatives bounds the alternatives returned per file.
const maxAlternatives = 3

type keywordRule struct {
	category string
	patterns []string
}

// KeywordClassifier classifies offline. A configured glob matching the
// lowercased display name wins outright; otherwise registered category names
// are ranked by token similarity to the name.
type KeywordClassifier struct {
	rules    []keywordRule
	registry *categories.Registry
}

// NewKeywordClassifier compiles category glob rules.
func NewKeywordClassifier(keywords map[string][]string, registry *categories.Registry) (*KeywordClassifier, error) {
	rules := make([]keywordRule, 0, len(keywords))
	for category, patterns := range keywords {
		rule := keywordRule{category: category}
		for _, pattern := range patterns {
			pattern = strings.ToLower(strings.TrimSpace(pattern))
			if pattern == "" {
				continue
			}
			if !doublestar.ValidatePattern(pattern) {
				return nil, services.Wrap(services.ErrConfiguration, "classification", "keywords",
					fmt.Sprintf("invalid pattern %q for %s", pattern, category), nil)
			}
			rule.patterns = append(rule.patterns, pattern)
		}
		if len(rule.patterns) > 0 {
			rules = append(rules, rule)
		}
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].category < rules[j].category })
	return &KeywordClassifier{rules: rules, registry: registry}, nil
}

// Classify implements Classifier.
func (k *KeywordClassifier) Classify(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	name := strings.ToLower(filepath.Base(req.DisplayName))

	var matched []string
	for _, rule := range k.rules {
		for _, pattern := range rule.patterns {
			if ok, _ := doublestar.Match(pattern, name); ok {
				matched = append(matched, rule.category)
				break
			}
		}
	}
	if len(matched) > 0 {
		result := Result{Category: matched[0], Confidence: KeywordMatchConfidence}
		for _, other := range matched[1:] {
			result.Alternatives = append(result.Alternatives, queue.Alternative{Category: other, Confidence: KeywordMatchConfidence - 0.05})
		}
		return result, nil
	}
	return k.rank(req.DisplayName), nil
}

// ClassifyBatch implements BatchClassifier.
func (k *KeywordClassifier) ClassifyBatch(ctx context.Context, reqs []Request) ([]Result, error) {
	results := make([]Result, len(reqs))
	for i, req := range reqs {
		result, err := k.Classify(ctx, req)
		if err != nil {
			return nil, err
		}
		results[i] = result
	}
	return results, nil
}

// rank scores each registered category by the mean of cosine similarity and
// the share of category tokens present in the file name.
func (k *KeywordClassifier) rank(displayName string) Result {
	if k.registry == nil {
		return Result{}
	}
	stem := strings.TrimSuffix(filepath.Base(displayName), filepath.Ext(displayName))
	nameVec := textutil.NewVector(stem)
	if nameVec == nil {
		return Result{}
	}

	var scored []queue.Alternative
	for _, category := range k.registry.Names() {
		catVec := textutil.NewVector(category)
		score := (textutil.Similarity(nameVec, catVec) + textutil.Coverage(nameVec, catVec)) / 2
		if score <= 0 {
			continue
		}
		scored = append(scored, queue.Alternative{Category: category, Confidence: score})
	}
	if len(scored) == 0 {
		return Result{}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Confidence > scored[j].Confidence })

	result := Result{Category: scored[0].Category, Confidence: scored[0].Confidence}
	for _, alt := range scored[1:] {
		if len(result.Alternatives) == maxAlternatives {
			break
		}
		result.Alternatives = append(result.Alternatives, alt)
	}
	return result
}
