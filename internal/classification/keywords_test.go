package classification_test

import (
	"context"
	"testing"

	"shelver/internal/categories"
	"shelver/internal/classification"
)

func TestKeywordClassifierGlobMatch(t *testing.T) {
	registry := categories.New(categories.CasePreserve)
	classifier, err := classification.NewKeywordClassifier(map[string][]string{
		"Photos": {"*.jpg", "img_*"},
		"Music":  {"*.mp3"},
	}, registry)
	if err != nil {
		t.Fatalf("NewKeywordClassifier failed: %v", err)
	}

	result, err := classifier.Classify(context.Background(), classification.Request{DisplayName: "IMG_0042.JPG"})
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if result.Category != "Photos" || result.Confidence != classification.KeywordMatchConfidence {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestKeywordClassifierRejectsBadPattern(t *testing.T) {
	if _, err := classification.NewKeywordClassifier(map[string][]string{"Bad": {"[unclosed"}}, nil); err == nil {
		t.Fatal("expected invalid pattern error")
	}
}

func TestKeywordClassifierRanksRegisteredCategories(t *testing.T) {
	registry := categories.New(categories.CasePreserve)
	registry.Seed("SHOW NAME", "Other Show", "Documents")
	classifier, err := classification.NewKeywordClassifier(nil, registry)
	if err != nil {
		t.Fatalf("NewKeywordClassifier failed: %v", err)
	}

	result, err := classifier.Classify(context.Background(), classification.Request{DisplayName: "Show.Name.S01E01.mkv"})
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if result.Category != "SHOW NAME" {
		t.Fatalf("category = %q, want SHOW NAME", result.Category)
	}
	if result.Confidence < 0.85 {
		t.Fatalf("confidence = %v, want auto-level", result.Confidence)
	}
	if len(result.Alternatives) != 1 || result.Alternatives[0].Category != "Other Show" {
		t.Fatalf("unexpected alternatives: %+v", result.Alternatives)
	}
}

func TestKeywordClassifierUnknownName(t *testing.T) {
	registry := categories.New(categories.CasePreserve)
	registry.Seed("Documents")
	classifier, err := classification.NewKeywordClassifier(nil, registry)
	if err != nil {
		t.Fatalf("NewKeywordClassifier failed: %v", err)
	}
	result, err := classifier.Classify(context.Background(), classification.Request{DisplayName: "zzz.bin"})
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if result.Category != "" || result.Confidence != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}
