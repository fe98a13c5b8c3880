package search

import (
	"math"
	"testing"
)

func scores(fused []Fused) map[string]float64 {
	out := make(map[string]float64, len(fused))
	for _, f := range fused {
		out[f.Name] = f.Score
	}
	return out
}

func TestFuseWeightZeroMatchesLexicalRanking(t *testing.T) {
	lexical := []Scored{{"a", 10}, {"b", 5}, {"c", 1}}
	semantic := []Scored{{"c", 0.9}, {"b", 0.8}}

	fused := Fuse(lexical, semantic, 0, 10)
	if fused[0].Name != "a" || fused[1].Name != "b" || fused[2].Name != "c" {
		t.Fatalf("expected lexical order a,b,c, got %v", fused)
	}
	if fused[0].Score != 1.0 {
		t.Errorf("top lexical hit should normalize to 1.0, got %v", fused[0].Score)
	}
}

func TestFuseWeightOneMatchesSemanticRanking(t *testing.T) {
	lexical := []Scored{{"a", 10}, {"b", 5}}
	semantic := []Scored{{"c", 0.9}, {"b", 0.45}}

	fused := Fuse(lexical, semantic, 1, 10)
	if fused[0].Name != "c" {
		t.Fatalf("expected semantic top hit c first, got %s", fused[0].Name)
	}
	byName := scores(fused)
	if math.Abs(byName["b"]-0.5) > 1e-9 {
		t.Errorf("expected b normalized to 0.5, got %v", byName["b"])
	}
	if byName["a"] != 0 {
		t.Errorf("lexical-only hit must contribute 0 at weight 1, got %v", byName["a"])
	}
}

func TestFuseMissingSideContributesZero(t *testing.T) {
	lexical := []Scored{{"a", 4}}
	semantic := []Scored{{"b", 0.8}}

	fused := Fuse(lexical, semantic, 0.7, 10)
	byName := scores(fused)
	if math.Abs(byName["a"]-0.3) > 1e-9 {
		t.Errorf("lexical-only entity at weight 0.7: expected 0.3, got %v", byName["a"])
	}
	if math.Abs(byName["b"]-0.7) > 1e-9 {
		t.Errorf("semantic-only entity at weight 0.7: expected 0.7, got %v", byName["b"])
	}
}

func TestFuseEntityOnBothSidesRanksAboveSingleSide(t *testing.T) {
	lexical := []Scored{{"both", 8}, {"lexonly", 8}}
	semantic := []Scored{{"both", 0.9}}

	fused := Fuse(lexical, semantic, 0.5, 10)
	if fused[0].Name != "both" {
		t.Fatalf("entity matched on both sides should rank first, got %s", fused[0].Name)
	}
}

func TestFuseTopK(t *testing.T) {
	lexical := []Scored{{"a", 5}, {"b", 4}, {"c", 3}, {"d", 2}}
	fused := Fuse(lexical, nil, 0, 2)
	if len(fused) != 2 {
		t.Fatalf("expected 2 results, got %d", len(fused))
	}
	if fused[0].Name != "a" || fused[1].Name != "b" {
		t.Errorf("expected top-2 a,b, got %s,%s", fused[0].Name, fused[1].Name)
	}
}

func TestFuseEmptySides(t *testing.T) {
	if got := Fuse(nil, nil, 0.7, 5); len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
}

func TestFuseClampsWeight(t *testing.T) {
	lexical := []Scored{{"a", 2}}
	fused := Fuse(lexical, nil, 3.5, 5)
	// Clamped to 1: a has no semantic score, so fused score is 0, but the
	// entity still appears.
	if len(fused) != 1 || fused[0].Score != 0 {
		t.Errorf("expected a single zero-scored result, got %v", fused)
	}
}

func TestFuseNonPositiveMaxCollapsesToZero(t *testing.T) {
	lexical := []Scored{{"a", -3}, {"b", -1}}
	fused := Fuse(lexical, nil, 0, 5)
	for _, f := range fused {
		if f.Score != 0 {
			t.Errorf("non-positive max must normalize to 0, got %v for %s", f.Score, f.Name)
		}
	}
}

func TestFuseComponentScoresAnnotated(t *testing.T) {
	lexical := []Scored{{"a", 10}}
	semantic := []Scored{{"a", 0.5}}
	fused := Fuse(lexical, semantic, 0.7, 5)
	if len(fused) != 1 {
		t.Fatalf("expected 1 result, got %d", len(fused))
	}
	if fused[0].Lexical != 1.0 || fused[0].Semantic != 1.0 {
		t.Errorf("expected both components normalized to 1.0, got lex=%v sem=%v",
			fused[0].Lexical, fused[0].Semantic)
	}
}
