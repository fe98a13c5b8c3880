// Package search implements hybrid score fusion over the lexical and
// semantic result sets.
package search

import "sort"

// Scored is one entity's score on a single side of the hybrid search.
type Scored struct {
	Name  string
	Score float64
}

// Fused is one entity's combined ranking with its per-side normalized
// contributions.
type Fused struct {
	Name     string
	Score    float64
	Lexical  float64
	Semantic float64
}

// Fuse normalizes each result set to [0,1] by its own max score and
// combines them:
//
//	score = vectorWeight x semantic + (1 - vectorWeight) x lexical
//
// An entity absent from one side contributes 0 for that side; the missing
// side is not treated as a penalty. Normalizing by the set max is what
// keeps BM25's unbounded scale from swamping cosine's [-1,1]. Returns the
// top k by fused score.
func Fuse(lexical, semantic []Scored, vectorWeight float64, k int) []Fused {
	if vectorWeight < 0 {
		vectorWeight = 0
	}
	if vectorWeight > 1 {
		vectorWeight = 1
	}

	lex := normalize(lexical)
	sem := normalize(semantic)

	names := make([]string, 0, len(lex)+len(sem))
	seen := map[string]bool{}
	for _, s := range lexical {
		if !seen[s.Name] {
			seen[s.Name] = true
			names = append(names, s.Name)
		}
	}
	for _, s := range semantic {
		if !seen[s.Name] {
			seen[s.Name] = true
			names = append(names, s.Name)
		}
	}

	fused := make([]Fused, 0, len(names))
	for _, name := range names {
		f := Fused{
			Name:     name,
			Lexical:  lex[name],
			Semantic: sem[name],
		}
		f.Score = vectorWeight*f.Semantic + (1-vectorWeight)*f.Lexical
		fused = append(fused, f)
	}

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})
	if k > 0 && len(fused) > k {
		fused = fused[:k]
	}
	return fused
}

// normalize divides every score by the set's max, guarding divide-by-zero;
// non-positive maxima collapse the whole set to 0.
func normalize(set []Scored) map[string]float64 {
	out := make(map[string]float64, len(set))
	var max float64
	for _, s := range set {
		if s.Score > max {
			max = s.Score
		}
	}
	for _, s := range set {
		if max > 0 {
			// Keep the best score per name if a caller passes duplicates.
			if v := s.Score / max; v > out[s.Name] {
				out[s.Name] = v
			}
		} else {
			out[s.Name] = 0
		}
	}
	return out
}
