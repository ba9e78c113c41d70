// Package similarity holds the vector math shared by classification and retrieval.
package similarity

import (
	"math"
	"sort"
)

// Cosine returns the cosine similarity of a and b. ok is false when the
// vectors differ in length, are empty, or either has zero magnitude.
func Cosine(a, b []float32) (score float64, ok bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

// Scored pairs an item index with its score.
type Scored struct {
	Index int
	Score float64
}

// TopK returns the k highest scores in descending order. Equal scores keep
// their input order.
func TopK(scores []Scored, k int) []Scored {
	out := make([]Scored, len(scores))
	copy(out, scores)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k >= 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
