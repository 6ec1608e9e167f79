// Package scoring turns alignment distances into an accuracy percentage.
package scoring

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"motion-scorer/internal/apperr"
)

const (
	MinScore = 0.0
	MaxScore = 100.0
)

// Breakdown is the intermediate state of a score, kept for logging.
type Breakdown struct {
	Best         float64
	Average      float64
	Scale        float64
	BestAccuracy float64
	AvgAccuracy  float64
	Score        float64
}

// Score returns the accuracy for a set of distances to reference performances.
//
// Distances are normalized by the largest one. The result is the better of the
// closest single match and the average fit, rounded to one decimal. When every
// distance is zero the upload matches all references and scores 100.
func Score(distances []float64) (float64, error) {
	b, err := Explain(distances)
	if err != nil {
		return 0, err
	}
	return b.Score, nil
}

// Explain is Score with the intermediate values.
func Explain(distances []float64) (Breakdown, error) {
	if len(distances) == 0 {
		return Breakdown{}, apperr.New(apperr.KindInput, "cannot score an empty distance set")
	}
	for i, d := range distances {
		if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return Breakdown{}, apperr.New(apperr.KindInternal, "distance %d is not a finite non-negative number: %v", i, d)
		}
	}

	b := Breakdown{
		Best:    floats.Min(distances),
		Average: stat.Mean(distances, nil),
		Scale:   floats.Max(distances),
	}
	if b.Scale == 0 {
		b.BestAccuracy, b.AvgAccuracy, b.Score = MaxScore, MaxScore, MaxScore
		return b, nil
	}

	b.BestAccuracy = math.Max(0, 100*(1-b.Best/b.Scale))
	b.AvgAccuracy = math.Max(0, 100*(1-b.Average/b.Scale))
	b.Score = clamp(round1(math.Max(b.BestAccuracy, b.AvgAccuracy)))
	return b, nil
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}

func clamp(x float64) float64 {
	return math.Min(MaxScore, math.Max(MinScore, x))
}
