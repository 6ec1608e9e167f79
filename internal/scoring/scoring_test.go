package scoring

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"motion-scorer/internal/apperr"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		distances []float64
		want      float64
	}{
		{"mixed", []float64{10, 12, 40}, 75.0},
		{"all_zero", []float64{0, 0, 0}, 100.0},
		{"single_zero", []float64{0}, 100.0},
		{"all_equal_nonzero", []float64{7.5, 7.5, 7.5}, 0.0},
		{"single_nonzero", []float64{42}, 0.0},
		{"one_perfect_match", []float64{0, 50}, 100.0},
		{"tight_cluster", []float64{9, 10, 10, 10}, 10.0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Score(tc.distances)
			if err != nil {
				t.Fatalf("Score: %v", err)
			}
			if got != tc.want {
				t.Errorf("Score(%v) = %v, want %v", tc.distances, got, tc.want)
			}
		})
	}
}

func TestExplain_mixed(t *testing.T) {
	b, err := Explain([]float64{10, 12, 40})
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if b.Best != 10 || b.Scale != 40 {
		t.Errorf("best/scale: %v/%v", b.Best, b.Scale)
	}
	if math.Abs(b.Average-20.6667) > 1e-3 {
		t.Errorf("average: %v", b.Average)
	}
	if b.BestAccuracy != 75 {
		t.Errorf("best accuracy: %v", b.BestAccuracy)
	}
	if math.Abs(b.AvgAccuracy-48.333) > 1e-2 {
		t.Errorf("average accuracy: %v", b.AvgAccuracy)
	}
}

func TestScore_bounded_for_random_sets(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for trial := 0; trial < 500; trial++ {
		n := 1 + r.Intn(12)
		d := make([]float64, n)
		for i := range d {
			switch r.Intn(4) {
			case 0:
				d[i] = 0
			default:
				d[i] = r.Float64() * math.Pow(10, float64(r.Intn(8)))
			}
		}
		got, err := Score(d)
		if err != nil {
			t.Fatalf("Score(%v): %v", d, err)
		}
		if got < 0 || got > 100 {
			t.Fatalf("Score(%v) = %v out of [0,100]", d, got)
		}
	}
}

func TestScore_rejects_bad_input(t *testing.T) {
	if _, err := Score(nil); !errors.Is(err, apperr.ErrInput) {
		t.Errorf("empty set: expected InputError, got %v", err)
	}
	for _, bad := range []float64{-1, math.NaN(), math.Inf(1)} {
		if _, err := Score([]float64{1, bad}); err == nil {
			t.Errorf("expected error for distance %v", bad)
		}
	}
}
