package dtw

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"motion-scorer/internal/apperr"
)

func wave(n, dims int, phase float64) [][]float64 {
	s := make([][]float64, n)
	for i := range s {
		row := make([]float64, dims)
		for d := range row {
			row[d] = math.Sin(float64(i)/10 + phase + float64(d))
		}
		s[i] = row
	}
	return s
}

func randomSeries(r *rand.Rand, n, dims int) [][]float64 {
	s := make([][]float64, n)
	for i := range s {
		row := make([]float64, dims)
		for d := range row {
			row[d] = r.Float64()
		}
		s[i] = row
	}
	return s
}

func newEngine(t *testing.T, radius int) *Engine {
	t.Helper()
	e, err := NewEngine(radius)
	if err != nil {
		t.Fatalf("NewEngine(%d): %v", radius, err)
	}
	return e
}

func TestNewEngine_rejects_radius_below_one(t *testing.T) {
	if _, err := NewEngine(0); !errors.Is(err, apperr.ErrInput) {
		t.Errorf("expected InputError, got %v", err)
	}
}

func TestEngine_Distance_identical_is_zero(t *testing.T) {
	e := newEngine(t, DefaultRadius)
	x := wave(80, 132, 0)

	d, err := e.Distance(x, x)
	if err != nil {
		t.Fatalf("Distance: %v", err)
	}
	if d != 0 {
		t.Errorf("expected 0 for identical series, got %v", d)
	}
}

func TestEngine_Distance_empty_is_input_error(t *testing.T) {
	e := newEngine(t, DefaultRadius)
	x := wave(10, 4, 0)

	for name, pair := range map[string][2][][]float64{
		"left_empty":  {nil, x},
		"right_empty": {x, {}},
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := e.Distance(pair[0], pair[1]); !errors.Is(err, apperr.ErrInput) {
				t.Errorf("expected InputError, got %v", err)
			}
		})
	}
}

func TestEngine_Distance_dimension_mismatch(t *testing.T) {
	e := newEngine(t, DefaultRadius)
	if _, err := e.Distance(wave(10, 4, 0), wave(10, 3, 0)); !errors.Is(err, apperr.ErrInput) {
		t.Errorf("expected InputError, got %v", err)
	}
}

func TestEngine_Distance_very_different_lengths_is_finite(t *testing.T) {
	e := newEngine(t, DefaultRadius)
	for _, lens := range [][2]int{{1, 300}, {300, 1}, {7, 251}, {2, 3}, {129, 64}} {
		d, err := e.Distance(wave(lens[0], 8, 0), wave(lens[1], 8, 0.3))
		if err != nil {
			t.Fatalf("Distance %v: %v", lens, err)
		}
		if math.IsInf(d, 0) || math.IsNaN(d) || d < 0 {
			t.Errorf("lengths %v: expected finite non-negative distance, got %v", lens, d)
		}
	}
}

func TestEngine_Distance_tolerates_tempo_change(t *testing.T) {
	e := newEngine(t, DefaultRadius)
	x := wave(60, 4, 0)

	slow := make([][]float64, 0, 2*len(x))
	for _, row := range x {
		slow = append(slow, row, row)
	}
	shifted := make([][]float64, len(x))
	for i, row := range x {
		v := make([]float64, len(row))
		for d := range row {
			v[d] = row[d] + 1
		}
		shifted[i] = v
	}

	exact, err := Exact(x, slow)
	if err != nil {
		t.Fatalf("Exact: %v", err)
	}
	if exact != 0 {
		t.Errorf("exact DTW of a half-speed copy should be 0, got %v", exact)
	}

	dSlow, err := e.Distance(x, slow)
	if err != nil {
		t.Fatalf("Distance slow: %v", err)
	}
	dShifted, err := e.Distance(x, shifted)
	if err != nil {
		t.Fatalf("Distance shifted: %v", err)
	}
	if dSlow >= dShifted {
		t.Errorf("half-speed copy (%v) should be closer than an offset copy (%v)", dSlow, dShifted)
	}
}

func TestEngine_Distance_never_below_exact(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	e := newEngine(t, DefaultRadius)

	for trial := 0; trial < 20; trial++ {
		x := randomSeries(r, 5+r.Intn(60), 6)
		y := randomSeries(r, 5+r.Intn(60), 6)

		approx, err := e.Distance(x, y)
		if err != nil {
			t.Fatalf("Distance: %v", err)
		}
		exact, err := Exact(x, y)
		if err != nil {
			t.Fatalf("Exact: %v", err)
		}
		if approx < exact-1e-9 {
			t.Errorf("trial %d: approximate %v below exact %v", trial, approx, exact)
		}
	}
}

func TestEngine_Distance_large_radius_is_exact(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	x := randomSeries(r, 40, 5)
	y := randomSeries(r, 55, 5)

	approx, err := newEngine(t, 100).Distance(x, y)
	if err != nil {
		t.Fatalf("Distance: %v", err)
	}
	exact, _ := Exact(x, y)
	if math.Abs(approx-exact) > 1e-9 {
		t.Errorf("radius beyond length should match exact: %v vs %v", approx, exact)
	}
}

func TestHalve_drops_trailing_odd_step(t *testing.T) {
	got := halve([][]float64{{0, 2}, {2, 4}, {10, 10}})
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
	if got[0][0] != 1 || got[0][1] != 3 {
		t.Errorf("unexpected average %v", got[0])
	}
}
