// Package dtw computes elastic alignment distances between multivariate time
// series with FastDTW: the series are halved recursively, aligned at the
// coarsest resolution, and the coarse warp path is projected back up and
// widened by a radius to bound the search at each finer level. Runtime and
// memory grow linearly with series length for a fixed radius.
package dtw

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"motion-scorer/internal/apperr"
)

// DefaultRadius is the number of coarse cells searched around the projected path.
const DefaultRadius = 1

// Engine computes FastDTW distances with a fixed search radius.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	radius int
}

// NewEngine returns an Engine. A larger radius gets closer to exact DTW at a
// higher cost; radius must be at least 1.
func NewEngine(radius int) (*Engine, error) {
	if radius < 1 {
		return nil, apperr.New(apperr.KindInput, "dtw radius must be at least 1, got %d", radius)
	}
	return &Engine{radius: radius}, nil
}

// Radius returns the configured search radius.
func (e *Engine) Radius() int {
	return e.radius
}

// Distance returns the approximate DTW cost between x and y, where each row is
// one time step and the per-step cost is the Euclidean distance between rows.
func (e *Engine) Distance(x, y [][]float64) (float64, error) {
	if err := validate(x, y); err != nil {
		return 0, err
	}
	d, _ := fastDTW(x, y, e.radius)
	if math.IsInf(d, 0) || math.IsNaN(d) {
		return 0, apperr.New(apperr.KindInternal, "alignment produced a non-finite distance")
	}
	return d, nil
}

// Exact returns the full O(len(x)·len(y)) DTW cost.
func Exact(x, y [][]float64) (float64, error) {
	if err := validate(x, y); err != nil {
		return 0, err
	}
	d, _ := align(x, y, fullWindow(len(x), len(y)))
	return d, nil
}

func validate(x, y [][]float64) error {
	if len(x) == 0 || len(y) == 0 {
		return apperr.New(apperr.KindInput, "cannot align an empty sequence (lengths %d and %d)", len(x), len(y))
	}
	dims := len(x[0])
	for _, s := range [][][]float64{x, y} {
		for i, row := range s {
			if len(row) != dims {
				return apperr.New(apperr.KindInput, "step %d has %d dimensions, expected %d", i, len(row), dims)
			}
		}
	}
	return nil
}

type cell struct {
	i, j int
}

// colRange is an inclusive span of y indices searched for one x index.
type colRange struct {
	lo, hi int
}

func fastDTW(x, y [][]float64, radius int) (float64, []cell) {
	minSize := radius + 2
	if len(x) < minSize || len(y) < minSize {
		return align(x, y, fullWindow(len(x), len(y)))
	}

	_, coarse := fastDTW(halve(x), halve(y), radius)
	return align(x, y, expandWindow(coarse, len(x), len(y), radius))
}

// halve averages adjacent pairs; a trailing odd step is dropped.
func halve(s [][]float64) [][]float64 {
	out := make([][]float64, len(s)/2)
	for i := range out {
		v := make([]float64, len(s[2*i]))
		floats.AddTo(v, s[2*i], s[2*i+1])
		floats.Scale(0.5, v)
		out[i] = v
	}
	return out
}

func fullWindow(n, m int) []colRange {
	w := make([]colRange, n)
	for i := range w {
		w[i] = colRange{lo: 0, hi: m - 1}
	}
	return w
}

// expandWindow projects a coarse path onto an n×m grid, widened by radius
// coarse cells in every direction. The result is repaired so that every row is
// non-empty and connected to the previous one, which keeps the end cell
// reachable for any lengths.
func expandWindow(path []cell, n, m, radius int) []colRange {
	lo := make([]int, n)
	hi := make([]int, n)
	for i := range lo {
		lo[i] = m
		hi[i] = -1
	}

	for _, c := range path {
		jFrom := max(2*(c.j-radius), 0)
		jTo := min(2*(c.j+radius)+1, m-1)
		if jFrom > jTo {
			continue
		}
		for a := -radius; a <= radius; a++ {
			for _, r := range [2]int{2 * (c.i + a), 2*(c.i+a) + 1} {
				if r < 0 || r >= n {
					continue
				}
				lo[r] = min(lo[r], jFrom)
				hi[r] = max(hi[r], jTo)
			}
		}
	}

	w := make([]colRange, n)
	prev := colRange{lo: 0, hi: 0}
	for i := 0; i < n; i++ {
		r := colRange{lo: lo[i], hi: hi[i]}
		if r.hi < 0 {
			r = prev
		}
		if i == 0 {
			r.lo = 0
		} else {
			r.lo = min(max(r.lo, prev.lo), prev.hi+1)
		}
		r.lo = min(r.lo, m-1)
		r.hi = min(max(r.hi, r.lo), m-1)
		w[i] = r
		prev = r
	}
	w[n-1].hi = m - 1
	return w
}

type step uint8

const (
	stepUp step = iota
	stepLeft
	stepDiag
)

// align runs DTW restricted to window w and returns the cost and warp path.
// Ties prefer (i-1, j), then (i, j-1), then (i-1, j-1).
func align(x, y [][]float64, w []colRange) (float64, []cell) {
	n, m := len(x), len(y)
	inf := math.Inf(1)
	cost := make([][]float64, n)
	from := make([][]step, n)

	at := func(i, j int) float64 {
		if i == -1 && j == -1 {
			return 0
		}
		if i < 0 || j < 0 {
			return inf
		}
		r := w[i]
		if j < r.lo || j > r.hi {
			return inf
		}
		return cost[i][j-r.lo]
	}

	for i := 0; i < n; i++ {
		r := w[i]
		cost[i] = make([]float64, r.hi-r.lo+1)
		from[i] = make([]step, r.hi-r.lo+1)
		for j := r.lo; j <= r.hi; j++ {
			best, s := at(i-1, j), stepUp
			if v := at(i, j-1); v < best {
				best, s = v, stepLeft
			}
			if v := at(i-1, j-1); v < best {
				best, s = v, stepDiag
			}
			cost[i][j-r.lo] = best + floats.Distance(x[i], y[j], 2)
			from[i][j-r.lo] = s
		}
	}

	total := at(n-1, m-1)
	if math.IsInf(total, 1) {
		return total, nil
	}

	path := make([]cell, 0, n+m)
	for i, j := n-1, m-1; i >= 0 && j >= 0; {
		path = append(path, cell{i, j})
		switch from[i][j-w[i].lo] {
		case stepUp:
			i--
		case stepLeft:
			j--
		default:
			i--
			j--
		}
	}
	for a, b := 0, len(path)-1; a < b; a, b = a+1, b-1 {
		path[a], path[b] = path[b], path[a]
	}
	return total, path
}
