// Package calories estimates energy expenditure from exercise intensity.
package calories

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"motion-scorer/internal/apperr"
	"motion-scorer/internal/reference"
)

const (
	// DefaultMET applies to exercises missing from the table.
	DefaultMET = 4.0
	// KcalPerKgMinuteMET converts MET × kg × minutes to kilocalories.
	KcalPerKgMinuteMET = 0.0175
)

var builtinTable = map[string]float64{
	"pushup":          4.0,
	"pullup":          8.0,
	"russian_twist":   4.0,
	"leg_raise":       3.5,
	"deadlift":        6.0,
	"bench_press":     6.0,
	"tricep_pushdown": 3.5,
	"lateral_raise":   3.5,
	"squat":           5.0,
}

// tableFile is the YAML layout accepted by LoadEstimator.
//
//	default_met: 4.0
//	exercises:
//	  burpee: 8.0
//	  squat: 5.5
type tableFile struct {
	DefaultMET float64            `yaml:"default_met"`
	Exercises  map[string]float64 `yaml:"exercises"`
}

// Estimator holds a MET table. It is read-only after construction.
type Estimator struct {
	table      map[string]float64
	defaultMET float64
}

// NewEstimator returns an Estimator with the built-in table.
func NewEstimator() *Estimator {
	table := make(map[string]float64, len(builtinTable))
	for k, v := range builtinTable {
		table[k] = v
	}
	return &Estimator{table: table, defaultMET: DefaultMET}
}

// LoadEstimator returns the built-in table extended and overridden by the YAML
// file at path. An empty path yields the built-in table.
func LoadEstimator(path string) (*Estimator, error) {
	e := NewEstimator()
	if path == "" {
		return e, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read MET table: %w", err)
	}
	var f tableFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse MET table %s: %w", path, err)
	}

	if f.DefaultMET < 0 {
		return nil, fmt.Errorf("MET table %s: default_met must be positive", path)
	}
	if f.DefaultMET > 0 {
		e.defaultMET = f.DefaultMET
	}
	for name, met := range f.Exercises {
		if met <= 0 || math.IsNaN(met) || math.IsInf(met, 0) {
			return nil, fmt.Errorf("MET table %s: %q has invalid value %v", path, name, met)
		}
		e.table[reference.NormalizeLabel(name)] = met
	}
	return e, nil
}

// MET returns the metabolic equivalent for label. Labels are normalized the
// same way as reference lookups, and "push_up" also matches "pushup".
func (e *Estimator) MET(label string) float64 {
	key := reference.NormalizeLabel(label)
	if met, ok := e.table[key]; ok {
		return met
	}
	if met, ok := e.table[strings.ReplaceAll(key, "_", "")]; ok {
		return met
	}
	return e.defaultMET
}

// Exercises lists the labels with a table entry.
func (e *Estimator) Exercises() []string {
	out := make([]string, 0, len(e.table))
	for k := range e.table {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Estimate returns kilocalories burned, rounded to two decimals.
func (e *Estimator) Estimate(label string, weightKg, minutes float64) (float64, error) {
	if !(weightKg > 0) || math.IsInf(weightKg, 0) {
		return 0, apperr.New(apperr.KindInput, "weight must be a positive number of kilograms, got %v", weightKg)
	}
	if !(minutes >= 0) || math.IsInf(minutes, 0) {
		return 0, apperr.New(apperr.KindInput, "duration must be a non-negative number of minutes, got %v", minutes)
	}
	kcal := e.MET(label) * weightKg * minutes * KcalPerKgMinuteMET
	return math.Round(kcal*100) / 100, nil
}
