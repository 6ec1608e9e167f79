// Package pipeline runs one uploaded video through extraction, comparison
// against the reference set, scoring and calorie estimation.
package pipeline

import (
	"context"
	"log/slog"
	"math"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"motion-scorer/internal/apperr"
	"motion-scorer/internal/pose"
	"motion-scorer/internal/reference"
	"motion-scorer/internal/scoring"
)

// Stage names used in logs.
const (
	StageInit     = "init"
	StageExtract  = "extract"
	StageDuration = "duration"
	StageLookup   = "lookup_references"
	StageCompare  = "compare"
	StageScore    = "score"
	StageCalories = "estimate_calories"
)

// KeypointExtractor turns a video into a motion sequence.
type KeypointExtractor interface {
	Extract(ctx context.Context, src pose.Source) (pose.Sequence, error)
}

// References resolves an exercise label to its reference set.
type References interface {
	Lookup(label string) (*reference.Set, error)
}

// Comparator measures how far apart two flattened sequences are.
type Comparator interface {
	Distance(x, y [][]float64) (float64, error)
}

// CalorieEstimator converts exercise, weight and duration to kilocalories.
type CalorieEstimator interface {
	Estimate(label string, weightKg, minutes float64) (float64, error)
}

// Request is one analysis job. The pipeline reads Video but does not close it.
type Request struct {
	Video    pose.Source
	Exercise string
	WeightKg float64
}

// Result is the outcome of a successful run.
type Result struct {
	Exercise        string
	AccuracyScore   float64
	CaloriesBurned  float64
	DurationMinutes float64
	ReferenceCount  int
	FrameCount      int
	DetectedFrames  int
	CorpusVersion   string
	Distances       []float64
}

type Pipeline struct {
	extractor  KeypointExtractor
	references References
	comparator Comparator
	calories   CalorieEstimator
	workers    int
	log        *slog.Logger
}

// New wires a Pipeline. workers bounds concurrent distance computations; a
// value below 1 means one per CPU.
func New(
	extractor KeypointExtractor,
	references References,
	comparator Comparator,
	calories CalorieEstimator,
	workers int,
	log *slog.Logger,
) *Pipeline {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pipeline{
		extractor:  extractor,
		references: references,
		comparator: comparator,
		calories:   calories,
		workers:    workers,
		log:        log,
	}
}

// Run executes every stage in order. Any failure aborts the run and no
// partial Result is returned.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	if err := validate(req); err != nil {
		return Result{}, p.fail(StageInit, err)
	}

	seq, err := p.extractor.Extract(ctx, req.Video)
	if err != nil {
		return Result{}, p.fail(StageExtract, err)
	}
	if len(seq) == 0 {
		return Result{}, p.fail(StageExtract, apperr.New(apperr.KindExtraction, "no frames could be decoded from the video"))
	}
	p.log.Debug("stage complete", slog.String("stage", StageExtract), slog.Int("frames", len(seq)))

	minutes, err := durationMinutes(req.Video, len(seq))
	if err != nil {
		return Result{}, p.fail(StageDuration, err)
	}

	set, err := p.references.Lookup(req.Exercise)
	if err != nil {
		return Result{}, p.fail(StageLookup, err)
	}
	p.log.Debug("stage complete",
		slog.String("stage", StageLookup),
		slog.String("exercise", set.Label),
		slog.Int("references", len(set.Sequences)))

	distances, err := p.compare(ctx, seq.Flatten(), set.Vectors())
	if err != nil {
		return Result{}, p.fail(StageCompare, err)
	}

	score, err := scoring.Score(distances)
	if err != nil {
		return Result{}, p.fail(StageScore, err)
	}

	kcal, err := p.calories.Estimate(set.Label, req.WeightKg, minutes)
	if err != nil {
		return Result{}, p.fail(StageCalories, err)
	}

	res := Result{
		Exercise:        set.Label,
		AccuracyScore:   score,
		CaloriesBurned:  kcal,
		DurationMinutes: minutes,
		ReferenceCount:  len(set.Sequences),
		FrameCount:      len(seq),
		DetectedFrames:  seq.DetectedFrames(),
		CorpusVersion:   set.Version,
		Distances:       distances,
	}
	p.log.Debug("pipeline finished",
		slog.String("exercise", res.Exercise),
		slog.Float64("accuracy_score", res.AccuracyScore),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return res, nil
}

// compare computes one distance per reference. Results land in the slot of
// their reference so the output order matches the reference order.
func (p *Pipeline) compare(ctx context.Context, query [][]float64, refs [][][]float64) ([]float64, error) {
	distances := make([]float64, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, ref := range refs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d, err := p.comparator.Distance(query, ref)
			if err != nil {
				return apperr.Wrap(err, apperr.KindOf(err), "compare against reference %d", i)
			}
			distances[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return distances, nil
}

func (p *Pipeline) fail(stage string, err error) error {
	p.log.Debug("stage failed",
		slog.String("stage", stage),
		slog.String("kind", string(apperr.KindOf(err))),
		slog.String("error", err.Error()))
	return err
}

func validate(req Request) error {
	if req.Video == nil {
		return apperr.New(apperr.KindInput, "video is required")
	}
	if strings.TrimSpace(req.Exercise) == "" {
		return apperr.New(apperr.KindInput, "exercise is required")
	}
	if !(req.WeightKg > 0) || math.IsInf(req.WeightKg, 0) {
		return apperr.New(apperr.KindInput, "weight must be a positive number of kilograms")
	}
	return nil
}

// durationMinutes prefers the container's frame count and falls back to the
// number of frames actually decoded when the metadata is missing.
func durationMinutes(src pose.Source, decoded int) (float64, error) {
	fps := src.FPS()
	if !(fps > 0) || math.IsInf(fps, 0) {
		return 0, apperr.New(apperr.KindInput, "video reports an unusable frame rate (%v fps)", fps)
	}
	frames := src.FrameCount()
	if frames <= 0 {
		frames = decoded
	}
	minutes := float64(frames) / fps / 60
	return math.Round(minutes*100) / 100, nil
}
