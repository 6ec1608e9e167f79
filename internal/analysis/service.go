package analysis

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"motion-scorer/internal/apperr"
	"motion-scorer/internal/pipeline"
	"motion-scorer/internal/platform/metrics"
	"motion-scorer/internal/pose"
	"motion-scorer/internal/reference"
)

// Analyzer runs the scoring pipeline on one video.
type Analyzer interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// VideoOpener opens an uploaded file for decoding.
type VideoOpener func(path string) (pose.Source, error)

// Corpus exposes the live reference library and reloads it.
type Corpus interface {
	Library() *reference.Library
	Reload() (*reference.Library, error)
}

// CorpusSummary describes the loaded reference corpus.
type CorpusSummary struct {
	Version   string            `json:"corpus_version"`
	Sequences int               `json:"reference_sequences"`
	Exercises []reference.Entry `json:"exercises"`
}

// Service runs uploads through the Analyzer and keeps the results in a Repository.
type Service struct {
	analyzer Analyzer
	open     VideoOpener
	corpus   Corpus
	repo     Repository
	log      *slog.Logger
	metrics  *metrics.Metrics
	newID    func() AnalysisID
}

// NewService returns a Service. Metrics may be nil to disable metric recording.
func NewService(analyzer Analyzer, open VideoOpener, corpus Corpus, repo Repository, log *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		analyzer: analyzer,
		open:     open,
		corpus:   corpus,
		repo:     repo,
		log:      log,
		metrics:  m,
		newID:    func() AnalysisID { return AnalysisID(uuid.NewString()) },
	}
}

// Analyze scores the uploaded video and stores the result. Nothing is stored
// when any stage fails.
func (s *Service) Analyze(ctx context.Context, up Upload) (Record, error) {
	start := time.Now()

	rec, err := s.analyze(ctx, up)
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = string(apperr.KindOf(err))
		s.log.Info("analysis failed",
			slog.String("exercise", up.Exercise),
			slog.String("kind", outcome),
			slog.String("error", err.Error()))
	} else {
		s.log.Info("analysis complete",
			slog.String("result_id", string(rec.ID)),
			slog.String("exercise", rec.Exercise),
			slog.Float64("accuracy_score", rec.AccuracyScore),
			slog.Float64("calories_burned", rec.CaloriesBurned),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	}
	if s.metrics != nil {
		s.metrics.ObserveAnalysis(outcome, time.Since(start))
	}
	return rec, err
}

func (s *Service) analyze(ctx context.Context, up Upload) (Record, error) {
	src, err := s.open(up.Path)
	if err != nil {
		if _, ok := err.(*apperr.Error); !ok {
			err = apperr.Wrap(err, apperr.KindExtraction, "video could not be opened")
		}
		return Record{}, err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			s.log.Warn("video close failed", slog.String("error", cerr.Error()))
		}
	}()

	res, err := s.analyzer.Run(ctx, pipeline.Request{
		Video:    src,
		Exercise: up.Exercise,
		WeightKg: up.WeightKg,
	})
	if err != nil {
		return Record{}, err
	}

	rec, err := s.repo.Save(ctx, Record{
		ID:              s.newID(),
		Exercise:        res.Exercise,
		AccuracyScore:   res.AccuracyScore,
		CaloriesBurned:  res.CaloriesBurned,
		DurationMinutes: res.DurationMinutes,
		WeightKg:        up.WeightKg,
		ReferenceCount:  res.ReferenceCount,
		FrameCount:      res.FrameCount,
		DetectedFrames:  res.DetectedFrames,
		CorpusVersion:   res.CorpusVersion,
		VideoName:       up.VideoName,
	})
	if err != nil {
		return Record{}, apperr.Wrap(err, apperr.KindInternal, "could not store analysis result")
	}
	return rec, nil
}

// Get returns a stored analysis.
func (s *Service) Get(ctx context.Context, id AnalysisID) (Record, error) {
	return s.repo.Get(ctx, id)
}

// List returns stored analyses, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]Record, error) {
	return s.repo.List(ctx, limit)
}

// Exercises summarizes the reference corpus currently in use.
func (s *Service) Exercises() CorpusSummary {
	return summarize(s.corpus.Library())
}

// ReloadReferences rebuilds the reference library from disk. On failure the
// previous library stays in use.
func (s *Service) ReloadReferences() (CorpusSummary, error) {
	lib, err := s.corpus.Reload()
	if s.metrics != nil {
		s.metrics.IncReloads(err == nil)
	}
	if err != nil {
		return CorpusSummary{}, apperr.Wrap(err, apperr.KindInternal, "reference corpus reload failed")
	}
	return summarize(lib), nil
}

func summarize(lib *reference.Library) CorpusSummary {
	return CorpusSummary{
		Version:   lib.Version(),
		Sequences: lib.SequenceCount(),
		Exercises: lib.Entries(),
	}
}
