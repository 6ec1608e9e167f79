package analysis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"motion-scorer/internal/apperr"
	"motion-scorer/internal/pipeline"
	"motion-scorer/internal/platform/metrics"
	"motion-scorer/internal/pose"
	"motion-scorer/internal/reference"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSource struct {
	closed bool
}

func (s *fakeSource) Next() (pose.Frame, error) { return pose.Frame{}, io.EOF }
func (s *fakeSource) FPS() float64              { return 30 }
func (s *fakeSource) FrameCount() int           { return 100 }

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

type fakeAnalyzer struct {
	res   pipeline.Result
	err   error
	calls int
	got   pipeline.Request
}

func (a *fakeAnalyzer) Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
	a.calls++
	a.got = req
	return a.res, a.err
}

func okResult() pipeline.Result {
	return pipeline.Result{
		Exercise:        "push_up",
		AccuracyScore:   75,
		CaloriesBurned:  0.29,
		DurationMinutes: 0.06,
		ReferenceCount:  3,
		FrameCount:      100,
		DetectedFrames:  97,
		CorpusVersion:   "v1",
	}
}

func testCorpus(t *testing.T, load reference.Loader) *reference.Holder {
	t.Helper()
	h, err := reference.NewHolder(load, testLogger())
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	return h
}

func staticCorpus(t *testing.T) *reference.Holder {
	lib := reference.NewLibrary("v1", map[string][]pose.Sequence{
		"push_up": {make(pose.Sequence, 3), make(pose.Sequence, 4)},
		"squat":   nil,
	})
	return testCorpus(t, func() (*reference.Library, error) { return lib, nil })
}

type serviceFixture struct {
	svc      *Service
	analyzer *fakeAnalyzer
	source   *fakeSource
	repo     *StoreRepository
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		analyzer: &fakeAnalyzer{res: okResult()},
		source:   &fakeSource{},
		repo:     NewInMemoryRepository(),
	}
	open := func(path string) (pose.Source, error) { return f.source, nil }
	f.svc = NewService(f.analyzer, open, staticCorpus(t), f.repo, testLogger(), metrics.New())
	return f
}

func TestService_Analyze(t *testing.T) {
	f := newServiceFixture(t)

	rec, err := f.svc.Analyze(context.Background(), Upload{Path: "/tmp/x.mp4", VideoName: "x.mp4", Exercise: "Push Up", WeightKg: 70})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if rec.ID == "" || rec.CreatedAt.IsZero() {
		t.Errorf("record should have id and timestamp: %+v", rec)
	}
	if rec.AccuracyScore != 75 || rec.CaloriesBurned != 0.29 || rec.DurationMinutes != 0.06 {
		t.Errorf("unexpected numbers: %+v", rec)
	}
	if rec.WeightKg != 70 || rec.VideoName != "x.mp4" || rec.Exercise != "push_up" {
		t.Errorf("unexpected metadata: %+v", rec)
	}
	if f.analyzer.got.Exercise != "Push Up" || f.analyzer.got.WeightKg != 70 || f.analyzer.got.Video != f.source {
		t.Errorf("pipeline request not forwarded: %+v", f.analyzer.got)
	}
	if !f.source.closed {
		t.Error("video source should be closed")
	}

	stored, err := f.svc.Get(context.Background(), rec.ID)
	if err != nil || stored.ID != rec.ID {
		t.Errorf("Get: %+v, %v", stored, err)
	}
}

func TestService_Analyze_failure_not_persisted(t *testing.T) {
	f := newServiceFixture(t)
	f.analyzer.err = apperr.New(apperr.KindNoReferenceData, "reference dataset \"squat_npy\" is empty")

	_, err := f.svc.Analyze(context.Background(), Upload{Path: "/tmp/x.mp4", Exercise: "squat", WeightKg: 70})
	if !errors.Is(err, apperr.ErrNoReferenceData) {
		t.Fatalf("expected NoReferenceData, got %v", err)
	}
	if !f.source.closed {
		t.Error("video source should be closed on failure")
	}
	recs, _ := f.svc.List(context.Background(), 0)
	if len(recs) != 0 {
		t.Errorf("failed analysis should not be stored, got %d records", len(recs))
	}
}

func TestService_Analyze_open_failure(t *testing.T) {
	f := newServiceFixture(t)
	f.svc.open = func(string) (pose.Source, error) { return nil, errors.New("moov atom not found") }

	_, err := f.svc.Analyze(context.Background(), Upload{Path: "/tmp/x.mp4", Exercise: "squat", WeightKg: 70})
	if !errors.Is(err, apperr.ErrExtraction) {
		t.Errorf("expected ExtractionError, got %v", err)
	}
	if f.analyzer.calls != 0 {
		t.Error("pipeline should not run when the video cannot be opened")
	}
}

func TestService_Exercises(t *testing.T) {
	f := newServiceFixture(t)
	sum := f.svc.Exercises()
	if sum.Version != "v1" || sum.Sequences != 2 || len(sum.Exercises) != 2 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if sum.Exercises[0].Label != "push_up" || sum.Exercises[0].Sequences != 2 {
		t.Errorf("unexpected first entry %+v", sum.Exercises[0])
	}
}

func TestService_ReloadReferences(t *testing.T) {
	versions := []string{"v1", "v2"}
	var loadErr error
	calls := 0
	corpus := testCorpus(t, func() (*reference.Library, error) {
		if loadErr != nil {
			return nil, loadErr
		}
		v := versions[calls]
		calls++
		return reference.NewLibrary(v, nil), nil
	})
	svc := NewService(&fakeAnalyzer{}, nil, corpus, NewInMemoryRepository(), testLogger(), nil)

	sum, err := svc.ReloadReferences()
	if err != nil || sum.Version != "v2" {
		t.Fatalf("reload: %+v, %v", sum, err)
	}

	loadErr = errors.New("corpus directory missing")
	if _, err := svc.ReloadReferences(); !errors.Is(err, apperr.ErrInternal) {
		t.Errorf("expected internal error, got %v", err)
	}
	if got := svc.Exercises().Version; got != "v2" {
		t.Errorf("failed reload should keep v2, got %s", got)
	}
}
