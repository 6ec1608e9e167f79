package reference

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"motion-scorer/internal/pose"
)

// DefaultVideoExtensions are the files the Builder picks up from a dataset.
var DefaultVideoExtensions = []string{".mp4", ".avi", ".mov"}

// SequenceExtractor turns an opened video into a motion sequence.
type SequenceExtractor interface {
	Extract(ctx context.Context, src pose.Source) (pose.Sequence, error)
}

// BuildOptions controls the corpus layout written by Builder.Build.
type BuildOptions struct {
	// Suffix is appended to each exercise folder; DefaultSuffix when empty.
	Suffix string
	// Version is written to the VERSION file; a UTC timestamp when empty.
	Version string
	// WriteCSV also writes a .csv copy of every array for inspection.
	WriteCSV   bool
	Extensions []string
}

// BuildReport counts what a build produced.
type BuildReport struct {
	Version   string
	Exercises int
	Written   int
	Skipped   int
}

// Builder converts a dataset of labelled videos into a reference corpus:
//
//	<dataset>/<exercise>/<clip>.mp4  ->  <out>/<exercise><suffix>/<clip>.npy
type Builder struct {
	extractor SequenceExtractor
	open      func(path string) (pose.Source, error)
	log       *slog.Logger
}

func NewBuilder(extractor SequenceExtractor, open func(path string) (pose.Source, error), log *slog.Logger) *Builder {
	return &Builder{extractor: extractor, open: open, log: log}
}

// Build processes every exercise folder under dataset. A clip that cannot be
// decoded, or yields no frames, is skipped with a warning.
func (b *Builder) Build(ctx context.Context, dataset, out string, opts BuildOptions) (BuildReport, error) {
	if opts.Suffix == "" {
		opts.Suffix = DefaultSuffix
	}
	if opts.Version == "" {
		opts.Version = time.Now().UTC().Format("20060102T150405Z")
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultVideoExtensions
	}

	entries, err := os.ReadDir(dataset)
	if err != nil {
		return BuildReport{}, fmt.Errorf("read dataset %s: %w", dataset, err)
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return BuildReport{}, err
	}

	report := BuildReport{Version: opts.Version}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		written, skipped, err := b.buildExercise(ctx,
			filepath.Join(dataset, entry.Name()),
			filepath.Join(out, entry.Name()+opts.Suffix),
			opts)
		if err != nil {
			return report, err
		}
		report.Exercises++
		report.Written += written
		report.Skipped += skipped
	}

	if err := os.WriteFile(filepath.Join(out, versionFile), []byte(opts.Version+"\n"), 0o644); err != nil {
		return report, fmt.Errorf("write %s: %w", versionFile, err)
	}
	return report, nil
}

func (b *Builder) buildExercise(ctx context.Context, src, dst string, opts BuildOptions) (written, skipped int, err error) {
	entries, err := os.ReadDir(src)
	if err != nil {
		return 0, 0, fmt.Errorf("read exercise folder %s: %w", src, err)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return 0, 0, err
	}

	for _, entry := range entries {
		if entry.IsDir() || !hasExt(entry.Name(), opts.Extensions) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return written, skipped, err
		}

		clip := filepath.Join(src, entry.Name())
		seq, err := b.extract(ctx, clip)
		if err != nil {
			if ctx.Err() != nil {
				return written, skipped, ctx.Err()
			}
			b.log.Warn("skipping clip", slog.String("path", clip), slog.String("error", err.Error()))
			skipped++
			continue
		}

		stem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if err := WriteSequence(filepath.Join(dst, stem+referenceFileExt), seq); err != nil {
			return written, skipped, err
		}
		if opts.WriteCSV {
			if err := writeCSV(filepath.Join(dst, stem+".csv"), seq); err != nil {
				return written, skipped, err
			}
		}
		b.log.Info("reference written",
			slog.String("clip", clip),
			slog.Int("frames", len(seq)),
			slog.Int("detected_frames", seq.DetectedFrames()))
		written++
	}
	return written, skipped, nil
}

func (b *Builder) extract(ctx context.Context, path string) (pose.Sequence, error) {
	src, err := b.open(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	seq, err := b.extractor.Extract(ctx, src)
	if err != nil {
		return nil, err
	}
	if len(seq) == 0 {
		return nil, fmt.Errorf("no frames decoded")
	}
	return seq, nil
}

func hasExt(name string, exts []string) bool {
	ext := filepath.Ext(name)
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

// writeCSV writes one row per frame with a header naming each landmark field.
func writeCSV(path string, seq pose.Sequence) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)

	header := make([]string, 0, pose.FrameDims)
	for i := 0; i < pose.LandmarkCount; i++ {
		for _, field := range []string{"x", "y", "z", "v"} {
			header = append(header, fmt.Sprintf("%s%d", field, i))
		}
	}
	_ = w.Write(header)

	row := make([]string, pose.FrameDims)
	for _, frame := range seq.Flatten() {
		for i, v := range frame {
			row[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		_ = w.Write(row)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write csv %s: %w", path, err)
	}
	return f.Close()
}
