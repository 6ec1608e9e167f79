// Package pose turns decoded video frames into body landmark sequences.
package pose

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"motion-scorer/internal/apperr"
)

// maxPreallocFrames bounds the capacity taken from a source's frame count.
const maxPreallocFrames = 1 << 14

// Frame is one decoded video frame, RGB24 packed row-major.
type Frame struct {
	Seq    int
	Width  int
	Height int
	Data   []byte
}

// Source is a decodable video read frame by frame in capture order.
type Source interface {
	// Next returns the next frame, or io.EOF when the stream is exhausted.
	Next() (Frame, error)
	// FPS is the container frame rate; 0 when unknown.
	FPS() float64
	// FrameCount is the container's frame count metadata; 0 when unknown.
	FrameCount() int
	Close() error
}

// Detector finds a body skeleton in a frame. A Detector keeps tracking state
// between calls, so frames of one video must be fed to it in order and it must
// not be shared between videos.
type Detector interface {
	// Detect returns the frame's pose. A frame without a body yields a
	// FramePose with Detected false and no error.
	Detect(ctx context.Context, f Frame) (FramePose, error)
	Close() error
}

// DetectorFactory opens a fresh Detector for each video.
type DetectorFactory interface {
	Open(ctx context.Context) (Detector, error)
}

// Extractor produces a Sequence per video using detectors from a factory.
type Extractor struct {
	detectors DetectorFactory
	log       *slog.Logger
}

// NewExtractor returns an Extractor that opens one detector per call to Extract.
func NewExtractor(detectors DetectorFactory, log *slog.Logger) *Extractor {
	return &Extractor{detectors: detectors, log: log}
}

// Extract reads src to the end and returns one FramePose per decoded frame.
// A frame that fails to decode ends the stream; an unreadable source therefore
// yields an empty Sequence and the caller decides how to reject it.
func (e *Extractor) Extract(ctx context.Context, src Source) (Sequence, error) {
	det, err := e.detectors.Open(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindExtraction, "could not start pose detector")
	}
	defer func() {
		if cerr := det.Close(); cerr != nil {
			e.log.Warn("pose detector close failed", slog.String("error", cerr.Error()))
		}
	}()

	// FrameCount is untrusted container metadata.
	var seq Sequence
	if n := src.FrameCount(); n > 0 {
		seq = make(Sequence, 0, min(n, maxPreallocFrames))
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			e.log.Warn("frame decode failed, ending stream",
				slog.Int("frame", len(seq)),
				slog.String("error", err.Error()))
			break
		}

		fp, err := det.Detect(ctx, frame)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.KindExtraction, "pose detection failed at frame %d", frame.Seq)
		}
		seq = append(seq, fp)
	}

	e.log.Debug("keypoints extracted",
		slog.Int("frames", len(seq)),
		slog.Int("detected_frames", seq.DetectedFrames()))
	return seq, nil
}
