// Package video decodes uploaded video files into RGB frames with OpenCV.
package video

import (
	"fmt"
	"io"
	"sync"

	"gocv.io/x/gocv"

	"motion-scorer/internal/apperr"
	"motion-scorer/internal/pose"
)

// File is a pose.Source backed by an OpenCV VideoCapture. It is not safe for
// concurrent use.
type File struct {
	path       string
	capture    *gocv.VideoCapture
	mat        gocv.Mat
	fps        float64
	frameCount int
	seq        int
	closeOnce  sync.Once
	closeErr   error
}

// Open starts decoding the video at path. A file OpenCV cannot open is an
// extraction failure.
func Open(path string) (*File, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindExtraction, "video could not be opened")
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, apperr.New(apperr.KindExtraction, "video could not be opened")
	}

	f := &File{
		path:    path,
		capture: vc,
		mat:     gocv.NewMat(),
		fps:     vc.Get(gocv.VideoCaptureFPS),
	}
	if n := vc.Get(gocv.VideoCaptureFrameCount); n > 0 {
		f.frameCount = int(n)
	}
	return f, nil
}

// OpenSource is Open typed for callers that take a func(string) (pose.Source, error).
func OpenSource(path string) (pose.Source, error) {
	return Open(path)
}

func (f *File) FPS() float64    { return f.fps }
func (f *File) FrameCount() int { return f.frameCount }

// Next decodes the next frame. OpenCV does not distinguish a corrupt frame
// from the end of the stream, so both end with io.EOF.
func (f *File) Next() (pose.Frame, error) {
	if ok := f.capture.Read(&f.mat); !ok || f.mat.Empty() {
		return pose.Frame{}, io.EOF
	}
	if f.mat.Type() != gocv.MatTypeCV8UC3 {
		return pose.Frame{}, fmt.Errorf("frame %d: unsupported pixel type %v", f.seq, f.mat.Type())
	}

	frame := pose.Frame{
		Seq:    f.seq,
		Width:  f.mat.Cols(),
		Height: f.mat.Rows(),
		Data:   bgrToRGB(f.mat.ToBytes()),
	}
	f.seq++
	return frame, nil
}

// Close releases the decoder. It is safe to call more than once.
func (f *File) Close() error {
	f.closeOnce.Do(func() {
		if err := f.mat.Close(); err != nil {
			f.closeErr = err
		}
		if err := f.capture.Close(); err != nil && f.closeErr == nil {
			f.closeErr = fmt.Errorf("close %s: %w", f.path, err)
		}
	})
	return f.closeErr
}

// bgrToRGB swaps the first and third byte of every pixel in place.
func bgrToRGB(b []byte) []byte {
	for i := 0; i+2 < len(b); i += 3 {
		b[i], b[i+2] = b[i+2], b[i]
	}
	return b
}
