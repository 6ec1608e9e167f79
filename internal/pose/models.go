package pose

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

const (
	// LandmarkCount is the number of points in the body skeleton topology.
	LandmarkCount = 33
	// LandmarkFields is x, y, z and visibility.
	LandmarkFields = 4
	// FrameDims is the length of a flattened Frame Pose.
	FrameDims = LandmarkCount * LandmarkFields
)

// Landmark is one tracked body point. Visibility is the detector's confidence in [0,1].
type Landmark struct {
	X          float64
	Y          float64
	Z          float64
	Visibility float64
}

// FramePose is the full skeleton for one video frame.
//
// A frame without a detection keeps all 33 landmarks at zero so that sequence
// length always equals frame count. Detected records whether the detector found
// a body; it does not change the flattened values.
type FramePose struct {
	Landmarks [LandmarkCount]Landmark
	Detected  bool
}

// Vector returns the frame flattened to FrameDims values in landmark order.
func (f FramePose) Vector() []float64 {
	v := make([]float64, FrameDims)
	if !f.Detected {
		return v
	}
	for i, lm := range f.Landmarks {
		o := i * LandmarkFields
		v[o] = lm.X
		v[o+1] = lm.Y
		v[o+2] = lm.Z
		v[o+3] = lm.Visibility
	}
	return v
}

// Sequence is the ordered per-frame skeleton data of one video.
type Sequence []FramePose

// Flatten returns one FrameDims vector per frame.
func (s Sequence) Flatten() [][]float64 {
	out := make([][]float64, len(s))
	for i, f := range s {
		out[i] = f.Vector()
	}
	return out
}

// DetectedFrames counts frames in which a body was found.
func (s Sequence) DetectedFrames() int {
	n := 0
	for _, f := range s {
		if f.Detected {
			n++
		}
	}
	return n
}

// Matrix returns the sequence as a frames × FrameDims matrix.
// It returns nil for an empty sequence.
func (s Sequence) Matrix() *mat.Dense {
	if len(s) == 0 {
		return nil
	}
	data := make([]float64, 0, len(s)*FrameDims)
	for _, f := range s {
		data = append(data, f.Vector()...)
	}
	return mat.NewDense(len(s), FrameDims, data)
}

// FromMatrix builds a Sequence from a frames × FrameDims matrix. Rows that are
// entirely zero are the no-detection sentinel and come back with Detected false.
func FromMatrix(m mat.Matrix) (Sequence, error) {
	rows, cols := m.Dims()
	if cols != FrameDims {
		return nil, fmt.Errorf("expected %d columns per frame, got %d", FrameDims, cols)
	}
	seq := make(Sequence, rows)
	for r := 0; r < rows; r++ {
		var fp FramePose
		for i := 0; i < LandmarkCount; i++ {
			o := i * LandmarkFields
			lm := Landmark{
				X:          m.At(r, o),
				Y:          m.At(r, o+1),
				Z:          m.At(r, o+2),
				Visibility: m.At(r, o+3),
			}
			if lm != (Landmark{}) {
				fp.Detected = true
			}
			fp.Landmarks[i] = lm
		}
		seq[r] = fp
	}
	return seq, nil
}

// FrameFromValues builds a detected FramePose from per-landmark [x, y, z, visibility] rows.
func FrameFromValues(values [][]float64) (FramePose, error) {
	if len(values) != LandmarkCount {
		return FramePose{}, fmt.Errorf("expected %d landmarks, got %d", LandmarkCount, len(values))
	}
	fp := FramePose{Detected: true}
	for i, row := range values {
		if len(row) != LandmarkFields {
			return FramePose{}, fmt.Errorf("landmark %d: expected %d fields, got %d", i, LandmarkFields, len(row))
		}
		fp.Landmarks[i] = Landmark{X: row[0], Y: row[1], Z: row[2], Visibility: row[3]}
	}
	return fp, nil
}
