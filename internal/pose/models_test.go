package pose

import (
	"testing"
)

func detectedFrame(base float64) FramePose {
	fp := FramePose{Detected: true}
	for i := range fp.Landmarks {
		fp.Landmarks[i] = Landmark{X: base + float64(i), Y: base, Z: -base, Visibility: 0.9}
	}
	return fp
}

func TestFramePose_Vector(t *testing.T) {
	fp := detectedFrame(1)
	v := fp.Vector()
	if len(v) != FrameDims {
		t.Fatalf("expected %d values, got %d", FrameDims, len(v))
	}
	// Landmark 2 starts at offset 8.
	if v[8] != 3 || v[9] != 1 || v[10] != -1 || v[11] != 0.9 {
		t.Errorf("unexpected landmark 2 values: %v", v[8:12])
	}
}

func TestFramePose_Vector_undetected_is_zero(t *testing.T) {
	var fp FramePose
	for _, x := range fp.Vector() {
		if x != 0 {
			t.Fatal("undetected frame must flatten to zeros")
		}
	}
}

func TestSequence_Flatten_and_DetectedFrames(t *testing.T) {
	seq := Sequence{detectedFrame(1), {}, detectedFrame(2)}
	flat := seq.Flatten()
	if len(flat) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(flat))
	}
	if got := seq.DetectedFrames(); got != 2 {
		t.Errorf("DetectedFrames: got %d", got)
	}
}

func TestSequence_Matrix_round_trip(t *testing.T) {
	seq := Sequence{detectedFrame(1), {}, detectedFrame(5)}
	m := seq.Matrix()
	r, c := m.Dims()
	if r != 3 || c != FrameDims {
		t.Fatalf("Dims: got %dx%d", r, c)
	}

	back, err := FromMatrix(m)
	if err != nil {
		t.Fatalf("FromMatrix: %v", err)
	}
	if len(back) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(back))
	}
	if back[1].Detected {
		t.Error("zero row should come back undetected")
	}
	if back[2] != seq[2] {
		t.Errorf("frame 2 mismatch: %+v", back[2].Landmarks[0])
	}
}

func TestSequence_Matrix_empty(t *testing.T) {
	if m := (Sequence{}).Matrix(); m != nil {
		t.Error("empty sequence should have nil matrix")
	}
}

func TestFrameFromValues_rejects_wrong_topology(t *testing.T) {
	if _, err := FrameFromValues(make([][]float64, 17)); err == nil {
		t.Error("expected error for 17 landmarks")
	}

	rows := make([][]float64, LandmarkCount)
	for i := range rows {
		rows[i] = []float64{0.1, 0.2, 0.3, 0.4}
	}
	rows[5] = []float64{0.1, 0.2}
	if _, err := FrameFromValues(rows); err == nil {
		t.Error("expected error for short landmark row")
	}
}
