package analysis

import "time"

// AnalysisID uniquely identifies a stored analysis result.
type AnalysisID string

// Record is one persisted analysis. Field names in JSON match the result
// payload returned by POST /analyses.
type Record struct {
	ID              AnalysisID `json:"result_id" db:"id"`
	Exercise        string     `json:"exercise" db:"exercise"`
	AccuracyScore   float64    `json:"accuracy_score" db:"accuracy_score"`
	CaloriesBurned  float64    `json:"calories_burned" db:"calories_burned"`
	DurationMinutes float64    `json:"duration_minutes" db:"duration_minutes"`
	WeightKg        float64    `json:"weight_kg" db:"weight_kg"`
	ReferenceCount  int        `json:"reference_count" db:"reference_count"`
	FrameCount      int        `json:"frame_count" db:"frame_count"`
	DetectedFrames  int        `json:"detected_frames" db:"detected_frames"`
	CorpusVersion   string     `json:"corpus_version" db:"corpus_version"`
	VideoName       string     `json:"video_name,omitempty" db:"video_name"`

	// Set by the repository when the record is saved.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Upload is the input of one analysis: a video already written to disk plus
// the form fields that came with it.
type Upload struct {
	Path      string
	VideoName string
	Exercise  string
	WeightKg  float64
}
