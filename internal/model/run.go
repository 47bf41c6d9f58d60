package model

import "time"

// Run represents one archived pipeline run.
type Run struct {
	ID        int64     `json:"id"`
	Filename  string    `json:"filename"`
	Source    string    `json:"source"` // original upload name
	Timestamp time.Time `json:"timestamp"`
	Threshold float64   `json:"threshold"`
	Summary   string    `json:"summary"`
	FilePath  string    `json:"filepath"`
	FileSize  int64     `json:"filesize"`
}

// Detection represents a persisted detection belonging to a run.
type Detection struct {
	ID         int64   `json:"id"`
	RunID      int64   `json:"run_id"`
	ObjectName string  `json:"object_name"`
	Confidence float64 `json:"confidence"`
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
}
