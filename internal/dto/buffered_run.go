package dto

import "time"

// DetectionRecord is a single kept detection waiting to be archived.
type DetectionRecord struct {
	Name       string
	Confidence float64
	X1         float64
	Y1         float64
	X2         float64
	Y2         float64
}

// BufferedRun holds an annotated image and its results before flushing to disk.
type BufferedRun struct {
	Timestamp  time.Time
	Source     string
	Threshold  float64
	Summary    string
	Detections []DetectionRecord
	Data       []byte // encoded JPEG
}
