package model

// Box is an axis-aligned rectangle in pixel coordinates, X1<=X2 and Y1<=Y2.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Normalized returns the box with its corners ordered.
func (b Box) Normalized() Box {
	if b.X1 > b.X2 {
		b.X1, b.X2 = b.X2, b.X1
	}
	if b.Y1 > b.Y2 {
		b.Y1, b.Y2 = b.Y2, b.Y1
	}
	return b
}

// Width returns the horizontal extent of the box.
func (b Box) Width() float64 { return b.X2 - b.X1 }

// Height returns the vertical extent of the box.
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// RawDetection is one result reported by the detector for a single image.
type RawDetection struct {
	ClassID    int     `json:"class_id"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// Detail is a detection that survived registry filtering.
type Detail struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// ClassCount is the number of details sharing one display name.
type ClassCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// AggregatedResult groups details by display name. Counts keep the order in
// which each name was first seen.
type AggregatedResult struct {
	Counts  []ClassCount `json:"counts"`
	Details []Detail     `json:"details"`
}

// Empty reports whether no detection survived filtering.
func (r AggregatedResult) Empty() bool {
	return len(r.Details) == 0
}

// Total returns the sum of all class counts.
func (r AggregatedResult) Total() int {
	total := 0
	for _, c := range r.Counts {
		total += c.Count
	}
	return total
}
