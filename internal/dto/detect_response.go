package dto

// CountInfo is one per-class metric shown above the annotated image.
type CountInfo struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Color string `json:"color"`
}

// RowInfo is one line of the detections table.
type RowInfo struct {
	Object     string `json:"object"`
	Index      int    `json:"index"`
	Confidence string `json:"confidence"`
}

// DetectResponse is the payload returned by the upload endpoint.
type DetectResponse struct {
	Success   bool        `json:"success"`
	Empty     bool        `json:"empty"`
	Message   string      `json:"message,omitempty"`
	Summary   string      `json:"summary"`
	Counts    []CountInfo `json:"counts"`
	Rows      []RowInfo   `json:"rows"`
	Original  string      `json:"original"`
	Annotated string      `json:"annotated"`
	Threshold float64     `json:"threshold"`
}

// RunEvent is pushed to live viewers after every finished run.
type RunEvent struct {
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Summary   string      `json:"summary"`
	Counts    []CountInfo `json:"counts"`
	Threshold float64     `json:"threshold"`
	Timestamp string      `json:"timestamp"`
}
