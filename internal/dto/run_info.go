package dto

import (
	"encoding/json"
	"time"
)

// RunInfo represents an archived run as listed in the history view.
type RunInfo struct {
	Name      string    `json:"name"`
	Source    string    `json:"source"`
	Date      time.Time `json:"date"`
	TimeOfDay time.Time `json:"timeOfDay"`
	Threshold float64   `json:"threshold"`
	Summary   string    `json:"summary"`
	Objects   []string  `json:"objects"`
}

// MarshalJSON customizes JSON output for RunInfo to format date and time-of-day.
func (r RunInfo) MarshalJSON() ([]byte, error) {
	type Alias RunInfo
	return json.Marshal(&struct {
		Date      string `json:"date"`
		TimeOfDay string `json:"timeOfDay"`
		Alias
	}{
		Date:      r.Date.Format("02-01-2006"),
		TimeOfDay: r.TimeOfDay.Format("15:04"),
		Alias:     (Alias)(r),
	})
}
