// RunsData is a paginated response payload for the run history.
package dto

type RunsData struct {
	Runs        []RunInfo `json:"runs"`
	ImagesDir   string    `json:"imagesDir"`
	Size        int64     `json:"size"`
	Objects     []string  `json:"objects"`
	Length      int       `json:"length"`
	TotalPages  int       `json:"totalPages"`
	CurrentPage int       `json:"currentPage"`
	Limit       int       `json:"pageSize"`
}
