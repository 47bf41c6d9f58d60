// RunFilters describe user-provided filters to narrow the history list.
package dto

import "time"

type RunFilters struct {
	Object     string
	DateAfter  time.Time
	DateBefore time.Time
	Limit      int
	Offset     int
}
