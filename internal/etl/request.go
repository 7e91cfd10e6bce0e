package etl

import (
	"time"

	"github.com/rotisserie/eris"
)

const dateLayout = "2006-01-02"

// Request describes the date range an extraction run should cover. Dates are
// inclusive calendar days in "YYYY-MM-DD" form.
type Request struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// Validate parses the request dates and returns the half-open time range
// [start, end) the run covers. A request where the end date does not exceed
// the start date is padded to the full start day, so single-day requests
// query 00:00:00 through 23:59:59 instead of an empty range.
func (r Request) Validate() (start, end time.Time, err error) {
	if r.StartDate == "" || r.EndDate == "" {
		return time.Time{}, time.Time{}, eris.New("etl: start_date and end_date are required")
	}
	start, err = time.Parse(dateLayout, r.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, eris.Wrapf(err, "etl: invalid start_date %q (want YYYY-MM-DD)", r.StartDate)
	}
	end, err = time.Parse(dateLayout, r.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, eris.Wrapf(err, "etl: invalid end_date %q (want YYYY-MM-DD)", r.EndDate)
	}
	if !end.After(start) {
		end = start.AddDate(0, 0, 1)
	}
	return start, end, nil
}

// Window is a one-hour time bucket inside a run's range. Bounds are half-open:
// rows with emission timestamp in [Start, End) belong to the window.
type Window struct {
	Start time.Time
	End   time.Time
}

// Windows partitions [start, end) into consecutive one-hour buckets in
// chronological order. Hour bucketing bounds the size of any single query
// against the high-volume source table.
func Windows(start, end time.Time) []Window {
	var ws []Window
	for t := start; t.Before(end); t = t.Add(time.Hour) {
		ws = append(ws, Window{Start: t, End: t.Add(time.Hour)})
	}
	return ws
}
