package report

import (
	"time"

	"github.com/Lllllllleong/activityreport/internal/models"
)

const (
	isoDateLayout  = "2006-01-02"
	longDateLayout = "02 January 2006"

	rangeSeparator = " – "
)

// FormatDateLabel turns an ISO date (YYYY-MM-DD) into "05 March 2025".
// Anything that does not parse is returned unchanged.
func FormatDateLabel(s string) string {
	t, err := time.Parse(isoDateLayout, s)
	if err != nil {
		return s
	}
	return t.Format(longDateLayout)
}

// DateRange renders a start/end date pair. Equal dates collapse to one, a
// missing end shows only the start, and a missing start shows nothing.
func DateRange(start, end string) string {
	switch {
	case start == "":
		return ""
	case end == "" || start == end:
		return FormatDateLabel(start)
	default:
		return FormatDateLabel(start) + rangeSeparator + FormatDateLabel(end)
	}
}

// TimeRange renders a start/end time pair with the same rules as DateRange.
// Times are kept as submitted.
func TimeRange(start, end string) string {
	switch {
	case start == "":
		return ""
	case end == "" || start == end:
		return start
	default:
		return start + rangeSeparator + end
	}
}

// ConsolidateSchedule returns a copy of info where the start/end date and time
// entries are replaced by single "Date/s" and "Time" entries. The input is
// not modified.
func ConsolidateSchedule(info models.Fields) models.Fields {
	out := info.Clone()

	dates := DateRange(info.Value(models.LabelStartDate), info.Value(models.LabelEndDate))
	times := TimeRange(info.Value(models.LabelStartTime), info.Value(models.LabelEndTime))
	if dates != "" {
		out.Set(models.LabelDates, dates)
	}
	if times != "" {
		out.Set(models.LabelTime, times)
	}

	for _, label := range []string{models.LabelStartDate, models.LabelEndDate, models.LabelStartTime, models.LabelEndTime} {
		out.Delete(label)
	}
	return out
}
