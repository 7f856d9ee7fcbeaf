package dataset

import (
	"fmt"
	"strconv"
	"time"
)

// Recognized frequencies. The tokens double as directory names in the
// archive tree and as the frequency part of canonical filenames.
const (
	Monthly       = "mon"
	Hourly        = "1hr"
	SixHourly     = "6hrs"
	Instantaneous = "instant"

	// Daily is only produced by postprocessing of sub-daily data.
	Daily = "day"
)

// TimeSpec describes the temporal shape of a request.
type TimeSpec struct {
	Frequency   string
	ProductType string
	Days        []string
	Times       []string
	// Suffix is appended to the request kind, e.g. "-monthly-means".
	Suffix string
	// MinimumSteps is the sample count of a complete year.
	MinimumSteps int
}

// ResolveTime returns the time specification for freq.
func ResolveTime(freq string) (TimeSpec, error) {
	switch freq {
	case Monthly:
		return TimeSpec{
			Frequency:    freq,
			ProductType:  "monthly_averaged_reanalysis",
			Days:         []string{"01"},
			Times:        []string{"00:00"},
			Suffix:       "-monthly-means",
			MinimumSteps: 12,
		}, nil
	case Hourly:
		return TimeSpec{
			Frequency:    freq,
			ProductType:  "reanalysis",
			Days:         allDays(),
			Times:        hoursEvery(1),
			MinimumSteps: 365 * 24,
		}, nil
	case SixHourly:
		return TimeSpec{
			Frequency:    freq,
			ProductType:  "reanalysis",
			Days:         allDays(),
			Times:        hoursEvery(6),
			MinimumSteps: 365 * 4,
		}, nil
	case Instantaneous:
		return TimeSpec{
			Frequency:    freq,
			ProductType:  "reanalysis",
			Days:         []string{"01"},
			Times:        []string{"00:00"},
			MinimumSteps: 12,
		}, nil
	default:
		return TimeSpec{}, &InvalidFrequencyError{Frequency: freq}
	}
}

// StepsInMonth is the sample count of a complete single-month fragment.
func (t TimeSpec) StepsInMonth(year, month int) int {
	days := daysIn(year, month)
	switch t.Frequency {
	case Hourly:
		return 24 * days
	case SixHourly:
		return 4 * days
	default:
		return 1
	}
}

// IsMonthlyClass reports whether the frequency is merged directly into a
// cumulative archive, as opposed to sub-daily data which is first reduced
// to daily and monthly means.
func IsMonthlyClass(freq string) bool {
	return freq == Monthly
}

// IsCumulative reports whether products of freq are merged into a single
// archive spanning every processed year: monthly data and the daily means
// derived from sub-daily data.
func IsCumulative(freq string) bool {
	return freq == Monthly || freq == Daily
}

// DaysInYear counts the distinct days of year the request days select,
// which is the step count of a complete year of daily means.
func (t TimeSpec) DaysInYear(year int) int {
	n := 0
	for month := 1; month <= 12; month++ {
		last := daysIn(year, month)
		for _, dd := range t.Days {
			if d, err := strconv.Atoi(dd); err == nil && d <= last {
				n++
			}
		}
	}
	return n
}

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func allDays() []string {
	days := make([]string, 31)
	for i := range days {
		days[i] = fmt.Sprintf("%02d", i+1)
	}
	return days
}

func hoursEvery(step int) []string {
	var times []string
	for h := 0; h < 24; h += step {
		times = append(times, fmt.Sprintf("%02d:00", h))
	}
	return times
}

// Months returns the two-digit month tokens 01..12.
func Months() []string {
	months := make([]string, 12)
	for i := range months {
		months[i] = fmt.Sprintf("%02d", i+1)
	}
	return months
}
