package dataset

import "fmt"

// InvalidLevelError is returned when a vertical level token is not part of
// the canonical pressure-level table and is not a named subset.
type InvalidLevelError struct {
	Token  string
	Reason string
}

func (e *InvalidLevelError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("dataset: invalid level %q: %s", e.Token, e.Reason)
	}
	return fmt.Sprintf("dataset: invalid level %q", e.Token)
}

// InvalidFrequencyError is returned for an unrecognized frequency.
type InvalidFrequencyError struct {
	Frequency string
}

func (e *InvalidFrequencyError) Error() string {
	return fmt.Sprintf("dataset: unknown frequency %q (want one of mon, 1hr, 6hrs, instant)", e.Frequency)
}

// InvalidDatasetError is returned for a dataset the archive does not serve.
type InvalidDatasetError struct {
	Dataset string
}

func (e *InvalidDatasetError) Error() string {
	return fmt.Sprintf("dataset: unknown dataset %q (want ERA5 or ERA5-Land)", e.Dataset)
}

// InvalidGranularityError is returned for a retrieval granularity other than
// yearly or monthly.
type InvalidGranularityError struct {
	Granularity string
}

func (e *InvalidGranularityError) Error() string {
	return fmt.Sprintf("dataset: unknown download request %q (want yearly or monthly)", e.Granularity)
}
