package dataset

// Retrieval granularities.
const (
	// Yearly issues one request per year.
	Yearly = "yearly"
	// MonthlyRequests issues twelve requests per year and concatenates them.
	MonthlyRequests = "monthly"
)

// Resolved is a validated descriptor together with everything derived from it.
type Resolved struct {
	Descriptor Descriptor
	Level      LevelSpec
	Time       TimeSpec
	// Kind is the composite request kind, e.g.
	// "reanalysis-era5-pressure-levels-monthly-means".
	Kind string
}

// Resolve validates d and derives its request parameters.
func Resolve(d Descriptor) (Resolved, error) {
	level, err := ResolveLevel(d.Level)
	if err != nil {
		return Resolved{}, err
	}
	ts, err := ResolveTime(d.Frequency)
	if err != nil {
		return Resolved{}, err
	}
	kind, err := ResolveDataset(d.Dataset, level.Kind, ts.Suffix)
	if err != nil {
		return Resolved{}, err
	}
	return Resolved{Descriptor: d, Level: level, Time: ts, Kind: kind}, nil
}

// ResolveDataset builds the composite request kind.
func ResolveDataset(name string, kind LevelKind, suffix string) (string, error) {
	switch name {
	case ERA5:
		return "reanalysis-era5-" + string(kind) + suffix, nil
	case ERA5Land:
		if kind != SingleLevels {
			return "", &InvalidLevelError{Token: string(kind), Reason: "ERA5-Land provides surface fields only"}
		}
		return "reanalysis-era5-land" + suffix, nil
	default:
		return "", &InvalidDatasetError{Dataset: name}
	}
}

// ResolveGranularity validates a retrieval granularity.
func ResolveGranularity(g string) (string, error) {
	switch g {
	case Yearly, MonthlyRequests:
		return g, nil
	default:
		return "", &InvalidGranularityError{Granularity: g}
	}
}
