// Package dataset resolves user-level dataset descriptors into canonical
// request parameters and archive filenames.
//
// Everything in this package is pure: resolution never touches the network
// or the filesystem, so a bad level, frequency, dataset or granularity is
// reported before any retrieval starts.
//
// # Descriptors
//
//	desc := dataset.Descriptor{
//	    Dataset:   "ERA5",
//	    Variable:  "geopotential",
//	    Frequency: "mon",
//	    Level:     []string{"500hPa"},
//	    Grid:      "2.5x2.5",
//	    Area:      dataset.Global,
//	}
//	res, err := dataset.Resolve(desc)
//	// res.Kind == "reanalysis-era5-pressure-levels-monthly-means"
//	// res.Time.MinimumSteps == 12
//
// # Filenames
//
//	dataset_variable_frequency_grid_level[_area]_period
//
// where period is a single year, or first-last for merged monthly and
// daily-mean archives.
package dataset
