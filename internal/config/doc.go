// Package config defines configuration structures for the cdsretriever CLI.
//
// Configuration can be provided via:
//   - A YAML configuration file, using the keys of the historical
//     retriever configuration (tmpdir, storedir, varlist, year, ...)
//   - Environment variables (CDSRETRIEVER_ prefix, plus the CDSAPI_URL and
//     CDSAPI_KEY variables understood by other archive clients)
//   - ~/.cdsapirc for archive credentials
//   - Command-line flags
//
// Later sources override earlier ones. Validate reports the first problem
// as a *ConfigurationError before any network or filesystem side effect.
//
// # Example
//
//	tmpdir: /work/scratch/era5
//	storedir: /work/datasets/obs/ERA5
//	dataset: ERA5
//	varlist: [geopotential, temperature]
//	year: {begin: 1990, end: 2023, update: false}
//	levelout: plev8
//	freq: mon
//	grid: 2.5x2.5
//	area: global
//	nprocs: 10
//	download_request: yearly
//	do_retrieve: true
//	do_postproc: true
//	do_align: false
package config
