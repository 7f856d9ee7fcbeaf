// Package postproc turns staged raw chunks into the archive tree.
//
// Every staged year is converted to compressed netCDF4 and published under
// {variable}/{frequency}/. What happens next depends on the frequency:
//
//   - monthly data is merged into a single cumulative archive whose name
//     carries the covered span, e.g. ..._1990-2005.nc;
//   - sub-daily data is kept per year and reduced to daily means under
//     {variable}/day/ and to monthly means under {variable}/mon/, and both
//     are merged like monthly data.
//
// A merged archive replaces its predecessor only after the new one has been
// verified to hold every step of the covered years: twelve per year for
// monthly means, one per requested day for daily means. The predecessor and
// the per-year inputs are deleted afterwards. A failed merge deletes nothing.
//
// Alignment moves the time axis of a merged monthly archive so that every
// step falls on the first day of its month at 00:00.
package postproc
