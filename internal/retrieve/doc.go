// Package retrieve fetches chunks from the remote archive into the staging
// area.
//
// A chunk is one year of one resolved descriptor. Before any network call
// the staged artifact is verified; only a Complete verdict skips the fetch,
// which makes a rerun over an already-retrieved range free. Transient
// transfer faults are retried up to a bounded number of attempts; any other
// error fails the chunk at once.
//
// With monthly granularity a chunk is fetched as twelve one-month fragments
// that are concatenated into the yearly artifact. Fragments survive a
// failed run and are reused by the next one.
//
// # Staging layout
//
//	{tmp}/{variable}/{canonical name}.grb
//	{tmp}/{variable}/{canonical name}_{MM}.grb   (monthly fragments)
package retrieve
