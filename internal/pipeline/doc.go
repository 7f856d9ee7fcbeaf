// Package pipeline runs a configured retrieval end to end.
//
// For every variable of the configuration, in order:
//
//  1. The update planner recomputes the year range (update mode only).
//  2. One retrieval task per year is dispatched in waves of nprocs.
//  3. One conversion task per year is dispatched in waves of nprocs.
//  4. Monthly data is merged into a cumulative archive; sub-daily data is
//     first reduced to daily and monthly means, and both are merged into
//     cumulative daily and monthly archives.
//  5. The merged monthly archive is aligned to month starts if requested.
//
// A failed retrieval or conversion skips the remaining steps of that
// variable. Everything the pipeline touches comes in through Env.
package pipeline
