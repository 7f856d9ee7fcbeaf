// Package progress reports how far a batch of chunks has come.
//
// A Reporter is created per phase (retrieval, conversion) with the number of
// chunks it will see. Workers report each chunk as it starts, completes, is
// skipped because its artifact is already complete, or fails. All methods
// are safe on a nil *Reporter, so components can be run without reporting.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    Phase:       "retrieve geopotential",
//	    TotalChunks: 16,
//	    Output:      os.Stderr,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	reporter.ChunkStarted()
//	reporter.ChunkCompleted(n)
//
// # Output Format
//
//	[cdsretriever] retrieve geopotential: 16 chunks
//	[cdsretriever] Chunks: 9/16 done (4 skipped, 1 failed) | 2 in-progress | 1.13 GB | 3m 12s
//	[cdsretriever] retrieve geopotential: 15/16 done (4 skipped, 1 failed) | 1.52 GB | Total time: 5m 40s
package progress
