// Package batch drives swath files through the processing pipeline.
//
// Each file moves through a fixed sequence of states (loading, region search,
// subset extraction, fine grid build, quality filter, reprojection, clipping,
// export) and ends as done or failed. A failure at any state is recorded on
// that file's Result and the batch moves on to the next file; ProcessBatch
// always returns one Result per input, in input order.
//
// Two Pipeline implementations exist. Processor reprojects coordinate-grid
// swaths in-process. ToolkitPipeline delegates block extraction to a
// ToolkitRunner supplied by the caller and shares the remaining stages.
// Select picks one from the Settings variant.
package batch
