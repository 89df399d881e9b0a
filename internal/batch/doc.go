// Package batch runs the detection pipeline over a directory of microscope images.
//
// A Runner loads each image, calls detection.Detect with a shared model and
// collects the per-image results in input order. Images that fail to decode or
// whose inference fails are logged and reported as failures; the rest of the
// batch carries on. Batch metrics are computed once all workers have returned.
//
// # Concurrency
//
// Images are processed by up to Runner.Workers goroutines. Most detector backends
// are not safe for concurrent calls, so unless Runner.ConcurrentModel is set the
// model is wrapped with inference.Serialize and only image decoding and overlay
// drawing run in parallel.
//
// # Outputs
//
// WriteOutputs saves "<stem>_annotated.png" overlays and a "results.csv" table in
// the exporter's format. WriteSummary prints the console summary shown at the end
// of a batch run.
package batch
