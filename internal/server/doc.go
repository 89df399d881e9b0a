// Package server implements the MCP (Model Context Protocol) server for blood-cell counting.
//
// This package provides a JSON-RPC 2.0 server that exposes the detection pipeline
// through the MCP protocol, so an MCP client can count cells in microscope images,
// aggregate results and export them without going through the batch CLI.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Detection:
//   - cell_detect: Count cells in one image, optionally returning the overlay
//   - cell_batch: Count cells in every image of a directory
//
// Aggregation:
//   - cell_metrics: Batch totals and percentages over stored results
//
// Export:
//   - cell_export_csv: Results table as CSV
//   - cell_export_zip: Annotated overlays as a ZIP archive
//
// Helpers:
//   - cell_normalize_label: Show how a raw label maps to RBC/WBC/Platelets
//   - cell_model_info: Loaded model type, class names and default thresholds
//
// # Result Store
//
// cell_detect and cell_batch return an id per image. The result behind each id,
// overlay included, is kept in memory for Config.ResultTTL so cell_metrics and
// the export tools can work on any subset of earlier results. Expired ids are
// reported as errors.
//
// # Image Caching
//
// Decoded images are cached by path for the result TTL, so running cell_detect
// again on the same file with different thresholds skips decoding. A file that
// changed on disk since it was cached is decoded again.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// # Usage
//
// The server is typically started by the "serve" command:
//
//	srv := server.New(model, server.Config{Options: detection.DefaultOptions()})
//	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil {
//	    log.Fatal(err)
//	}
package server
