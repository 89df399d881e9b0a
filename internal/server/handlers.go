package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/ironsheep/cellcount-mcp/internal/batch"
	"github.com/ironsheep/cellcount-mcp/internal/classes"
	"github.com/ironsheep/cellcount-mcp/internal/detection"
	"github.com/ironsheep/cellcount-mcp/internal/export"
	"github.com/ironsheep/cellcount-mcp/internal/imaging"
	"github.com/ironsheep/cellcount-mcp/internal/inference"
	"github.com/ironsheep/cellcount-mcp/internal/stats"
)

// errNoModel is returned by tools that need a model when none was loaded.
var errNoModel = errors.New("no model loaded")

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "cell_detect", "cell_metrics").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.logger.Warn("tool failed", "tool", params.Name, "error", err)
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Applies configured defaults for optional parameters
//  3. Loads images or stored results as needed
//  4. Calls the detection/stats/export function
//  5. Returns the result or error
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Detection
	case "cell_detect":
		return s.handleCellDetect(ctx, args)
	case "cell_batch":
		return s.handleCellBatch(ctx, args)

	// Aggregation
	case "cell_metrics":
		return s.handleCellMetrics(args)

	// Export
	case "cell_export_csv":
		return s.handleCellExportCSV(args)
	case "cell_export_zip":
		return s.handleCellExportZip(args)

	// Helpers
	case "cell_normalize_label":
		return s.handleCellNormalizeLabel(args)
	case "cell_model_info":
		return s.handleCellModelInfo()

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// unmarshalArgs decodes tool arguments, treating a missing object as empty.
func unmarshalArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	return json.Unmarshal(args, v)
}

// options returns the configured detection options with per-call overrides applied.
func (s *Server) options(conf, iou *float64, labels, showConf *bool) detection.Options {
	opts := s.cfg.Options
	if conf != nil {
		opts.ConfThreshold = *conf
	}
	if iou != nil {
		opts.IOUThreshold = *iou
	}
	if labels != nil {
		opts.ShowLabels = *labels
	}
	if showConf != nil {
		opts.ShowConf = *showConf
	}
	return opts
}

// === Detection Handlers ===

type cellDetectArgs struct {
	Path         string   `json:"path"`
	Conf         *float64 `json:"conf"`
	IOU          *float64 `json:"iou"`
	ShowLabels   *bool    `json:"show_labels"`
	ShowConf     *bool    `json:"show_conf"`
	IncludeImage bool     `json:"include_image"`
}

// detectOutput is the cell_detect result.
type detectOutput struct {
	ID           string                `json:"id"`
	Filename     string                `json:"filename"`
	Width        int                   `json:"width"`
	Height       int                   `json:"height"`
	Counts       classes.Counts        `json:"counts"`
	Percentages  classes.Percentages   `json:"percentages"`
	Total        int                   `json:"total"`
	Unrecognized int                   `json:"unrecognized"`
	Detections   []detection.Detection `json:"detections"`
	AnnotatedPNG string                `json:"annotated_png,omitempty"`
}

func (s *Server) handleCellDetect(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a cellDetectArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if s.model == nil {
		return nil, errNoModel
	}
	if a.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if !imaging.IsSupported(a.Path) {
		return nil, fmt.Errorf("unsupported image type %q: use .jpg, .jpeg or .png", filepath.Ext(a.Path))
	}

	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	opts := s.options(a.Conf, a.IOU, a.ShowLabels, a.ShowConf)
	res, err := detection.Detect(ctx, s.model, filepath.Base(a.Path), img, opts)
	if err != nil {
		return nil, err
	}
	id := s.results.put(res)
	s.logger.Debug("detected", "id", id, "filename", res.Filename, "total", res.Total())

	out := detectOutput{
		ID:           id,
		Filename:     res.Filename,
		Width:        res.Original.Bounds().Dx(),
		Height:       res.Original.Bounds().Dy(),
		Counts:       res.Counts,
		Percentages:  res.Percentages,
		Total:        res.Total(),
		Unrecognized: res.Unrecognized(),
		Detections:   res.Detections,
	}
	if a.IncludeImage {
		b64, err := encodeBase64PNG(res.Annotated)
		if err != nil {
			return nil, err
		}
		out.AnnotatedPNG = b64
	}
	return out, nil
}

type cellBatchArgs struct {
	InputDir      string   `json:"input_dir"`
	OutputDir     string   `json:"output_dir"`
	SaveAnnotated *bool    `json:"save_annotated"`
	SaveCSV       *bool    `json:"save_csv"`
	Conf          *float64 `json:"conf"`
	IOU           *float64 `json:"iou"`
}

// batchImage is one processed image in a cell_batch result.
type batchImage struct {
	ID       string         `json:"id"`
	Filename string         `json:"filename"`
	Counts   classes.Counts `json:"counts"`
	Total    int            `json:"total"`
}

func (s *Server) handleCellBatch(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a cellBatchArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if s.model == nil {
		return nil, errNoModel
	}

	paths, err := batch.ListImages(a.InputDir)
	if err != nil {
		return nil, err
	}

	runner := &batch.Runner{
		Model:           s.model,
		Options:         s.options(a.Conf, a.IOU, nil, nil),
		Workers:         s.cfg.Workers,
		ConcurrentModel: s.cfg.ConcurrentModel,
		Logger:          s.logger,
	}
	report, err := runner.Run(ctx, paths)
	if err != nil {
		return nil, err
	}

	images := make([]batchImage, 0, len(report.Results))
	for _, r := range report.Results {
		images = append(images, batchImage{
			ID:       s.results.put(r),
			Filename: r.Filename,
			Counts:   r.Counts,
			Total:    r.Total(),
		})
	}

	out := map[string]interface{}{
		"images":   images,
		"metrics":  report.Metrics,
		"failures": report.Failures,
	}

	if a.OutputDir != "" {
		saveAnnotated := a.SaveAnnotated == nil || *a.SaveAnnotated
		saveCSV := a.SaveCSV == nil || *a.SaveCSV
		written, err := batch.WriteOutputs(report, a.OutputDir, saveAnnotated, saveCSV)
		if err != nil {
			return nil, err
		}
		out["written"] = written
	}
	return out, nil
}

// === Aggregation Handlers ===

type idsArgs struct {
	IDs        []string `json:"ids"`
	OutputPath string   `json:"output_path"`
}

func (s *Server) handleCellMetrics(args json.RawMessage) (interface{}, error) {
	var a idsArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	results, err := s.results.get(a.IDs)
	if err != nil {
		return nil, err
	}
	m := stats.Aggregate(results)
	return map[string]interface{}{
		"total_counts": m.TotalCounts,
		"percentages":  m.Percentages,
		"num_images":   m.NumImages,
		"total_cells":  m.Total(),
	}, nil
}

// === Export Handlers ===

func (s *Server) handleCellExportCSV(args json.RawMessage) (interface{}, error) {
	var a idsArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	results, err := s.results.get(a.IDs)
	if err != nil {
		return nil, err
	}

	rows := export.Tabulate(results)
	data, err := export.EncodeCSV(rows)
	if err != nil {
		return nil, err
	}

	if a.OutputPath == "" {
		return map[string]interface{}{"rows": len(rows), "csv": string(data)}, nil
	}
	if err := os.WriteFile(a.OutputPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", a.OutputPath, err)
	}
	return map[string]interface{}{"rows": len(rows), "path": a.OutputPath, "bytes": len(data)}, nil
}

func (s *Server) handleCellExportZip(args json.RawMessage) (interface{}, error) {
	var a idsArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	results, err := s.results.get(a.IDs)
	if err != nil {
		return nil, err
	}

	named := export.Annotated(results)
	data, err := export.PackageImages(named)
	if err != nil {
		return nil, err
	}

	entries := make([]string, 0, len(named))
	seen := make(map[string]bool, len(named))
	for _, n := range named {
		name := export.ArchiveName(n.Filename)
		if !seen[name] {
			seen[name] = true
			entries = append(entries, name)
		}
	}

	if a.OutputPath == "" {
		return map[string]interface{}{
			"entries": entries,
			"zip":     base64.StdEncoding.EncodeToString(data),
		}, nil
	}
	if err := os.WriteFile(a.OutputPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", a.OutputPath, err)
	}
	return map[string]interface{}{"entries": entries, "path": a.OutputPath, "bytes": len(data)}, nil
}

// === Helper Handlers ===

type cellNormalizeLabelArgs struct {
	Label string `json:"label"`
}

func (s *Server) handleCellNormalizeLabel(args json.RawMessage) (interface{}, error) {
	var a cellNormalizeLabelArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	class := classes.Parse(a.Label)
	return map[string]interface{}{
		"label":      a.Label,
		"normalized": classes.Normalize(a.Label),
		"class":      class.String(),
		"counted":    class.IsKnown(),
	}, nil
}

// infoProvider is implemented by models that can describe themselves.
type infoProvider interface {
	Info() inference.Info
}

func (s *Server) handleCellModelInfo() (interface{}, error) {
	if s.model == nil {
		return nil, errNoModel
	}

	var info inference.Info
	if s.info != nil {
		info = *s.info
	} else {
		names := s.model.Names()
		info = inference.Info{ClassNames: names, NumClasses: len(names)}
	}

	return map[string]interface{}{
		"model":          info,
		"conf_threshold": s.cfg.Options.ConfThreshold,
		"iou_threshold":  s.cfg.Options.IOUThreshold,
		"cached_results": s.results.count(),
		"cached_images":  s.cache.Len(),
	}, nil
}

// encodeBase64PNG returns img as a base64-encoded PNG.
func encodeBase64PNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := imaging.EncodePNG(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
