package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// Shared schema fragments.
var (
	pathProperty = map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the image file (.jpg, .jpeg or .png)",
	}
	confProperty = map[string]interface{}{
		"type":        "number",
		"description": "Confidence threshold in [0, 1]. Default 0.25",
		"minimum":     0,
		"maximum":     1,
	}
	iouProperty = map[string]interface{}{
		"type":        "number",
		"description": "IoU threshold for overlap suppression in [0, 1]. Default 0.45",
		"minimum":     0,
		"maximum":     1,
	}
	idsProperty = map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": "string"},
		"description": "Result ids returned by cell_detect or cell_batch",
	}
)

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Detection
		{
			Name:        "cell_detect",
			Description: "Run the blood-cell detector on one image. Returns RBC/WBC/Platelets counts, percentages, every detection with its box, and a result id for later metrics or export calls.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
					"conf": confProperty,
					"iou":  iouProperty,
					"show_labels": map[string]interface{}{
						"type":        "boolean",
						"description": "Draw class names on the annotated image. Default true",
					},
					"show_conf": map[string]interface{}{
						"type":        "boolean",
						"description": "Draw confidence scores on the annotated image. Default true",
					},
					"include_image": map[string]interface{}{
						"type":        "boolean",
						"description": "Return the annotated image as base64-encoded PNG. Default false",
						"default":     false,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "cell_batch",
			Description: "Run detection over every .jpg/.jpeg/.png image in a directory (non-recursive). Images that fail are skipped and reported. Optionally writes annotated images and results.csv to an output directory.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"input_dir": map[string]interface{}{
						"type":        "string",
						"description": "Directory containing microscope images",
					},
					"output_dir": map[string]interface{}{
						"type":        "string",
						"description": "Directory for annotated images and results.csv. Nothing is written when omitted",
					},
					"save_annotated": map[string]interface{}{
						"type":        "boolean",
						"description": "Write <name>_annotated.png for each image. Default true when output_dir is set",
					},
					"save_csv": map[string]interface{}{
						"type":        "boolean",
						"description": "Write results.csv. Default true when output_dir is set",
					},
					"conf": confProperty,
					"iou":  iouProperty,
				},
				"required": []string{"input_dir"},
			},
		},

		// Aggregation
		{
			Name:        "cell_metrics",
			Description: "Aggregate stored results into batch totals. Percentages are computed from the summed counts, not averaged per image.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"ids": idsProperty,
				},
				"required": []string{"ids"},
			},
		},

		// Export
		{
			Name:        "cell_export_csv",
			Description: "Export stored results as CSV with columns Filename, RBC, WBC, Platelets, Total, RBC %, WBC %, Platelets %.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"ids": idsProperty,
					"output_path": map[string]interface{}{
						"type":        "string",
						"description": "File to write the CSV to. The CSV text is returned when omitted",
					},
				},
				"required": []string{"ids"},
			},
		},
		{
			Name:        "cell_export_zip",
			Description: "Package the annotated images of stored results into a ZIP archive with entries named <name>_annotated.png.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"ids": idsProperty,
					"output_path": map[string]interface{}{
						"type":        "string",
						"description": "File to write the archive to. The archive is returned base64-encoded when omitted",
					},
				},
				"required": []string{"ids"},
			},
		},

		// Helpers
		{
			Name:        "cell_normalize_label",
			Description: "Show how a raw detector label maps onto the RBC/WBC/Platelets taxonomy.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"label": map[string]interface{}{
						"type":        "string",
						"description": "Raw class label, e.g. \"rbc\" or \"platelet\"",
					},
				},
				"required": []string{"label"},
			},
		},
		{
			Name:        "cell_model_info",
			Description: "Report the loaded model's type and class names, and the default detection thresholds.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
