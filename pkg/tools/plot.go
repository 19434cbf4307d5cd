package tools

import (
	"context"
	"os"
)

// ToolAnalyzePlot is the plot analysis tool name.
const ToolAnalyzePlot = "analyze_plot"

// PlotAnalyzer describes an image file, typically by sending it to a
// vision-capable model. Injected so the tool stays decoupled from any
// particular backend.
type PlotAnalyzer interface {
	AnalyzePlot(ctx context.Context, path, prompt string) (string, error)
}

// AnalyzePlotTool describes the contents of a saved plot file.
type AnalyzePlotTool struct {
	analyzer PlotAnalyzer
}

// NewAnalyzePlotTool creates an analyze_plot tool backed by the analyzer.
func NewAnalyzePlotTool(analyzer PlotAnalyzer) *AnalyzePlotTool {
	return &AnalyzePlotTool{analyzer: analyzer}
}

// Definition implements Tool.
func (t *AnalyzePlotTool) Definition() Definition {
	return Definition{
		Name:        ToolAnalyzePlot,
		Description: "Analyze a plot file and return a description of its contents. Provide a custom prompt to ask specific questions about the plot",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]*Property{
				"filepath": {Type: "string", Description: "Path of the plot image file"},
				"prompt":   {Type: "string", Description: "Optional question about the plot"},
			},
			Required: []string{"filepath"},
		},
	}
}

// Exec implements Tool.
func (t *AnalyzePlotTool) Exec(ctx context.Context, args map[string]any) string {
	path, ok := StringArg(args, "filepath")
	if !ok {
		return Errorf("filepath is required")
	}
	if _, err := os.Stat(path); err != nil {
		return Errorf("plot file %s does not exist", path)
	}

	prompt, _ := StringArg(args, "prompt")
	if prompt == "" {
		prompt = "Describe this plot: what it shows, axis labels, trends, and any quality issues."
	}

	description, err := t.analyzer.AnalyzePlot(ctx, path, prompt)
	if err != nil {
		return Errorf("plot analysis failed: %v", err)
	}
	return description
}
