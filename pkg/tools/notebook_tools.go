package tools

import (
	"context"

	"clockwork/pkg/notebook"
)

const (
	// ToolReadNotebook is the notebook read tool name.
	ToolReadNotebook = "read_notebook"
	// ToolWriteNotebook is the notebook append tool name.
	ToolWriteNotebook = "write_notebook"
)

// ReadNotebookTool exposes the lab notebook's content to roles.
type ReadNotebookTool struct {
	nb *notebook.Notebook
}

// NewReadNotebookTool creates a read_notebook tool.
func NewReadNotebookTool(nb *notebook.Notebook) *ReadNotebookTool {
	return &ReadNotebookTool{nb: nb}
}

// Definition implements Tool.
func (t *ReadNotebookTool) Definition() Definition {
	return Definition{
		Name:        ToolReadNotebook,
		Description: "Read the entire content of the lab notebook to access the team's progress, decisions, and results",
		InputSchema: InputSchema{Type: "object"},
	}
}

// Exec implements Tool.
func (t *ReadNotebookTool) Exec(_ context.Context, _ map[string]any) string {
	content, err := t.nb.Read()
	if err != nil {
		return Errorf("failed to read notebook: %v", err)
	}
	return content
}

// WriteNotebookTool appends a typed entry to the lab notebook.
type WriteNotebookTool struct {
	nb *notebook.Notebook
}

// NewWriteNotebookTool creates a write_notebook tool.
func NewWriteNotebookTool(nb *notebook.Notebook) *WriteNotebookTool {
	return &WriteNotebookTool{nb: nb}
}

// Definition implements Tool.
func (t *WriteNotebookTool) Definition() Definition {
	return Definition{
		Name:        ToolWriteNotebook,
		Description: "Append an entry to the lab notebook. Use entry_type OUTPUT for files, results, and metrics",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]*Property{
				"entry":      {Type: "string", Description: "Text of the entry to append"},
				"entry_type": {Type: "string", Description: "Entry classification", Enum: []string{"PLAN", "NOTE", "OUTPUT"}},
				"source":     {Type: "string", Description: "Name of the role writing the entry"},
			},
			Required: []string{"entry"},
		},
	}
}

// Exec implements Tool.
func (t *WriteNotebookTool) Exec(_ context.Context, args map[string]any) string {
	entry, ok := StringArg(args, "entry")
	if !ok {
		return Errorf("entry is required")
	}
	entryType, _ := StringArg(args, "entry_type")
	if entryType == "" {
		entryType = string(notebook.EntryNote)
	}
	source, _ := StringArg(args, "source")
	if source == "" {
		source = "SYSTEM"
	}

	written, err := t.nb.Append(entry, notebook.EntryType(entryType), source)
	if err != nil {
		return Errorf("failed to append to notebook: %v", err)
	}
	return "Appended entry to notebook:" + written
}
