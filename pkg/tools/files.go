package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// ToolSearchDirectory is the directory search tool name.
	ToolSearchDirectory = "search_directory"
	// ToolReadFile is the text file read tool name.
	ToolReadFile = "read_file"
	// ToolWriteFile is the text file write tool name.
	ToolWriteFile = "write_file"

	// readFileCharLimit caps how much of a file a single read returns.
	readFileCharLimit = 10_000
)

// SearchDirectoryTool lists files in a directory matching a glob pattern.
type SearchDirectoryTool struct{}

// NewSearchDirectoryTool creates a search_directory tool.
func NewSearchDirectoryTool() *SearchDirectoryTool {
	return &SearchDirectoryTool{}
}

// Definition implements Tool.
func (t *SearchDirectoryTool) Definition() Definition {
	return Definition{
		Name:        ToolSearchDirectory,
		Description: "Search for files in a directory, optionally filtering by glob pattern and searching recursively",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]*Property{
				"directory": {Type: "string", Description: "Directory to search"},
				"pattern":   {Type: "string", Description: "Glob pattern, e.g. *.png (default: all files)"},
				"recursive": {Type: "boolean", Description: "Descend into subdirectories"},
			},
			Required: []string{"directory"},
		},
	}
}

// Exec implements Tool.
func (t *SearchDirectoryTool) Exec(_ context.Context, args map[string]any) string {
	directory, ok := StringArg(args, "directory")
	if !ok {
		return Errorf("directory is required")
	}
	pattern, _ := StringArg(args, "pattern")
	if pattern == "" {
		pattern = "*"
	}
	recursive, _ := args["recursive"].(bool)

	info, err := os.Stat(directory)
	if err != nil || !info.IsDir() {
		return Errorf("directory %s does not exist", directory)
	}

	var matches []string
	walkErr := filepath.WalkDir(directory, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive && path != directory {
				return filepath.SkipDir
			}
			return nil
		}
		matched, matchErr := filepath.Match(pattern, d.Name())
		if matchErr != nil {
			return matchErr
		}
		if matched {
			matches = append(matches, path)
		}
		return nil
	})
	if walkErr != nil {
		return Errorf("search failed: %v", walkErr)
	}

	if len(matches) == 0 {
		return fmt.Sprintf("No files matching %q found in %s", pattern, directory)
	}

	sort.Strings(matches)
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d file(s) matching %q in %s:\n", len(matches), pattern, directory)
	for _, m := range matches {
		sb.WriteString("- " + m + "\n")
	}
	return sb.String()
}

// ReadFileTool reads the head of a text file.
type ReadFileTool struct{}

// NewReadFileTool creates a read_file tool.
func NewReadFileTool() *ReadFileTool {
	return &ReadFileTool{}
}

// Definition implements Tool.
func (t *ReadFileTool) Definition() Definition {
	return Definition{
		Name:        ToolReadFile,
		Description: "Read the contents of a text file (.txt, .csv, .tsv, .json, etc.). Only returns the first 10,000 characters",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]*Property{
				"filepath": {Type: "string", Description: "Path of the file to read"},
			},
			Required: []string{"filepath"},
		},
	}
}

// Exec implements Tool.
func (t *ReadFileTool) Exec(_ context.Context, args map[string]any) string {
	path, ok := StringArg(args, "filepath")
	if !ok {
		return Errorf("filepath is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Errorf("failed to read %s: %v", path, err)
	}

	content := string(data)
	if len(content) > readFileCharLimit {
		content = content[:readFileCharLimit] + "\n... (truncated)"
	}
	return content
}

// WriteFileTool writes a text file, creating parent directories as needed.
type WriteFileTool struct{}

// NewWriteFileTool creates a write_file tool.
func NewWriteFileTool() *WriteFileTool {
	return &WriteFileTool{}
}

// Definition implements Tool.
func (t *WriteFileTool) Definition() Definition {
	return Definition{
		Name:        ToolWriteFile,
		Description: "Write the contents of a text file (.txt, .csv, .tsv, .json, etc.)",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]*Property{
				"filepath": {Type: "string", Description: "Path of the file to write"},
				"content":  {Type: "string", Description: "Content to write"},
			},
			Required: []string{"filepath", "content"},
		},
	}
}

// Exec implements Tool.
func (t *WriteFileTool) Exec(_ context.Context, args map[string]any) string {
	path, ok := StringArg(args, "filepath")
	if !ok {
		return Errorf("filepath is required")
	}
	content, ok := StringArg(args, "content")
	if !ok {
		return Errorf("content is required")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Errorf("failed to create directory %s: %v", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return Errorf("failed to write %s: %v", path, err)
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(content), path)
}
