package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const maxObservationBytes = 32 * 1024

// pathResolver maps tool-supplied paths into the workspace and, when
// restriction is on, refuses anything that escapes it.
type pathResolver struct {
	workspace string
	restrict  bool
}

func (r pathResolver) resolve(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("path is required")
	}
	path := raw
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.workspace, path)
	}
	path = filepath.Clean(path)

	if r.restrict {
		rel, err := filepath.Rel(r.workspace, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("path %q is outside the workspace", raw)
		}
	}
	return path, nil
}

func truncateObservation(s string) string {
	if len(s) <= maxObservationBytes {
		return s
	}
	return s[:maxObservationBytes] + "\n...(truncated)"
}

// ReadFileTool reads a file from the workspace.
type ReadFileTool struct {
	resolver pathResolver
}

func NewReadFileTool(workspace string, restrict bool) *ReadFileTool {
	return &ReadFileTool{resolver: pathResolver{workspace: workspace, restrict: restrict}}
}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read a text file from the workspace and return its contents."
}

func (t *ReadFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "File path, relative to the workspace",
			},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	raw, _ := args["path"].(string)
	path, err := t.resolver.resolve(raw)
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ErrorResult(fmt.Sprintf("read %s: %v", raw, err)).WithError(err)
	}
	return Result(truncateObservation(string(data)))
}

// WriteFileTool writes (or overwrites) a file in the workspace.
type WriteFileTool struct {
	resolver pathResolver
}

func NewWriteFileTool(workspace string, restrict bool) *WriteFileTool {
	return &WriteFileTool{resolver: pathResolver{workspace: workspace, restrict: restrict}}
}

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write content to a file in the workspace, creating parent directories as needed."
}

func (t *WriteFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "File path, relative to the workspace",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Full file content to write",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	raw, _ := args["path"].(string)
	content, ok := args["content"].(string)
	if !ok {
		return ErrorResult("content is required")
	}

	path, err := t.resolver.resolve(raw)
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ErrorResult(fmt.Sprintf("create directories for %s: %v", raw, err)).WithError(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("write %s: %v", raw, err)).WithError(err)
	}
	return Result(fmt.Sprintf("Wrote %d bytes to %s", len(content), raw))
}

// AppendFileTool appends to a file in the workspace.
type AppendFileTool struct {
	resolver pathResolver
}

func NewAppendFileTool(workspace string, restrict bool) *AppendFileTool {
	return &AppendFileTool{resolver: pathResolver{workspace: workspace, restrict: restrict}}
}

func (t *AppendFileTool) Name() string { return "append_file" }

func (t *AppendFileTool) Description() string {
	return "Append content to a file in the workspace, creating it if missing."
}

func (t *AppendFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "File path, relative to the workspace",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Content to append",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (t *AppendFileTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	raw, _ := args["path"].(string)
	content, ok := args["content"].(string)
	if !ok {
		return ErrorResult("content is required")
	}

	path, err := t.resolver.resolve(raw)
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ErrorResult(fmt.Sprintf("create directories for %s: %v", raw, err)).WithError(err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return ErrorResult(fmt.Sprintf("open %s: %v", raw, err)).WithError(err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return ErrorResult(fmt.Sprintf("append to %s: %v", raw, err)).WithError(err)
	}
	return Result(fmt.Sprintf("Appended %d bytes to %s", len(content), raw))
}

// ListDirTool lists a workspace directory.
type ListDirTool struct {
	resolver pathResolver
}

func NewListDirTool(workspace string, restrict bool) *ListDirTool {
	return &ListDirTool{resolver: pathResolver{workspace: workspace, restrict: restrict}}
}

func (t *ListDirTool) Name() string { return "list_dir" }

func (t *ListDirTool) Description() string {
	return "List the entries of a workspace directory."
}

func (t *ListDirTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory path, relative to the workspace (defaults to the workspace root)",
			},
		},
	}
}

func (t *ListDirTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	raw, _ := args["path"].(string)
	if strings.TrimSpace(raw) == "" {
		raw = "."
	}
	path, err := t.resolver.resolve(raw)
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return ErrorResult(fmt.Sprintf("list %s: %v", raw, err)).WithError(err)
	}

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		lines = append(lines, name)
	}
	sort.Strings(lines)
	if len(lines) == 0 {
		return Result("(empty directory)")
	}
	return Result(strings.Join(lines, "\n"))
}
