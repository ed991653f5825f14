package tools

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Folder and file tools report failure in two shapes: the boolean tools
// return false and log the OS error, while read_file and list_folder_contents
// return the error text as their (successful) string value.

var pathParam = Param{
	Name:        "path",
	Type:        ParamString,
	Description: "Path of the file or folder.",
}

// CreateFolderTool implements the tool for creating a folder tree.
type CreateFolderTool struct {
	logger *slog.Logger
}

func (t *CreateFolderTool) Name() string { return "create_folder" }
func (t *CreateFolderTool) Description() string {
	return "Creates a new folder at the specified path, including missing parents. Succeeds if it already exists. Returns true if the folder was created successfully."
}
func (t *CreateFolderTool) Params() []Param {
	p := pathParam
	p.Aliases = []string{"folder_path"}
	return []Param{p}
}

func (t *CreateFolderTool) Execute(ctx context.Context, args map[string]interface{}) Result {
	path := stringArg(args, "path")
	if err := os.MkdirAll(path, 0755); err != nil {
		t.logger.Warn("Error creating folder", "path", path, "error", err)
		return Ok(false)
	}
	return Ok(true)
}

// ListFolderTool implements the tool for listing a folder.
type ListFolderTool struct{}

func (t *ListFolderTool) Name() string { return "list_folder_contents" }
func (t *ListFolderTool) Description() string {
	return "Lists contents of the specified folder, one entry per line."
}
func (t *ListFolderTool) Params() []Param {
	p := pathParam
	p.Default = "."
	p.Aliases = []string{"folder_path"}
	return []Param{p}
}

func (t *ListFolderTool) Execute(ctx context.Context, args map[string]interface{}) Result {
	entries, err := os.ReadDir(stringArg(args, "path"))
	if err != nil {
		return Ok("Error listing folder: " + err.Error())
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return Ok(strings.Join(names, "\n"))
}

// RenameFolderTool implements the tool for renaming or moving a folder.
type RenameFolderTool struct {
	logger *slog.Logger
}

func (t *RenameFolderTool) Name() string { return "rename_folder" }
func (t *RenameFolderTool) Description() string {
	return "Renames/moves a folder from old path to new path. Returns true if the folder was renamed successfully."
}
func (t *RenameFolderTool) Params() []Param {
	return []Param{
		{Name: "old", Type: ParamString, Description: "Current folder path.", Aliases: []string{"old_path"}},
		{Name: "new", Type: ParamString, Description: "New folder path.", Aliases: []string{"new_path"}},
	}
}

func (t *RenameFolderTool) Execute(ctx context.Context, args map[string]interface{}) Result {
	oldPath, newPath := stringArg(args, "old"), stringArg(args, "new")
	if err := os.Rename(oldPath, newPath); err != nil {
		t.logger.Warn("Error renaming folder", "old", oldPath, "new", newPath, "error", err)
		return Ok(false)
	}
	return Ok(true)
}

// CreateFileTool implements the tool for creating a file.
type CreateFileTool struct {
	logger *slog.Logger
}

func (t *CreateFileTool) Name() string { return "create_file" }
func (t *CreateFileTool) Description() string {
	return "Creates a new file with the specified content, replacing any existing file. Returns true if the file was created successfully."
}
func (t *CreateFileTool) Params() []Param {
	p := pathParam
	p.Aliases = []string{"file_path"}
	return []Param{
		p,
		{Name: "content", Type: ParamString, Description: "Content to write to the file.", Default: ""},
	}
}

func (t *CreateFileTool) Execute(ctx context.Context, args map[string]interface{}) Result {
	return Ok(writeFile(t.logger, "Error creating file", stringArg(args, "path"), stringArg(args, "content")))
}

// ReadFileTool implements the tool for reading a file.
type ReadFileTool struct{}

func (t *ReadFileTool) Name() string { return "read_file" }
func (t *ReadFileTool) Description() string {
	return "Reads the entire content of a file."
}
func (t *ReadFileTool) Params() []Param {
	p := pathParam
	p.Aliases = []string{"file_path"}
	return []Param{p}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) Result {
	content, err := os.ReadFile(stringArg(args, "path"))
	if err != nil {
		return Ok("Error reading file: " + err.Error())
	}
	return Ok(string(content))
}

// ModifyFileTool implements the tool for overwriting a file.
type ModifyFileTool struct {
	logger *slog.Logger
}

func (t *ModifyFileTool) Name() string { return "modify_file" }
func (t *ModifyFileTool) Description() string {
	return "Modifies an existing file by replacing its entire content. Returns true if the file was modified successfully."
}
func (t *ModifyFileTool) Params() []Param {
	p := pathParam
	p.Aliases = []string{"file_path"}
	return []Param{
		p,
		{Name: "content", Type: ParamString, Description: "New content for the file."},
	}
}

func (t *ModifyFileTool) Execute(ctx context.Context, args map[string]interface{}) Result {
	return Ok(writeFile(t.logger, "Error modifying file", stringArg(args, "path"), stringArg(args, "content")))
}

func writeFile(logger *slog.Logger, msg, path, content string) bool {
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		logger.Warn(msg, "path", path, "error", err)
		return false
	}
	return true
}
