package files

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/haasonsaas/pocketd/internal/agent"
)

// ListTool enumerates directory contents with optional glob filtering.
type ListTool struct {
	resolver Resolver
}

// NewListTool creates a list_dir tool scoped to the workspace.
func NewListTool(cfg Config) *ListTool {
	return &ListTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *ListTool) Name() string { return "list_dir" }

func (t *ListTool) Description() string {
	return "List directory contents. Supports glob patterns, recursion, and hidden files."
}

func (t *ListTool) Schema() json.RawMessage {
	return mustSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory to list (default: workspace root).",
			},
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "Glob pattern to filter names, e.g. *.go.",
			},
			"recursive": map[string]interface{}{
				"type":        "boolean",
				"description": "Recurse into subdirectories (default: false).",
			},
			"include_hidden": map[string]interface{}{
				"type":        "boolean",
				"description": "Include dotfiles (default: false).",
			},
		},
	})
}

func (t *ListTool) Available() bool { return true }

func (t *ListTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	_ = ctx
	var input struct {
		Path          string `json:"path"`
		Pattern       string `json:"pattern"`
		Recursive     bool   `json:"recursive"`
		IncludeHidden bool   `json:"include_hidden"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Path == "" {
		input.Path = "."
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}
	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return toolError(fmt.Sprintf("directory not found: %s", input.Path)), nil
		}
		return toolError(fmt.Sprintf("stat: %v", err)), nil
	}
	if !info.IsDir() {
		return toolError(fmt.Sprintf("not a directory: %s", input.Path)), nil
	}

	type entry struct {
		rel   string
		isDir bool
		size  int64
		mtime string
	}
	var entries []entry
	collect := func(path string, d fs.DirEntry) error {
		rel, err := filepath.Rel(resolved, path)
		if err != nil || rel == "." {
			return nil
		}
		name := d.Name()
		if !input.IncludeHidden && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if input.Pattern != "" && !d.IsDir() {
			match, err := filepath.Match(input.Pattern, name)
			if err != nil {
				return fmt.Errorf("invalid pattern: %w", err)
			}
			if !match {
				return nil
			}
		}
		e := entry{rel: rel, isDir: d.IsDir()}
		if !d.IsDir() {
			if fi, err := d.Info(); err == nil {
				e.size = fi.Size()
				e.mtime = fi.ModTime().Format("2006-01-02 15:04")
			}
		}
		entries = append(entries, e)
		return nil
	}

	if input.Recursive {
		err = filepath.WalkDir(resolved, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			return collect(path, d)
		})
	} else {
		var dirEntries []fs.DirEntry
		dirEntries, err = os.ReadDir(resolved)
		if err == nil {
			for _, d := range dirEntries {
				if cerr := collect(filepath.Join(resolved, d.Name()), d); cerr != nil && cerr != fs.SkipDir {
					err = cerr
					break
				}
			}
		}
	}
	if err != nil {
		return toolError(fmt.Sprintf("list: %v", err)), nil
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].rel < entries[j].rel })

	var b strings.Builder
	for _, e := range entries {
		if e.isDir {
			fmt.Fprintf(&b, "%s/\n", e.rel)
		} else {
			fmt.Fprintf(&b, "%s  %d  %s\n", e.rel, e.size, e.mtime)
		}
	}
	if b.Len() == 0 {
		return &agent.ToolResult{Content: "(empty)"}, nil
	}
	return &agent.ToolResult{Content: b.String()}, nil
}
