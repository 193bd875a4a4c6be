// Package demotools carries the built-in demonstration tools the CLI
// registers so dispatch run and dispatch serve work end to end without
// external tool providers. The engine packages never depend on it.
package demotools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harun/dispatch/pkg/toolregistry"
)

// Register adds the demonstration tools to the registry.
func Register(r *toolregistry.Registry) error {
	tools := []toolregistry.Definition{
		clockTool(),
		fileStatTool(),
		sleepTool(),
		upperTool(),
		writeNoteTool(),
		deleteNoteTool(),
	}

	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", tool.Name, err)
		}
	}
	return nil
}

func clockTool() toolregistry.Definition {
	return toolregistry.Definition{
		Name:        "clock",
		Description: "Read the current wall-clock time.",
		SideEffect:  toolregistry.SideEffectReadOnly,
		Parameters: []toolregistry.Parameter{
			{Name: "format", Type: "string", Description: "Go time layout (default RFC3339)", Required: false},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			layout, _ := args["format"].(string)
			if layout == "" {
				layout = time.RFC3339
			}
			now := time.Now()
			return map[string]interface{}{
				"now":  now.Format(layout),
				"unix": now.Unix(),
			}, nil
		},
	}
}

func fileStatTool() toolregistry.Definition {
	return toolregistry.Definition{
		Name:        "file_stat",
		Description: "Inspect a file or directory without touching it.",
		SideEffect:  toolregistry.SideEffectReadOnly,
		Parameters: []toolregistry.Parameter{
			{Name: "path", Type: "string", Description: "File path to inspect", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			path, _ := args["path"].(string)
			if strings.TrimSpace(path) == "" {
				return nil, fmt.Errorf("path is required")
			}

			info, err := os.Stat(path)
			if err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"path":     path,
				"size":     info.Size(),
				"mode":     info.Mode().String(),
				"modified": info.ModTime().Format(time.RFC3339),
				"is_dir":   info.IsDir(),
			}, nil
		},
	}
}

func sleepTool() toolregistry.Definition {
	return toolregistry.Definition{
		Name:        "sleep",
		Description: "Sleep for a given number of seconds, reporting progress once a second.",
		SideEffect:  toolregistry.SideEffectReadOnly,
		Parameters: []toolregistry.Parameter{
			{Name: "seconds", Type: "number", Description: "How long to sleep", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			seconds := asSeconds(args["seconds"])
			if seconds <= 0 {
				return nil, fmt.Errorf("seconds must be positive")
			}

			total := time.Duration(seconds * float64(time.Second))
			start := time.Now()

			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			done := time.NewTimer(total)
			defer done.Stop()

			for {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-ticker.C:
					elapsed := time.Since(start).Round(time.Second)
					toolregistry.Emit(ctx, fmt.Sprintf("slept %s of %s", elapsed, total))
				case <-done.C:
					return map[string]interface{}{
						"slept_seconds": seconds,
					}, nil
				}
			}
		},
	}
}

func upperTool() toolregistry.Definition {
	return toolregistry.Definition{
		Name:        "upper",
		Description: "Echo the given text in upper case.",
		SideEffect:  toolregistry.SideEffectReadOnly,
		Parameters: []toolregistry.Parameter{
			{Name: "text", Type: "string", Description: "Text to upper-case", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			text, _ := args["text"].(string)
			return strings.ToUpper(text), nil
		},
	}
}

func writeNoteTool() toolregistry.Definition {
	return toolregistry.Definition{
		Name:        "write_note",
		Description: "Write a text note to a file, creating parent directories as needed.",
		SideEffect:  toolregistry.SideEffectMutating,
		Parameters: []toolregistry.Parameter{
			{Name: "path", Type: "string", Description: "Target file path", Required: true},
			{Name: "body", Type: "string", Description: "Note content", Required: true},
			{Name: "append", Type: "boolean", Description: "Append instead of overwrite (default false)", Required: false},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			path, _ := args["path"].(string)
			if strings.TrimSpace(path) == "" {
				return nil, fmt.Errorf("path is required")
			}
			body, _ := args["body"].(string)
			appendMode, _ := args["append"].(bool)

			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return nil, err
			}

			flag := os.O_CREATE | os.O_WRONLY
			if appendMode {
				flag |= os.O_APPEND
			} else {
				flag |= os.O_TRUNC
			}
			f, err := os.OpenFile(path, flag, 0644)
			if err != nil {
				return nil, err
			}
			defer f.Close()

			n, err := f.WriteString(body)
			if err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"path":   path,
				"bytes":  n,
				"append": appendMode,
			}, nil
		},
	}
}

func deleteNoteTool() toolregistry.Definition {
	return toolregistry.Definition{
		Name:        "delete_note",
		Description: "Delete a note file. This cannot be undone.",
		SideEffect:  toolregistry.SideEffectDestructive,
		Parameters: []toolregistry.Parameter{
			{Name: "path", Type: "string", Description: "File path to delete", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			path, _ := args["path"].(string)
			if strings.TrimSpace(path) == "" {
				return nil, fmt.Errorf("path is required")
			}

			if _, err := os.Stat(path); err != nil {
				return nil, err
			}
			if err := os.Remove(path); err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"path":    path,
				"deleted": true,
			}, nil
		},
	}
}

func asSeconds(value interface{}) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
