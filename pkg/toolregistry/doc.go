// Package toolregistry registers tool definitions and invokes them with
// schema-validated arguments, streamed partial output, and cooperative
// cancellation.
//
// Invariants:
// - Tool names are unique.
// - Arguments are schema-validated before a handler runs.
// - Invoke waits for the handler to return, so a cancelled invocation is
//   only reported once the tool has acknowledged the signal.
//
// Usage:
//
//	reg := toolregistry.New()
//	_ = reg.Register(toolregistry.Definition{
//		Name:        "read_file",
//		Description: "Read a file from the workspace",
//		SideEffect:  toolregistry.SideEffectReadOnly,
//		Parameters: []toolregistry.Parameter{
//			{Name: "path", Type: "string", Description: "file path", Required: true},
//		},
//		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
//			return os.ReadFile(args["path"].(string))
//		},
//	})
package toolregistry
