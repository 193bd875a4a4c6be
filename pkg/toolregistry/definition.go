package toolregistry

import (
	"context"
	"fmt"
	"time"
)

// SideEffect declares what a tool does to the world outside the process.
// It drives both approval gating and execution-lane classification.
type SideEffect string

const (
	// SideEffectReadOnly marks tools that observe but never modify state.
	SideEffectReadOnly SideEffect = "read-only"
	// SideEffectMutating marks tools that modify state reversibly.
	SideEffectMutating SideEffect = "mutating"
	// SideEffectDestructive marks tools whose effects cannot be undone.
	SideEffectDestructive SideEffect = "destructive"
)

// Valid reports whether s is one of the declared side-effect classes.
func (s SideEffect) Valid() bool {
	switch s {
	case SideEffectReadOnly, SideEffectMutating, SideEffectDestructive:
		return true
	default:
		return false
	}
}

// Exclusive reports whether calls to a tool of this class must run alone.
// Read-only tools share the execution window; everything else is exclusive.
func (s SideEffect) Exclusive() bool {
	return s != SideEffectReadOnly
}

// Parameter describes one argument a tool accepts.
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// Handler is the function a tool definition binds its execution to.
type Handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Definition binds a tool name to its schema, side-effect class, and handler.
type Definition struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	SideEffect  SideEffect    `json:"side_effect"`
	Parameters  []Parameter   `json:"parameters"`
	Handler     Handler       `json:"-"`
	Timeout     time.Duration `json:"-"` // 0 means the registry default applies
}

// Descriptor is the read-only view of a registered tool consumed by the
// approval gate, the admission controller, and provider adapters.
type Descriptor struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	SideEffect  SideEffect `json:"side_effect"`
}

func validateDefinition(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}
	if !def.SideEffect.Valid() {
		return fmt.Errorf("invalid side-effect class %q for %s", def.SideEffect, def.Name)
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %q for %s", param.Type, param.Name)
		}
		if param.Description == "" {
			return fmt.Errorf("parameter description cannot be empty for %s", param.Name)
		}
	}

	return nil
}
