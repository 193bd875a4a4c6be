package toolregistry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/harun/dispatch/pkg/toolcall"
)

// Registry holds every tool the engine can invoke. Lookups against names it
// does not know fail with toolcall.ErrUnknownTool.
type Registry struct {
	mu             sync.RWMutex
	tools          map[string]*Definition
	schemas        map[string]*gojsonschema.Schema
	rawSchemas     map[string]map[string]interface{}
	defaultTimeout time.Duration
}

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithDefaultTimeout bounds handler execution for definitions that do not
// declare their own timeout. Zero leaves invocations unbounded.
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.defaultTimeout = d
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		tools:      make(map[string]*Definition),
		schemas:    make(map[string]*gojsonschema.Schema),
		rawSchemas: make(map[string]map[string]interface{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool definition, compiling its argument schema. Duplicate
// names are rejected; the engine has no notion of tool replacement.
func (r *Registry) Register(def Definition) error {
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	rawSchema := buildSchemaMap(def)
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(rawSchema))
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %q already registered", def.Name)
	}

	r.tools[def.Name] = &def
	r.schemas[def.Name] = schema
	r.rawSchemas[def.Name] = rawSchema

	log.Info().Str("tool", def.Name).Str("side_effect", string(def.SideEffect)).Msg("Tool registered")

	return nil
}

// Describe returns the read-only view of a registered tool.
func (r *Registry) Describe(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.tools[name]
	if !ok {
		return Descriptor{}, toolcall.WrapError(toolcall.ErrorKindUnknownTool, name,
			fmt.Errorf("%w: %q", toolcall.ErrUnknownTool, name))
	}
	return Descriptor{Name: def.Name, Description: def.Description, SideEffect: def.SideEffect}, nil
}

// List returns descriptors for every registered tool, sorted by name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.tools))
	for _, def := range r.tools {
		out = append(out, Descriptor{Name: def.Name, Description: def.Description, SideEffect: def.SideEffect})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Schema returns the raw JSON schema map for a tool, used by provider
// adapters to advertise tools upstream.
func (r *Registry) Schema(name string) (map[string]interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	raw, ok := r.rawSchemas[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", toolcall.ErrUnknownTool, name)
	}
	return raw, nil
}

// ValidateArgs checks args against the tool's declared schema. The scheduler
// calls this during the validating phase so malformed calls fail before they
// are ever admitted.
func (r *Registry) ValidateArgs(name string, args map[string]interface{}) error {
	r.mu.RLock()
	schema, ok := r.schemas[name]
	r.mu.RUnlock()

	if !ok {
		return toolcall.WrapError(toolcall.ErrorKindUnknownTool, name,
			fmt.Errorf("%w: %q", toolcall.ErrUnknownTool, name))
	}

	if args == nil {
		args = map[string]interface{}{}
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return toolcall.WrapError(toolcall.ErrorKindSchemaValidation, name, err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			details = append(details, resultErr.String())
		}
		return toolcall.NewError(toolcall.ErrorKindSchemaValidation, name, strings.Join(details, "; "))
	}
	return nil
}

func buildSchemaMap(def Definition) map[string]interface{} {
	properties := make(map[string]interface{}, len(def.Parameters))
	required := []string{}

	for _, param := range def.Parameters {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}
	return schemaMap
}
