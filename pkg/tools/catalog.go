// Package tools mediates all outbound tool access for sandboxed candidate
// scripts. Every call passes an allow-list, per-tool JSON Schema argument
// validation, session token verification, rate limiting, and the budget
// ledger before it reaches a provider, and every completed call mints a
// receipt.
package tools

import (
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/caster-hub/caster/pkg/receipts"
)

var (
	// ErrUnknownTool is returned for tools outside the allow-list.
	ErrUnknownTool = errors.New("tools: unknown tool")
	// ErrInvalidArgs is returned when arguments fail schema validation.
	ErrInvalidArgs = errors.New("tools: invalid arguments")
)

// Tool names on the allow-list.
const (
	ToolSearchWeb = "search_web"
	ToolSearchX   = "search_x"
	ToolLLMChat   = "llm_chat"
	ToolTest      = "test_tool"
)

// Spec describes one allow-listed tool. positional names the parameters, in
// order, that positional arguments bind to.
type Spec struct {
	Name       string
	Policy     receipts.ResultPolicy
	schema     *jsonschema.Schema
	positional []string
}

// Catalog is the fixed allow-list with compiled argument schemas.
// Validation is fail-closed: a tool without a compiled schema rejects
// every call.
type Catalog struct {
	specs map[string]*Spec
}

const (
	searchSchema = `{
		"type": "object",
		"properties": {
			"query": {"type": "string", "minLength": 1},
			"top_k": {"type": "integer", "minimum": 1, "maximum": 20}
		},
		"required": ["query"],
		"additionalProperties": false
	}`
	llmChatSchema = `{
		"type": "object",
		"properties": {
			"messages": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"properties": {
						"role": {"type": "string", "enum": ["system", "user", "assistant"]},
						"content": {"type": "string"}
					},
					"required": ["role", "content"],
					"additionalProperties": false
				}
			},
			"model": {"type": "string"},
			"temperature": {"type": "number", "minimum": 0, "maximum": 2},
			"max_tokens": {"type": "integer", "minimum": 1}
		},
		"required": ["messages"],
		"additionalProperties": false
	}`
	testToolSchema = `{
		"type": "object",
		"properties": {
			"echo": {"type": "string"}
		},
		"additionalProperties": false
	}`
)

// NewCatalog builds the standard allow-list. Search tools produce
// referenceable results; everything else is log-only.
func NewCatalog() (*Catalog, error) {
	c := &Catalog{specs: make(map[string]*Spec)}
	for _, entry := range []struct {
		name       string
		policy     receipts.ResultPolicy
		schema     string
		positional []string
	}{
		{ToolSearchWeb, receipts.PolicyReferenceable, searchSchema, []string{"query", "top_k"}},
		{ToolSearchX, receipts.PolicyReferenceable, searchSchema, []string{"query", "top_k"}},
		{ToolLLMChat, receipts.PolicyLogOnly, llmChatSchema, []string{"messages", "model", "temperature", "max_tokens"}},
		{ToolTest, receipts.PolicyLogOnly, testToolSchema, []string{"echo"}},
	} {
		if err := c.add(entry.name, entry.policy, entry.schema, entry.positional); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) add(name string, policy receipts.ResultPolicy, schema string, positional []string) error {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://caster.schemas.local/tools/%s.schema.json", name)
	if err := compiler.AddResource(url, strings.NewReader(schema)); err != nil {
		return fmt.Errorf("tools: load schema for %s: %w", name, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("tools: compile schema for %s: %w", name, err)
	}
	c.specs[name] = &Spec{Name: name, Policy: policy, schema: compiled, positional: positional}
	return nil
}

// Lookup returns the spec for a tool, or ErrUnknownTool.
func (c *Catalog) Lookup(name string) (*Spec, error) {
	spec, ok := c.specs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return spec, nil
}

// Validate checks the tool name against the allow-list, binds positional
// arguments to their parameter names, and validates the bound argument map
// against the tool's schema. The bound map is what reaches the adapter.
func (c *Catalog) Validate(name string, args []any, kwargs map[string]any) (*Spec, map[string]any, error) {
	spec, err := c.Lookup(name)
	if err != nil {
		return nil, nil, err
	}
	bound, err := spec.bind(args, kwargs)
	if err != nil {
		return nil, nil, err
	}
	if err := spec.schema.Validate(normalize(bound)); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return spec, bound, nil
}

// bind merges positional args into the keyword map by parameter position.
func (s *Spec) bind(args []any, kwargs map[string]any) (map[string]any, error) {
	if len(args) > len(s.positional) {
		return nil, fmt.Errorf("%w: %s takes at most %d positional arguments, got %d",
			ErrInvalidArgs, s.Name, len(s.positional), len(args))
	}
	bound := make(map[string]any, len(args)+len(kwargs))
	for k, v := range kwargs {
		bound[k] = v
	}
	for i, v := range args {
		param := s.positional[i]
		if _, dup := bound[param]; dup {
			return nil, fmt.Errorf("%w: %s got %q both positionally and by keyword",
				ErrInvalidArgs, s.Name, param)
		}
		bound[param] = v
	}
	return bound, nil
}

// normalize rewrites Go-native numeric types into the json.Unmarshal shapes
// the schema validator expects. Arguments arriving from in-process callers
// may carry int where decoded JSON would carry float64.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return v
	}
}
