package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"
)

// Func is a typed tool handler: Args is a plain struct carrying
// jsonschema struct tags that describe the tool's parameters to the
// LLM Gateway.
type Func[Args any] func(ctx context.Context, args Args) (string, error)

type functionTool[Args any] struct {
	name        string
	description string
	schema      map[string]any
	fn          Func[Args]
}

// NewFunctionTool builds a Tool from a typed Go function, generating its JSON
// schema from Args' struct tags so the schema the LLM sees can never
// drift from what the handler actually decodes.
func NewFunctionTool[Args any](name, description string, fn Func[Args]) (Tool, error) {
	schema, err := generateSchema[Args]()
	if err != nil {
		return nil, fmt.Errorf("generate schema for tool %q: %w", name, err)
	}
	return &functionTool[Args]{name: name, description: description, schema: schema, fn: fn}, nil
}

func (t *functionTool[Args]) Name() string           { return t.name }
func (t *functionTool[Args]) Description() string    { return t.description }
func (t *functionTool[Args]) Schema() map[string]any { return t.schema }

func (t *functionTool[Args]) Invoke(ctx context.Context, rawArgs map[string]any) (string, error) {
	var args Args
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &args,
	})
	if err != nil {
		return "", fmt.Errorf("build arg decoder: %w", err)
	}
	if err := decoder.Decode(rawArgs); err != nil {
		return "", fmt.Errorf("decode tool arguments: %w", err)
	}

	return t.fn(ctx, args)
}

// generateSchema reflects a JSON Schema from Args' struct tags,
// flattened to a plain object schema for direct LLM consumption.
func generateSchema[Args any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	schema := reflector.Reflect(new(Args))

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal reflected schema: %w", err)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal reflected schema: %w", err)
	}

	delete(result, "$schema")
	delete(result, "$id")
	return result, nil
}
