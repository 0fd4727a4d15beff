package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"nimbus/internal/domain"
)

// Dispatcher takes a resolved tool call, coerces its loosely-typed arguments
// to the declared parameter types, validates them against the descriptor's
// JSON Schema, and only then forwards to the session. Validation failure never
// reaches the remote.
type Dispatcher struct {
	invoker domain.Invoker
	catalog *domain.Catalog
}

// NewDispatcher creates a dispatcher over the given session and catalog
// snapshot. Panics if either is nil.
func NewDispatcher(invoker domain.Invoker, catalog *domain.Catalog) *Dispatcher {
	if invoker == nil {
		panic("dispatcher: invoker must not be nil")
	}
	if catalog == nil {
		panic("dispatcher: catalog must not be nil")
	}
	return &Dispatcher{invoker: invoker, catalog: catalog}
}

// Dispatch executes the request. Unknown tool names are rejected here (not
// silently dropped) without contacting the session.
func (d *Dispatcher) Dispatch(ctx context.Context, req *domain.ToolCallRequest) domain.ToolResult {
	descriptor, ok := d.catalog.Get(req.Name)
	if !ok {
		return domain.FailureResult(domain.FailUnknownTool, fmt.Sprintf("%v: %q", domain.ErrUnknownTool, req.Name))
	}

	coerced, err := coerceArguments(req.Arguments, descriptor.InputSchema)
	if err != nil {
		return domain.FailureResult(domain.FailValidation, err.Error())
	}

	if err := validateAgainstSchema(coerced, descriptor.InputSchema); err != nil {
		return domain.FailureResult(domain.FailValidation, err.Error())
	}

	return d.invoker.Invoke(ctx, req.Name, coerced)
}

// schemaProperty is the slice of a JSON Schema property the coercer needs.
type schemaProperty struct {
	Type string `json:"type"`
}

// coerceArguments converts string-typed values (as produced by the rule
// extractor) to each parameter's declared type. Parameters without a declared
// type pass through unchanged.
func coerceArguments(args map[string]any, schema json.RawMessage) (map[string]any, error) {
	var shape struct {
		Properties map[string]schemaProperty `json:"properties"`
	}
	if err := json.Unmarshal(schema, &shape); err != nil {
		return nil, fmt.Errorf("unparsable parameter schema: %w", err)
	}

	coerced := make(map[string]any, len(args))
	for name, value := range args {
		prop, declared := shape.Properties[name]
		if !declared {
			coerced[name] = value
			continue
		}
		v, err := coerceValue(value, prop.Type)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		coerced[name] = v
	}
	return coerced, nil
}

// coerceValue converts a single value to the declared JSON Schema type.
// Numbers use float64 so the result matches encoding/json's decoding.
func coerceValue(value any, declaredType string) (any, error) {
	switch declaredType {
	case "string":
		switch v := value.(type) {
		case string:
			return v, nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case bool:
			return strconv.FormatBool(v), nil
		default:
			return nil, fmt.Errorf("cannot coerce %T to string", value)
		}
	case "number":
		switch v := value.(type) {
		case float64:
			return v, nil
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("cannot coerce %q to number", v)
			}
			return f, nil
		default:
			return nil, fmt.Errorf("cannot coerce %T to number", value)
		}
	case "integer":
		switch v := value.(type) {
		case float64:
			if v != float64(int64(v)) {
				return nil, fmt.Errorf("value %v is not an integer", v)
			}
			return v, nil
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("cannot coerce %q to integer", v)
			}
			return float64(n), nil
		default:
			return nil, fmt.Errorf("cannot coerce %T to integer", value)
		}
	case "boolean":
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("cannot coerce %q to boolean", v)
			}
			return b, nil
		default:
			return nil, fmt.Errorf("cannot coerce %T to boolean", value)
		}
	case "":
		return value, nil
	default:
		return value, nil
	}
}

// validateAgainstSchema validates the coerced arguments against the tool's
// JSON Schema. Arguments are round-tripped through JSON so the validator sees
// exactly what the wire will carry.
func validateAgainstSchema(args map[string]any, schemaStr json.RawMessage) error {
	schema, err := jsonschema.CompileString("", string(schemaStr))
	if err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal arguments: %w", err)
	}
	var wire any
	if err := json.Unmarshal(raw, &wire); err != nil {
		return fmt.Errorf("round-trip arguments: %w", err)
	}

	if err := schema.Validate(wire); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
