package weather

import (
	"context"
	"encoding/json"
	"fmt"

	invopopSchema "github.com/invopop/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// WeatherInput is the argument shape for the get_weather tool.
type WeatherInput struct {
	City string `json:"city" jsonschema:"title=City,description=City name to get weather for"`
}

// ForecastInput is the argument shape for the get_weather_forecast tool.
type ForecastInput struct {
	City string `json:"city" jsonschema:"title=City,description=City name to get the forecast for"`
	Days int    `json:"days,omitempty" jsonschema:"minimum=1,maximum=3,default=3,description=Number of forecast days (1-3)"`
}

// GenerateSchema reflects a JSON Schema from an input struct.
func GenerateSchema(input interface{}) (map[string]any, error) {
	reflector := invopopSchema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(input)

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var shape map[string]any
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return shape, nil
}

// RegisterTools adds the weather tools to an MCP server. Lookup failures are
// reported inside the result payload as an "error" field, so a bad city never
// turns into a protocol error.
func RegisterTools(server *mcp.Server, client *Client) error {
	weatherSchema, err := GenerateSchema(WeatherInput{})
	if err != nil {
		return fmt.Errorf("get_weather schema: %w", err)
	}
	forecastSchema, err := GenerateSchema(ForecastInput{})
	if err != nil {
		return fmt.Errorf("get_weather_forecast schema: %w", err)
	}

	server.AddTool(&mcp.Tool{
		Name:        "get_weather",
		Description: "Get current weather conditions for a city",
		InputSchema: weatherSchema,
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var input WeatherInput
		if err := json.Unmarshal(req.Params.Arguments, &input); err != nil {
			return nil, fmt.Errorf("decoding arguments: %w", err)
		}
		payload, err := client.Current(ctx, input.City)
		if err != nil {
			return textResult(errorPayload(fmt.Sprintf("Could not retrieve weather data for %s", input.City)))
		}
		return textResult(payload)
	})

	server.AddTool(&mcp.Tool{
		Name:        "get_weather_forecast",
		Description: "Get a multi-day weather forecast for a city (up to 3 days)",
		InputSchema: forecastSchema,
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var input ForecastInput
		if err := json.Unmarshal(req.Params.Arguments, &input); err != nil {
			return nil, fmt.Errorf("decoding arguments: %w", err)
		}
		payload, err := client.Forecast(ctx, input.City, input.Days)
		if err != nil {
			return textResult(errorPayload(fmt.Sprintf("Could not retrieve forecast data for %s", input.City)))
		}
		return textResult(payload)
	})

	return nil
}

func errorPayload(message string) map[string]any {
	return map[string]any{"error": message}
}

func textResult(payload map[string]any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(raw)}},
	}, nil
}
