package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"nimbus/internal/domain"
)

// transportBuilder builds the client transport for a server config. Package-level
// var so tests can substitute an in-memory transport.
var transportBuilder = func(cfg domain.ServerConfig) mcp.Transport {
	return &mcp.StreamableClientTransport{Endpoint: cfg.URL}
}

// Adapter owns the MCP client session and the catalog snapshot fetched from it.
// The snapshot is immutable for the life of the session and shared read-only
// across turns.
type Adapter struct {
	session       session
	catalog       *domain.Catalog
	invokeTimeout time.Duration
	logger        *slog.Logger
}

// session is the slice of *mcp.ClientSession the adapter uses. Narrowed to an
// interface so tests can fail calls without a live transport.
type session interface {
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	Close() error
}

// Connect establishes the MCP session and fetches the catalog snapshot.
// Transport failure wraps domain.ErrConnection; a malformed descriptor set
// wraps domain.ErrProtocol. Both are fatal to the caller at startup.
func Connect(ctx context.Context, cfg domain.ServerConfig, logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "nimbus", Version: "dev"}, nil)

	connectCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, time.Duration(cfg.ConnectTimeout)*time.Millisecond)
		defer cancel()
	}

	cs, err := client.Connect(connectCtx, transportBuilder(cfg), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s: %v", domain.ErrConnection, cfg.URL, err)
	}

	cat, err := fetchCatalog(connectCtx, cs)
	if err != nil {
		_ = cs.Close()
		return nil, err
	}

	logger.Info("tool catalog fetched", "server", cfg.URL, "tools", cat.Names())

	return &Adapter{
		session:       cs,
		catalog:       cat,
		invokeTimeout: time.Duration(cfg.InvokeTimeout) * time.Millisecond,
		logger:        logger,
	}, nil
}

// fetchCatalog lists the server's tools and builds a validated snapshot.
func fetchCatalog(ctx context.Context, cs *mcp.ClientSession) (*domain.Catalog, error) {
	var descriptors []domain.ToolDescriptor
	for tool, err := range cs.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("%w: list tools: %v", domain.ErrConnection, err)
		}
		if tool.Name == "" {
			return nil, fmt.Errorf("%w: descriptor with empty name", domain.ErrProtocol)
		}
		schema, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("%w: schema for %q: %v", domain.ErrProtocol, tool.Name, err)
		}
		descriptors = append(descriptors, domain.ToolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		})
	}
	return domain.NewCatalog(descriptors)
}

// Catalog returns the snapshot fetched at connect time.
func (a *Adapter) Catalog() *domain.Catalog {
	return a.catalog
}

// Invoke implements domain.Invoker. Names absent from the snapshot fail fast
// without contacting the session; there is no implicit re-fetch.
func (a *Adapter) Invoke(ctx context.Context, name string, args map[string]any) domain.ToolResult {
	if !a.catalog.Has(name) {
		return domain.FailureResult(domain.FailUnknownTool, fmt.Sprintf("%v: %q", domain.ErrUnknownTool, name))
	}

	if a.invokeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.invokeTimeout)
		defer cancel()
	}

	a.logger.Info("invoking tool", "tool", name, "args", args)
	res, err := a.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return domain.FailureResult(domain.FailTransport, fmt.Sprintf("call %s: %v", name, err))
	}

	text := joinTextContent(res.Content)
	if res.IsError {
		return domain.FailureResult(domain.FailRemote, text)
	}
	return parseResultPayload(text)
}

// Close shuts down the session.
func (a *Adapter) Close() error {
	if a == nil || a.session == nil {
		return nil
	}
	return a.session.Close()
}

// joinTextContent concatenates the text blocks of a tool result.
func joinTextContent(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// parseResultPayload decodes the result text as a JSON object into flat fields.
// An object carrying an "error" key is a well-formed remote failure (the weather
// tool contract). Non-JSON text is preserved under a single "raw" field.
func parseResultPayload(text string) domain.ToolResult {
	var payload map[string]any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return domain.SuccessResult(map[string]string{"raw": text})
	}
	if msg, ok := payload["error"].(string); ok && msg != "" {
		return domain.FailureResult(domain.FailRemote, msg)
	}
	return domain.SuccessResult(domain.FlattenFields(payload))
}

var _ domain.Invoker = (*Adapter)(nil)
