// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the life-event query engine to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/lifelog/internal/apperr"
	"github.com/starford/lifelog/internal/query"
)

// QueryFormatURI is the resource URI of the query format contract.
const QueryFormatURI = "lifelog://query-format"

// Engine is the query surface the tools call into.
type Engine interface {
	Query(ctx context.Context, req query.QueryRequest) (*query.Result, error)
	Aggregate(ctx context.Context, req query.AggregateRequest) (*query.AggregateResult, error)
}

// Server wraps the MCP server with the query tools.
type Server struct {
	mcp    *server.MCPServer
	engine Engine
	schema any
	logger *slog.Logger
}

// New creates a new MCP server with all query tools registered. schema is
// rendered as-is by describe_schema.
func New(engine Engine, schema any, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{engine: engine, schema: schema, logger: logger}

	s.mcp = server.NewMCPServer(
		"Lifelog",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("query",
		mcp.WithDescription("Find life events (or people and locations) matching structured filters. "+
			"Read the contract first via get_query_contract or the "+QueryFormatURI+" resource."),
		mcp.WithString("target_entity", mcp.Description("event (default), person or location")),
		mcp.WithObject("filters", mcp.Description(`Field filters, e.g. {"category": "work", "date_range": "this_week"}`)),
		mcp.WithArray("hydrate", mcp.WithStringItems(), mcp.Description("Relationships to attach: participants, location, tags, specialization, workout, meal, commute, sleep, reflection")),
		mcp.WithNumber("limit", mcp.Description("Maximum rows to return")),
		mcp.WithNumber("offset", mcp.Description("Rows to skip")),
		mcp.WithArray("order_by", mcp.WithStringItems(), mcp.Description(`Order terms such as "-start_time" or "title asc"`)),
		mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted rows")),
		mcp.WithBoolean("consistent", mcp.Description("Read rows and hydration from one read-only snapshot")),
	), s.runQuery)

	s.mcp.AddTool(mcp.NewTool("aggregate",
		mcp.WithDescription("Count, sum, average, min or max over filtered events, optionally grouped."),
		mcp.WithString("target_entity", mcp.Description("event (default), person or location")),
		mcp.WithObject("filters", mcp.Description("Same filter object as the query tool")),
		mcp.WithArray("group_by", mcp.WithStringItems(), mcp.Description(`Group keys, e.g. "category" or "start_time:month"`)),
		mcp.WithArray("metrics", mcp.Required(), mcp.WithStringItems(), mcp.Description(`Metrics, e.g. "count" or "sum:meal.calories"`)),
		mcp.WithArray("order_by", mcp.WithStringItems(), mcp.Description("Group keys or metrics to order by, prefix with - for descending")),
		mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted rows")),
	), s.runAggregate)

	s.mcp.AddTool(mcp.NewTool("describe_schema",
		mcp.WithDescription("List queryable entities with their fields, value sets and hydratable relationships."),
	), s.describeSchema)

	s.mcp.AddTool(mcp.NewTool("get_query_contract",
		mcp.WithDescription("Returns the query format contract. Call this before building filters."),
	), s.getQueryContract)

	s.mcp.AddResource(
		mcp.NewResource(QueryFormatURI, "Query Format Contract",
			mcp.WithResourceDescription("Filter, ordering, hydration and aggregation syntax."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readQueryFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) runQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in query.QueryRequest
	if err := decodeArgs(req, &in); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.engine.Query(ctx, in)
	if err != nil {
		return s.toolError("query", err), nil
	}
	return jsonResult(res)
}

func (s *Server) runAggregate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in query.AggregateRequest
	if err := decodeArgs(req, &in); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.engine.Aggregate(ctx, in)
	if err != nil {
		return s.toolError("aggregate", err), nil
	}
	return jsonResult(res)
}

func (s *Server) describeSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.schema)
}

func (s *Server) getQueryContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(QueryFormatContract), nil
}

func (s *Server) readQueryFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      QueryFormatURI,
			MIMEType: "text/markdown",
			Text:     QueryFormatContract,
		},
	}, nil
}

// decodeArgs maps the tool arguments onto a request struct by their JSON
// names.
func decodeArgs(req mcp.CallToolRequest, target any) error {
	raw, err := json.Marshal(req.GetArguments())
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// toolError renders caller errors with their field so the client can fix
// the request. Execution failures are logged and reported generically.
func (s *Server) toolError(op string, err error) *mcp.CallToolResult {
	var (
		ve *apperr.ValidationError
		nf *apperr.NotFoundError
	)
	body := map[string]string{"error": err.Error()}
	switch {
	case errors.As(err, &ve):
		body["field"] = ve.Field
	case errors.As(err, &nf):
		body["kind"] = nf.Kind
	default:
		s.logger.Error("tool failed", slog.String("tool", op), slog.String("error", err.Error()))
		body["error"] = op + " failed"
	}
	out, _ := json.Marshal(body)
	return mcp.NewToolResultError(string(out))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
