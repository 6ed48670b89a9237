package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/howdo/internal/metrics"
	"github.com/kalambet/howdo/internal/prerender"
	"github.com/kalambet/howdo/internal/render"
	"github.com/kalambet/howdo/internal/storage"
)

const documentTypesURI = "howdo://document-types"

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store      Store
	Renderer   DocumentRenderer
	Jobs       prerender.Enqueuer // optional
	Renditions RenditionStore     // optional
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Version    string
}

func (d MCPDeps) documents() documents {
	return AppDeps{
		Store:      d.Store,
		Renderer:   d.Renderer,
		Jobs:       d.Jobs,
		Renditions: d.Renditions,
		Metrics:    d.Metrics,
		Logger:     d.Logger,
	}.documents()
}

// NewMCPServer creates an MCP server with the document tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	docs := deps.documents()

	s := server.NewMCPServer(
		"howdo",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("howdo turns questionnaire answers into operating cards, work instructions and procedure standards."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_document_types",
			mcp.WithDescription("List the document types that can be generated, with their step limits."),
		),
		mcpListDocumentTypes(),
	)

	s.AddTool(
		mcp.NewTool("list_documents",
			mcp.WithDescription("List a user's documents, newest first."),
			mcp.WithString("user_id", mcp.Description("Owner user ID"), mcp.Required()),
		),
		mcpListDocuments(docs),
	)

	s.AddTool(
		mcp.NewTool("create_document",
			mcp.WithDescription("Create a document from wizard answers (keys q1..q8 or company, businessArea, processName, audience, goal, steps, resources, results)."),
			mcp.WithString("user_id", mcp.Description("Owner user ID"), mcp.Required()),
			mcp.WithString("document_type", mcp.Description("sok, instruction or procedure (default sok)")),
			mcp.WithObject("answers", mcp.Description("Wizard answers as an object or a JSON string"), mcp.Required()),
		),
		mcpCreateDocument(docs),
	)

	s.AddTool(
		mcp.NewTool("preview_document",
			mcp.WithDescription("Render a document as HTML."),
			mcp.WithString("document_id", mcp.Description("Document ID"), mcp.Required()),
		),
		mcpPreviewDocument(docs),
	)

	s.AddResource(
		mcp.NewResource(
			documentTypesURI,
			"Document Types",
			mcp.WithResourceDescription("Supported document types as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceDocumentTypes(),
	)

	return s
}

func mcpListDocumentTypes() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(documentTypes())
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal document types: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListDocuments(docs documents) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil || !validID(userID) {
			return mcpError("user_id is required"), nil
		}

		list, err := docs.store.ListDocumentsForUser(userID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list documents: %v", err)), nil
		}
		b, err := json.Marshal(summarize(list))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal documents: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpCreateDocument(docs documents) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil || !validID(userID) {
			return mcpError("user_id is required"), nil
		}
		raw, err := answersArgument(req.GetArguments()["answers"])
		if err != nil {
			return mcpError(err.Error()), nil
		}

		doc, err := docs.create(userID, raw, req.GetString("document_type", ""))
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return mcpError(fmt.Sprintf("user %s not found", userID)), nil
		case err != nil:
			return mcpError(fmt.Sprintf("failed to create document: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Created document %s (%s)", doc.ID, doc.Title)), nil
	}
}

func mcpPreviewDocument(docs documents) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("document_id")
		if err != nil {
			return mcpError("document_id is required"), nil
		}

		doc, err := docs.store.GetDocument(id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("document %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load document: %v", err)), nil
		}
		out, err := docs.export(ctx, doc, render.FormatHTML)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to render document: %v", err)), nil
		}
		return mcpText(string(out.Data)), nil
	}
}

func mcpResourceDocumentTypes() server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(documentTypes())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal document types: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// answersArgument accepts the answers either as an object or as a JSON
// encoded string, since not every client can send nested objects.
func answersArgument(v any) (map[string]any, error) {
	switch val := v.(type) {
	case map[string]any:
		if len(val) == 0 {
			return nil, errors.New("answers are required")
		}
		return val, nil
	case string:
		var raw map[string]any
		if err := json.Unmarshal([]byte(val), &raw); err != nil {
			return nil, fmt.Errorf("invalid answers JSON: %v", err)
		}
		if len(raw) == 0 {
			return nil, errors.New("answers are required")
		}
		return raw, nil
	default:
		return nil, errors.New("answers are required")
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
