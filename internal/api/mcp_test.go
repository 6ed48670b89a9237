package api

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/howdo/internal/layout"
	"github.com/kalambet/howdo/internal/render"
	"github.com/kalambet/howdo/internal/storage"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	layouts, err := layout.Default()
	if err != nil {
		t.Fatalf("loading layouts: %v", err)
	}
	if err := store.CreateUser(storage.User{ID: "u1", Email: "ann@example.com", PasswordHash: "x"}); err != nil {
		t.Fatalf("creating user: %v", err)
	}

	return MCPDeps{
		Store:    store,
		Renderer: render.New(layouts, render.Options{}),
	}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_CreateDocument(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpCreateDocument(deps.documents())

	req := makeCallToolRequest("create_document", map[string]interface{}{
		"user_id":       "u1",
		"document_type": "procedure",
		"answers": map[string]interface{}{
			"company":     "Acme",
			"processName": "Приёмка",
			"steps":       "Проверить накладную; Принять товар",
		},
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if !strings.Contains(toolText(t, result), "Стандарт процедуры: Приёмка") {
		t.Fatalf("unexpected response: %s", toolText(t, result))
	}

	docs, err := store.ListDocumentsForUser("u1")
	if err != nil {
		t.Fatalf("listing docs: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 doc, got %d", len(docs))
	}
	if docs[0].Type != "procedure" || docs[0].Answers.Company != "Acme" {
		t.Fatalf("unexpected doc: %+v", docs[0])
	}
}

func TestMCPTool_CreateDocument_AnswersAsString(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpCreateDocument(deps.documents())

	req := makeCallToolRequest("create_document", map[string]interface{}{
		"user_id": "u1",
		"answers": `{"q1":"Acme","q3":"Сборка"}`,
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	docs, _ := store.ListDocumentsForUser("u1")
	if len(docs) != 1 || docs[0].Type != "sok" {
		t.Fatalf("expected one sok document, got %+v", docs)
	}
}

func TestMCPTool_CreateDocument_Errors(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpCreateDocument(deps.documents())

	cases := map[string]map[string]interface{}{
		"missing user":    {"answers": map[string]interface{}{"q1": "x"}},
		"unknown user":    {"user_id": "ghost", "answers": map[string]interface{}{"q1": "x"}},
		"missing answers": {"user_id": "u1"},
		"bad json":        {"user_id": "u1", "answers": "{not json"},
		"unknown type":    {"user_id": "u1", "document_type": "memo", "answers": map[string]interface{}{"q1": "x"}},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			result, err := handler(context.Background(), makeCallToolRequest("create_document", args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.IsError {
				t.Fatalf("expected error result, got %s", toolText(t, result))
			}
		})
	}

	docs, _ := store.ListDocumentsForUser("u1")
	if len(docs) != 0 {
		t.Fatalf("expected no documents, got %d", len(docs))
	}
}

func TestMCPTool_ListDocuments(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	docs := deps.documents()

	if _, err := docs.create("u1", map[string]any{"q1": "Acme"}, "sok"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := docs.create("u1", map[string]any{"q1": "Acme"}, "instruction"); err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := mcpListDocuments(docs)(context.Background(), makeCallToolRequest("list_documents", map[string]interface{}{
		"user_id": "u1",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var list []documentSummary
	if err := json.Unmarshal([]byte(toolText(t, result)), &list); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(list))
	}
	if list[0].Type != "instruction" {
		t.Fatalf("expected newest first, got %s", list[0].Type)
	}
}

func TestMCPTool_ListDocuments_Empty(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result, err := mcpListDocuments(deps.documents())(context.Background(), makeCallToolRequest("list_documents", map[string]interface{}{
		"user_id": "nobody",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text := toolText(t, result); text != "[]" {
		t.Fatalf("expected empty array, got: %s", text)
	}
}

func TestMCPTool_PreviewDocument(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	docs := deps.documents()

	doc, err := docs.create("u1", map[string]any{"q1": "Acme <Ltd>", "q6": "Шаг один"}, "instruction")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := mcpPreviewDocument(docs)(context.Background(), makeCallToolRequest("preview_document", map[string]interface{}{
		"document_id": doc.ID,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	text := toolText(t, result)
	if !strings.Contains(text, "Acme &lt;Ltd&gt;") {
		t.Fatalf("expected escaped company in preview")
	}
	if !strings.Contains(text, "Шаг один") {
		t.Fatalf("expected step in preview")
	}
}

func TestMCPTool_PreviewDocument_NotFound(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result, err := mcpPreviewDocument(deps.documents())(context.Background(), makeCallToolRequest("preview_document", map[string]interface{}{
		"document_id": "missing",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
}

func TestMCPTool_ListDocumentTypes(t *testing.T) {
	result, err := mcpListDocumentTypes()(context.Background(), makeCallToolRequest("list_document_types", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var types []documentType
	if err := json.Unmarshal([]byte(toolText(t, result)), &types); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(types) != 3 || types[0].Type != "sok" {
		t.Fatalf("unexpected types: %+v", types)
	}
}

func TestMCPResource_DocumentTypes(t *testing.T) {
	contents, err := mcpResourceDocumentTypes()(context.Background(), makeReadResourceRequest(documentTypesURI))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}

	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.URI != documentTypesURI || tc.MIMEType != "application/json" {
		t.Fatalf("unexpected resource metadata: %s %s", tc.URI, tc.MIMEType)
	}

	var types []documentType
	if err := json.Unmarshal([]byte(tc.Text), &types); err != nil {
		t.Fatalf("failed to parse document types JSON: %v", err)
	}
	if types[1].MaxSteps != 20 {
		t.Fatalf("expected instruction max_steps 20, got %d", types[1].MaxSteps)
	}
}

func TestMCPServer_Registers(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	if s := NewMCPServer(deps); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

func TestMCPServer_ConcurrentCalls(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	docs := deps.documents()

	createHandler := mcpCreateDocument(docs)
	listHandler := mcpListDocuments(docs)

	var wg sync.WaitGroup
	errs := make(chan error, 20)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := makeCallToolRequest("create_document", map[string]interface{}{
				"user_id": "u1",
				"answers": map[string]interface{}{"q1": "concurrent"},
			})
			if _, err := createHandler(context.Background(), req); err != nil {
				errs <- err
			}
		}()
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := makeCallToolRequest("list_documents", map[string]interface{}{
				"user_id": "u1",
			})
			if _, err := listHandler(context.Background(), req); err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent call failed: %v", err)
	}

	list, _ := store.ListDocumentsForUser("u1")
	if len(list) != 5 {
		t.Fatalf("expected 5 documents, got %d", len(list))
	}
}
