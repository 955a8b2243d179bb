package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tracelify/tracelify/internal/domain"
	"github.com/tracelify/tracelify/internal/service"
)

const protocolVersion = "2024-11-05"

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// Server implements the Model Context Protocol (MCP) server.
// It exposes the document index to external AI agents as tools.
type Server struct {
	ragService *service.RAGService
	port       string
	name       string
	version    string
}

// NewServer creates a new MCP server.
func NewServer(ragService *service.RAGService, port, name, version string) *Server {
	return &Server{
		ragService: ragService,
		port:       port,
		name:       name,
		version:    version,
	}
}

// Tool represents an MCP tool definition.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

// Handler returns the MCP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.handleRPC)
	mux.HandleFunc("/mcp/sse", s.handleSSE)
	return mux
}

// Start serves MCP on the configured port until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("MCP server starting", "port", s.port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, nil, codeParseError, "parse error")
		return
	}

	var result any
	var err error

	switch req.Method {
	case "tools/list":
		result = s.listTools()
	case "tools/call":
		result, err = s.callTool(r.Context(), req.Params)
	case "initialize":
		result = map[string]any{
			"protocolVersion": protocolVersion,
			"serverInfo": map[string]string{
				"name":    s.name,
				"version": s.version,
			},
			"capabilities": map[string]any{
				"tools": map[string]bool{"listChanged": false},
			},
		}
	case "ping":
		result = map[string]any{}
	default:
		writeError(w, req.ID, codeMethodNotFound, "method not found")
		return
	}

	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			writeError(w, req.ID, rpcErr.Code, rpcErr.Message)
			return
		}
		slog.Error("MCP tool failed", "method", req.Method, "error", err)
		writeError(w, req.ID, codeInternalError, publicMessage(err))
		return
	}

	writeResult(w, req.ID, result)
}

// publicMessage hides upstream causes from clients; they are only logged.
func publicMessage(err error) string {
	if errors.Is(err, domain.ErrCollaborator) {
		if errors.Is(err, context.DeadlineExceeded) {
			return "upstream timeout"
		}
		return "upstream error"
	}
	return "internal error"
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Send initial endpoint message
	fmt.Fprintf(w, "event: endpoint\ndata: /mcp\n\n")
	flusher.Flush()

	// Keep connection alive
	<-r.Context().Done()
}

func (s *Server) listTools() map[string]any {
	tools := []Tool{
		{
			Name:        "search_documents",
			Description: "Find the indexed document chunks most similar to a query",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "Search query"},
					"top_k": {"type": "integer", "description": "Number of chunks to return", "minimum": 1}
				},
				"required": ["query"]
			}`),
		},
		{
			Name:        "ask_documents",
			Description: "Answer a question from the indexed documents, citing the chunks used",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"question": {"type": "string", "description": "Question to answer"},
					"top_k": {"type": "integer", "description": "Number of context chunks", "minimum": 1}
				},
				"required": ["question"]
			}`),
		},
		{
			Name:        "list_chunks",
			Description: "List the stored chunks of a document in order",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"doc_id": {"type": "string", "description": "Document ID"}
				},
				"required": ["doc_id"]
			}`),
		},
	}
	return map[string]any{"tools": tools}
}

func (s *Server) callTool(ctx context.Context, params json.RawMessage) (any, error) {
	var req struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: "invalid params: " + err.Error()}
	}
	if len(req.Arguments) == 0 {
		req.Arguments = json.RawMessage("{}")
	}

	var (
		text       string
		structured any
		err        error
	)
	switch req.Name {
	case "search_documents":
		var args struct {
			Query string `json:"query"`
			TopK  int    `json:"top_k"`
		}
		if err := json.Unmarshal(req.Arguments, &args); err != nil {
			return nil, &RPCError{Code: codeInvalidParams, Message: "invalid arguments: " + err.Error()}
		}
		var results []domain.RetrievalResult
		results, err = s.ragService.Search(ctx, args.Query, args.TopK)
		if err == nil {
			text, structured = formatResults(results), map[string]any{"results": results}
		}

	case "ask_documents":
		var args struct {
			Question string `json:"question"`
			TopK     int    `json:"top_k"`
		}
		if err := json.Unmarshal(req.Arguments, &args); err != nil {
			return nil, &RPCError{Code: codeInvalidParams, Message: "invalid arguments: " + err.Error()}
		}
		var answer *domain.CitedAnswer
		answer, err = s.ragService.Ask(ctx, args.Question, args.TopK)
		if err == nil {
			text, structured = formatAnswer(answer), answer
		}

	case "list_chunks":
		var args struct {
			DocID string `json:"doc_id"`
		}
		if err := json.Unmarshal(req.Arguments, &args); err != nil {
			return nil, &RPCError{Code: codeInvalidParams, Message: "invalid arguments: " + err.Error()}
		}
		var chunks []domain.Chunk
		chunks, err = s.ragService.DocumentChunks(ctx, args.DocID)
		if err == nil {
			text, structured = formatChunks(chunks), map[string]any{"doc_id": args.DocID, "chunks": chunks}
		}

	default:
		return nil, &RPCError{Code: codeInvalidParams, Message: "unknown tool: " + req.Name}
	}

	if err != nil {
		return toolError(err)
	}
	return map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": text},
		},
		"structuredContent": structured,
	}, nil
}

// toolError reports caller mistakes inside the tool result, as MCP clients
// expect, and everything else as a JSON-RPC error.
func toolError(err error) (any, error) {
	switch domain.KindOf(err) {
	case domain.KindConfig, domain.KindInvalidInput, domain.KindNotFound:
		return map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": err.Error()},
			},
			"isError": true,
		}, nil
	}
	return nil, err
}

func formatResults(results []domain.RetrievalResult) string {
	if len(results) == 0 {
		return "No matching chunks."
	}
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "%d. [%s] (score: %.3f)\n%s\n\n", r.Rank, r.Chunk.ID, r.Score, r.Chunk.Text)
	}
	return strings.TrimSpace(b.String())
}

func formatAnswer(a *domain.CitedAnswer) string {
	if len(a.Citations) == 0 {
		return a.Answer
	}
	return a.Answer + "\n\nSources: " + strings.Join(a.Citations, ", ")
}

func formatChunks(chunks []domain.Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		fmt.Fprintf(&b, "[%s] %d-%d\n%s\n\n", c.ID, c.Start, c.End, c.Text)
	}
	return strings.TrimSpace(b.String())
}

func writeResult(w http.ResponseWriter, id any, result any) {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, id any, code int, message string) {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
