package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kgraph-dev/kgengine/internal/auth"
	"github.com/kgraph-dev/kgengine/internal/kg/analyzer"
	"github.com/kgraph-dev/kgengine/internal/kg/facade"
	"github.com/kgraph-dev/kgengine/internal/kg/retrieve"
	"github.com/kgraph-dev/kgengine/internal/observability"
	"github.com/kgraph-dev/kgengine/internal/protocol"
)

// Server implements the MCP protocol server over the knowledge graph
// engine. Per §6.1 ("one SQLite database per project root"), it keeps one
// facade.Engine per root path seen in a request, opened lazily on first
// use.
type Server struct {
	registry      *analyzer.Registry
	cache         *retrieve.ResultCache
	dbDirName     string // relative subdirectory of root holding knowledge_graph.db
	logger        *observability.Logger
	authenticator auth.Authenticator // nil when cfg.Auth.Enabled == false
	jsonrpcSrv    *protocol.Server

	mu      sync.Mutex
	engines map[string]*facade.Engine
}

// NewServer creates a new MCP server. cacheClient may be nil, in which case
// retrieval results are cached in process memory instead of Redis (§4.7
// cache-then-compute).
// authenticator may be nil to leave the tool surface unauthenticated
// (the default for stdio/local use).
func NewServer(reader io.Reader, writer io.Writer, cacheClient *redis.Client, logger *observability.Logger, authenticator auth.Authenticator) *Server {
	s := &Server{
		registry:      analyzer.NewRegistry(),
		cache:         retrieve.NewResultCache(cacheClient, 5*time.Minute),
		dbDirName:     ".kgengine",
		logger:        logger,
		authenticator: authenticator,
		engines:       map[string]*facade.Engine{},
	}
	s.jsonrpcSrv = protocol.NewServer(reader, writer, s)
	return s
}

// engineFor returns (opening if necessary) the Engine for root.
func (s *Server) engineFor(root string) (*facade.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if eng, ok := s.engines[root]; ok {
		return eng, nil
	}
	dbPath := filepath.Join(root, s.dbDirName, "knowledge_graph.db")
	eng, err := facade.Open(root, dbPath, s.registry, s.cache)
	if err != nil {
		return nil, err
	}
	s.engines[root] = eng
	return eng, nil
}

// Handle implements protocol.Handler.
func (s *Server) Handle(method string, params json.RawMessage) (interface{}, error) {
	ctx := context.Background()
	start := time.Now()

	result, err := s.dispatch(ctx, method, params)

	if s.logger != nil {
		if err != nil {
			s.logger.LogMCPError(ctx, method, err, time.Since(start))
		} else {
			s.logger.LogMCPResponse(ctx, method, true, time.Since(start))
		}
	}
	return result, err
}

func (s *Server) dispatch(ctx context.Context, method string, params json.RawMessage) (interface{}, error) {
	switch method {
	case "tools/list":
		return s.handleToolsList(ctx)
	case "tools/call":
		return s.handleToolsCall(ctx, params)
	case "resources/list":
		return s.handleResourcesList(ctx, params)
	case "resources/read":
		return s.handleResourcesRead(ctx, params)
	default:
		return nil, &protocol.Error{
			Code:    protocol.MethodNotFound,
			Message: fmt.Sprintf("method not found: %s", method),
		}
	}
}

// Serve starts the MCP server (blocking).
func (s *Server) Serve() error {
	return s.jsonrpcSrv.Serve()
}

// Close releases every open project engine.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for root, eng := range s.engines {
		if err := eng.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close engine for %s: %w", root, err)
		}
	}
	return firstErr
}

// handleToolsList returns the list of available tools.
func (s *Server) handleToolsList(ctx context.Context) (interface{}, error) {
	return map[string]interface{}{
		"tools": GetToolDefinitions(),
	}, nil
}

// ToolCallRequest represents a tool call request.
type ToolCallRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall dispatches a tool call to the facade operation it names.
func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req ToolCallRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, &protocol.Error{
			Code:    protocol.InvalidParams,
			Message: fmt.Sprintf("invalid parameters: %v", err),
		}
	}

	if err := authorize(ctx, s.authenticator, req.Name); err != nil {
		return nil, err
	}

	switch req.Name {
	case ToolBuild:
		return s.handleBuild(ctx, req.Arguments)
	case ToolStatus:
		return s.handleStatus(ctx, req.Arguments)
	case ToolRetrieve:
		return s.handleRetrieve(ctx, req.Arguments)
	case ToolExpand:
		return s.handleExpand(ctx, req.Arguments)
	case ToolGet:
		return s.handleGet(ctx, req.Arguments)
	case ToolSearch:
		return s.handleSearch(ctx, req.Arguments)
	case ToolRelated:
		return s.handleRelated(ctx, req.Arguments)
	case ToolOmitted:
		return s.handleOmitted(ctx, req.Arguments)
	case ToolHistory:
		return s.handleHistory(ctx, req.Arguments)
	case ToolBlame:
		return s.handleBlame(ctx, req.Arguments)
	case ToolDiff:
		return s.handleDiff(ctx, req.Arguments)
	case ToolWatch:
		return s.handleWatch(ctx, req.Arguments)
	case ToolConfirmRule, ToolCorrectRule, ToolRejectRule, ToolDeprecateRule:
		return s.handleRuleAction(ctx, req.Name, req.Arguments)
	case ToolSnapshotCreate:
		return s.handleSnapshotCreate(ctx, req.Arguments)
	case ToolSnapshotCompare:
		return s.handleSnapshotCompare(ctx, req.Arguments)
	case ToolSnapshotRollback:
		return s.handleSnapshotRollback(ctx, req.Arguments)
	default:
		return nil, &protocol.Error{
			Code:    protocol.MethodNotFound,
			Message: fmt.Sprintf("unknown tool: %s", req.Name),
		}
	}
}

// ResourcesListRequest represents a resources/list request.
type ResourcesListRequest struct {
	Root string `json:"root,omitempty"`
}

// handleResourcesList returns the single engine://chunks/ resource entry;
// individual chunks are not enumerated and are read through resources/read.
// The optional root parameter is parsed but not used.
func (s *Server) handleResourcesList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req ResourcesListRequest
	if len(params) > 0 {
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, &protocol.Error{Code: protocol.InvalidParams, Message: fmt.Sprintf("invalid parameters: %v", err)}
		}
	}
	return map[string]interface{}{
		"resources": []ResourceDefinition{
			{
				URI:         fmt.Sprintf("%s://%s/", ResourceScheme, ResourceChunks),
				Name:        "Knowledge graph chunks",
				Description: "Browse indexed chunks by id via resources/read",
				MimeType:    "application/json",
			},
		},
	}, nil
}

// ResourcesReadRequest represents a resources/read request, where URI is
// engine://chunks/{root-encoded}/{chunk-id}.
type ResourcesReadRequest struct {
	URI string `json:"uri"`
}

// handleResourcesRead loads a single chunk addressed by URI.
func (s *Server) handleResourcesRead(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req ResourcesReadRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: fmt.Sprintf("invalid parameters: %v", err)}
	}

	root, chunkID, err := parseChunkURI(req.URI)
	if err != nil {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: err.Error()}
	}

	eng, err := s.engineFor(root)
	if err != nil {
		return nil, &protocol.Error{Code: protocol.InternalError, Message: err.Error()}
	}
	chunks, err := eng.Get(ctx, []string{chunkID})
	if err != nil {
		return nil, &protocol.Error{Code: protocol.InternalError, Message: err.Error()}
	}
	if len(chunks) == 0 {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: fmt.Sprintf("chunk %s not found", chunkID)}
	}

	body, err := json.Marshal(toChunkResponse(chunks[0]))
	if err != nil {
		return nil, &protocol.Error{Code: protocol.InternalError, Message: err.Error()}
	}

	return map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"uri":      req.URI,
				"mimeType": "application/json",
				"text":     string(body),
			},
		},
	}, nil
}
