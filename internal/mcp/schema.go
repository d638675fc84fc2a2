// Package mcp implements the Model Context Protocol server for the
// knowledge graph engine.
package mcp

import "encoding/json"

// Tool names exposed by the MCP server, one per facade.Engine operation
// (§6.2).
const (
	ToolBuild    = "kg.build"
	ToolStatus   = "kg.status"
	ToolRetrieve = "kg.retrieve"
	ToolExpand   = "kg.expand"
	ToolGet      = "kg.get"
	ToolSearch   = "kg.search"
	ToolRelated  = "kg.related"
	ToolOmitted  = "kg.omitted"
	ToolHistory  = "kg.history"
	ToolBlame    = "kg.blame"
	ToolDiff     = "kg.diff"
	ToolWatch    = "kg.watch"

	ToolConfirmRule  = "kg.rule.confirm"
	ToolCorrectRule  = "kg.rule.correct"
	ToolRejectRule   = "kg.rule.reject"
	ToolDeprecateRule = "kg.rule.deprecate"

	ToolSnapshotCreate  = "kg.snapshot.create"
	ToolSnapshotCompare = "kg.snapshot.compare"
	ToolSnapshotRollback = "kg.snapshot.rollback_preview"
)

// Resource URI scheme: engine://chunks/{root-b64}/{chunk-id} addresses one
// stored chunk, with the project root base64url-encoded.
const (
	ResourceScheme = "engine"
	ResourceChunks = "chunks"
)

// BuildRequest is the input for kg.build.
type BuildRequest struct {
	Root         string   `json:"root"`
	Incremental  bool     `json:"incremental,omitempty"`
	ChangedFiles []string `json:"changed_files,omitempty"`
}

// BuildResponse mirrors facade.BuildResult.
type BuildResponse struct {
	Success        bool     `json:"success"`
	FilesProcessed int      `json:"files_processed"`
	ChunksCreated  int      `json:"chunks_created"`
	EdgesCreated   int      `json:"edges_created"`
	RulesProposed  int      `json:"rules_proposed"`
	DurationMS     int64    `json:"duration_ms"`
	Warnings       []string `json:"warnings,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// StatusRequest is the input for kg.status.
type StatusRequest struct {
	Root string `json:"root"`
}

// StatusResponse reports per-type chunk counts and rebuild state.
type StatusResponse struct {
	CountsByType map[string]int `json:"counts_by_type"`
	NeedsRebuild bool           `json:"needs_rebuild"`
}

// RetrieveRequest is the input for kg.retrieve (§4.7).
type RetrieveRequest struct {
	Root           string   `json:"root"`
	Task           string   `json:"task"`
	TokenBudget    int      `json:"token_budget,omitempty"`
	IncludeTypes   []string `json:"include_types,omitempty"`
	ExcludeTypes   []string `json:"exclude_types,omitempty"`
	IncludeTests   bool     `json:"include_tests,omitempty"`
	IncludeHistory bool     `json:"include_history,omitempty"`
	Compression    string   `json:"compression,omitempty"` // full, no_comments, signature_docstring, signature_only
	MaxHops        int      `json:"max_hops,omitempty"`
	Symbols        []string `json:"symbols,omitempty"`
	Files          []string `json:"files,omitempty"`
}

// ContextBundleResponse is a JSON-friendly rendering of model.ContextBundle:
// the markdown field is what an agent reads; the rest supports programmatic
// follow-up (kg.expand, kg.omitted).
type ContextBundleResponse struct {
	Markdown            string             `json:"markdown"`
	ChunkIDs            []string           `json:"chunk_ids"`
	TotalTokens         int                `json:"total_tokens"`
	TokenBudget         int                `json:"token_budget"`
	OmittedCount        int                `json:"omitted_count"`
	OmissionSummary     string             `json:"omission_summary,omitempty"`
	AvailableExpansions []ExpansionOption  `json:"available_expansions,omitempty"`
	RelatedTests        []string           `json:"related_tests,omitempty"`
	RelatedCommits      []string           `json:"related_commits,omitempty"`
	RelatedBusinessRules []string          `json:"related_business_rules,omitempty"`
	RetrievalTimeMS     int64              `json:"retrieval_time_ms"`
	Partial             bool               `json:"partial,omitempty"`
}

// ExpansionOption mirrors model.ExpansionOption.
type ExpansionOption struct {
	ChunkID       string `json:"chunk_id"`
	ExpansionType string `json:"expansion_type"`
	Description   string `json:"description"`
	TokenCost     int    `json:"token_cost"`
	Priority      int    `json:"priority"`
}

// ExpandRequest is the input for kg.expand (§4.7).
type ExpandRequest struct {
	Root          string `json:"root"`
	ChunkID       string `json:"chunk_id"`
	ExpansionType string `json:"expansion_type"` // dependencies, dependents, tests, omitted, all
	TokenBudget   int    `json:"token_budget,omitempty"`
}

// GetRequest is the input for kg.get.
type GetRequest struct {
	Root     string   `json:"root"`
	ChunkIDs []string `json:"chunk_ids"`
}

// ChunkResponse mirrors model.KnowledgeChunk's externally useful fields.
type ChunkResponse struct {
	ID         string   `json:"id"`
	ChunkType  string   `json:"chunk_type"`
	Content    string   `json:"content"`
	TokenCount int      `json:"token_count"`
	FilePath   string   `json:"file_path,omitempty"`
	LineStart  int      `json:"line_start,omitempty"`
	LineEnd    int      `json:"line_end,omitempty"`
	SymbolName string   `json:"symbol_name,omitempty"`
	Signature  string   `json:"signature,omitempty"`
	Docstring  string   `json:"docstring,omitempty"`
	Source     string   `json:"source"`
	Confidence float64  `json:"confidence"`
	Tags       []string `json:"tags,omitempty"`
}

// GetResponse is the output of kg.get.
type GetResponse struct {
	Chunks []ChunkResponse `json:"chunks"`
}

// SearchRequest is the input for kg.search: a bare BM25 query with no
// graph expansion or budget allocation, unlike kg.retrieve.
type SearchRequest struct {
	Root       string   `json:"root"`
	Query      string   `json:"query"`
	ChunkTypes []string `json:"chunk_types,omitempty"`
	Limit      int      `json:"limit,omitempty"`
}

// SearchResultItem is one ranked preview row.
type SearchResultItem struct {
	Chunk ChunkResponse `json:"chunk"`
	Score float64       `json:"score"`
}

// SearchResponse is the output of kg.search.
type SearchResponse struct {
	Results []SearchResultItem `json:"results"`
}

// RelatedRequest is the input for kg.related.
type RelatedRequest struct {
	Root          string   `json:"root"`
	ChunkID       string   `json:"chunk_id"`
	RelationTypes []string `json:"relation_types,omitempty"`
}

// RelatedResponse groups a chunk's graph neighbors by edge type and
// direction.
type RelatedResponse struct {
	Outgoing map[string][]string `json:"outgoing"`
	Incoming map[string][]string `json:"incoming"`
}

// OmittedRequest is the input for kg.omitted: a pure view over a prior
// kg.retrieve result's omission list, re-filtered/re-sorted.
type OmittedRequest struct {
	Omitted      []OmittedChunkItem `json:"omitted"`
	FilterReason string             `json:"filter_reason,omitempty"`
	FilterType   string             `json:"filter_type,omitempty"`
	SortBy       string             `json:"sort_by,omitempty"` // relevance (default) or tokens
}

// OmittedChunkItem mirrors model.OmittedChunk.
type OmittedChunkItem struct {
	ID             string  `json:"id"`
	ChunkType      string  `json:"chunk_type"`
	Reason         string  `json:"reason"`
	TokenCount     int     `json:"token_count"`
	RelevanceScore float64 `json:"relevance_score"`
	CanExpand      bool    `json:"can_expand"`
	FilePath       string  `json:"file_path,omitempty"`
	SymbolName     string  `json:"symbol_name,omitempty"`
}

// OmittedResponse is the output of kg.omitted.
type OmittedResponse struct {
	Filtered  []OmittedChunkItem `json:"filtered"`
	HighValue []OmittedChunkItem `json:"high_value"`
}

// RuleActionRequest is the shared input shape for the rule-lifecycle
// tools (kg.rule.confirm/correct/reject/deprecate, §4.9).
type RuleActionRequest struct {
	Root          string `json:"root"`
	RuleID        string `json:"rule_id"`
	ActorName     string `json:"actor_name,omitempty"`
	CorrectedText string `json:"corrected_text,omitempty"` // kg.rule.correct only
	Reason        string `json:"reason,omitempty"`         // kg.rule.reject only
}

// BusinessRuleResponse mirrors model.BusinessRule.
type BusinessRuleResponse struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Category   string `json:"category"`
	Status     string `json:"status"`
	SourceFile string `json:"source_file"`
	Confidence float64 `json:"confidence"`
}

// HistoryRequest is the input for kg.history.
type HistoryRequest struct {
	Root     string `json:"root"`
	FilePath string `json:"file_path"`
	Limit    int    `json:"limit,omitempty"`
}

// HistoryResponse is the output of kg.history.
type HistoryResponse struct {
	Commits []ChunkResponse `json:"commits"`
}

// BlameRequest is the input for kg.blame.
type BlameRequest struct {
	Root     string `json:"root"`
	FilePath string `json:"file_path"`
}

// BlameResponse is the output of kg.blame.
type BlameResponse struct {
	Blame string `json:"blame"`
}

// DiffRequest is the input for kg.diff.
type DiffRequest struct {
	Root string `json:"root"`
	From string `json:"from"`
	To   string `json:"to"`
}

// DiffResponse is the output of kg.diff.
type DiffResponse struct {
	Diff string `json:"diff"`
}

// WatchRequest is the input for kg.watch.
type WatchRequest struct {
	Root     string `json:"root"`
	Action   string `json:"action"` // start, stop, status
	Debounce string `json:"debounce,omitempty"`
}

// WatchResponse is the output of kg.watch.
type WatchResponse struct {
	Running         bool   `json:"running"`
	Root            string `json:"root"`
	ChangesDetected int    `json:"changes_detected"`
	BuildsTriggered int    `json:"builds_triggered"`
}

// SnapshotCreateRequest is the input for kg.snapshot.create.
type SnapshotCreateRequest struct {
	Root        string   `json:"root"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Type        string   `json:"type,omitempty"` // USER (default) or AGENT
	CreatedBy   string   `json:"created_by,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// SnapshotResponse mirrors model.Snapshot's externally useful fields.
type SnapshotResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Name      string `json:"name"`
	FileCount int    `json:"file_count"`
	GitCommit string `json:"git_commit,omitempty"`
}

// SnapshotCompareRequest is the input for kg.snapshot.compare.
type SnapshotCompareRequest struct {
	Root string `json:"root"`
	A    string `json:"snapshot_a"`
	B    string `json:"snapshot_b"`
}

// SnapshotCompareResponse mirrors timeline.Comparison.
type SnapshotCompareResponse struct {
	Added          []string `json:"added"`
	Removed        []string `json:"removed"`
	Modified       []string `json:"modified"`
	UnchangedCount int      `json:"unchanged_count"`
	Summary        string   `json:"summary"`
}

// SnapshotRollbackRequest is the input for kg.snapshot.rollback_preview.
type SnapshotRollbackRequest struct {
	Root     string `json:"root"`
	TargetID string `json:"target_id"`
}

// SnapshotRollbackResponse mirrors timeline.RollbackPlan.
type SnapshotRollbackResponse struct {
	ToRestore []string `json:"to_restore"`
	ToDelete  []string `json:"to_delete"`
	Unchanged int      `json:"unchanged"`
}

// ToolDefinition represents an MCP tool definition.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ResourceDefinition represents an MCP resource.
type ResourceDefinition struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// GetToolDefinitions returns all tool definitions for the MCP server
// (§6.2: one JSON-RPC tool per facade.Engine operation).
func GetToolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        ToolBuild,
			Description: "Runs a full or incremental knowledge graph build over a project root.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"root": {"type": "string", "description": "Absolute path to the project root"},
					"incremental": {"type": "boolean", "default": false},
					"changed_files": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["root"]
			}`),
		},
		{
			Name:        ToolStatus,
			Description: "Reports chunk counts by type and whether a rebuild is due.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"root": {"type": "string"}},
				"required": ["root"]
			}`),
		},
		{
			Name:        ToolRetrieve,
			Description: "Runs the seven-phase context retriever for a natural-language task, returning a token-budgeted bundle of relevant code, tests, commits, and rules.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"root": {"type": "string"},
					"task": {"type": "string", "description": "Natural language description of the work to be done"},
					"token_budget": {"type": "integer", "default": 8000},
					"include_types": {"type": "array", "items": {"type": "string"}},
					"exclude_types": {"type": "array", "items": {"type": "string"}},
					"include_tests": {"type": "boolean", "default": false},
					"include_history": {"type": "boolean", "default": false},
					"compression": {"type": "string", "enum": ["full", "no_comments", "signature_docstring", "signature_only"]},
					"max_hops": {"type": "integer", "default": 2},
					"symbols": {"type": "array", "items": {"type": "string"}},
					"files": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["root", "task"]
			}`),
		},
		{
			Name:        ToolExpand,
			Description: "Expands a previously retrieved chunk along one relation (dependencies, dependents, tests, omitted, or all).",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"root": {"type": "string"},
					"chunk_id": {"type": "string"},
					"expansion_type": {"type": "string", "enum": ["dependencies", "dependents", "tests", "omitted", "all"]},
					"token_budget": {"type": "integer"}
				},
				"required": ["root", "chunk_id", "expansion_type"]
			}`),
		},
		{
			Name:        ToolGet,
			Description: "Loads one or more chunks by id, in full.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"root": {"type": "string"},
					"chunk_ids": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["root", "chunk_ids"]
			}`),
		},
		{
			Name:        ToolSearch,
			Description: "Runs a bare BM25 full-text search with no graph expansion or budget allocation.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"root": {"type": "string"},
					"query": {"type": "string"},
					"chunk_types": {"type": "array", "items": {"type": "string"}},
					"limit": {"type": "integer", "default": 20, "maximum": 100}
				},
				"required": ["root", "query"]
			}`),
		},
		{
			Name:        ToolRelated,
			Description: "Reports a chunk's graph neighbors grouped by edge type and direction.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"root": {"type": "string"},
					"chunk_id": {"type": "string"},
					"relation_types": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["root", "chunk_id"]
			}`),
		},
		{
			Name:        ToolOmitted,
			Description: "Re-filters and re-sorts a prior kg.retrieve call's omission list.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"omitted": {"type": "array", "items": {"type": "object"}},
					"filter_reason": {"type": "string"},
					"filter_type": {"type": "string"},
					"sort_by": {"type": "string", "enum": ["relevance", "tokens"]}
				},
				"required": ["omitted"]
			}`),
		},
		{
			Name:        ToolHistory,
			Description: "Lists commits that touched a file, most recent first.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"root": {"type": "string"},
					"file_path": {"type": "string"},
					"limit": {"type": "integer"}
				},
				"required": ["root", "file_path"]
			}`),
		},
		{
			Name:        ToolBlame,
			Description: "Returns blame output for a file at HEAD.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"root": {"type": "string"},
					"file_path": {"type": "string"}
				},
				"required": ["root", "file_path"]
			}`),
		},
		{
			Name:        ToolDiff,
			Description: "Returns the unified diff between two commit-ish refs.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"root": {"type": "string"},
					"from": {"type": "string"},
					"to": {"type": "string"}
				},
				"required": ["root", "from", "to"]
			}`),
		},
		{
			Name:        ToolWatch,
			Description: "Starts, stops, or reports the status of the project's file watcher, which triggers incremental rebuilds on change.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"root": {"type": "string"},
					"action": {"type": "string", "enum": ["start", "stop", "status"]},
					"debounce": {"type": "string", "description": "Go duration string, e.g. \"500ms\""}
				},
				"required": ["root", "action"]
			}`),
		},
		{
			Name:        ToolConfirmRule,
			Description: "Confirms a proposed business rule as accurate, recording a VALIDATES edge.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"root": {"type": "string"},
					"rule_id": {"type": "string"},
					"actor_name": {"type": "string"}
				},
				"required": ["root", "rule_id"]
			}`),
		},
		{
			Name:        ToolCorrectRule,
			Description: "Replaces a proposed business rule's text with a corrected version.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"root": {"type": "string"},
					"rule_id": {"type": "string"},
					"corrected_text": {"type": "string"},
					"actor_name": {"type": "string"}
				},
				"required": ["root", "rule_id", "corrected_text"]
			}`),
		},
		{
			Name:        ToolRejectRule,
			Description: "Rejects a proposed business rule as inaccurate.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"root": {"type": "string"},
					"rule_id": {"type": "string"},
					"reason": {"type": "string"},
					"actor_name": {"type": "string"}
				},
				"required": ["root", "rule_id", "reason"]
			}`),
		},
		{
			Name:        ToolDeprecateRule,
			Description: "Marks a previously confirmed business rule as no longer in effect.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"root": {"type": "string"},
					"rule_id": {"type": "string"}
				},
				"required": ["root", "rule_id"]
			}`),
		},
		{
			Name:        ToolSnapshotCreate,
			Description: "Records an immutable point-in-time snapshot of tracked file state.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"root": {"type": "string"},
					"name": {"type": "string"},
					"description": {"type": "string"},
					"type": {"type": "string", "enum": ["USER", "AGENT"], "default": "USER"},
					"created_by": {"type": "string"},
					"tags": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["root", "name"]
			}`),
		},
		{
			Name:        ToolSnapshotCompare,
			Description: "Computes added/removed/modified files between two snapshots.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"root": {"type": "string"},
					"snapshot_a": {"type": "string"},
					"snapshot_b": {"type": "string"}
				},
				"required": ["root", "snapshot_a", "snapshot_b"]
			}`),
		},
		{
			Name:        ToolSnapshotRollback,
			Description: "Previews what rolling back to a target snapshot would change, without writing to disk.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"root": {"type": "string"},
					"target_id": {"type": "string"}
				},
				"required": ["root", "target_id"]
			}`),
		},
	}
}
