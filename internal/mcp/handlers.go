package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kgraph-dev/kgengine/internal/kg/facade"
	"github.com/kgraph-dev/kgengine/internal/kg/model"
	"github.com/kgraph-dev/kgengine/internal/kg/render"
	"github.com/kgraph-dev/kgengine/internal/kg/retrieve"
	"github.com/kgraph-dev/kgengine/internal/protocol"
)

// toRPCErr converts a facade/model-level *model.Error to the JSON-RPC error
// shape the teacher's handlers return; any other error is wrapped as
// InternalError.
func toRPCErr(err error) error {
	if err == nil {
		return nil
	}
	if kgErr, ok := err.(*model.Error); ok {
		code := protocol.InternalError
		switch kgErr.Kind {
		case model.ErrNotFound:
			code = protocol.InvalidParams
		case model.ErrMalformedInput:
			code = protocol.InvalidParams
		}
		return &protocol.Error{Code: code, Message: kgErr.Message}
	}
	return &protocol.Error{Code: protocol.InternalError, Message: err.Error()}
}

func badParams(err error) error {
	return &protocol.Error{Code: protocol.InvalidParams, Message: fmt.Sprintf("invalid parameters: %v", err)}
}

func toChunkResponse(c model.KnowledgeChunk) ChunkResponse {
	r := ChunkResponse{
		ID:         c.ID,
		ChunkType:  string(c.ChunkType),
		Content:    c.Content,
		TokenCount: c.TokenCount,
		Source:     string(c.Source),
		Confidence: c.Confidence,
		Tags:       c.Tags,
	}
	if c.FilePath != nil {
		r.FilePath = *c.FilePath
	}
	if c.LineStart != nil {
		r.LineStart = *c.LineStart
	}
	if c.LineEnd != nil {
		r.LineEnd = *c.LineEnd
	}
	if c.SymbolName != nil {
		r.SymbolName = *c.SymbolName
	}
	if c.Signature != nil {
		r.Signature = *c.Signature
	}
	if c.Docstring != nil {
		r.Docstring = *c.Docstring
	}
	return r
}

func toChunkResponses(cs []model.KnowledgeChunk) []ChunkResponse {
	out := make([]ChunkResponse, len(cs))
	for i, c := range cs {
		out[i] = toChunkResponse(c)
	}
	return out
}

func toExpansionOptions(opts []model.ExpansionOption) []ExpansionOption {
	out := make([]ExpansionOption, len(opts))
	for i, o := range opts {
		out[i] = ExpansionOption{
			ChunkID:       o.ChunkID,
			ExpansionType: string(o.ExpansionType),
			Description:   o.Description,
			TokenCost:     o.TokenCost,
			Priority:      o.Priority,
		}
	}
	return out
}

func toBundleResponse(bundle model.ContextBundle) ContextBundleResponse {
	ids := make([]string, len(bundle.Chunks))
	for i, c := range bundle.Chunks {
		ids[i] = c.ID
	}
	return ContextBundleResponse{
		Markdown:             render.Markdown(bundle),
		ChunkIDs:             ids,
		TotalTokens:          bundle.TotalTokens,
		TokenBudget:          bundle.TokenBudget,
		OmittedCount:         len(bundle.OmittedChunks),
		OmissionSummary:      bundle.OmissionSummary,
		AvailableExpansions:  toExpansionOptions(bundle.AvailableExpansions),
		RelatedTests:         bundle.RelatedTests,
		RelatedCommits:       bundle.RelatedCommits,
		RelatedBusinessRules: bundle.RelatedBusinessRules,
		RetrievalTimeMS:      bundle.RetrievalTimeMS,
		Partial:              bundle.Partial,
	}
}

func chunkTypesOf(names []string) []model.ChunkType {
	if names == nil {
		return nil
	}
	out := make([]model.ChunkType, len(names))
	for i, n := range names {
		out[i] = model.ChunkType(n)
	}
	return out
}

func edgeTypesOf(names []string) []model.EdgeType {
	if names == nil {
		return nil
	}
	out := make([]model.EdgeType, len(names))
	for i, n := range names {
		out[i] = model.EdgeType(n)
	}
	return out
}

func compressionOf(name string) model.CompressionLevel {
	switch name {
	case "no_comments":
		return model.NoComments
	case "signature_docstring":
		return model.SignatureDocstring
	case "signature_only":
		return model.SignatureOnly
	default:
		return model.Full
	}
}

func groupKeys(g map[model.EdgeType][]string) map[string][]string {
	out := make(map[string][]string, len(g))
	for k, v := range g {
		out[string(k)] = v
	}
	return out
}

// parseChunkURI splits an engine://chunks/{root-b64}/{chunk-id} resource
// URI. The root is base64url-encoded since project roots are filesystem
// paths and contain "/".
func parseChunkURI(uri string) (root, chunkID string, err error) {
	prefix := ResourceScheme + "://" + ResourceChunks + "/"
	if !strings.HasPrefix(uri, prefix) {
		return "", "", fmt.Errorf("unrecognized resource uri: %s", uri)
	}
	rest := strings.TrimPrefix(uri, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed resource uri: %s", uri)
	}
	rootBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[0], "="))
	if err != nil {
		return "", "", fmt.Errorf("malformed resource uri root: %s", uri)
	}
	return string(rootBytes), parts[1], nil
}

// handleBuild implements kg.build.
func (s *Server) handleBuild(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var req BuildRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, badParams(err)
	}
	if req.Root == "" {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: "root is required"}
	}

	eng, err := s.engineFor(req.Root)
	if err != nil {
		return nil, toRPCErr(err)
	}

	start := time.Now()
	result := eng.Build(ctx, req.Incremental, req.ChangedFiles)
	if s.logger != nil {
		mode := "full"
		if req.Incremental {
			mode = "incremental"
		}
		s.logger.LogBuildOperation(ctx, mode, req.Root, time.Since(start))
	}

	return BuildResponse{
		Success:        result.Success,
		FilesProcessed: result.FilesProcessed,
		ChunksCreated:  result.ChunksCreated,
		EdgesCreated:   result.EdgesCreated,
		RulesProposed:  result.RulesProposed,
		DurationMS:     result.DurationMS,
		Warnings:       result.Warnings,
		Error:          result.Error,
	}, nil
}

// handleStatus implements kg.status.
func (s *Server) handleStatus(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var req StatusRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, badParams(err)
	}
	eng, err := s.engineFor(req.Root)
	if err != nil {
		return nil, toRPCErr(err)
	}
	stats, err := eng.Status(ctx)
	if err != nil {
		return nil, toRPCErr(err)
	}
	counts := make(map[string]int, len(stats.CountsByType))
	for t, n := range stats.CountsByType {
		counts[string(t)] = n
	}
	return StatusResponse{CountsByType: counts, NeedsRebuild: stats.NeedsRebuild}, nil
}

// handleRetrieve implements kg.retrieve (§4.7).
func (s *Server) handleRetrieve(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var req RetrieveRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, badParams(err)
	}
	if req.Task == "" {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: "task is required"}
	}

	eng, err := s.engineFor(req.Root)
	if err != nil {
		return nil, toRPCErr(err)
	}

	budget := req.TokenBudget
	if budget == 0 {
		budget = 8000 // the token_budget default advertised in the kg.retrieve schema
	}

	opts := retrieve.Options{
		TokenBudget:    budget,
		IncludeTypes:   chunkTypesOf(req.IncludeTypes),
		ExcludeTypes:   chunkTypesOf(req.ExcludeTypes),
		IncludeTests:   req.IncludeTests,
		IncludeHistory: req.IncludeHistory,
		Compression:    compressionOf(req.Compression),
		MaxHops:        req.MaxHops,
		Symbols:        req.Symbols,
		Files:          req.Files,
	}

	start := time.Now()
	bundle, err := eng.Retrieve(ctx, req.Task, opts)
	if err != nil {
		return nil, toRPCErr(err)
	}
	if s.logger != nil {
		s.logger.LogRetrieve(ctx, req.Task, len(bundle.Chunks), len(bundle.OmittedChunks), time.Since(start))
	}
	return toBundleResponse(bundle), nil
}

// handleExpand implements kg.expand (§4.7).
func (s *Server) handleExpand(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var req ExpandRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, badParams(err)
	}
	if req.ChunkID == "" {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: "chunk_id is required"}
	}

	eng, err := s.engineFor(req.Root)
	if err != nil {
		return nil, toRPCErr(err)
	}

	bundle, err := eng.Expand(ctx, req.ChunkID, model.ExpansionType(req.ExpansionType), req.TokenBudget)
	if err != nil {
		return nil, toRPCErr(err)
	}
	return toBundleResponse(bundle), nil
}

// handleGet implements kg.get.
func (s *Server) handleGet(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var req GetRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, badParams(err)
	}
	eng, err := s.engineFor(req.Root)
	if err != nil {
		return nil, toRPCErr(err)
	}
	chunks, err := eng.Get(ctx, req.ChunkIDs)
	if err != nil {
		return nil, toRPCErr(err)
	}
	return GetResponse{Chunks: toChunkResponses(chunks)}, nil
}

// handleSearch implements kg.search.
func (s *Server) handleSearch(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var req SearchRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, badParams(err)
	}
	if req.Query == "" {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: "query is required"}
	}
	eng, err := s.engineFor(req.Root)
	if err != nil {
		return nil, toRPCErr(err)
	}
	results, err := eng.Search(ctx, req.Query, chunkTypesOf(req.ChunkTypes), req.Limit)
	if err != nil {
		return nil, toRPCErr(err)
	}
	out := make([]SearchResultItem, len(results))
	for i, r := range results {
		out[i] = SearchResultItem{Chunk: toChunkResponse(r.Chunk), Score: r.Score}
	}
	return SearchResponse{Results: out}, nil
}

// handleRelated implements kg.related.
func (s *Server) handleRelated(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var req RelatedRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, badParams(err)
	}
	eng, err := s.engineFor(req.Root)
	if err != nil {
		return nil, toRPCErr(err)
	}
	group, err := eng.Related(ctx, req.ChunkID, edgeTypesOf(req.RelationTypes))
	if err != nil {
		return nil, toRPCErr(err)
	}
	return RelatedResponse{Outgoing: groupKeys(group.Outgoing), Incoming: groupKeys(group.Incoming)}, nil
}

// handleOmitted implements kg.omitted: a pure view, no Engine needed.
func (s *Server) handleOmitted(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var req OmittedRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, badParams(err)
	}

	omitted := make([]model.OmittedChunk, len(req.Omitted))
	for i, o := range req.Omitted {
		oc := model.OmittedChunk{
			ID:             o.ID,
			ChunkType:      model.ChunkType(o.ChunkType),
			Reason:         model.OmissionReason(o.Reason),
			TokenCount:     o.TokenCount,
			RelevanceScore: o.RelevanceScore,
			CanExpand:      o.CanExpand,
		}
		if o.FilePath != "" {
			oc.FilePath = &o.FilePath
		}
		if o.SymbolName != "" {
			oc.SymbolName = &o.SymbolName
		}
		omitted[i] = oc
	}

	var filterReason *model.OmissionReason
	if req.FilterReason != "" {
		r := model.OmissionReason(req.FilterReason)
		filterReason = &r
	}
	var filterType *model.ChunkType
	if req.FilterType != "" {
		t := model.ChunkType(req.FilterType)
		filterType = &t
	}

	filtered, highValue := facade.FilterOmitted(omitted, filterReason, filterType, req.SortBy)
	return OmittedResponse{Filtered: toOmittedItems(filtered), HighValue: toOmittedItems(highValue)}, nil
}

func toOmittedItems(cs []model.OmittedChunk) []OmittedChunkItem {
	out := make([]OmittedChunkItem, len(cs))
	for i, c := range cs {
		item := OmittedChunkItem{
			ID:             c.ID,
			ChunkType:      string(c.ChunkType),
			Reason:         string(c.Reason),
			TokenCount:     c.TokenCount,
			RelevanceScore: c.RelevanceScore,
			CanExpand:      c.CanExpand,
		}
		if c.FilePath != nil {
			item.FilePath = *c.FilePath
		}
		if c.SymbolName != nil {
			item.SymbolName = *c.SymbolName
		}
		out[i] = item
	}
	return out
}

// handleHistory implements kg.history.
func (s *Server) handleHistory(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var req HistoryRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, badParams(err)
	}
	eng, err := s.engineFor(req.Root)
	if err != nil {
		return nil, toRPCErr(err)
	}
	commits, err := eng.History(ctx, req.FilePath, req.Limit)
	if err != nil {
		return nil, toRPCErr(err)
	}
	return HistoryResponse{Commits: toChunkResponses(commits)}, nil
}

// handleBlame implements kg.blame.
func (s *Server) handleBlame(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var req BlameRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, badParams(err)
	}
	eng, err := s.engineFor(req.Root)
	if err != nil {
		return nil, toRPCErr(err)
	}
	blame, err := eng.Blame(ctx, req.FilePath)
	if err != nil {
		return nil, toRPCErr(err)
	}
	return BlameResponse{Blame: blame}, nil
}

// handleDiff implements kg.diff.
func (s *Server) handleDiff(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var req DiffRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, badParams(err)
	}
	eng, err := s.engineFor(req.Root)
	if err != nil {
		return nil, toRPCErr(err)
	}
	diff, err := eng.Diff(ctx, req.From, req.To)
	if err != nil {
		return nil, toRPCErr(err)
	}
	return DiffResponse{Diff: diff}, nil
}

// handleWatch implements kg.watch.
func (s *Server) handleWatch(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var req WatchRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, badParams(err)
	}
	eng, err := s.engineFor(req.Root)
	if err != nil {
		return nil, toRPCErr(err)
	}

	debounce := 500 * time.Millisecond
	if req.Debounce != "" {
		if d, parseErr := time.ParseDuration(req.Debounce); parseErr == nil {
			debounce = d
		}
	}

	result, err := eng.Watch(facade.WatchAction(req.Action), debounce)
	if err != nil {
		return nil, toRPCErr(err)
	}
	return WatchResponse{
		Running:         result.Running,
		Root:            result.Root,
		ChangesDetected: result.Stats.ChangesDetected,
		BuildsTriggered: result.Stats.BuildsTriggered,
	}, nil
}

// handleRuleAction implements the kg.rule.* lifecycle tools (§4.9).
func (s *Server) handleRuleAction(ctx context.Context, toolName string, args json.RawMessage) (interface{}, error) {
	var req RuleActionRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, badParams(err)
	}
	if req.RuleID == "" {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: "rule_id is required"}
	}

	eng, err := s.engineFor(req.Root)
	if err != nil {
		return nil, toRPCErr(err)
	}

	var rule model.BusinessRule
	switch toolName {
	case ToolConfirmRule:
		rule, err = eng.ConfirmRule(ctx, req.RuleID, req.ActorName)
	case ToolCorrectRule:
		if req.CorrectedText == "" {
			return nil, &protocol.Error{Code: protocol.InvalidParams, Message: "corrected_text is required"}
		}
		rule, err = eng.CorrectRule(ctx, req.RuleID, req.CorrectedText, req.ActorName)
	case ToolRejectRule:
		rule, err = eng.RejectRule(ctx, req.RuleID, req.Reason, req.ActorName)
	case ToolDeprecateRule:
		rule, err = eng.DeprecateRule(ctx, req.RuleID)
	}
	if err != nil {
		return nil, toRPCErr(err)
	}
	return BusinessRuleResponse{
		ID:         rule.ID,
		Text:       rule.Text,
		Category:   string(rule.Category),
		Status:     string(rule.Status),
		SourceFile: rule.SourceFile,
		Confidence: rule.Confidence,
	}, nil
}

// handleSnapshotCreate implements kg.snapshot.create (§4.9).
func (s *Server) handleSnapshotCreate(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var req SnapshotCreateRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, badParams(err)
	}
	if req.Name == "" {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: "name is required"}
	}

	eng, err := s.engineFor(req.Root)
	if err != nil {
		return nil, toRPCErr(err)
	}

	snapType := model.SnapshotUser
	if req.Type == string(model.SnapshotAgent) {
		snapType = model.SnapshotAgent
	}

	snap, err := eng.CreateSnapshot(ctx, req.Name, req.Description, snapType, req.CreatedBy, req.Tags)
	if err != nil {
		return nil, toRPCErr(err)
	}
	return SnapshotResponse{
		ID:        snap.ID,
		Type:      string(snap.Type),
		Name:      snap.Name,
		FileCount: len(snap.Files),
		GitCommit: snap.GitCommit,
	}, nil
}

// handleSnapshotCompare implements kg.snapshot.compare.
func (s *Server) handleSnapshotCompare(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var req SnapshotCompareRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, badParams(err)
	}
	eng, err := s.engineFor(req.Root)
	if err != nil {
		return nil, toRPCErr(err)
	}
	cmp, err := eng.CompareSnapshots(ctx, req.A, req.B)
	if err != nil {
		return nil, toRPCErr(err)
	}
	return SnapshotCompareResponse{
		Added:          cmp.Added,
		Removed:        cmp.Removed,
		Modified:       cmp.Modified,
		UnchangedCount: cmp.UnchangedCount,
		Summary:        cmp.Summary,
	}, nil
}

// handleSnapshotRollback implements kg.snapshot.rollback_preview.
func (s *Server) handleSnapshotRollback(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var req SnapshotRollbackRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, badParams(err)
	}
	eng, err := s.engineFor(req.Root)
	if err != nil {
		return nil, toRPCErr(err)
	}
	plan, err := eng.PreviewRollback(ctx, req.TargetID)
	if err != nil {
		return nil, toRPCErr(err)
	}
	return SnapshotRollbackResponse{
		ToRestore: plan.ToRestore,
		ToDelete:  plan.ToDelete,
		Unchanged: plan.Unchanged,
	}, nil
}
