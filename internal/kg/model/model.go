// Package model defines the knowledge graph's core data types: chunks, edges,
// business rules, snapshots, and the result shapes returned by retrieval.
package model

import (
	"fmt"
	"time"
)

// ChunkType tags the kind of knowledge a KnowledgeChunk captures.
type ChunkType string

const (
	ChunkSourceFile     ChunkType = "source_file"
	ChunkFunction       ChunkType = "function"
	ChunkClass          ChunkType = "class"
	ChunkTest           ChunkType = "test"
	ChunkConfig         ChunkType = "config"
	ChunkMetadata       ChunkType = "metadata"
	ChunkContract       ChunkType = "contract"
	ChunkCommit         ChunkType = "commit"
	ChunkSnapshotUser   ChunkType = "snapshot_user"
	ChunkSnapshotAgent  ChunkType = "snapshot_agent"
	ChunkBusinessRule   ChunkType = "business_rule"
	ChunkAST            ChunkType = "ast"
	ChunkCallgraph      ChunkType = "callgraph"
	ChunkDependency     ChunkType = "dependency"
	ChunkError          ChunkType = "error"
	ChunkLog            ChunkType = "log"
)

// TypeOrder is the enum's declared order, used when grouping bundle content
// sections for markdown rendering (§6.2).
var TypeOrder = []ChunkType{
	ChunkSourceFile, ChunkFunction, ChunkClass, ChunkTest, ChunkConfig,
	ChunkMetadata, ChunkContract, ChunkCommit, ChunkSnapshotUser,
	ChunkSnapshotAgent, ChunkBusinessRule, ChunkAST, ChunkCallgraph,
	ChunkDependency, ChunkError, ChunkLog,
}

// EdgeType tags the directed, typed relation a ChunkEdge represents.
type EdgeType string

const (
	EdgeCalls        EdgeType = "calls"
	EdgeImports      EdgeType = "imports"
	EdgeInherits     EdgeType = "inherits"
	EdgeContains     EdgeType = "contains"
	EdgeTestedBy     EdgeType = "tested_by"
	EdgeImplements   EdgeType = "implements"
	EdgeValidates    EdgeType = "validates"
	EdgeModifiedIn   EdgeType = "modified_in"
	EdgePrecededBy   EdgeType = "preceded_by"
	EdgeConfiguredBy EdgeType = "configured_by"
	EdgeFailedAt     EdgeType = "failed_at"
)

// Source tags the provenance of a chunk.
type Source string

const (
	SourceAuto   Source = "auto"
	SourceGit    Source = "git"
	SourceHuman  Source = "human"
	SourceSystem Source = "system"
)

// KnowledgeChunk is the atomic unit of indexed knowledge (spec §3.1).
type KnowledgeChunk struct {
	ID                   string
	ChunkType            ChunkType
	Content              string
	ContentCompressed    *string
	TokenCount           int
	TokenCountCompressed int
	FilePath             *string
	LineStart            *int
	LineEnd              *int
	SymbolName           *string
	Signature            *string
	Docstring            *string
	Feature              *string
	Source               Source
	Confidence           float64
	Tags                 []string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	Extra                map[string]any
}

// ChunkEdge is a directed, typed, weighted relation between two chunk ids
// (spec §3.1).
type ChunkEdge struct {
	SourceID string
	TargetID string
	EdgeType EdgeType
	Weight   float64
	Metadata map[string]any
}

// OmissionReason explains why a candidate chunk was left out of a bundle.
type OmissionReason string

const (
	ReasonTokenBudget   OmissionReason = "token_budget"
	ReasonLowRelevance  OmissionReason = "low_relevance"
	ReasonLowPriority   OmissionReason = "low_priority"
	ReasonCompression   OmissionReason = "compression"
	ReasonExcludedType  OmissionReason = "excluded_type"
	ReasonMaxDepth      OmissionReason = "max_depth"
)

// OmittedChunk records one chunk the retriever considered but did not return.
type OmittedChunk struct {
	ID             string
	ChunkType      ChunkType
	Reason         OmissionReason
	TokenCount     int
	RelevanceScore float64
	CanExpand      bool
	FilePath       *string
	SymbolName     *string
}

// ExpansionType names the kind of follow-up traversal an ExpansionOption offers.
type ExpansionType string

const (
	ExpandDependencies ExpansionType = "dependencies"
	ExpandDependents   ExpansionType = "dependents"
	ExpandTests        ExpansionType = "tests"
	ExpandOmitted      ExpansionType = "omitted"
	ExpandAll          ExpansionType = "all"
)

// ExpansionOption is a suggested follow-up retrieval starting from a chunk.
type ExpansionOption struct {
	ChunkID       string
	ExpansionType ExpansionType
	Description   string
	TokenCost     int
	Priority      int // 1 (highest) .. 3
}

// CompressionLevel is one of the four progressive-disclosure modes (§4.6).
type CompressionLevel int

const (
	Full CompressionLevel = iota
	NoComments
	SignatureDocstring
	SignatureOnly
)

// ContextBundle is the bounded, budget-respecting result of a retrieve call
// (spec §3.2).
type ContextBundle struct {
	Chunks              []KnowledgeChunk
	Edges               []ChunkEdge
	TotalTokens         int
	OmittedChunks       []OmittedChunk
	OmissionSummary     string
	OmissionByType      map[ChunkType]int
	OmissionByReason    map[OmissionReason]int
	AvailableExpansions []ExpansionOption
	RelatedTests        []string
	RelatedCommits      []string
	RelatedBusinessRules []string
	Task                string
	TokenBudget         int
	CompressionLevel    CompressionLevel
	RetrievalTimeMS     int64
	Partial             bool
}

// RuleStatus is a business rule's lifecycle state (§3.1, §3.4).
type RuleStatus string

const (
	RuleProposed   RuleStatus = "PROPOSED"
	RuleConfirmed  RuleStatus = "CONFIRMED"
	RuleCorrected  RuleStatus = "CORRECTED"
	RuleRejected   RuleStatus = "REJECTED"
	RuleDeprecated RuleStatus = "DEPRECATED"
)

// RuleCategory classifies the kind of policy a BusinessRule captures.
type RuleCategory string

const (
	CategoryValidation     RuleCategory = "validation"
	CategoryAuthorization  RuleCategory = "authorization"
	CategoryBusinessLogic  RuleCategory = "business_logic"
	CategoryConstraint     RuleCategory = "constraint"
	CategoryInvariant      RuleCategory = "invariant"
	CategoryWorkflow       RuleCategory = "workflow"
	CategoryIntegration    RuleCategory = "integration"
	CategorySecurity       RuleCategory = "security"
)

// BusinessRule is a natural-language policy statement proposed by the code
// heuristics and promoted only by explicit operator action (§3.1, §4.9).
type BusinessRule struct {
	ID                    string
	Text                  string
	Category              RuleCategory
	Status                RuleStatus
	SourceChunkID         string
	SourceFile            string
	SourceSymbol          *string
	SourceLineStart       *int
	SourceLineEnd         *int
	InterpretationContext string
	Confidence            float64
	ConfirmedBy           *string
	ConfirmedAt           *time.Time
	HumanCorrection       *string
	RejectionReason       *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
	Tags                  []string
}

// SnapshotType distinguishes a user-intent snapshot from an agent-execution one.
type SnapshotType string

const (
	SnapshotUser  SnapshotType = "USER"
	SnapshotAgent SnapshotType = "AGENT"
)

// GitStatus is a file's porcelain VCS status at snapshot time.
type GitStatus string

const (
	GitAdded      GitStatus = "A"
	GitModified   GitStatus = "M"
	GitDeleted    GitStatus = "D"
	GitRenamed    GitStatus = "R"
	GitUntracked  GitStatus = "untracked"
	GitStatusNone GitStatus = ""
)

// FileState captures one tracked file's identity at snapshot time (§3.1).
type FileState struct {
	Path        string
	Exists      bool
	Size        int64
	ModifiedAt  time.Time
	ContentHash string
	GitStatus   GitStatus
}

// Snapshot is an immutable point-in-time record of tracked file state (§3.1, §3.4).
type Snapshot struct {
	ID                 string
	Type                SnapshotType
	Name                string
	Description         string
	Files               []FileState
	GitCommit           string
	GitBranch           string
	GitDirty            bool
	TaskID              *string
	TaskGoal            *string
	CreatedAt           time.Time
	CreatedBy           string
	Tags                []string
	PreviousSnapshotID  *string
}

// ErrorKind abstracts the failure categories of §7 without tying callers to
// Go's error-chain mechanics.
type ErrorKind string

const (
	ErrNotFound          ErrorKind = "not_found"
	ErrMalformedInput    ErrorKind = "malformed_input"
	ErrParseFailure      ErrorKind = "parse_failure"
	ErrStorageIO         ErrorKind = "storage_io"
	ErrVCSUnavailable    ErrorKind = "vcs_unavailable"
	ErrWatcherUnavailable ErrorKind = "watcher_unavailable"
)

// Error is the engine's machine-readable failure type (§7): every
// user-visible failure carries a Kind plus a human-readable Message.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

// NewError constructs an *Error, the facade-level failure value.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
