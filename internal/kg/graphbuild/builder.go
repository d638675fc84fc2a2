package graphbuild

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kgraph-dev/kgengine/internal/kg/analyzer"
	"github.com/kgraph-dev/kgengine/internal/kg/chunker"
	"github.com/kgraph-dev/kgengine/internal/kg/model"
	"github.com/kgraph-dev/kgengine/internal/kg/rules"
	"github.com/kgraph-dev/kgengine/internal/kg/store"
)

// Status reports the progress of a running or most recently completed build
// (§4.5), grounded on the teacher's indexer.IndexStatus shape.
type Status struct {
	IsBuilding     bool
	Phase          string
	FilesProcessed int
	ChunksCreated  int
	EdgesCreated   int
	RulesProposed  int
	StartedAt      time.Time
	FinishedAt     time.Time
	LastError      string
}

// Builder orchestrates full and incremental graph builds over a project
// root, serialized against concurrent writers per §4.4's concurrency note.
type Builder struct {
	root     string
	store    *store.Store
	registry *analyzer.Registry
	code     *chunker.CodeChunker
	contract *chunker.ContractChunker
	config   *chunker.ConfigChunker
	git      *chunker.GitChunker // nil when root is not a git repository

	mu      sync.Mutex
	running bool
	status  Status
}

// New builds a Builder rooted at root, backed by st for persistence and
// registry for per-language source analysis.
func New(root string, st *store.Store, registry *analyzer.Registry) *Builder {
	git, _ := chunker.OpenGitChunker(root)
	return &Builder{
		root:     root,
		store:    st,
		registry: registry,
		code:     chunker.NewCodeChunker(registry),
		contract: chunker.NewContractChunker(),
		config:   chunker.NewConfigChunker(),
		git:      git,
	}
}

// Status returns a snapshot of the builder's current status.
func (b *Builder) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *Builder) begin(phase string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return model.NewError(model.ErrStorageIO, "a build is already running")
	}
	b.running = true
	b.status = Status{IsBuilding: true, Phase: phase, StartedAt: time.Now()}
	return nil
}

func (b *Builder) update(fn func(*Status)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.status)
}

func (b *Builder) finish(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
	b.status.IsBuilding = false
	b.status.FinishedAt = time.Now()
	if err != nil {
		b.status.Phase = "error"
		b.status.LastError = err.Error()
	} else {
		b.status.Phase = "completed"
	}
}

// Full clears storage, re-chunks the entire project, derives edges over the
// resulting chunk set, and persists both (§4.5 full build).
func (b *Builder) Full(ctx context.Context) error {
	if err := b.begin("chunking"); err != nil {
		return err
	}
	var err error
	defer func() { b.finish(err) }()

	if err = b.store.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear storage: %w", err)
	}

	chunks, cerr := b.chunkProject(ctx)
	if cerr != nil {
		err = cerr
		return err
	}
	files := map[string]bool{}
	for _, c := range chunks {
		if c.FilePath != nil {
			files[*c.FilePath] = true
		}
	}
	b.update(func(s *Status) { s.FilesProcessed = len(files); s.ChunksCreated = len(chunks); s.Phase = "persisting chunks" })

	if err = b.store.SaveChunks(ctx, chunks); err != nil {
		err = fmt.Errorf("save chunks: %w", err)
		return err
	}

	b.update(func(s *Status) { s.Phase = "deriving edges" })
	edges := Derive(chunks, b.registry)
	b.update(func(s *Status) { s.EdgesCreated = len(edges); s.Phase = "persisting edges" })

	if err = b.store.SaveEdges(ctx, edges); err != nil {
		err = fmt.Errorf("save edges: %w", err)
		return err
	}

	b.update(func(s *Status) { s.Phase = "proposing business rules" })
	proposed, perr := b.proposeRules(ctx, chunks)
	if perr != nil {
		err = perr
		return err
	}
	b.update(func(s *Status) { s.RulesProposed = proposed })

	if err = b.store.SetMetadata(ctx, "last_build", time.Now().Format(time.RFC3339)); err != nil {
		err = fmt.Errorf("set last_build: %w", err)
		return err
	}
	return nil
}

// Incremental re-chunks only the given changed paths (file content changed,
// or file removed), then re-derives edges over the full chunk set, keeping
// only edges that touch a changed chunk id (§4.5 incremental build).
func (b *Builder) Incremental(ctx context.Context, changedPaths []string, removedPaths []string) error {
	if err := b.begin("re-chunking"); err != nil {
		return err
	}
	var err error
	defer func() { b.finish(err) }()

	touched := map[string]bool{}

	for _, path := range removedPaths {
		prior, gerr := b.store.GetChunksByFile(ctx, path)
		if gerr == nil {
			for _, c := range prior {
				touched[c.ID] = true
			}
		}
		if err = b.store.DeleteChunksByFile(ctx, path); err != nil {
			err = fmt.Errorf("delete chunks for %s: %w", path, err)
			return err
		}
	}

	var newChunks []model.KnowledgeChunk
	for _, path := range changedPaths {
		prior, gerr := b.store.GetChunksByFile(ctx, path)
		if gerr == nil {
			for _, c := range prior {
				touched[c.ID] = true
			}
		}
		if err = b.store.DeleteChunksByFile(ctx, path); err != nil {
			err = fmt.Errorf("delete chunks for %s: %w", path, err)
			return err
		}
		fileChunks, cerr := b.code.ChunkFile(b.root, path)
		if cerr != nil {
			continue // unreadable path: treat like a removal, already deleted above
		}
		newChunks = append(newChunks, fileChunks...)
	}
	for _, c := range newChunks {
		touched[c.ID] = true
	}

	if err = b.store.SaveChunks(ctx, newChunks); err != nil {
		err = fmt.Errorf("save chunks: %w", err)
		return err
	}
	b.update(func(s *Status) { s.FilesProcessed = len(changedPaths) + len(removedPaths); s.ChunksCreated = len(newChunks) })

	allByType, gerr := b.allChunks(ctx)
	if gerr != nil {
		err = gerr
		return err
	}

	b.update(func(s *Status) { s.Phase = "deriving edges" })
	allEdges := Derive(allByType, b.registry)
	var touchedEdges []model.ChunkEdge
	for _, e := range allEdges {
		if touched[e.SourceID] || touched[e.TargetID] {
			touchedEdges = append(touchedEdges, e)
		}
	}
	b.update(func(s *Status) { s.EdgesCreated = len(touchedEdges) })

	if err = b.store.SaveEdges(ctx, touchedEdges); err != nil {
		err = fmt.Errorf("save edges: %w", err)
		return err
	}

	b.update(func(s *Status) { s.Phase = "proposing business rules" })
	proposed, perr := b.proposeRules(ctx, newChunks)
	if perr != nil {
		err = perr
		return err
	}
	b.update(func(s *Status) { s.RulesProposed = proposed })

	if err = b.store.SetMetadata(ctx, "last_build", time.Now().Format(time.RFC3339)); err != nil {
		err = fmt.Errorf("set last_build: %w", err)
		return err
	}
	return nil
}

func (b *Builder) chunkProject(ctx context.Context) ([]model.KnowledgeChunk, error) {
	chunks, err := b.code.ChunkProject(ctx, b.root)
	if err != nil {
		return nil, fmt.Errorf("chunk project: %w", err)
	}

	contracts, err := b.contract.ChunkContracts(b.root)
	if err != nil {
		return nil, fmt.Errorf("chunk contracts: %w", err)
	}
	chunks = append(chunks, contracts...)

	if b.git != nil {
		commits, err := b.git.ChunkCommits(0)
		if err != nil {
			return nil, fmt.Errorf("chunk commits: %w", err)
		}
		chunks = append(chunks, commits...)
	}

	return chunks, nil
}

// allChunks reads back every persisted chunk type, used by incremental build
// to re-run full edge derivation over the current complete set.
func (b *Builder) allChunks(ctx context.Context) ([]model.KnowledgeChunk, error) {
	var all []model.KnowledgeChunk
	for _, t := range model.TypeOrder {
		cs, err := b.store.GetChunksByType(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("get chunks by type %s: %w", t, err)
		}
		all = append(all, cs...)
	}
	return all, nil
}

// proposeRules runs the business-rule heuristic over each newly written
// function chunk's content, persisting any not already known (so a
// previously confirmed/corrected/rejected rule is never silently reset to
// PROPOSED by re-derivation). Only FUNCTION chunks are scanned, not their
// enclosing SOURCE_FILE chunk, so the same lines aren't interpreted twice
// under two different line-number bases.
func (b *Builder) proposeRules(ctx context.Context, chunks []model.KnowledgeChunk) (int, error) {
	count := 0
	for _, c := range chunks {
		if c.ChunkType != model.ChunkFunction {
			continue
		}
		if c.FilePath == nil {
			continue
		}
		for _, p := range rules.Interpret(c.Content, *c.FilePath, c.SymbolName, c.ID) {
			existing, err := b.store.GetRule(ctx, p.ID)
			if err != nil {
				return count, fmt.Errorf("check existing rule %s: %w", p.ID, err)
			}
			if existing != nil {
				continue
			}
			rule := p.ToBusinessRule()
			if err := b.store.SaveRule(ctx, rule); err != nil {
				return count, fmt.Errorf("save rule %s: %w", p.ID, err)
			}
			count++
		}
	}
	return count, nil
}
