package chunker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kgraph-dev/kgengine/internal/kg/model"
	"github.com/kgraph-dev/kgengine/internal/kg/tokenestimate"
)

// ContractChunker extracts CONTRACT chunks from contracts/*.contract.md
// (§4.3). Grounded on the teacher's ContractChunker-equivalent derivation in
// original_source's chunker.py, reworked onto model.KnowledgeChunk.
type ContractChunker struct{}

// NewContractChunker builds a ContractChunker.
func NewContractChunker() *ContractChunker { return &ContractChunker{} }

// ChunkContracts reads every contracts/*.contract.md file under root.
func (c *ContractChunker) ChunkContracts(root string) ([]model.KnowledgeChunk, error) {
	dir := filepath.Join(root, "contracts")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read contracts dir: %w", err)
	}

	var chunks []model.KnowledgeChunk
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".contract.md") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		chunks = append(chunks, c.chunkContract(e.Name(), string(content)))
	}
	return chunks, nil
}

func (c *ContractChunker) chunkContract(name, content string) model.KnowledgeChunk {
	feature := strings.TrimSuffix(name, ".contract.md")
	signature := extractContractSignature(content)

	relPath := filepath.Join("contracts", name)
	lineCount := len(strings.Split(content, "\n"))
	lineStart, lineEnd := 1, lineCount
	sig := signature
	path := relPath
	sym := feature

	return model.KnowledgeChunk{
		ID:                   "contract:" + feature,
		ChunkType:            model.ChunkContract,
		Content:              content,
		ContentCompressed:    &sig,
		TokenCount:           tokenestimate.Estimate(content),
		TokenCountCompressed: tokenestimate.Estimate(signature),
		FilePath:             &path,
		LineStart:            &lineStart,
		LineEnd:              &lineEnd,
		SymbolName:           &sym,
		Signature:            &sig,
		Feature:              &feature,
		Source:               model.SourceAuto,
		Confidence:           1.0,
		Tags:                 []string{"contract", "interface"},
	}
}

// extractContractSignature finds the interface section: lines starting at a
// top-level header or "## Interface" and continuing while prefixed with "-"
// or inside a fenced code block, capped at 20 lines; falls back to the first
// 10 lines of the document (§4.3).
func extractContractSignature(content string) string {
	lines := strings.Split(content, "\n")
	var sigLines []string
	inInterface := false
	inFence := false

	for _, line := range lines {
		switch {
		case inFence:
			sigLines = append(sigLines, line)
			if strings.HasPrefix(line, "```") {
				inFence = false
			}
		case strings.HasPrefix(line, "# ") || strings.HasPrefix(line, "## Interface"):
			inInterface = true
			sigLines = append(sigLines, line)
		case inInterface:
			if strings.HasPrefix(line, "## ") && !strings.Contains(line, "Interface") {
				inInterface = false
				continue
			}
			if strings.HasPrefix(line, "```") {
				inFence = true
				sigLines = append(sigLines, line)
			} else if strings.HasPrefix(line, "- ") {
				sigLines = append(sigLines, line)
			}
		}
		if len(sigLines) >= 20 {
			break
		}
	}

	if len(sigLines) > 0 {
		if len(sigLines) > 20 {
			sigLines = sigLines[:20]
		}
		return strings.Join(sigLines, "\n")
	}

	if len(lines) > 10 {
		lines = lines[:10]
	}
	return strings.Join(lines, "\n")
}
