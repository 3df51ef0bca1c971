package rag_service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const indexBatchSize = 50

// PipelineProcessor is the per-job processing capability the worker drives.
// The heavy pieces behind it (embedder, vector store, extractor) are shared
// process-wide; only the metadata extractor differs per job.
type PipelineProcessor interface {
	Materialize(docID, originalFilename, srcPath string) (string, DocumentKind, error)
	LeadText(kind DocumentKind, path string) (string, error)
	ExtractMetadata(ctx context.Context, leadText string) map[string]interface{}
	Convert(kind DocumentKind, path string) (string, error)
	WriteArtifacts(docID, markdown string, metadata map[string]interface{}) error
	Chunk(markdown string, metadata map[string]interface{}) []Chunk
	EmbedAndIndex(ctx context.Context, docID string, chunks []Chunk) (int, error)
	RemoveArtifacts(docID string) error
}

type Processor struct {
	uploadRoot  string
	markdownDir string
	metadataDir string
	extractor   *DocumentExtractor
	chunker     *Chunker
	embedder    *ChunkEmbedder
	vectorStore *VectorStore
	metadata    MetadataExtractor
	logger      *slog.Logger
}

func NewProcessor(uploadRoot, markdownDir, metadataDir string, extractor *DocumentExtractor,
	chunker *Chunker, embedder *ChunkEmbedder, vectorStore *VectorStore,
	metadata MetadataExtractor, logger *slog.Logger) *Processor {
	return &Processor{
		uploadRoot:  uploadRoot,
		markdownDir: markdownDir,
		metadataDir: metadataDir,
		extractor:   extractor,
		chunker:     chunker,
		embedder:    embedder,
		vectorStore: vectorStore,
		metadata:    metadata,
		logger:      logger,
	}
}

// Materialize copies the uploaded file into its category directory under the
// upload root, named {doc_id}_{original_filename}. The kind resolved here is
// carried through the remaining stages.
func (p *Processor) Materialize(docID, originalFilename, srcPath string) (string, DocumentKind, error) {
	kind, err := KindForFilename(originalFilename)
	if err != nil {
		return "", 0, err
	}

	targetDir := filepath.Join(p.uploadRoot, kind.Dir())
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return "", kind, fmt.Errorf("failed to create %s directory: %w", kind.Dir(), err)
	}

	targetPath := filepath.Join(targetDir, fmt.Sprintf("%s_%s", docID, originalFilename))
	if _, err := os.Stat(targetPath); os.IsNotExist(err) {
		if err := copyFile(srcPath, targetPath); err != nil {
			return "", kind, fmt.Errorf("failed to stage upload: %w", err)
		}
		p.logger.Info("Staged upload",
			slog.String("doc_id", docID),
			slog.String("target", targetPath))
	}

	return targetPath, kind, nil
}

// LeadText returns the head of the document for metadata heuristics: first
// and last pages for PDFs, the start of the converted text otherwise.
func (p *Processor) LeadText(kind DocumentKind, path string) (string, error) {
	if kind == KindPDF {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read staged file: %w", err)
		}
		return p.extractor.LeadTextFromPDF(data)
	}

	text, err := p.Convert(kind, path)
	if err != nil {
		return "", err
	}
	if len(text) > leadTextLimit {
		text = text[:leadTextLimit]
	}
	return text, nil
}

func (p *Processor) ExtractMetadata(ctx context.Context, leadText string) map[string]interface{} {
	return p.metadata.Extract(ctx, leadText)
}

// Convert produces the normalized markdown text for the staged file.
func (p *Processor) Convert(kind DocumentKind, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read staged file: %w", err)
	}

	switch kind {
	case KindPDF:
		return p.extractor.ExtractTextFromPDF(data)
	case KindWord:
		return p.extractor.ExtractTextFromWord(data, filepath.Ext(path))
	case KindMarkdown:
		return string(data), nil
	}
	return "", fmt.Errorf("%w: kind %s", ErrUnsupportedFormat, kind)
}

// WriteArtifacts persists the normalized text and metadata side-storage
// addressed by document id ({doc_id}.md, {doc_id}.json).
func (p *Processor) WriteArtifacts(docID, markdown string, metadata map[string]interface{}) error {
	if err := os.MkdirAll(p.markdownDir, 0755); err != nil {
		return fmt.Errorf("failed to create markdown directory: %w", err)
	}
	if err := os.MkdirAll(p.metadataDir, 0755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}

	mdPath := filepath.Join(p.markdownDir, docID+".md")
	if err := os.WriteFile(mdPath, []byte(markdown), 0644); err != nil {
		return fmt.Errorf("failed to write markdown artifact: %w", err)
	}

	metadataJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata artifact: %w", err)
	}
	jsonPath := filepath.Join(p.metadataDir, docID+".json")
	if err := os.WriteFile(jsonPath, metadataJSON, 0644); err != nil {
		return fmt.Errorf("failed to write metadata artifact: %w", err)
	}

	p.logger.Info("Wrote artifacts",
		slog.String("doc_id", docID),
		slog.String("markdown", mdPath),
		slog.String("metadata", jsonPath))
	return nil
}

func (p *Processor) Chunk(markdown string, metadata map[string]interface{}) []Chunk {
	return p.chunker.Chunk(markdown, metadata)
}

// EmbedAndIndex computes dense and sparse vectors in batches and writes them
// to the vector store. Zero chunks is a no-op, not a failure.
func (p *Processor) EmbedAndIndex(ctx context.Context, docID string, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		p.logger.Info("No chunks to index", slog.String("doc_id", docID))
		return 0, nil
	}

	dense, sparse, err := p.embedder.EmbedChunks(ctx, chunks)
	if err != nil {
		return 0, err
	}

	added, err := p.vectorStore.AddChunks(ctx, docID, chunks, dense, sparse, indexBatchSize)
	if err != nil {
		return added, err
	}

	p.logger.Info("Indexed chunks",
		slog.String("doc_id", docID),
		slog.Int("chunks", added))
	return added, nil
}

// RemoveArtifacts deletes the per-document side files and any staged copy of
// the upload. Missing files are not errors.
func (p *Processor) RemoveArtifacts(docID string) error {
	var firstErr error

	for _, path := range []string{
		filepath.Join(p.markdownDir, docID+".md"),
		filepath.Join(p.metadataDir, docID+".json"),
	} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = fmt.Errorf("failed to remove artifact %s: %w", path, err)
		}
	}

	// Staged copies are named {doc_id}_* inside a category directory.
	for _, kind := range []DocumentKind{KindPDF, KindWord, KindMarkdown} {
		dir := filepath.Join(p.uploadRoot, kind.Dir())
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if strings.HasPrefix(entry.Name(), docID+"_") {
				if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && firstErr == nil {
					firstErr = fmt.Errorf("failed to remove staged file %s: %w", entry.Name(), err)
				}
			}
		}
	}

	return firstErr
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
