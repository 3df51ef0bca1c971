package rag_service

import (
	"log/slog"
	"os"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serisow/ingestor/config"
	"github.com/serisow/ingestor/services/llm_service"
)

// Resources lazily constructs the heavyweight components shared by every
// job this worker runs: the embedder, the vector store handle and the
// default processor. Construction happens once, guarded by the mutex; with a
// single worker loop, steady-state reads after that need no further
// synchronization. The metadata extractor is the one piece rebuilt per job.
type Resources struct {
	cfg    config.Config
	db     *pgxpool.Pool
	llm    llm_service.LLMService
	logger *slog.Logger

	mu          sync.Mutex
	extractor   *DocumentExtractor
	chunker     *Chunker
	embedder    *ChunkEmbedder
	vectorStore *VectorStore
	processor   *Processor
}

func NewResources(cfg config.Config, db *pgxpool.Pool, llm llm_service.LLMService, logger *slog.Logger) *Resources {
	return &Resources{
		cfg:    cfg,
		db:     db,
		llm:    llm,
		logger: logger,
	}
}

// Embedder returns the shared dense+sparse embedder, constructing it on
// first use.
func (r *Resources) Embedder() *ChunkEmbedder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.embedderLocked()
}

// VectorStore returns the shared vector index handle.
func (r *Resources) VectorStore() *VectorStore {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vectorStoreLocked()
}

// Processor returns the shared processor with the default metadata policy.
func (r *Resources) Processor() PipelineProcessor {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.processor == nil {
		r.logger.Info("Initializing document processor")
		metadata := MetadataExtractorFromUserSettings(map[string]interface{}{}, r.llm, r.logger)
		r.processor = r.newProcessorLocked(metadata)
	}
	return r.processor
}

// ProcessorForUser returns a per-job processor that reuses the shared
// embedder and vector store but substitutes a metadata extractor built from
// the owning user's settings.
func (r *Resources) ProcessorForUser(settings map[string]interface{}) PipelineProcessor {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Info("Initializing document processor with user settings")
	metadata := MetadataExtractorFromUserSettings(settings, r.llm, r.logger)
	return r.newProcessorLocked(metadata)
}

func (r *Resources) embedderLocked() *ChunkEmbedder {
	if r.embedder == nil {
		r.logger.Info("Initializing embedder",
			slog.String("model", r.cfg.EmbeddingModel))
		dense := NewHTTPEmbedder(r.cfg.EmbeddingAPIURL, os.Getenv("OPENAI_API_KEY"),
			r.cfg.EmbeddingModel, r.logger)
		sparse := NewSparseEncoder(r.cfg.SparseDimensions)
		r.embedder = NewChunkEmbedder(dense, sparse)
	}
	return r.embedder
}

func (r *Resources) vectorStoreLocked() *VectorStore {
	if r.vectorStore == nil {
		r.logger.Info("Initializing vector store")
		r.vectorStore = NewVectorStore(r.db, r.logger)
	}
	return r.vectorStore
}

func (r *Resources) newProcessorLocked(metadata MetadataExtractor) *Processor {
	if r.extractor == nil {
		r.extractor = NewDocumentExtractor(r.logger)
	}
	if r.chunker == nil {
		r.chunker = NewChunker()
	}
	return NewProcessor(r.cfg.UploadDir, r.cfg.MarkdownDir, r.cfg.MetadataDir,
		r.extractor, r.chunker, r.embedderLocked(), r.vectorStoreLocked(), metadata, r.logger)
}
