package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/serisow/ingestor/store"
)

type DocumentInserter interface {
	Insert(ctx context.Context, doc *store.Document) error
}

// UploadHandler accepts a document upload, stores the raw file and inserts a
// pending document row. The storage layer's trigger wakes the worker; this
// handler never talks to it.
type UploadHandler struct {
	documents DocumentInserter
	uploadDir string
	logger    *slog.Logger
}

func NewUploadHandler(documents DocumentInserter, uploadDir string, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		documents: documents,
		uploadDir: uploadDir,
		logger:    logger,
	}
}

func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Received file upload request")

	err := r.ParseMultipartForm(50 << 20) // 50 MB limit
	if err != nil {
		writeJSONError(w, "Failed to parse multipart form", http.StatusBadRequest)
		return
	}

	userID, err := strconv.Atoi(r.FormValue("user_id"))
	if err != nil {
		writeJSONError(w, "Missing or invalid user_id", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, "Failed to get file from form", http.StatusBadRequest)
		return
	}
	defer file.Close()

	docID := uuid.NewString()

	if err := os.MkdirAll(h.uploadDir, 0755); err != nil {
		h.logger.Error("Failed to create upload directory",
			slog.String("error", err.Error()))
		writeJSONError(w, "Failed to store file", http.StatusInternalServerError)
		return
	}

	targetPath := filepath.Join(h.uploadDir, fmt.Sprintf("%s_%s", docID, filepath.Base(header.Filename)))
	out, err := os.Create(targetPath)
	if err != nil {
		h.logger.Error("Failed to create upload file",
			slog.String("error", err.Error()))
		writeJSONError(w, "Failed to store file", http.StatusInternalServerError)
		return
	}

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(out, hasher), file)
	out.Close()
	if err != nil {
		os.Remove(targetPath)
		writeJSONError(w, "Failed to store file", http.StatusInternalServerError)
		return
	}

	doc := &store.Document{
		ID:               docID,
		UserID:           userID,
		FilePath:         targetPath,
		Filename:         filepath.Base(header.Filename),
		ProcessingStatus: store.StatusPending,
		Metadata: map[string]interface{}{
			"file_hash": hex.EncodeToString(hasher.Sum(nil)),
		},
	}

	if err := h.documents.Insert(r.Context(), doc); err != nil {
		os.Remove(targetPath)
		h.logger.Error("Failed to insert document",
			slog.String("doc_id", docID),
			slog.String("error", err.Error()))
		writeJSONError(w, "Failed to enqueue document", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Document enqueued",
		slog.String("doc_id", docID),
		slog.String("filename", doc.Filename),
		slog.Int64("size", size))

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"doc_id": docID,
		"status": store.StatusPending,
	})
}
