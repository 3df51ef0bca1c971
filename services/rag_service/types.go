package rag_service

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat marks an upload whose extension falls outside the
// closed supported set. No later stage runs after it.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ErrEmptyContent marks a conversion that produced no normalized text.
var ErrEmptyContent = errors.New("document conversion produced empty content")

// DocumentKind is the closed set of supported input formats. It is chosen
// once when the upload is materialized and carried through the remaining
// stages instead of re-dispatching on the file extension.
type DocumentKind int

const (
	KindPDF DocumentKind = iota
	KindWord
	KindMarkdown
)

func (k DocumentKind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindWord:
		return "word"
	case KindMarkdown:
		return "markdown"
	}
	return "unknown"
}

// Dir is the category directory raw uploads are staged under.
func (k DocumentKind) Dir() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindWord:
		return "word-documents"
	case KindMarkdown:
		return "markdown-files"
	}
	return "other"
}

// KindForFilename resolves the document kind from the original filename.
func KindForFilename(filename string) (DocumentKind, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return KindPDF, nil
	case ".doc", ".docx":
		return KindWord, nil
	case ".md", ".markdown":
		return KindMarkdown, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
}

// Chunk is a bounded span of normalized text plus the document metadata it
// inherits. It is the unit of embedding and indexing and never outlives the
// pipeline run that produced it.
type Chunk struct {
	Text     string
	Metadata map[string]interface{}
}
