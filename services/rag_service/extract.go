package rag_service

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"code.sajari.com/docconv/v2"
	"github.com/ledongthuc/pdf"
)

var wordMimeTypes = map[string]string{
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

type DocumentExtractor struct {
	logger *slog.Logger
}

func NewDocumentExtractor(logger *slog.Logger) *DocumentExtractor {
	return &DocumentExtractor{
		logger: logger,
	}
}

func (e *DocumentExtractor) ExtractTextFromPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		e.logger.Error("Failed to create PDF reader",
			slog.String("error", err.Error()),
			slog.Int("data_size", len(data)))
		return "", fmt.Errorf("failed to create PDF reader: %v", err)
	}

	totalPage := reader.NumPage()
	e.logger.Debug("Starting PDF text extraction",
		slog.Int("total_pages", totalPage))

	var sb strings.Builder
	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			e.logger.Warn("Null page encountered",
				slog.Int("page_number", pageIndex))
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			e.logger.Error("Failed to extract text from page",
				slog.Int("page_number", pageIndex),
				slog.String("error", err.Error()))
			return "", fmt.Errorf("failed to extract text from page %d: %v", pageIndex, err)
		}

		sb.WriteString(text)
		sb.WriteString("\n")
	}

	e.logger.Info("Extracted text from PDF",
		slog.Int("total_pages", totalPage),
		slog.Int("total_text_length", sb.Len()))

	// Emptiness is judged at the pipeline boundary, where it is a distinct
	// failure class from an unreadable file.
	return sb.String(), nil
}

// LeadTextFromPDF returns the text of the first and last pages, which is
// where titles, authors and identifiers live. It feeds metadata extraction
// without converting the whole document first.
func (e *DocumentExtractor) LeadTextFromPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to create PDF reader: %v", err)
	}

	totalPage := reader.NumPage()
	if totalPage == 0 {
		return "", nil
	}

	pages := []int{1}
	if totalPage > 1 {
		pages = append(pages, totalPage)
	}

	var sb strings.Builder
	for _, pageIndex := range pages {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			e.logger.Warn("Failed to extract lead text from page",
				slog.Int("page_number", pageIndex),
				slog.String("error", err.Error()))
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	return sb.String(), nil
}

func (e *DocumentExtractor) ExtractTextFromWord(data []byte, ext string) (string, error) {
	e.logger.Debug("Starting Word document text extraction",
		slog.Int("data_size", len(data)),
		slog.String("extension", ext))

	mimeType, ok := wordMimeTypes[strings.ToLower(ext)]
	if !ok {
		mimeType = wordMimeTypes[".docx"]
	}

	result, err := docconv.Convert(bytes.NewReader(data), mimeType, false)
	if err != nil {
		e.logger.Error("Failed to convert Word document",
			slog.String("error", err.Error()),
			slog.Int("data_size", len(data)))
		return "", fmt.Errorf("failed to convert Word document: %v", err)
	}

	e.logger.Info("Extracted text from Word document",
		slog.Int("text_length", len(result.Body)))

	return result.Body, nil
}
