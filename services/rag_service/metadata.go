package rag_service

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"

	"github.com/serisow/ingestor/services/llm_service"
)

const metadataSystemPrompt = "You are a bibliographic metadata extraction assistant. " +
	"You answer with a single JSON object and nothing else."

const metadataPromptTemplate = `Extract bibliographic metadata from the following document excerpt.
Return a JSON object with these keys (use null when unknown):
"title", "authors" (array of strings), "publication_year" (number),
"journal_or_source", "abstract", "doi", "keywords" (array of strings).

Document excerpt:
---
%TEXT%
---`

const leadTextLimit = 4000

// MetadataExtractor derives bibliographic metadata from a document's lead
// text. Implementations must be tolerant: a failed extraction degrades to an
// empty map rather than failing the job.
type MetadataExtractor interface {
	Extract(ctx context.Context, leadText string) map[string]interface{}
}

// NoopMetadataExtractor is used when extraction is disabled or no LLM
// service is configured.
type NoopMetadataExtractor struct{}

func (NoopMetadataExtractor) Extract(ctx context.Context, leadText string) map[string]interface{} {
	return map[string]interface{}{}
}

// LLMMetadataExtractor asks a chat-completion model for the metadata JSON.
type LLMMetadataExtractor struct {
	llm    llm_service.LLMService
	config map[string]interface{}
	logger *slog.Logger
}

func NewLLMMetadataExtractor(llm llm_service.LLMService, config map[string]interface{}, logger *slog.Logger) *LLMMetadataExtractor {
	return &LLMMetadataExtractor{
		llm:    llm,
		config: config,
		logger: logger,
	}
}

// MetadataExtractorFromUserSettings builds the per-job extractor from the
// owning user's settings. Recognized settings, all optional, under the
// "metadata_extraction" key: "enabled" (bool), "model_name", "api_url",
// "api_key". Absent values fall back to environment defaults.
func MetadataExtractorFromUserSettings(settings map[string]interface{}, llm llm_service.LLMService, logger *slog.Logger) MetadataExtractor {
	config := map[string]interface{}{
		"api_url":       "https://api.openai.com/v1/chat/completions",
		"api_key":       os.Getenv("OPENAI_API_KEY"),
		"model_name":    "gpt-4o-mini",
		"system_prompt": metadataSystemPrompt,
	}

	if raw, ok := settings["metadata_extraction"].(map[string]interface{}); ok {
		if enabled, ok := raw["enabled"].(bool); ok && !enabled {
			return NoopMetadataExtractor{}
		}
		for _, key := range []string{"model_name", "api_url", "api_key"} {
			if v, ok := raw[key].(string); ok && v != "" {
				config[key] = v
			}
		}
	}

	if llm == nil || config["api_key"] == "" {
		return NoopMetadataExtractor{}
	}

	return NewLLMMetadataExtractor(llm, config, logger)
}

func (e *LLMMetadataExtractor) Extract(ctx context.Context, leadText string) map[string]interface{} {
	leadText = strings.TrimSpace(leadText)
	if leadText == "" {
		return map[string]interface{}{}
	}
	if len(leadText) > leadTextLimit {
		leadText = leadText[:leadTextLimit]
	}

	prompt := strings.Replace(metadataPromptTemplate, "%TEXT%", leadText, 1)

	response, err := e.llm.CallLLM(ctx, e.config, prompt)
	if err != nil {
		e.logger.Warn("Metadata extraction call failed, continuing without metadata",
			slog.String("error", err.Error()))
		return map[string]interface{}{}
	}

	metadata, err := parseMetadataResponse(response)
	if err != nil {
		e.logger.Warn("Could not parse metadata response, continuing without metadata",
			slog.String("error", err.Error()))
		return map[string]interface{}{}
	}
	return metadata
}

// parseMetadataResponse unwraps markdown code fences the model may add and
// decodes the JSON object, dropping null values.
func parseMetadataResponse(response string) (map[string]interface{}, error) {
	cleaned := strings.TrimSpace(response)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	var metadata map[string]interface{}
	if err := json.Unmarshal([]byte(cleaned), &metadata); err != nil {
		return nil, err
	}

	for key, value := range metadata {
		if value == nil {
			delete(metadata, key)
		}
	}
	return metadata, nil
}
