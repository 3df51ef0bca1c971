package llm_service

import "context"

// LLMService is the capability consumed by metadata extraction: given a
// per-call config map and a prompt, return the model's text completion.
type LLMService interface {
	CallLLM(ctx context.Context, config map[string]interface{}, prompt string) (string, error)
}
