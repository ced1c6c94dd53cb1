package embedding

import (
	"fmt"

	"triage/internal/port"
)

// New builds the embedder named by provider: "hashing" (the default),
// "ollama" or "openai". apiKey is only used by "openai".
func New(provider, model, apiKey, baseURL string, dimension int) (port.Embedder, error) {
	switch provider {
	case "hashing", "":
		return NewHashingEmbedder(dimension)
	case "ollama":
		return NewOllamaEmbedder(model, baseURL, dimension)
	case "openai":
		return NewOpenAICompatibleEmbedder(apiKey, model, baseURL, dimension)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", provider)
	}
}
