package providers

import (
	"net/http"
	"os"

	"github.com/storepilot/storepilot/llm"
)

// OllamaProvider implements the OpenAI-compatible API used by Ollama,
// vLLM, and similar self-hosted endpoints. Shares the request format
// with OpenAIProvider but defaults to a local URL.
type OllamaProvider struct {
	OpenAIProvider // embed for shared request/response format
}

func init() {
	llm.RegisterProvider(&OllamaProvider{})
}

// Name returns the provider identifier.
func (o *OllamaProvider) Name() string {
	return "ollama"
}

// BuildURL constructs the chat completions endpoint.
func (o *OllamaProvider) BuildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	return o.OpenAIProvider.BuildURL(baseURL)
}

// SetHeaders adds an API key only if one is configured.
func (o *OllamaProvider) SetHeaders(req *http.Request) {
	if apiKey := os.Getenv("OLLAMA_API_KEY"); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}
