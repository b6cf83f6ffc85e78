package assistant

// NewOllamaProvider creates an OpenAI provider pointed at a local Ollama
// server's OpenAI-compatible endpoint.
func NewOllamaProvider(host string, model string, opts ProviderOptions) *OpenAIProvider {
	if host == "" {
		host = "http://localhost:11434/v1"
	}
	if model == "" {
		model = "llama3.1"
	}
	opts.BaseURL = host

	// API key is ignored by Ollama
	return NewOpenAIProvider("ollama", model, opts)
}
