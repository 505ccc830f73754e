package llm

import (
	"strings"

	"github.com/MrWong99/edusync/pkg/types"
)

// knownModels maps model name prefixes to their limits. The first matching
// prefix wins, so more specific prefixes come first.
var knownModels = []struct {
	prefix        string
	contextWindow int
	maxOutput     int
}{
	// Groq-hosted open models.
	{"llama-3.1", 131_072, 8_192},
	{"llama-3.3", 131_072, 8_192},
	{"llama3-", 8_192, 8_192},
	{"gemma", 8_192, 8_192},
	{"mixtral-8x7b", 32_768, 32_768},
	// OpenAI.
	{"gpt-4o", 128_000, 16_384},
	{"gpt-4", 8_192, 4_096},
	{"gpt-3.5-turbo", 16_385, 4_096},
	// Anthropic and Google.
	{"claude", 200_000, 8_192},
	{"gemini", 1_048_576, 8_192},
}

// CapabilitiesFor returns the limits of a model by name, matched
// case-insensitively on known prefixes. Unknown models get a 128k context
// window and 4k output tokens.
func CapabilitiesFor(model string) types.ModelCapabilities {
	caps := types.ModelCapabilities{
		SupportsStreaming: true,
		ContextWindow:     128_000,
		MaxOutputTokens:   4_096,
	}
	lower := strings.ToLower(model)
	for _, m := range knownModels {
		if strings.HasPrefix(lower, m.prefix) {
			caps.ContextWindow, caps.MaxOutputTokens = m.contextWindow, m.maxOutput
			break
		}
	}
	return caps
}
