// Package autoload registers every built-in LLM provider.
package autoload

import (
	_ "reasoner/pkg/llm/anthropic"
	_ "reasoner/pkg/llm/gemini"
	_ "reasoner/pkg/llm/ollama"
	_ "reasoner/pkg/llm/openailm"
)
