// Package llmfactory provides factories and configuration for LLM model instantiation, supporting OpenAI-compatible providers (OpenAI, Azure, Perplexity) and model selection strategies.
package llmfactory
