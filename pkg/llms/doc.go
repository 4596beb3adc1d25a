// Package llms defines the chat message data model and the Model interface
// implemented by LLM backends.
package llms
