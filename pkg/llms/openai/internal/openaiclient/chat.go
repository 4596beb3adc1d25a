package openaiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "openai")

// ChatRequest is a request to complete a chat completion.
type ChatRequest struct {
	Model       string         `json:"model"`
	Messages    []*ChatMessage `json:"messages"`
	Temperature float64        `json:"temperature,omitempty"`
	N           int            `json:"n,omitempty"`
	StopWords   []string       `json:"stop,omitempty"`
	Seed        int            `json:"seed,omitempty"`

	// MaxCompletionTokens is the max number of tokens for the completion,
	// replaces the deprecated max_tokens field.
	MaxCompletionTokens int `json:"max_completion_tokens,omitempty"`

	Tools []Tool `json:"tools,omitempty"`
	// ToolChoice is the choice of tool to use, it can either be "none", "auto"
	// (the default behavior), or a specific tool.
	ToolChoice any `json:"tool_choice,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// ChatMessage is a message in a chat completion request.
type ChatMessage struct {
	// Role is the role of the message author: system, user, assistant, or tool.
	Role string `json:"role"`
	// Content is the textual content of the message.
	Content string `json:"content"`

	// ToolCalls is a list of tools the assistant requested to invoke.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID is the ID of the tool call this message is responding to,
	// required for the tool role.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// Tool is a tool the model may call.
type Tool struct {
	Type     ToolType           `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition is a definition of a function the model may call.
type FunctionDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

// ToolCall is a tool call requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     ToolType     `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction is the function invocation inside a tool call.
type ToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatCompletionChoice is one of the choices returned in a chat completion.
type ChatCompletionChoice struct {
	Index        int          `json:"index"`
	Message      *ChatMessage `json:"message"`
	FinishReason string       `json:"finish_reason"`
}

// ChatUsage is the token accounting returned in a chat completion.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionResponse is a response to a chat completion request.
type ChatCompletionResponse struct {
	ID      string                  `json:"id"`
	Created int64                   `json:"created"`
	Model   string                  `json:"model"`
	Choices []*ChatCompletionChoice `json:"choices"`
	Usage   ChatUsage               `json:"usage"`
}

func (c *Client) createChat(ctx context.Context, payload *ChatRequest) (*ChatCompletionResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	url := c.buildURL("/chat/completions", payload.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg := errorMessage{}
		bs, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(bs, &msg); err != nil || msg.Error.Message == "" {
			msg.Error.Message = string(bs)
		}
		logger.ContextKV(ctx, xlog.ERROR,
			"status", "chat_completion_failed",
			"http_status", resp.StatusCode,
			"model", payload.Model,
			"err", msg.Error.Message,
		)
		return nil, errors.Newf("API returned unexpected status code %d: %s", resp.StatusCode, msg.Error.Message)
	}

	var response ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, errors.WithMessage(err, "failed to decode chat completion response")
	}
	return &response, nil
}
