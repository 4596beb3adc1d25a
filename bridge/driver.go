package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/llmutils"
	"github.com/effective-security/mcpbridge/pkg/metricskey"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

// DefaultMaxRounds caps the number of model turns in one request. The
// request deadline is the primary bound; the cap stops a model that keeps
// asking for tools without converging.
const DefaultMaxRounds = 24

// Driver runs the model/tool conversation for one request: it advertises
// the catalog, sends the transcript to the model, executes any requested
// tool calls, and repeats until the model answers in plain text.
type Driver struct {
	model      llms.Model
	dispatcher *Dispatcher
	catalog    []llms.Tool
	maxRounds  int
}

// NewDriver creates a driver over the model and the dispatcher's sessions.
func NewDriver(model llms.Model, dispatcher *Dispatcher, catalog []llms.Tool, maxRounds int) *Driver {
	return &Driver{
		model:      model,
		dispatcher: dispatcher,
		catalog:    catalog,
		maxRounds:  values.NumbersCoalesce(maxRounds, DefaultMaxRounds),
	}
}

// Run drives the conversation to completion and returns the model's final
// text. Text produced in intermediate turns is accumulated, so a model that
// narrates between tool calls does not lose that output.
func (d *Driver) Run(ctx context.Context, query string) (string, error) {
	prov := d.model.GetProviderType()
	if !prov.Supports(llms.CapabilityFunctionCalling) {
		return "", errors.Newf("model %s does not support function calling", d.model.GetName())
	}

	modelName := d.model.GetName()
	transcript := []llms.Message{
		llms.MessageFromTextParts(llms.RoleHuman, query),
	}

	var answer strings.Builder
	for round := 0; ; round++ {
		if round >= d.maxRounds {
			return "", errors.WithMessagef(ErrRoundLimit, "after %d rounds", round)
		}

		bytesSent := llmutils.CountMessagesContentSize(transcript)
		metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(transcript)), modelName)
		metricskey.StatsLLMBytesSent.IncrCounter(float64(bytesSent), modelName)

		resp, err := d.model.GenerateContent(ctx, transcript, llms.WithTools(d.catalog))
		if err != nil {
			return "", errors.WithMessagef(err, "failed to generate content from LLM")
		}

		bytesReceived := llmutils.CountResponseContentSize(resp)
		metricskey.StatsLLMBytesReceived.IncrCounter(float64(bytesReceived), modelName)

		tokensIn, tokensOut, _ := llmutils.CountTokens(resp)
		metricskey.StatsLLMInputTokens.IncrCounter(float64(tokensIn), modelName)
		metricskey.StatsLLMOutputTokens.IncrCounter(float64(tokensOut), modelName)

		if len(resp.Choices) == 0 {
			return "", errors.Newf("LLM returned empty response")
		}

		var executed int
		executed, transcript, err = d.executeToolCalls(ctx, transcript, resp)
		if err != nil {
			return "", err
		}

		for _, choice := range resp.Choices {
			if choice.Content != "" {
				if answer.Len() > 0 {
					answer.WriteString("\n\n")
				}
				answer.WriteString(choice.Content)
			}
		}

		if executed == 0 {
			logger.ContextKV(ctx, xlog.DEBUG,
				"status", "completed",
				"model", modelName,
				"rounds", round+1,
			)
			return answer.String(), nil
		}
	}
}

// executeToolCalls runs every tool call in the response and appends the
// call/response pairs to the transcript. Calls run concurrently, but their
// responses are appended in the model's order. A tool failure is reported
// back to the model as the tool's output; only an unresolvable tool name
// aborts the request.
func (d *Driver) executeToolCalls(ctx context.Context, transcript []llms.Message, resp *llms.ContentResponse) (int, []llms.Message, error) {
	// group tool calls per choice so each assistant message stays adjacent
	// to its own tool responses in the transcript
	type choiceGroup struct {
		toolCalls []llms.ToolCall
		start     int
	}
	var groups []choiceGroup
	var toolCalls []llms.ToolCall
	for _, choice := range resp.Choices {
		var choiceToolCalls []llms.ToolCall
		for i, toolCall := range choice.ToolCalls {
			if toolCall.ID == "" {
				toolCall.ID = fmt.Sprintf("%s_%d", toolCall.FunctionCall.Name, i)
			}
			toolCall.Type = values.StringsCoalesce(toolCall.Type, "function")
			choiceToolCalls = append(choiceToolCalls, toolCall)

			logger.ContextKV(ctx, xlog.DEBUG,
				"status", "tool_call_found",
				"tool_call_id", toolCall.ID,
				"tool_call_name", toolCall.FunctionCall.Name,
			)
		}
		if len(choiceToolCalls) == 0 {
			continue
		}
		groups = append(groups, choiceGroup{toolCalls: choiceToolCalls, start: len(toolCalls)})
		toolCalls = append(toolCalls, choiceToolCalls...)
	}

	if len(toolCalls) == 0 {
		return 0, transcript, nil
	}

	type toolCallResult struct {
		response string
		err      error
	}
	results := make([]toolCallResult, len(toolCalls))

	var wg sync.WaitGroup
	wg.Add(len(toolCalls))
	for i, toolCall := range toolCalls {
		go func(index int, tc llms.ToolCall) {
			defer wg.Done()
			res, err := d.dispatcher.Dispatch(ctx, tc.FunctionCall.Name, tc.FunctionCall.Arguments)
			if err != nil {
				if errors.Is(err, ErrInvalidIdentifier) {
					results[index] = toolCallResult{err: err}
					return
				}
				// feed the failure back so the model can recover or rephrase
				res = fmt.Sprintf("Tool call failed: %s", err.Error())
			}
			results[index] = toolCallResult{response: res}
		}(i, toolCall)
	}
	wg.Wait()

	for _, result := range results {
		if result.err != nil {
			return 0, transcript, result.err
		}
	}

	for _, group := range groups {
		transcript = append(transcript, llms.MessageFromToolCalls(llms.RoleAI, group.toolCalls...))
		for i, tc := range group.toolCalls {
			transcript = append(transcript, llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
				ToolCallID: tc.ID,
				Name:       tc.FunctionCall.Name,
				Content:    results[group.start+i].response,
			}))
		}
	}

	return len(toolCalls), transcript, nil
}
