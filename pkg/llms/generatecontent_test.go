package llms_test

import (
	"testing"

	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/stretchr/testify/assert"
)

func TestTextParts(t *testing.T) {
	t.Parallel()
	type args struct {
		role  llms.Role
		parts []string
	}
	tests := []struct {
		name string
		args args
		want llms.Message
	}{
		{
			"basics",
			args{
				llms.RoleHuman,
				[]string{"a", "b", "c"},
			},
			llms.MessageFromTextParts(llms.RoleHuman, "a", "b", "c"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mc := llms.MessageFromTextParts(tt.args.role, tt.args.parts...)
			assert.Equal(t, tt.want, mc)
		})
	}
}

func Test_Message_GetContent(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		msg     llms.Message
		content string
	}{
		{
			"text",
			llms.MessageFromTextParts(llms.RoleHuman, "a", "b", "c"),
			"a\nb\nc\n",
		},
		{
			"tool_call",
			llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{
				ID:   "call_1",
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      "server_0_search",
					Arguments: `{"q":"cats"}`,
				},
			}),
			"Tool Call: {\"id\":\"call_1\",\"type\":\"function\",\"function\":{\"name\":\"server_0_search\",\"arguments\":\"{\\\"q\\\":\\\"cats\\\"}\"}}\n",
		},
		{
			"tool_response",
			llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
				ToolCallID: "call_1",
				Name:       "server_0_search",
				Content:    "3 results",
			}),
			"Response: {\"tool_call_id\":\"call_1\",\"name\":\"server_0_search\",\"content\":\"3 results\"}\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.content, tt.msg.GetContent())
		})
	}
}

func Test_ProviderCapabilities(t *testing.T) {
	t.Parallel()
	assert.True(t, llms.ProviderOpenAI.Supports(llms.CapabilityFunctionCalling))
	assert.True(t, llms.ProviderAzure.Supports(llms.CapabilityMultiToolCalling))
	assert.False(t, llms.ProviderAzureAD.Supports(llms.CapabilityFunctionCalling))
	assert.False(t, llms.ProviderPerplexity.Supports(llms.CapabilityFunctionCalling))
}
