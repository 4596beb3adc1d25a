package bridge_test

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/bridge"
	"github.com/effective-security/mcpbridge/mcpclient"
	"github.com/effective-security/mcpbridge/mocks/mockllms"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// fakeSession is a scripted provider session.
type fakeSession struct {
	name        string
	tools       []mcp.Tool
	connectErr  error
	listErr     error
	callResults map[string]*mcp.CallToolResult
	callErr     error

	connected atomic.Bool
	closed    atomic.Int32
	calls     []string
}

func (s *fakeSession) Connect(ctx context.Context) error {
	if s.connectErr != nil {
		return s.connectErr
	}
	s.connected.Store(true)
	return nil
}

func (s *fakeSession) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.tools, nil
}

func (s *fakeSession) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	s.calls = append(s.calls, name)
	if s.callErr != nil {
		return nil, s.callErr
	}
	if res, ok := s.callResults[name]; ok {
		return res, nil
	}
	return nil, errors.Newf("no such tool %q", name)
}

func (s *fakeSession) Close() error {
	s.closed.Add(1)
	return nil
}

func dialerFor(sessions map[string]*fakeSession) mcpclient.DialFunc {
	return func(name string, cfg *mcpclient.ServerConfig) (mcpclient.ISession, error) {
		sess, ok := sessions[name]
		if !ok {
			return nil, errors.Newf("unexpected provider %q", name)
		}
		return sess, nil
	}
}

// fakeModel replays scripted responses in order.
type fakeModel struct {
	responses   []*llms.ContentResponse
	err         error
	calls       int
	transcripts [][]llms.Message
	tools       []llms.Tool
	delay       time.Duration
}

func (m *fakeModel) GetProviderType() llms.ProviderType { return llms.ProviderOpenAI }
func (m *fakeModel) GetName() string                    { return "fake-model" }

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	opts := &llms.CallOptions{}
	for _, opt := range options {
		opt(opts)
	}
	m.tools = opts.Tools
	m.transcripts = append(m.transcripts, messages)
	if m.err != nil {
		return nil, m.err
	}
	if m.calls >= len(m.responses) {
		return nil, errors.New("model called past its script")
	}
	resp := m.responses[m.calls]
	m.calls++
	return resp, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func toolCallResponse(name, args string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				StopReason: "tool_calls",
				ToolCalls: []llms.ToolCall{
					{
						ID:   "call_1",
						Type: "function",
						FunctionCall: &llms.FunctionCall{
							Name:      name,
							Arguments: args,
						},
					},
				},
			},
		},
	}
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{Content: text, StopReason: "stop"},
		},
	}
}

func sseConfig(names ...string) *mcpclient.Config {
	cfg := &mcpclient.Config{Providers: map[string]*mcpclient.ServerConfig{}}
	for _, name := range names {
		cfg.Providers[name] = &mcpclient.ServerConfig{
			Type: mcpclient.TransportSSE,
			URL:  "https://" + name + ".example.com/sse",
		}
	}
	return cfg
}

func TestMangleToolName(t *testing.T) {
	assert.Equal(t, "server_0_search", bridge.MangleToolName(0, "search"))
	assert.Equal(t, "server_12_get_weather", bridge.MangleToolName(12, "get_weather"))
}

func TestResolveToolName(t *testing.T) {
	ordinal, name, err := bridge.ResolveToolName("server_0_search", 2)
	require.NoError(t, err)
	assert.Equal(t, 0, ordinal)
	assert.Equal(t, "search", name)

	// tool names may themselves contain underscores and digits
	ordinal, name, err = bridge.ResolveToolName("server_1_get_weather_v2", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, ordinal)
	assert.Equal(t, "get_weather_v2", name)

	_, _, err = bridge.ResolveToolName("search", 2)
	require.ErrorIs(t, err, bridge.ErrInvalidIdentifier)

	_, _, err = bridge.ResolveToolName("server_x_search", 2)
	require.ErrorIs(t, err, bridge.ErrInvalidIdentifier)

	_, _, err = bridge.ResolveToolName("server_2_search", 2)
	require.ErrorIs(t, err, bridge.ErrInvalidIdentifier)

	_, _, err = bridge.ResolveToolName("server_0_", 2)
	require.ErrorIs(t, err, bridge.ErrInvalidIdentifier)
}

func TestRegistryBestEffort(t *testing.T) {
	sessions := map[string]*fakeSession{
		"alpha": {name: "alpha", connectErr: errors.New("connection refused")},
		"beta":  {name: "beta", tools: []mcp.Tool{{Name: "lookup"}}},
	}
	reg := bridge.NewRegistry(dialerFor(sessions))
	reg.Connect(t.Context(), sseConfig("alpha", "beta"))

	require.Len(t, reg.Sessions(), 1)
	assert.Equal(t, "beta", reg.Sessions()[0].Name)

	reg.Teardown(t.Context())
	assert.Equal(t, int32(1), sessions["beta"].closed.Load())
	assert.Empty(t, reg.Sessions())
}

func TestRegistryOrdinalsSorted(t *testing.T) {
	sessions := map[string]*fakeSession{
		"zulu":  {name: "zulu"},
		"alpha": {name: "alpha"},
		"mike":  {name: "mike"},
	}
	reg := bridge.NewRegistry(dialerFor(sessions))
	reg.Connect(t.Context(), sseConfig("zulu", "alpha", "mike"))

	require.Len(t, reg.Sessions(), 3)
	assert.Equal(t, "alpha", reg.Sessions()[0].Name)
	assert.Equal(t, "mike", reg.Sessions()[1].Name)
	assert.Equal(t, "zulu", reg.Sessions()[2].Name)
	reg.Teardown(t.Context())
}

func TestExecuteToolRoundTrip(t *testing.T) {
	search := &fakeSession{
		name: "search",
		tools: []mcp.Tool{
			{
				Name:        "search",
				Description: "Searches the web",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]any{
						"q": map[string]any{"type": "string"},
					},
				},
			},
		},
		callResults: map[string]*mcp.CallToolResult{
			"search": textResult("3 results"),
		},
	}
	model := &fakeModel{
		responses: []*llms.ContentResponse{
			toolCallResponse("server_0_search", `{"q":"cats"}`),
			textResponse("Found 3 results."),
		},
	}

	b := bridge.New(model, bridge.WithDialer(dialerFor(map[string]*fakeSession{"search": search})))
	res, err := b.Execute(t.Context(), "find cats", sseConfig("search"))
	require.NoError(t, err)
	assert.Equal(t, "Found 3 results.", res)

	// catalog advertised mangled names
	require.Len(t, model.tools, 1)
	assert.Equal(t, "server_0_search", model.tools[0].Function.Name)

	// the provider saw the unmangled name
	assert.Equal(t, []string{"search"}, search.calls)

	// second model turn carried the tool response in the transcript
	require.Len(t, model.transcripts, 2)
	last := model.transcripts[1]
	require.Len(t, last, 3)
	assert.Equal(t, llms.RoleHuman, last[0].Role)
	assert.Equal(t, llms.RoleAI, last[1].Role)
	assert.Equal(t, llms.RoleTool, last[2].Role)
	assert.Contains(t, last[2].GetContent(), "3 results")

	// teardown happened
	assert.Equal(t, int32(1), search.closed.Load())
}

func TestExecuteEmptyCatalog(t *testing.T) {
	model := &fakeModel{}

	t.Run("no_providers", func(t *testing.T) {
		b := bridge.New(model, bridge.WithDialer(dialerFor(nil)))
		_, err := b.Execute(t.Context(), "hello", sseConfig())
		require.ErrorIs(t, err, bridge.ErrEmptyCatalog)
		assert.Equal(t, http.StatusBadRequest, bridge.StatusCode(err))
	})

	t.Run("all_connects_fail", func(t *testing.T) {
		sessions := map[string]*fakeSession{
			"alpha": {name: "alpha", connectErr: errors.New("refused")},
		}
		b := bridge.New(model, bridge.WithDialer(dialerFor(sessions)))
		_, err := b.Execute(t.Context(), "hello", sseConfig("alpha"))
		require.ErrorIs(t, err, bridge.ErrEmptyCatalog)
	})

	// the model was never consulted
	assert.Zero(t, model.calls)
}

func TestExecuteInvalidConfig(t *testing.T) {
	model := &fakeModel{}
	b := bridge.New(model, bridge.WithDialer(dialerFor(nil)))

	cfg := &mcpclient.Config{
		Providers: map[string]*mcpclient.ServerConfig{
			"search": {Type: mcpclient.TransportSSE},
		},
	}
	_, err := b.Execute(t.Context(), "find cats", cfg)
	require.ErrorIs(t, err, bridge.ErrInvalidConfig)
	assert.Equal(t, http.StatusBadRequest, bridge.StatusCode(err))

	// no connect was attempted and the model was never consulted
	assert.Zero(t, model.calls)
}

func TestExecuteCollidingToolNames(t *testing.T) {
	alpha := &fakeSession{
		name:  "alpha",
		tools: []mcp.Tool{{Name: "x"}},
		callResults: map[string]*mcp.CallToolResult{
			"x": textResult("from alpha"),
		},
	}
	beta := &fakeSession{
		name:  "beta",
		tools: []mcp.Tool{{Name: "x"}},
		callResults: map[string]*mcp.CallToolResult{
			"x": textResult("from beta"),
		},
	}
	model := &fakeModel{
		responses: []*llms.ContentResponse{
			toolCallResponse("server_1_x", `{}`),
			textResponse("done"),
		},
	}

	b := bridge.New(model, bridge.WithDialer(dialerFor(map[string]*fakeSession{
		"alpha": alpha,
		"beta":  beta,
	})))
	res, err := b.Execute(t.Context(), "call x", sseConfig("alpha", "beta"))
	require.NoError(t, err)
	assert.Equal(t, "done", res)

	// colliding local names stay distinct in the catalog
	require.Len(t, model.tools, 2)
	assert.Equal(t, "server_0_x", model.tools[0].Function.Name)
	assert.Equal(t, "server_1_x", model.tools[1].Function.Name)

	// the second ordinal routed to beta only
	assert.Empty(t, alpha.calls)
	assert.Equal(t, []string{"x"}, beta.calls)

	// beta's result reached the model
	last := model.transcripts[1]
	require.Len(t, last, 3)
	assert.Contains(t, last[2].GetContent(), "from beta")
}

func TestExecuteMultiChoiceTranscriptOrder(t *testing.T) {
	search := &fakeSession{
		name:  "search",
		tools: []mcp.Tool{{Name: "search"}},
		callResults: map[string]*mcp.CallToolResult{
			"search": textResult("ok"),
		},
	}
	multi := &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				StopReason: "tool_calls",
				ToolCalls: []llms.ToolCall{
					{ID: "call_a", Type: "function", FunctionCall: &llms.FunctionCall{Name: "server_0_search", Arguments: `{}`}},
				},
			},
			{
				StopReason: "tool_calls",
				ToolCalls: []llms.ToolCall{
					{ID: "call_b", Type: "function", FunctionCall: &llms.FunctionCall{Name: "server_0_search", Arguments: `{}`}},
				},
			},
		},
	}
	model := &fakeModel{
		responses: []*llms.ContentResponse{
			multi,
			textResponse("done"),
		},
	}

	b := bridge.New(model, bridge.WithDialer(dialerFor(map[string]*fakeSession{"search": search})))
	_, err := b.Execute(t.Context(), "go", sseConfig("search"))
	require.NoError(t, err)

	// each assistant message is immediately followed by its tool responses
	last := model.transcripts[1]
	require.Len(t, last, 5)
	assert.Equal(t, llms.RoleHuman, last[0].Role)
	assert.Equal(t, llms.RoleAI, last[1].Role)
	assert.Equal(t, llms.RoleTool, last[2].Role)
	assert.Contains(t, last[2].GetContent(), "call_a")
	assert.Equal(t, llms.RoleAI, last[3].Role)
	assert.Equal(t, llms.RoleTool, last[4].Role)
	assert.Contains(t, last[4].GetContent(), "call_b")
}

func TestExecuteInvalidIdentifier(t *testing.T) {
	search := &fakeSession{
		name:  "search",
		tools: []mcp.Tool{{Name: "search"}},
	}
	model := &fakeModel{
		responses: []*llms.ContentResponse{
			toolCallResponse("server_9_search", `{}`),
		},
	}

	b := bridge.New(model, bridge.WithDialer(dialerFor(map[string]*fakeSession{"search": search})))
	_, err := b.Execute(t.Context(), "find cats", sseConfig("search"))
	require.ErrorIs(t, err, bridge.ErrInvalidIdentifier)
	assert.Equal(t, http.StatusBadRequest, bridge.StatusCode(err))

	// no provider tool was invoked, sessions still torn down
	assert.Empty(t, search.calls)
	assert.Equal(t, int32(1), search.closed.Load())
}

func TestExecuteToolFailureFedBack(t *testing.T) {
	search := &fakeSession{
		name:    "search",
		tools:   []mcp.Tool{{Name: "search"}},
		callErr: errors.New("upstream 503"),
	}
	model := &fakeModel{
		responses: []*llms.ContentResponse{
			toolCallResponse("server_0_search", `{}`),
			textResponse("I could not search right now."),
		},
	}

	b := bridge.New(model, bridge.WithDialer(dialerFor(map[string]*fakeSession{"search": search})))
	res, err := b.Execute(t.Context(), "find cats", sseConfig("search"))
	require.NoError(t, err)
	assert.Equal(t, "I could not search right now.", res)

	// the failure reached the model as the tool's output
	last := model.transcripts[1]
	require.Len(t, last, 3)
	assert.Equal(t, llms.RoleTool, last[2].Role)
	assert.Contains(t, last[2].GetContent(), "Tool call failed")
	assert.Contains(t, last[2].GetContent(), "upstream 503")
}

func TestExecuteTimeout(t *testing.T) {
	search := &fakeSession{
		name:  "search",
		tools: []mcp.Tool{{Name: "search"}},
	}
	model := &fakeModel{
		delay: time.Second,
		responses: []*llms.ContentResponse{
			textResponse("too late"),
		},
	}

	b := bridge.New(model,
		bridge.WithDialer(dialerFor(map[string]*fakeSession{"search": search})),
		bridge.WithTimeout(20*time.Millisecond),
	)
	_, err := b.Execute(t.Context(), "find cats", sseConfig("search"))
	require.Error(t, err)
	assert.Equal(t, http.StatusGatewayTimeout, bridge.StatusCode(err))
	assert.Equal(t, int32(1), search.closed.Load())
}

func TestExecuteModelError(t *testing.T) {
	search := &fakeSession{
		name:  "search",
		tools: []mcp.Tool{{Name: "search"}},
	}
	model := &fakeModel{err: errors.New("api: 500")}

	b := bridge.New(model, bridge.WithDialer(dialerFor(map[string]*fakeSession{"search": search})))
	_, err := b.Execute(t.Context(), "find cats", sseConfig("search"))
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, bridge.StatusCode(err))
	assert.Equal(t, int32(1), search.closed.Load())
}

func TestExecuteRoundLimit(t *testing.T) {
	search := &fakeSession{
		name:  "search",
		tools: []mcp.Tool{{Name: "search"}},
		callResults: map[string]*mcp.CallToolResult{
			"search": textResult("more"),
		},
	}
	var responses []*llms.ContentResponse
	for range 10 {
		responses = append(responses, toolCallResponse("server_0_search", `{}`))
	}
	model := &fakeModel{responses: responses}

	b := bridge.New(model,
		bridge.WithDialer(dialerFor(map[string]*fakeSession{"search": search})),
		bridge.WithMaxRounds(3),
	)
	_, err := b.Execute(t.Context(), "find cats", sseConfig("search"))
	require.ErrorIs(t, err, bridge.ErrRoundLimit)
	assert.Equal(t, 3, model.calls)
}

func TestExecuteAccumulatesText(t *testing.T) {
	search := &fakeSession{
		name:  "search",
		tools: []mcp.Tool{{Name: "search"}},
		callResults: map[string]*mcp.CallToolResult{
			"search": textResult("3 results"),
		},
	}
	intermediate := &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content:    "Let me look that up.",
				StopReason: "tool_calls",
				ToolCalls: []llms.ToolCall{
					{
						ID:   "call_1",
						Type: "function",
						FunctionCall: &llms.FunctionCall{
							Name:      "server_0_search",
							Arguments: `{}`,
						},
					},
				},
			},
		},
	}
	model := &fakeModel{
		responses: []*llms.ContentResponse{
			intermediate,
			textResponse("Found 3 results."),
		},
	}

	b := bridge.New(model, bridge.WithDialer(dialerFor(map[string]*fakeSession{"search": search})))
	res, err := b.Execute(t.Context(), "find cats", sseConfig("search"))
	require.NoError(t, err)
	assert.Equal(t, "Let me look that up.\n\nFound 3 results.", res)
}

func TestExecuteWithMockModel(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	search := &fakeSession{
		name:  "search",
		tools: []mcp.Tool{{Name: "search"}},
		callResults: map[string]*mcp.CallToolResult{
			"search": textResult("3 results"),
		},
	}

	mockLLM := mockllms.NewMockModel(ctrl)
	mockLLM.EXPECT().GetProviderType().Return(llms.ProviderOpenAI).AnyTimes()
	mockLLM.EXPECT().GetName().Return("gpt-5-mini").AnyTimes()

	first := mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(toolCallResponse("server_0_search", `{"q":"cats"}`), nil)
	mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		After(first).
		DoAndReturn(func(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
			require.Len(t, messages, 3)
			assert.Equal(t, llms.RoleTool, messages[2].Role)
			return textResponse("Found 3 results."), nil
		})

	b := bridge.New(mockLLM, bridge.WithDialer(dialerFor(map[string]*fakeSession{"search": search})))
	res, err := b.Execute(t.Context(), "find cats", sseConfig("search"))
	require.NoError(t, err)
	assert.Equal(t, "Found 3 results.", res)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusOK, bridge.StatusCode(nil))
	assert.Equal(t, http.StatusBadRequest, bridge.StatusCode(bridge.ErrInvalidConfig))
	assert.Equal(t, http.StatusBadRequest, bridge.StatusCode(bridge.ErrEmptyCatalog))
	assert.Equal(t, http.StatusBadRequest, bridge.StatusCode(errors.WithMessage(bridge.ErrInvalidIdentifier, "bad name")))
	assert.Equal(t, http.StatusGatewayTimeout, bridge.StatusCode(context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, bridge.StatusCode(errors.New("boom")))
}
