package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsLLMMessagesSent is base for counter metric for total messages sent to LLM
	StatsLLMMessagesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_messages_sent",
		Help:         "stats_llm_messages_sent provides total messages sent to LLM",
		RequiredTags: []string{"model"},
	}

	StatsLLMBytesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_bytes_sent",
		Help:         "stats_llm_bytes_sent provides total bytes sent to LLM",
		RequiredTags: []string{"model"},
	}

	StatsLLMBytesReceived = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_bytes_received",
		Help:         "stats_llm_bytes_received provides total bytes received from LLM",
		RequiredTags: []string{"model"},
	}

	StatsLLMInputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_input_tokens",
		Help:         "stats_llm_input_tokens provides total input tokens sent to LLM",
		RequiredTags: []string{"model"},
	}

	StatsLLMOutputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_output_tokens",
		Help:         "stats_llm_output_tokens provides total output tokens received from LLM",
		RequiredTags: []string{"model"},
	}

	StatsBridgeRequestsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_bridge_requests_succeeded",
		Help:         "stats_bridge_requests_succeeded provides total bridge requests succeeded",
		RequiredTags: []string{},
	}

	StatsBridgeRequestsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_bridge_requests_failed",
		Help:         "stats_bridge_requests_failed provides total bridge requests failed",
		RequiredTags: []string{"reason"},
	}

	StatsProviderConnectsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_provider_connects_failed",
		Help:         "stats_provider_connects_failed provides total MCP provider connect failures",
		RequiredTags: []string{"provider"},
	}

	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"tool"},
	}
)

// Perf
var (
	PerfBridgeRequest = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_bridge_request",
		Help:         "perf_bridge_request provides duration of a bridge request",
		RequiredTags: []string{},
	}

	PerfProviderConnect = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_provider_connect",
		Help:         "perf_provider_connect provides duration of MCP provider connect",
		RequiredTags: []string{"provider"},
	}

	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"tool"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfBridgeRequest,
	&PerfProviderConnect,
	&PerfToolCall,
	&StatsBridgeRequestsFailed,
	&StatsBridgeRequestsSucceeded,
	&StatsLLMBytesReceived,
	&StatsLLMBytesSent,
	&StatsLLMInputTokens,
	&StatsLLMMessagesSent,
	&StatsLLMOutputTokens,
	&StatsProviderConnectsFailed,
	&StatsToolCallsFailed,
	&StatsToolCallsSucceeded,
}
