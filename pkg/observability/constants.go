package observability

const (
	AttrServiceName    = "service.name"
	AttrServiceVersion = "service.version"

	AttrTaskID       = "task.id"
	AttrAgentKind    = "agent.kind"
	AttrToolName     = "tool.name"
	AttrOracleModel  = "oracle.model"
	AttrTokensInput  = "oracle.tokens.input"
	AttrTokensOutput = "oracle.tokens.output"
	AttrErrorType    = "error.type"

	AttrHTTPMethod       = "http.method"
	AttrHTTPPath         = "http.route"
	AttrHTTPStatusCode   = "http.status_code"
	AttrHTTPResponseSize = "http.response.body.size"

	SpanTaskRun       = "orchestrator.task_run"
	SpanOracleDecide  = "orchestrator.oracle_decide"
	SpanAgentRun      = "agent.run"
	SpanToolExecution = "agent.tool_execution"
	SpanDelegation    = "orchestrator.delegate"
	SpanHTTPRequest   = "server.http_request"

	DefaultServiceName  = "conductor"
	DefaultSamplingRate = 1.0
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultMetricsPath  = "/metrics"
)
