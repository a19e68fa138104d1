package types

import "encoding/json"

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error object.
type RPCError struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

// ErrorData holds structured error detail.
type ErrorData struct {
	ErrorType string `json:"error_type"`
	Retryable bool   `json:"retryable"`
	Detail    string `json:"detail"`
}

// InitializeParams holds parameters for the initialize method.
type InitializeParams struct {
	ClientName      string `json:"client_name"`
	ClientVersion   string `json:"client_version"`
	ProtocolVersion int    `json:"protocol_version"`
}

// InitializeResult holds the result of the initialize method.
type InitializeResult struct {
	EngineVersion   string   `json:"engine_version"`
	ProtocolVersion int      `json:"protocol_version"`
	Metrics         []string `json:"metrics"`
	Model           string   `json:"model"`
	Provider        string   `json:"provider"`
	Threshold       float64  `json:"threshold"`
	CaseCount       int      `json:"case_count"`
}

// ListCasesParams holds parameters for the list_cases method.
type ListCasesParams struct {
	Difficulty string `json:"difficulty,omitempty"`
	Filter     string `json:"filter,omitempty"`
}

// ListCasesResult holds the result of the list_cases method.
type ListCasesResult struct {
	Cases []TestCase `json:"cases"`
}

// EvaluateCaseParams carries an externally produced agent result for one case.
type EvaluateCaseParams struct {
	CaseID string      `json:"case_id"`
	Result AgentResult `json:"result"`
}

// EvaluateCaseResult holds the scored case.
type EvaluateCaseResult struct {
	Case *CaseResult `json:"case"`
}

// ShutdownResult holds the result of the shutdown method.
type ShutdownResult struct {
	CasesEvaluated int     `json:"cases_evaluated"`
	Summary        Summary `json:"summary"`
}
