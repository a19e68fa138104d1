package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/segmentio/encoding/json"

	"github.com/sqleval/sqleval/internal/corpus"
	"github.com/sqleval/sqleval/internal/driver"
	"github.com/sqleval/sqleval/pkg/types"
)

// ProtocolVersion is the JSON-RPC protocol revision spoken by the server.
const ProtocolVersion = 1

// Engine is what the handlers evaluate against.
type Engine struct {
	Version  string
	Corpus   *corpus.Corpus
	Driver   *driver.Driver
	Metrics  []string
	Model    string
	Provider string
}

// RegisterHandlers registers the built-in JSON-RPC methods on s.
func RegisterHandlers(s *Server, eng *Engine) {
	s.RegisterHandler("initialize", handleInitialize(eng))
	s.RegisterHandler("list_cases", handleListCases(eng))
	s.RegisterHandler("evaluate_case", handleEvaluateCase(eng))
	s.RegisterHandler("shutdown", handleShutdown)
}

func invalidParams(format string, args ...any) *types.RPCError {
	msg := fmt.Sprintf(format, args...)
	return types.NewRPCError(types.ErrInvalidParams, msg, types.ErrTypeInvalidParams, false, msg)
}

func requireReady(session *Session) *types.RPCError {
	if st := session.State(); st != StateReady {
		return types.NewRPCError(types.ErrSessionError, "session not ready", types.ErrTypeSessionError, false,
			"session is "+st.String()+"; call initialize first")
	}
	return nil
}

func decodeParams(params json.RawMessage, v any) *types.RPCError {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return invalidParams("invalid params: %v", err)
	}
	return nil
}

func handleInitialize(eng *Engine) Handler {
	return func(_ context.Context, session *Session, params json.RawMessage) (any, *types.RPCError) {
		var p types.InitializeParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		if p.ProtocolVersion > ProtocolVersion {
			return nil, invalidParams("unsupported protocol_version %d (engine speaks %d)", p.ProtocolVersion, ProtocolVersion)
		}
		if !session.Initialize(p.ClientName) {
			return nil, types.NewRPCError(types.ErrSessionError, "already initialized", types.ErrTypeSessionError, false,
				"initialize may only be called once per session")
		}
		return &types.InitializeResult{
			EngineVersion:   eng.Version,
			ProtocolVersion: ProtocolVersion,
			Metrics:         eng.Metrics,
			Model:           eng.Model,
			Provider:        eng.Provider,
			Threshold:       eng.Driver.Threshold(),
			CaseCount:       eng.Corpus.Len(),
		}, nil
	}
}

func handleListCases(eng *Engine) Handler {
	return func(_ context.Context, session *Session, params json.RawMessage) (any, *types.RPCError) {
		if err := requireReady(session); err != nil {
			return nil, err
		}
		var p types.ListCasesParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		var f driver.Filter
		if p.Difficulty != "" {
			d, err := types.ParseDifficulty(strings.ToLower(p.Difficulty))
			if err != nil {
				return nil, invalidParams("%v", err)
			}
			f.Difficulty = d
		}
		f.Substring = p.Filter

		cases, err := f.Apply(eng.Corpus.All())
		if err != nil {
			cases = []types.TestCase{}
		}
		return &types.ListCasesResult{Cases: cases}, nil
	}
}

func handleEvaluateCase(eng *Engine) Handler {
	return func(ctx context.Context, session *Session, params json.RawMessage) (any, *types.RPCError) {
		if err := requireReady(session); err != nil {
			return nil, err
		}
		var p types.EvaluateCaseParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		if p.CaseID == "" {
			return nil, invalidParams("case_id is required")
		}
		tc, ok := eng.Corpus.ByID(p.CaseID)
		if !ok {
			return nil, types.NewRPCError(types.ErrUnknownCase, "unknown case", types.ErrTypeUnknownCase, false,
				"no test case with id "+p.CaseID)
		}

		res := p.Result
		if res.Question == "" {
			res.Question = tc.Question
		}
		cr := eng.Driver.EvaluateCase(ctx, &tc, &res)
		session.AddCase(cr)
		return &types.EvaluateCaseResult{Case: cr}, nil
	}
}

func handleShutdown(_ context.Context, session *Session, _ json.RawMessage) (any, *types.RPCError) {
	cases := session.Cases()
	session.SetState(StateShuttingDown)
	return &types.ShutdownResult{
		CasesEvaluated: len(cases),
		Summary:        driver.Summarize(cases),
	}, nil
}
