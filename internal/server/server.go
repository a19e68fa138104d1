// Package server exposes the evaluators over NDJSON JSON-RPC on stdio so an
// agent written in another language can submit its outputs for scoring.
package server

import (
	"bufio"
	"context"
	"io"
	"sync"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"github.com/sqleval/sqleval/pkg/types"
)

// Handler is the function signature for JSON-RPC method handlers.
type Handler func(ctx context.Context, session *Session, params json.RawMessage) (any, *types.RPCError)

// maxLineBytes bounds one request line.
const maxLineBytes = 10 * 1024 * 1024

// Server reads NDJSON requests from an io.Reader and writes NDJSON responses
// to an io.Writer, one request at a time.
type Server struct {
	reader   *bufio.Scanner
	writer   *bufio.Writer
	mu       sync.Mutex // protects writer
	session  *Session
	handlers map[string]Handler
	logger   *zap.Logger
}

// New creates a Server reading from in and writing to out.
func New(in io.Reader, out io.Writer, logger *zap.Logger) *Server {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		reader:   scanner,
		writer:   bufio.NewWriter(out),
		session:  NewSession(),
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// Session returns the server's session.
func (s *Server) Session() *Session { return s.session }

// RegisterHandler registers a handler for the given JSON-RPC method name.
func (s *Server) RegisterHandler(method string, h Handler) {
	s.handlers[method] = h
}

// Run reads NDJSON lines, dispatches them and writes responses until the
// input is closed, shutdown is requested or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go s.readLines(lines, scanErr, done)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErr:
			return err
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if len(line) == 0 {
				continue
			}
			s.writeResponse(s.dispatch(ctx, line))
			if s.session.State() == StateShuttingDown {
				return nil
			}
		}
	}
}

// readLines feeds scanned lines to lines until input ends or done is closed.
func (s *Server) readLines(lines chan<- []byte, scanErr chan<- error, done <-chan struct{}) {
	defer close(lines)
	for s.reader.Scan() {
		line := make([]byte, len(s.reader.Bytes()))
		copy(line, s.reader.Bytes())
		select {
		case lines <- line:
		case <-done:
			return
		}
	}
	if err := s.reader.Err(); err != nil {
		scanErr <- err
	}
}

// dispatch parses a raw JSON line into a Request and routes it to the
// appropriate handler.
func (s *Server) dispatch(ctx context.Context, line []byte) *types.Response {
	var req types.Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.logger.Error("parse error", zap.Error(err))
		return types.NewErrorResponse(0, &types.RPCError{
			Code:    -32700,
			Message: "parse error",
			Data:    &types.ErrorData{ErrorType: "PARSE_ERROR", Detail: err.Error()},
		})
	}

	if req.JSONRPC != "2.0" || req.Method == "" {
		s.logger.Error("invalid request", zap.Int64("id", req.ID), zap.String("method", req.Method))
		return types.NewErrorResponse(req.ID, &types.RPCError{
			Code:    -32600,
			Message: "invalid request",
			Data: &types.ErrorData{
				ErrorType: "INVALID_REQUEST",
				Detail:    "jsonrpc must be \"2.0\" and method must be non-empty",
			},
		})
	}

	h, ok := s.handlers[req.Method]
	if !ok {
		s.logger.Warn("method not found", zap.String("method", req.Method))
		return types.NewErrorResponse(req.ID, &types.RPCError{
			Code:    -32601,
			Message: "method not found",
			Data:    &types.ErrorData{ErrorType: "METHOD_NOT_FOUND", Detail: "unknown method: " + req.Method},
		})
	}

	result, rpcErr := h(ctx, s.session, req.Params)
	if rpcErr != nil {
		s.logger.Debug("request failed", zap.String("method", req.Method), zap.String("error", rpcErr.Message))
		return types.NewErrorResponse(req.ID, rpcErr)
	}

	resp, err := types.NewSuccessResponse(req.ID, result)
	if err != nil {
		s.logger.Error("failed to marshal result", zap.String("method", req.Method), zap.Error(err))
		return types.NewErrorResponse(req.ID, types.NewRPCError(
			types.ErrEngineError,
			"failed to marshal result",
			types.ErrTypeEngineError,
			false,
			err.Error(),
		))
	}
	return resp
}

// writeResponse serializes a Response as compact JSON followed by a newline.
func (s *Server) writeResponse(resp *types.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to marshal response", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.writer.Write(data)
	_ = s.writer.WriteByte('\n')
	_ = s.writer.Flush()
}
