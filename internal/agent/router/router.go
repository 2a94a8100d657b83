// Package router dispatches inbound agent-initiated JSON-RPC requests to a
// pluggable delegate implementing the host's capabilities. Handlers are
// uniform decode → delegate-call → encode triples; business logic lives in
// the delegate implementations.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/agenthost/agenthost/internal/common/logger"
	"github.com/agenthost/agenthost/pkg/acp/jsonrpc"
	"github.com/agenthost/agenthost/pkg/acp/protocol"
)

// Delegate implements the host capabilities the agent may call. The router
// borrows the delegate; it never owns its lifetime.
type Delegate interface {
	ReadTextFile(ctx context.Context, p protocol.ReadTextFileParams) (protocol.ReadTextFileResult, error)
	WriteTextFile(ctx context.Context, p protocol.WriteTextFileParams) (protocol.WriteTextFileResult, error)
	CreateTerminal(ctx context.Context, p protocol.TerminalCreateParams) (protocol.TerminalCreateResult, error)
	TerminalOutput(ctx context.Context, p protocol.TerminalIDParams) (protocol.TerminalOutputResult, error)
	WaitForTerminalExit(ctx context.Context, p protocol.TerminalIDParams) (protocol.TerminalWaitExitResult, error)
	KillTerminal(ctx context.Context, p protocol.TerminalIDParams) (protocol.TerminalKillResult, error)
	ReleaseTerminal(ctx context.Context, p protocol.TerminalIDParams) (protocol.TerminalReleaseResult, error)
	RequestPermission(ctx context.Context, p protocol.RequestPermissionParams) (protocol.RequestPermissionResult, error)
}

// validator is implemented by param types that check required fields.
type validator interface {
	Validate() error
}

// handlerFunc decodes params, invokes the delegate and re-encodes the
// result. It returns a JSON-RPC error instead of a Go error so every
// failure reaches the agent as a typed response.
type handlerFunc func(ctx context.Context, d Delegate, params json.RawMessage) (interface{}, *jsonrpc.Error)

// Router routes agent → host requests by method name.
type Router struct {
	logger   *logger.Logger
	delegate Delegate
	table    map[string]handlerFunc
}

// New creates a router around the given delegate. A nil delegate is
// accepted; requests then fail with a missing-delegate error until
// SetDelegate is called.
func New(delegate Delegate, log *logger.Logger) *Router {
	r := &Router{
		logger:   log.WithFields(zap.String("component", "request-router")),
		delegate: delegate,
	}
	r.table = map[string]handlerFunc{
		protocol.MethodReadTextFile:           handle(Delegate.ReadTextFile),
		protocol.MethodWriteTextFile:          handle(Delegate.WriteTextFile),
		protocol.MethodTerminalCreate:         handle(Delegate.CreateTerminal),
		protocol.MethodTerminalOutput:         handle(Delegate.TerminalOutput),
		protocol.MethodTerminalWaitExit:       handle(Delegate.WaitForTerminalExit),
		protocol.MethodTerminalKill:           handle(Delegate.KillTerminal),
		protocol.MethodTerminalRelease:        handle(Delegate.ReleaseTerminal),
		protocol.MethodRequestPermission:      handle(Delegate.RequestPermission),
		protocol.MethodRequestPermissionAlias: handle(Delegate.RequestPermission),
	}
	return r
}

// SetDelegate swaps the capability delegate.
func (r *Router) SetDelegate(d Delegate) {
	r.delegate = d
}

// RouteRequest dispatches one inbound request and always produces a
// response envelope with the matching id.
func (r *Router) RouteRequest(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	handler, ok := r.table[req.Method]
	if !ok {
		r.logger.Warn("unsupported method from agent", zap.String("method", req.Method))
		return jsonrpc.NewErrorResponse(req.ID,
			jsonrpc.NewError(jsonrpc.MethodNotFound, fmt.Sprintf("unsupported method: %s", req.Method)))
	}

	if r.delegate == nil {
		return jsonrpc.NewErrorResponse(req.ID,
			jsonrpc.NewError(jsonrpc.InternalError, "no capability delegate configured"))
	}

	result, rpcErr := handler(ctx, r.delegate, req.Params)
	if rpcErr != nil {
		r.logger.Warn("request failed",
			zap.String("method", req.Method),
			zap.Int("code", rpcErr.Code),
			zap.String("error", rpcErr.Message))
		return jsonrpc.NewErrorResponse(req.ID, rpcErr)
	}

	resp, err := jsonrpc.NewResponse(req.ID, result)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID,
			jsonrpc.NewError(jsonrpc.InternalError, fmt.Sprintf("failed to encode result: %v", err)))
	}
	return resp
}

// handle builds the uniform decode → call → encode triple for one method.
func handle[Req any, Res any](call func(Delegate, context.Context, Req) (Res, error)) handlerFunc {
	return func(ctx context.Context, d Delegate, params json.RawMessage) (interface{}, *jsonrpc.Error) {
		var req Req
		if len(params) == 0 {
			return nil, jsonrpc.NewError(jsonrpc.InvalidParams, "missing params")
		}
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, jsonrpc.NewError(jsonrpc.InvalidParams, fmt.Sprintf("invalid params: %v", err))
		}
		if v, ok := any(req).(validator); ok {
			if err := v.Validate(); err != nil {
				return nil, jsonrpc.NewError(jsonrpc.InvalidParams, fmt.Sprintf("invalid params: %v", err))
			}
		}
		res, err := call(d, ctx, req)
		if err != nil {
			return nil, delegateError(err)
		}
		return res, nil
	}
}

// codedError lets delegates choose their JSON-RPC error code.
type codedError interface {
	RPCErrorCode() int
}

// delegateError maps a delegate failure onto a JSON-RPC error, preserving
// delegate-chosen codes anywhere in the wrap chain.
func delegateError(err error) *jsonrpc.Error {
	var coded codedError
	if errors.As(err, &coded) {
		return jsonrpc.NewError(coded.RPCErrorCode(), err.Error())
	}
	return jsonrpc.NewError(jsonrpc.InternalError, err.Error())
}
