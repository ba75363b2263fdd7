package stdiorpc

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/xizhibei/go-stdio-rpc/jsonrpc"
)

// Handshake sends initialize, reads its response and sends the initialized
// notification. An error object in the initialize response is logged and the
// handshake continues; any other failure ends it.
func (s *Session) Handshake(ctx context.Context) (*jsonrpc.Response, error) {
	res, err := s.Call(ctx, jsonrpc.MethodInitialize, jsonrpc.InitializeParams{
		ProtocolVersion: s.options.protocolVersion,
		ClientInfo:      s.options.clientInfo,
	})

	var rpcErr *jsonrpc.Error
	switch {
	case errors.As(err, &rpcErr):
		s.log.Warnf("Initialize answered with error: %v", rpcErr)
	case err != nil:
		return res, errors.Wrap(err, "initialize")
	}

	if err := s.Notify(ctx, jsonrpc.MethodInitialized, nil); err != nil {
		return res, errors.Wrap(err, "initialized notification")
	}

	s.initialized.Store(true)
	return res, nil
}

// CallTool invokes a tool by name. It requires a completed Handshake.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (*jsonrpc.Response, error) {
	if !s.initialized.Load() {
		return nil, ErrNotInitialized
	}
	return s.Call(ctx, jsonrpc.MethodToolsCall, jsonrpc.NewCallToolParams(name, args))
}

// Run performs one full cycle: start the peer, handshake, call cfg.ToolName
// once and close. The session is closed on every path.
func Run(ctx context.Context, cfg Config, options ...Option) (*jsonrpc.Response, error) {
	s, err := Start(ctx, cfg, options...)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if _, err := s.Handshake(ctx); err != nil {
		return nil, err
	}

	return s.CallTool(ctx, cfg.ToolName, cfg.ToolArguments)
}
