package lsp

import (
	"errors"
	"fmt"
)

var (
	ErrShutdown             = errors.New("lsp transport shut down")
	ErrMissingContentLength = errors.New("missing Content-Length header")
	ErrInvalidMessage       = errors.New("invalid JSON-RPC message")
)

// ErrorCode is a JSON-RPC error code.
type ErrorCode int

// JSON-RPC 2.0 codes, plus RequestFailed from LSP 3.17 for requests that
// were understood but could not be carried out.
const (
	CodeParseError     ErrorCode = -32700
	CodeInvalidRequest ErrorCode = -32600
	CodeMethodNotFound ErrorCode = -32601
	CodeInvalidParams  ErrorCode = -32602
	CodeInternalError  ErrorCode = -32603
	CodeRequestFailed  ErrorCode = -32803
)

var codeNames = map[ErrorCode]string{
	CodeParseError:     "parse error",
	CodeInvalidRequest: "invalid request",
	CodeMethodNotFound: "method not found",
	CodeInvalidParams:  "invalid params",
	CodeInternalError:  "internal error",
	CodeRequestFailed:  "request failed",
}

func (c ErrorCode) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("code %d", int(c))
}

// RPCError is the error object of a JSON-RPC response. Request handlers
// return one to choose the code; any other error becomes RequestFailed.
type RPCError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

// NewError builds an RPCError whose message is err's text.
func NewError(code ErrorCode, err error) *RPCError {
	return &RPCError{Code: code, Message: err.Error()}
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, int(e.Code), e.Message)
}

func toRPCError(err error) *RPCError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return NewError(CodeRequestFailed, err)
}
