package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Transport handles JSON-RPC 2.0 communication over a byte stream using
// the LSP base protocol with Content-Length headers. It plays the server
// role: it answers requests and sends notifications.
type Transport struct {
	reader *bufio.Reader
	writer io.Writer
	closer io.Closer
	logger *zap.Logger

	writeMu sync.Mutex

	mu            sync.RWMutex
	requests      map[string]RequestHandler
	notifications map[string]NotificationHandler

	inflight sync.WaitGroup
	closed   atomic.Bool
	done     chan struct{}
}

// NotificationHandler handles an incoming notification.
type NotificationHandler func(ctx context.Context, method string, params json.RawMessage)

// RequestHandler handles an incoming request. The returned value is sent as
// the result; an error is sent as a JSON-RPC error.
type RequestHandler func(ctx context.Context, params json.RawMessage) (any, error)

// message is any inbound JSON-RPC message.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type outgoingNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type resultResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
}

type errorResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   *RPCError       `json:"error"`
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithTransportLogger sets the transport's logger.
func WithTransportLogger(logger *zap.Logger) TransportOption {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTransport creates a transport reading from r and writing to w. c, if
// not nil, is closed with the transport.
func NewTransport(r io.Reader, w io.Writer, c io.Closer, opts ...TransportOption) *Transport {
	t := &Transport{
		reader:        bufio.NewReaderSize(r, 64*1024),
		writer:        w,
		closer:        c,
		logger:        zap.NewNop(),
		requests:      make(map[string]RequestHandler),
		notifications: make(map[string]NotificationHandler),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.Named("transport")
	return t
}

// OnNotification registers a handler for a notification method. The
// method "*" catches notifications without a handler.
func (t *Transport) OnNotification(method string, handler NotificationHandler) {
	t.mu.Lock()
	t.notifications[method] = handler
	t.mu.Unlock()
}

// OnRequest registers a handler for a request method.
func (t *Transport) OnRequest(method string, handler RequestHandler) {
	t.mu.Lock()
	t.requests[method] = handler
	t.mu.Unlock()
}

// Notify sends a notification.
func (t *Transport) Notify(ctx context.Context, method string, params any) error {
	if t.closed.Load() {
		return ErrShutdown
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.send(&outgoingNotification{JSONRPC: "2.0", Method: method, Params: params})
}

// Serve reads and dispatches messages until the stream ends, the transport
// is closed or ctx is done. Notifications are handled in arrival order on
// the reading goroutine; requests are handled concurrently. A clean end of
// stream returns nil.
func (t *Transport) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer t.inflight.Wait()

	go func() {
		select {
		case <-ctx.Done():
			t.Close()
		case <-t.done:
		}
	}()

	for {
		body, err := readMessage(t.reader)
		if err != nil {
			if t.closed.Load() {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			if errors.Is(err, ErrMissingContentLength) {
				t.logger.Warn("skipping message", zap.Error(err))
				continue
			}
			return fmt.Errorf("read message: %w", err)
		}
		t.dispatch(ctx, body)
	}
}

// Close closes the transport and releases resources.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	close(t.done)
	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}

// Done is closed when the transport is closed.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// IsClosed returns true if the transport has been closed.
func (t *Transport) IsClosed() bool {
	return t.closed.Load()
}

// send writes a message with LSP content-length header.
func (t *Transport) send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(data))

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := io.WriteString(t.writer, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// readMessage reads a single LSP message body.
func readMessage(r *bufio.Reader) (json.RawMessage, error) {
	contentLength := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && line != "" {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			// Content-Type and unknown headers
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && n >= 0 {
			contentLength = n
		}
	}

	if contentLength <= 0 {
		return nil, ErrMissingContentLength
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// dispatch routes a message to its handler.
func (t *Transport) dispatch(ctx context.Context, data json.RawMessage) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.logger.Warn("dropping message", zap.Error(fmt.Errorf("%w: %w", ErrInvalidMessage, err)))
		t.reply(nil, nil, NewError(CodeParseError, err))
		return
	}

	isRequest := len(msg.ID) > 0 && string(msg.ID) != "null"
	switch {
	case msg.Method == "" && isRequest:
		// A response to a request we never send.
		t.logger.Debug("ignoring response", zap.ByteString("id", msg.ID))
	case msg.Method == "":
		t.logger.Warn("dropping message", zap.Error(ErrInvalidMessage))
	case isRequest:
		t.handleRequest(ctx, &msg)
	default:
		t.handleNotification(ctx, &msg)
	}
}

func (t *Transport) handleRequest(ctx context.Context, msg *message) {
	t.mu.RLock()
	handler, ok := t.requests[msg.Method]
	t.mu.RUnlock()

	if !ok {
		t.reply(msg.ID, nil, &RPCError{Code: CodeMethodNotFound, Message: "method not found: " + msg.Method})
		return
	}

	t.inflight.Add(1)
	go func() {
		defer t.inflight.Done()
		result, err := t.invoke(ctx, msg.Method, handler, msg.Params)
		if err != nil {
			t.reply(msg.ID, nil, toRPCError(err))
			return
		}
		t.reply(msg.ID, result, nil)
	}()
}

// invoke runs a request handler, turning a panic into an internal error.
func (t *Transport) invoke(ctx context.Context, method string, h RequestHandler, params json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("request handler panicked", zap.String("method", method), zap.Any("panic", r))
			err = &RPCError{Code: CodeInternalError, Message: fmt.Sprintf("%s: internal error", method)}
		}
	}()
	return h(ctx, params)
}

func (t *Transport) handleNotification(ctx context.Context, msg *message) {
	t.mu.RLock()
	handler, ok := t.notifications[msg.Method]
	if !ok {
		handler, ok = t.notifications["*"]
	}
	t.mu.RUnlock()

	if !ok || handler == nil {
		t.logger.Debug("unhandled notification", zap.String("method", msg.Method))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("notification handler panicked", zap.String("method", msg.Method), zap.Any("panic", r))
		}
	}()
	handler(ctx, msg.Method, msg.Params)
}

func (t *Transport) reply(id json.RawMessage, result any, rpcErr *RPCError) {
	if t.closed.Load() {
		return
	}
	if id == nil {
		id = json.RawMessage("null")
	}

	var err error
	if rpcErr != nil {
		err = t.send(&errorResponse{JSONRPC: "2.0", ID: id, Error: rpcErr})
	} else {
		err = t.send(&resultResponse{JSONRPC: "2.0", ID: id, Result: result})
	}
	if err != nil {
		t.logger.Warn("response not sent", zap.Error(err))
	}
}
