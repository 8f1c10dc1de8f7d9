package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/buildsync/internal/project"
)

// Server connects a project manager to a client over a transport.
type Server struct {
	t       *Transport
	client  *Client
	manager *project.Manager
	logger  *zap.Logger
	info    ServerInfo
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server's logger.
func WithServerLogger(logger *zap.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithServerInfo sets the name and version sent in the initialize result.
func WithServerInfo(name, version string) ServerOption {
	return func(s *Server) {
		s.info = ServerInfo{Name: name, Version: version}
	}
}

// NewServer creates a server and registers its handlers on t.
func NewServer(t *Transport, client *Client, manager *project.Manager, opts ...ServerOption) *Server {
	s := &Server{
		t:       t,
		client:  client,
		manager: manager,
		logger:  zap.NewNop(),
		info:    ServerInfo{Name: "buildsync"},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("server")

	t.OnRequest(MethodInitialize, s.initialize)
	t.OnRequest(MethodShutdown, s.shutdown)
	t.OnRequest(MethodExecuteCommand, s.executeCommand)
	t.OnNotification(MethodDidChangeWatchedFiles, s.didChangeWatchedFiles)
	t.OnNotification(MethodExit, s.exit)
	return s
}

// Serve connects the client as the manager's notifier and handles
// messages until the transport ends.
func (s *Server) Serve(ctx context.Context) error {
	s.manager.SetNotifier(s.client)
	defer s.manager.SetNotifier(nil)
	return s.t.Serve(ctx)
}

func (s *Server) initialize(ctx context.Context, params json.RawMessage) (any, error) {
	var p InitializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, NewError(CodeInvalidParams, err)
		}
	}
	s.logger.Info("client connected", zap.String("root", p.RootURI))

	commands := make([]string, 0, len(s.manager.Commands()))
	for id := range s.manager.Commands() {
		commands = append(commands, id)
	}
	info := s.info
	return InitializeResult{
		Capabilities: ServerCapabilities{
			ExecuteCommandProvider: &ExecuteCommandOptions{Commands: commands},
		},
		ServerInfo: &info,
	}, nil
}

func (s *Server) shutdown(context.Context, json.RawMessage) (any, error) {
	s.logger.Info("shutdown requested")
	s.manager.Close()
	return nil, nil
}

func (s *Server) exit(context.Context, string, json.RawMessage) {
	s.t.Close()
}

func (s *Server) didChangeWatchedFiles(ctx context.Context, _ string, params json.RawMessage) {
	var p DidChangeWatchedFilesParams
	if err := json.Unmarshal(params, &p); err != nil {
		s.logger.Warn("malformed didChangeWatchedFiles", zap.Error(err))
		return
	}
	for _, change := range p.Changes {
		kind, ok := changeKind(change.Type)
		if !ok {
			s.logger.Debug("unknown file change type", zap.Int("type", int(change.Type)))
			continue
		}
		s.manager.FileChanged(ctx, change.URI, kind)
	}
}

func (s *Server) executeCommand(ctx context.Context, params json.RawMessage) (any, error) {
	var p ExecuteCommandParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, NewError(CodeInvalidParams, err)
	}

	result, err := s.manager.ExecuteCommand(ctx, p.Command, p.Arguments)
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, project.ErrUnknownCommand):
		return nil, NewError(CodeMethodNotFound, err)
	case errors.Is(err, project.ErrInvalidArguments):
		return nil, NewError(CodeInvalidParams, err)
	default:
		s.logger.Warn("command failed", zap.String("command", p.Command), zap.Error(err))
		return nil, fmt.Errorf("%s: %w", p.Command, err)
	}
}

// changeKind maps an LSP file change type.
func changeKind(t FileChangeType) (project.ChangeKind, bool) {
	switch t {
	case FileCreated:
		return project.Created, true
	case FileChanged:
		return project.Changed, true
	case FileDeleted:
		return project.Deleted, true
	default:
		return 0, false
	}
}
