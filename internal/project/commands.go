package project

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/dshills/buildsync/internal/config"
	"github.com/dshills/buildsync/internal/project/workspace"
)

// CommandFunc executes a client command with raw JSON arguments.
type CommandFunc func(ctx context.Context, args []json.RawMessage) (any, error)

// Commands returns the client commands handled by the manager, by ID.
func (m *Manager) Commands() map[string]CommandFunc {
	return map[string]CommandFunc{
		ConfigurationStatusCommand: m.configurationStatusCommand,
	}
}

// CanExecute reports whether command is handled by the manager.
func (m *Manager) CanExecute(command string) bool {
	_, ok := m.Commands()[command]
	return ok
}

// ExecuteCommand runs a client command.
func (m *Manager) ExecuteCommand(ctx context.Context, command string, args []json.RawMessage) (any, error) {
	fn, ok := m.Commands()[command]
	if !ok {
		return nil, fmt.Errorf("%s: %w", command, ErrUnknownCommand)
	}
	return fn(ctx, args)
}

func (m *Manager) configurationStatusCommand(ctx context.Context, args []json.RawMessage) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("%s: want 2 arguments, got %d: %w", ConfigurationStatusCommand, len(args), ErrInvalidArguments)
	}
	var ref DocumentRef
	if err := json.Unmarshal(args[0], &ref); err != nil || ref.URI == "" {
		return nil, fmt.Errorf("%s: document: %w", ConfigurationStatusCommand, ErrInvalidArguments)
	}
	var raw string
	if err := json.Unmarshal(args[1], &raw); err != nil {
		return nil, fmt.Errorf("%s: policy: %w", ConfigurationStatusCommand, ErrInvalidArguments)
	}
	policy, ok := config.ParseUpdatePolicy(raw)
	if !ok {
		return nil, fmt.Errorf("%s: policy %q: %w", ConfigurationStatusCommand, raw, ErrInvalidArguments)
	}
	return nil, m.HandleConfigurationStatus(ctx, ref.URI, policy)
}

// HandleConfigurationStatus applies the user's answer to the configuration
// prompt for the build file at uri: disabled persists disabled, interactive
// updates the project once, automatic persists automatic and updates.
func (m *Manager) HandleConfigurationStatus(ctx context.Context, uri string, policy config.UpdatePolicy) error {
	switch policy {
	case config.PolicyDisabled:
		return m.prefs.SetUpdatePolicy(config.PolicyDisabled)
	case config.PolicyAutomatic:
		if err := m.prefs.SetUpdatePolicy(config.PolicyAutomatic); err != nil {
			return err
		}
	case config.PolicyInteractive:
	default:
		return fmt.Errorf("policy %q: %w", policy, ErrInvalidArguments)
	}

	r, err := m.ws.FindResource(uri)
	if err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("%s: %w", uri, ErrUnresolved)
	}
	m.scheduler.Schedule(r.Project())
	return nil
}

// ResolveStandaloneFile returns the resource for uri, linking the file
// into the default project's src folder when no project contains it.
func (m *Manager) ResolveStandaloneFile(ctx context.Context, uri string) (*workspace.Resource, error) {
	r, err := m.ws.FindResource(uri)
	if err != nil || r != nil {
		return r, err
	}

	path, err := workspace.URIToPath(uri)
	if err != nil {
		return nil, err
	}
	p := m.DefaultProject()
	if !p.IsOpen() {
		return nil, ErrNoDefaultProject
	}
	if !p.Folder("src").Exists() {
		if _, err := p.CreateFolder(ctx, "src"); err != nil {
			return nil, err
		}
	}

	linked, err := p.Link(ctx, "src", path)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("linked standalone file",
		zap.String("file", filepath.Base(path)), zap.String("resource", linked.Path()))
	return linked, nil
}
