package app

import (
	"go.uber.org/zap"

	"github.com/dshills/buildsync/internal/config"
	"github.com/dshills/buildsync/internal/project/importer"
	"github.com/dshills/buildsync/internal/project/importer/descriptor"
	"github.com/dshills/buildsync/internal/project/importer/gomod"
	"github.com/dshills/buildsync/internal/project/importer/script"
	"github.com/dshills/buildsync/internal/project/workspace"
)

// buildRegistry registers the built-in importers followed by the Lua
// scripts found in the configured directories. Importers listed as
// disabled are left out. Registration order breaks relevance ties.
func buildRegistry(ws *workspace.Workspace, prefs config.Preferences, logger *zap.Logger) (*importer.Registry, error) {
	reg := importer.NewRegistry()

	add := func(id string, f importer.Factory) error {
		if prefs.IsImporterDisabled(id) {
			logger.Info("importer disabled", zap.String("importer", id))
			return nil
		}
		return reg.Register(id, f)
	}

	if err := add(gomod.ID, gomod.Factory(ws, gomod.WithLogger(logger))); err != nil {
		return nil, err
	}
	if err := add(descriptor.ID, descriptor.Factory(ws, descriptor.WithLogger(logger))); err != nil {
		return nil, err
	}

	scripts, err := script.Discover(ws, prefs.Importers.Scripts)
	if err != nil {
		return nil, err
	}
	for _, path := range scripts {
		if err := add(script.IDFor(path), script.Factory(ws, path,
			script.WithLogger(logger),
			script.WithTimeout(prefs.Importers.ScriptTimeout.Duration))); err != nil {
			return nil, err
		}
	}

	logger.Debug("importers registered", zap.Strings("importers", reg.IDs()))
	return reg, nil
}
