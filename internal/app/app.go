// Package app wires configuration, logging, the workspace, the importers
// and the project manager into the runnable buildsync service.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/buildsync/internal/config"
	"github.com/dshills/buildsync/internal/lsp"
	"github.com/dshills/buildsync/internal/project"
	"github.com/dshills/buildsync/internal/project/importer"
	"github.com/dshills/buildsync/internal/project/progress"
	"github.com/dshills/buildsync/internal/project/update"
	"github.com/dshills/buildsync/internal/project/vfs"
	"github.com/dshills/buildsync/internal/project/watcher"
	"github.com/dshills/buildsync/internal/project/workspace"
)

// Options configures the application.
type Options struct {
	// ConfigPath is the path to the TOML preferences file. Empty means
	// defaults plus environment overrides, never persisted.
	ConfigPath string

	// WorkspacePath is the directory holding workspace metadata and the
	// default project. Empty means <user cache>/buildsync/workspace.
	WorkspacePath string

	// LogLevel overrides the configured log level when not empty.
	LogLevel string

	// MetricsAddr, when set, serves Prometheus metrics on this address.
	MetricsAddr string

	// Watch enables the file watcher on the served root.
	Watch bool

	// Version is reported to clients.
	Version string

	// LogOutput receives the logs. Defaults to stderr.
	LogOutput zapcore.WriteSyncer

	// FS backs the workspace. Defaults to the OS file system.
	FS vfs.VFS
}

// App is a configured buildsync instance.
type App struct {
	opts     Options
	logger   *zap.Logger
	store    *config.Store
	ws       *workspace.Workspace
	registry *importer.Registry
}

// New loads the configuration and prepares the workspace and importers.
func New(ctx context.Context, opts Options) (*App, error) {
	if opts.LogOutput == nil {
		opts.LogOutput = zapcore.AddSync(os.Stderr)
	}
	if opts.FS == nil {
		opts.FS = vfs.NewOSFS()
	}

	prefs, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, stageErr(StageConfig, opts.ConfigPath, err)
	}
	level := prefs.Log.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logger, err := NewLogger(level, opts.LogOutput)
	if err != nil {
		return nil, stageErr(StageLogging, level, err)
	}

	a := &App{opts: opts, logger: logger}

	if opts.ConfigPath != "" {
		a.store, err = config.Open(opts.ConfigPath, config.WithLogger(logger))
		if err != nil {
			return nil, stageErr(StageConfig, opts.ConfigPath, err)
		}
	} else {
		a.store = config.NewStore(prefs, config.WithLogger(logger))
	}

	root, err := workspaceRoot(opts.WorkspacePath)
	if err != nil {
		return nil, stageErr(StageWorkspace, "", err)
	}
	if err := opts.FS.MkdirAll(root); err != nil {
		return nil, stageErr(StageWorkspace, root, err)
	}
	a.ws = workspace.New(root, workspace.WithVFS(opts.FS), workspace.WithLogger(logger))
	if err := a.ws.Load(ctx); err != nil {
		return nil, stageErr(StageWorkspace, root, err)
	}

	a.registry, err = buildRegistry(a.ws, a.store.Preferences(), logger)
	if err != nil {
		return nil, stageErr(StageImporters, "", err)
	}

	logger.Info("workspace ready",
		zap.String("root", root),
		zap.Strings("importers", a.registry.IDs()),
		zap.String("update_configuration", string(a.store.UpdatePolicy())))
	return a, nil
}

func workspaceRoot(path string) (string, error) {
	if path != "" {
		return filepath.Abs(path)
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "buildsync", "workspace"), nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Workspace returns the workspace.
func (a *App) Workspace() *workspace.Workspace { return a.ws }

// Preferences returns the preference store.
func (a *App) Preferences() *config.Store { return a.store }

// Registry returns the importer registry.
func (a *App) Registry() *importer.Registry { return a.registry }

// Close flushes the logger.
func (a *App) Close() error {
	_ = a.logger.Sync()
	return nil
}

// NewManager creates a project manager over the app's workspace and
// importers.
func (a *App) NewManager(opts ...project.Option) *project.Manager {
	base := []project.Option{
		project.WithLogger(a.logger),
		project.WithPreferences(a.store),
		project.WithSchedulerOptions(update.WithMaxConcurrent(a.store.Preferences().Update.Workers)),
	}
	return project.NewManager(a.ws, a.registry, append(base, opts...)...)
}

// Import initializes the workspace for root once and writes the resulting
// projects to out.
func (a *App) Import(ctx context.Context, root string, out io.Writer) error {
	if root == "" {
		return ErrNoRoot
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	m := a.NewManager()
	defer m.Close()

	reporter := progress.ReporterFunc(func(_ context.Context, r progress.Report) {
		a.logger.Debug("progress",
			zap.String("task", r.Task),
			zap.String("subtask", r.Subtask),
			zap.Float64("percent", r.PercentComplete()))
	})
	if _, err := m.InitializeProjects(ctx, root, reporter); err != nil {
		return err
	}

	support := "none"
	if s := m.ActiveSupport().Get(); s != nil {
		support = s.ID()
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROJECT\tLOCATION\tNATURES\tOPEN")
	for _, p := range a.ws.Projects() {
		desc, err := p.Description()
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", p.Name(), p.Location(), strings.Join(desc.Natures, ","), p.IsOpen())
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "build support: %s\n", support)
	return err
}

// Serve initializes the workspace for root and speaks JSON-RPC over in and
// out until the client exits or ctx is done. An empty root only prepares
// the default project.
func (a *App) Serve(ctx context.Context, root string, in io.Reader, out io.Writer) error {
	if root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return err
		}
		root = abs
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var closer io.Closer
	if c, ok := in.(io.Closer); ok {
		closer = c
	}
	tr := lsp.NewTransport(in, out, closer, lsp.WithTransportLogger(a.logger))
	client := lsp.NewClient(tr, a.logger)

	m := a.NewManager(project.WithSchedulerOptions(update.WithStatusSender(client)))
	defer m.Close()

	server := lsp.NewServer(tr, client, m,
		lsp.WithServerLogger(a.logger),
		lsp.WithServerInfo("buildsync", a.opts.Version))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// The client leaving ends the session.
		defer cancel()
		return server.Serve(gctx)
	})

	g.Go(func() error {
		return a.initialize(gctx, root, m, client)
	})

	if path := a.store.Path(); path != "" {
		g.Go(func() error {
			if err := a.store.Watch(gctx); err != nil {
				a.logger.Warn("config hot reload disabled", zap.String("path", path), zap.Error(err))
			}
			return nil
		})
	}

	if a.opts.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, a.opts.MetricsAddr, a.logger)
		})
	}

	return g.Wait()
}

// initialize runs project initialization for a served session, then
// watches root when enabled.
func (a *App) initialize(ctx context.Context, root string, m *project.Manager, client *lsp.Client) error {
	_ = client.SendServiceStatus(ctx, lsp.StatusStarting, "Init...")

	if _, err := m.InitializeProjects(ctx, root, client); err != nil {
		if project.IsCanceled(err) {
			return nil
		}
		a.logger.Error("initialization failed", zap.String("root", root), zap.Error(err))
		_ = client.SendServiceStatus(ctx, lsp.StatusError, err.Error())
		return nil
	}
	_ = client.SendServiceStatus(ctx, lsp.StatusStarted, "Ready")

	if root == "" || !(a.opts.Watch || a.store.Preferences().Watch.Enabled) {
		return nil
	}
	return a.watch(ctx, root, m)
}

// watch feeds file system changes under root to sink until ctx is done.
func (a *App) watch(ctx context.Context, root string, sink ChangeSink) error {
	prefs := a.store.Preferences()

	opts := []watcher.Option{watcher.WithLogger(a.logger)}
	if len(prefs.Watch.Ignore) > 0 {
		opts = append(opts, watcher.WithIgnorePatterns(prefs.Watch.Ignore))
	}
	fsw, err := watcher.New(opts...)
	if err != nil {
		return stageErr(StageWatcher, "", err)
	}
	w := watcher.Debounce(fsw, prefs.Watch.Debounce.Duration)
	defer w.Close()

	if err := w.WatchRecursive(root); err != nil {
		return stageErr(StageWatcher, root, err)
	}
	a.logger.Info("watching files", zap.String("root", root))

	forwardEvents(ctx, w, sink, a.logger)
	return nil
}
