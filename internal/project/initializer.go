package project

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/dshills/buildsync/internal/project/importer"
	"github.com/dshills/buildsync/internal/project/progress"
	"github.com/dshills/buildsync/internal/project/workspace"
)

// Share of the initialization budget per step.
const (
	bootstrapWork = 10
	selectWork    = 20
	importWork    = 70
)

// InitializeProjects prepares the workspace: it resets the active build
// support, ensures the default project exists and, when root is not
// empty, imports root with the most relevant importer. It returns the
// default project.
//
// Failures creating the default project are returned as *InitError.
// Cancellation returns an error wrapping ErrCanceled. A failing import is
// logged and leaves no build support active.
func (m *Manager) InitializeProjects(ctx context.Context, root string, reporter progress.Reporter) (*workspace.Project, error) {
	ctx, span := tracer.Start(ctx, "project.InitializeProjects")
	defer span.End()
	span.SetAttributes(attribute.String("root", root))

	start := time.Now()
	defer func() { initializeDuration.Observe(time.Since(start).Seconds()) }()

	m.active.Reset()
	t := progress.New(ctx, "Initialize workspace", bootstrapWork+selectWork+importWork, reporter)

	fail := func(step string, err error) (*workspace.Project, error) {
		if ctx.Err() != nil && isContextErr(err) {
			err = canceledErr(ctx, err)
		}
		span.RecordError(err)
		if errors.Is(err, ErrCanceled) {
			span.SetStatus(codes.Error, "canceled")
			return nil, err
		}
		span.SetStatus(codes.Error, step+" failed")
		return nil, &InitError{Step: step, Err: err}
	}

	sub, err := t.Split(bootstrapWork)
	if err != nil {
		return fail("bootstrap", err)
	}
	p, err := m.createDefaultProject(ctx, sub)
	if err != nil {
		return fail("bootstrap", err)
	}

	if root == "" {
		t.Done()
		return p, nil
	}
	root = workspace.NormalizeLocation(root)
	if !m.ws.FS().IsDir(root) {
		m.logger.Warn("root is not a directory, skipping import", zap.String("root", root))
		t.Done()
		return p, nil
	}

	sub, err = t.Split(selectWork)
	if err != nil {
		return fail("select", err)
	}
	sub.Subtask("Selecting importer")
	chosen, err := importer.Select(ctx, m.registry, root, sub, m.logger)
	if err != nil {
		return fail("select", err)
	}
	if chosen == nil {
		m.logger.Info("no importer applies", zap.String("root", root))
		t.Done()
		return p, nil
	}
	span.SetAttributes(attribute.String("importer", chosen.ID))

	sub, err = t.Split(importWork)
	if err != nil {
		return fail("import", err)
	}
	sub.Subtask("Importing " + root)
	if err := chosen.Importer.ImportToWorkspace(ctx, sub); err != nil {
		if isContextErr(err) || errors.Is(err, ErrCanceled) {
			return fail("import", canceledErr(ctx, err))
		}
		err = &importer.Error{ID: chosen.ID, Op: "import", Err: err}
		span.RecordError(err)
		m.logger.Error("import failed", zap.String("root", root), zap.Error(err))
		t.Done()
		return p, nil
	}

	if sp, ok := chosen.Importer.(importer.SupportProvider); ok {
		if support := sp.BuildSupport(); support != nil {
			m.active.Set(support)
			m.logger.Info("build support active",
				zap.String("importer", chosen.ID), zap.String("support", support.ID()))
		}
	}
	t.Done()
	return p, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func canceledErr(ctx context.Context, err error) error {
	if errors.Is(err, ErrCanceled) {
		return err
	}
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("%w: %w", ErrCanceled, cerr)
	}
	return fmt.Errorf("%w: %w", ErrCanceled, err)
}

// createDefaultProject returns the default project, creating and
// configuring it when missing. A failed creation removes the partial
// project.
func (m *Manager) createDefaultProject(ctx context.Context, t *progress.Tracker) (p *workspace.Project, err error) {
	defer t.Done()

	p = m.DefaultProject()
	if p.Exists() {
		if !p.IsOpen() {
			if err := m.ws.OpenProject(ctx, p.Name()); err != nil {
				if ctx.Err() != nil {
					return nil, canceledErr(ctx, err)
				}
				return nil, err
			}
		}
		return p, nil
	}

	m.logger.Info("Creating the default project", zap.String("project", p.Name()))
	t.SetTotal(6)

	desc := workspace.Description{Name: m.defaultName, Location: m.defaultProjectLocation()}
	if _, err := m.ws.CreateProject(ctx, desc); err != nil {
		return nil, err
	}
	defer func() {
		if err == nil {
			return
		}
		if derr := m.ws.DeleteProject(context.WithoutCancel(ctx), m.defaultName, true); derr != nil {
			m.logger.Error("cannot remove partial default project", zap.Error(derr))
		}
		if cerr := ctx.Err(); cerr != nil && !errors.Is(err, ErrCanceled) {
			err = fmt.Errorf("%w: %w", ErrCanceled, cerr)
		}
		p = nil
	}()

	steps := []func() error{
		func() error { return m.ws.OpenProject(ctx, m.defaultName) },
		func() error { return p.SetNatures(ctx, workspace.NatureSource) },
		func() error {
			if _, err := p.CreateFolder(ctx, "bin"); err != nil {
				return err
			}
			return p.SetOutputLocation(ctx, "bin")
		},
		func() error {
			_, err := p.CreateFolder(ctx, "src")
			return err
		},
		func() error {
			return p.SetClasspath(ctx, []workspace.ClasspathEntry{
				{Kind: workspace.EntryContainer, Path: DefaultRuntimeContainer},
				{Kind: workspace.EntrySource, Path: "src"},
			})
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
		t.Worked(1)
	}

	m.logger.Info("Finished creating the default project", zap.String("project", p.Name()))
	return p, nil
}
