package importer

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/dshills/buildsync/internal/project/progress"
)

var tracer = otel.Tracer("github.com/dshills/buildsync/internal/project/importer")

// Select initializes every registered importer on rootDir and returns the
// one with the strictly greatest relevance; on ties the earlier
// registration wins. It returns nil when no importer applies.
//
// An importer that fails or panics in Initialize or Applies is logged and
// left out. Cancellation is checked before each importer and returned as
// progress.ErrCanceled.
func Select(ctx context.Context, reg *Registry, rootDir string, t *progress.Tracker, logger *zap.Logger) (*Candidate, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if t == nil {
		t = progress.Nop(ctx)
	}

	ctx, span := tracer.Start(ctx, "importer.Select")
	defer span.End()
	span.SetAttributes(attribute.String("root", rootDir))

	candidates := reg.Importers()
	if len(candidates) == 0 {
		t.Done()
		return nil, nil
	}
	t.SetTotal(len(candidates))

	var chosen *Candidate
	best := NotApplicable
	for i := range candidates {
		c := candidates[i]

		sub, err := t.Split(1)
		if err != nil {
			span.SetStatus(codes.Error, "canceled")
			return nil, err
		}

		score, err := score(ctx, c, rootDir, sub)
		if err != nil {
			if isCancel(err) {
				span.SetStatus(codes.Error, "canceled")
				return nil, canceled(ctx, err)
			}
			logger.Warn("importer failed, skipping",
				zap.String("importer", c.ID),
				zap.String("root", rootDir),
				zap.Error(err))
			continue
		}

		logger.Debug("importer relevance",
			zap.String("importer", c.ID), zap.Int("relevance", score))
		if score > best {
			best = score
			chosen = &candidates[i]
		}
	}
	t.Done()

	if chosen != nil {
		span.SetAttributes(
			attribute.String("importer", chosen.ID),
			attribute.Int("relevance", best))
	}
	return chosen, nil
}

// score runs Initialize and Applies, turning panics into errors.
func score(ctx context.Context, c Candidate, rootDir string, t *progress.Tracker) (s int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{ID: c.ID, Op: "applies", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if err := c.Importer.Initialize(rootDir); err != nil {
		return NotApplicable, &Error{ID: c.ID, Op: "initialize", Err: err}
	}
	s, err = c.Importer.Applies(ctx, t)
	if err != nil {
		return NotApplicable, &Error{ID: c.ID, Op: "applies", Err: err}
	}
	return s, nil
}

func isCancel(err error) bool {
	return errors.Is(err, progress.ErrCanceled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func canceled(ctx context.Context, err error) error {
	if errors.Is(err, progress.ErrCanceled) {
		return err
	}
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("%w: %w", progress.ErrCanceled, cerr)
	}
	return fmt.Errorf("%w: %w", progress.ErrCanceled, err)
}
