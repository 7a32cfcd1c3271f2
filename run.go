package reuse

import (
	"context"
	"fmt"
	"iter"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"
	"github.com/outofforest/reuse/pipeline"
	"github.com/outofforest/reuse/trace"
	"github.com/outofforest/reuse/types"
)

// RunSessions runs one session per event source in parallel. Reports are returned in the order of sources.
func RunSessions(ctx context.Context, config Config, sources []iter.Seq[[]types.Event]) ([]*Report, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	reports := make([]*Report, len(sources))
	err := parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		for i, source := range sources {
			p, reader := pipeline.New()

			spawn(fmt.Sprintf("producer-%02d", i), parallel.Continue, func(ctx context.Context) error {
				return produce(ctx, p, source)
			})
			spawn(fmt.Sprintf("session-%02d", i), parallel.Continue, func(ctx context.Context) error {
				report, err := consume(logger.WithLogger(ctx, logger.Get(ctx).With(zap.Int("thread", i))), config,
					reader)
				if err != nil {
					return err
				}
				reports[i] = report
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reports, nil
}

// RunTraces analyzes trace files, one file per thread, and returns the merged report.
func RunTraces(ctx context.Context, config Config, paths []string, batchSize int) (*Report, error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive, got %d", batchSize)
	}

	sources := make([]iter.Seq[[]types.Event], 0, len(paths))
	for _, path := range paths {
		r, err := trace.Open(path)
		if err != nil {
			return nil, err
		}
		defer r.Close()

		logger.Get(ctx).Info("Trace opened", zap.String("path", path), zap.Uint64("events", r.Count()))
		sources = append(sources, r.Batches(batchSize))
	}

	reports, err := RunSessions(ctx, config, sources)
	if err != nil {
		return nil, err
	}
	return Merge(reports...)
}

func produce(ctx context.Context, p *pipeline.Pipeline, source iter.Seq[[]types.Event]) error {
	factory := pipeline.NewBatchRequestFactory()
	defer p.Push(factory.NewClose())

	for batch := range source {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		p.Push(factory.New(batch))
	}
	return nil
}

func consume(ctx context.Context, config Config, reader *pipeline.Reader) (*Report, error) {
	s, err := NewSession(ctx, config)
	if err != nil {
		return nil, err
	}

	for {
		count, err := reader.Count(ctx)
		if err != nil {
			return nil, err
		}
		for range count {
			req := reader.Read()
			if req.Type == pipeline.Close {
				reader.Acknowledge()
				return s.Close()
			}
			if err := s.Process(req.Events); err != nil {
				return nil, err
			}
		}
	}
}
