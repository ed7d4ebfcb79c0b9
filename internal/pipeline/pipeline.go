package pipeline

import (
	"context"
	"log/slog"

	"github.com/IshaanNene/martstalk/internal/types"
)

// Stage processes a record and returns the (possibly modified) record.
// Return nil to drop the record from the pipeline.
type Stage interface {
	// Name returns the stage's identifier.
	Name() string

	// Process transforms a record. Return nil to drop it.
	Process(ctx context.Context, rec *types.ProductRecord) (*types.ProductRecord, error)
}

// Pipeline chains stages together.
type Pipeline struct {
	stages []Stage
	logger *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// Use adds a stage to the pipeline chain.
func (p *Pipeline) Use(stage Stage) {
	p.stages = append(p.stages, stage)
	p.logger.Debug("stage added", "name", stage.Name(), "position", len(p.stages))
}

// Process runs the record through all stages in order.
func (p *Pipeline) Process(ctx context.Context, rec *types.ProductRecord) (*types.ProductRecord, error) {
	current := rec

	for _, stage := range p.stages {
		result, err := stage.Process(ctx, current)
		if err != nil {
			return nil, &types.PipelineError{
				Stage:  stage.Name(),
				Record: current,
				Err:    err,
			}
		}
		if result == nil {
			p.logger.Debug("record dropped", "stage", stage.Name(), "id", rec.ID())
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// Len returns the number of stages in the chain.
func (p *Pipeline) Len() int {
	return len(p.stages)
}
