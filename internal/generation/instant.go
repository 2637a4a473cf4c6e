package generation

import (
	"context"

	"github.com/mitdave95/luma-interview/pkg/models"
)

// Instant completes every job immediately. Useful for load tests of the
// admission path.
type Instant struct{}

func (Instant) Name() string { return "instant" }

func (Instant) Generate(ctx context.Context, params models.GenerationParams, onProgress ProgressFunc) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if onProgress != nil {
		onProgress(1)
	}
	return hostedResult(params.Duration), nil
}

var _ Executor = Instant{}
