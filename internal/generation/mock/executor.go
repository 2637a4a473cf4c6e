package mock

import (
	"context"

	"github.com/mitdave95/luma-interview/internal/generation"
	"github.com/mitdave95/luma-interview/pkg/models"
)

// MockExecutor satisfies generation.Executor for testing.
type MockExecutor struct {
	Name_        string
	GenerateFunc func(ctx context.Context, params models.GenerationParams, onProgress generation.ProgressFunc) (generation.Result, error)
}

func (m *MockExecutor) Name() string { return m.Name_ }

func (m *MockExecutor) Generate(ctx context.Context, params models.GenerationParams, onProgress generation.ProgressFunc) (generation.Result, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, params, onProgress)
	}
	return generation.Result{}, nil
}

// NewMockExecutor returns a MockExecutor that reports half progress and then
// succeeds with a fixed video id.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		Name_: "mock",
		GenerateFunc: func(_ context.Context, params models.GenerationParams, onProgress generation.ProgressFunc) (generation.Result, error) {
			if onProgress != nil {
				onProgress(0.5)
			}
			return generation.Result{VideoID: "vid_mock", Duration: params.Duration}, nil
		},
	}
}

// NewFailingExecutor returns a MockExecutor that always returns the given error.
func NewFailingExecutor(err error) *MockExecutor {
	return &MockExecutor{
		Name_: "mock-failing",
		GenerateFunc: func(context.Context, models.GenerationParams, generation.ProgressFunc) (generation.Result, error) {
			return generation.Result{}, err
		},
	}
}

// NewBlockingExecutor returns a MockExecutor that signals started and then
// blocks until ctx is cancelled or release is closed.
func NewBlockingExecutor(started chan<- string, release <-chan struct{}) *MockExecutor {
	return &MockExecutor{
		Name_: "mock-blocking",
		GenerateFunc: func(ctx context.Context, params models.GenerationParams, _ generation.ProgressFunc) (generation.Result, error) {
			if started != nil {
				started <- params.Prompt
			}
			select {
			case <-ctx.Done():
				return generation.Result{}, ctx.Err()
			case <-release:
				return generation.Result{VideoID: "vid_released"}, nil
			}
		},
	}
}

// NewPanickingExecutor returns a MockExecutor whose Generate panics.
func NewPanickingExecutor() *MockExecutor {
	return &MockExecutor{
		Name_: "mock-panic",
		GenerateFunc: func(context.Context, models.GenerationParams, generation.ProgressFunc) (generation.Result, error) {
			panic("generator exploded")
		},
	}
}

// Compile-time check that MockExecutor implements Executor.
var _ generation.Executor = (*MockExecutor)(nil)
