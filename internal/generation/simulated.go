package generation

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/mitdave95/luma-interview/pkg/models"
)

const (
	progressChunks = 10
	jitterFraction = 0.2
)

// Simulated pretends to render a video: it takes SecondsPerVideoSecond of wall
// time per requested second (plus or minus 20%), reports progress in ten steps
// and fails at the configured rate.
type Simulated struct {
	secondsPerVideoSecond float64
	failureRate           float64

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulated(secondsPerVideoSecond, failureRate float64, seed uint64) *Simulated {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Simulated{
		secondsPerVideoSecond: secondsPerVideoSecond,
		failureRate:           failureRate,
		rng:                   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (s *Simulated) Name() string { return "simulated" }

func (s *Simulated) float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func (s *Simulated) Generate(ctx context.Context, params models.GenerationParams, onProgress ProgressFunc) (Result, error) {
	base := float64(params.Duration) * s.secondsPerVideoSecond
	jitter := 1 + jitterFraction*(2*s.float()-1)
	step := time.Duration(base * jitter * float64(time.Second) / progressChunks)

	timer := time.NewTimer(step)
	defer timer.Stop()
	for i := 1; i <= progressChunks; i++ {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-timer.C:
		}
		if onProgress != nil {
			onProgress(float64(i) / progressChunks)
		}
		timer.Reset(step)
	}

	if s.failureRate > 0 && s.float() < s.failureRate {
		return Result{}, fmt.Errorf("%w: simulated model error", ErrGenerationFailed)
	}

	return hostedResult(params.Duration), nil
}

var _ Executor = (*Simulated)(nil)
