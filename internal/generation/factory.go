package generation

import (
	"fmt"

	"github.com/mitdave95/luma-interview/internal/config"
)

// NewExecutor constructs the executor selected by config.
// Called once at server startup.
func NewExecutor(cfg config.GeneratorConfig) (Executor, error) {
	switch cfg.Kind {
	case config.GeneratorSimulated:
		return NewSimulated(cfg.SecondsPerVideoSecond, cfg.FailureRate, 0), nil
	case config.GeneratorInstant:
		return Instant{}, nil
	default:
		return nil, fmt.Errorf("unknown generator %q: must be one of simulated, instant", cfg.Kind)
	}
}
