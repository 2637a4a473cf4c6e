// Package generation defines the executor that turns an admitted job into a
// video, plus the built-in executors.
package generation

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mitdave95/luma-interview/pkg/models"
)

var (
	ErrGenerationFailed = errors.New("generation failed")
	ErrUnavailable      = errors.New("generator unavailable")
)

// Result describes a finished video. A successful Generate must set VideoID.
type Result struct {
	VideoID      string
	URL          string
	ThumbnailURL string
	Duration     int
}

const storageBaseURL = "https://cdn.lumalabs.ai"

// hostedResult returns a result for a new video of the given length.
func hostedResult(duration int) Result {
	id := NewVideoID()
	return Result{
		VideoID:      id,
		URL:          fmt.Sprintf("%s/videos/%s.mp4", storageBaseURL, id),
		ThumbnailURL: fmt.Sprintf("%s/thumbs/%s.jpg", storageBaseURL, id),
		Duration:     duration,
	}
}

// ProgressFunc receives progress in [0, 1]. It is only valid for the duration
// of the Generate call.
type ProgressFunc func(progress float64)

// Executor is the core interface that all generators must implement.
// Never call a specific generator directly; always inject this interface.
type Executor interface {
	// Generate produces a video. It must return promptly once ctx is done.
	Generate(ctx context.Context, params models.GenerationParams, onProgress ProgressFunc) (Result, error)
	// Name returns the executor identifier (e.g. "simulated").
	Name() string
}

// NewVideoID returns an identifier of the form vid_<12 hex chars>.
func NewVideoID() string {
	u := uuid.New()
	return "vid_" + hex.EncodeToString(u[:6])
}
