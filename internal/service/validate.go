package service

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/mitdave95/luma-interview/internal/generation"
	"github.com/mitdave95/luma-interview/pkg/models"
)

const (
	MaxPromptLength = 2000
	MaxDuration     = 300
	MaxBatchSize    = 10

	DefaultDuration    = 10
	DefaultResolution  = "1080p"
	DefaultAspectRatio = "16:9"
)

var (
	resolutions  = []string{"480p", "720p", "1080p", "4k"}
	aspectRatios = []string{"16:9", "9:16", "1:1", "4:3"}
	styles       = []string{"cinematic", "anime", "realistic", "artistic", "documentary"}

	prohibitedTerms = []string{"explicit", "violence", "harmful"}
)

// Normalize fills defaults and validates p. The returned params are what the
// job stores.
func Normalize(p models.GenerationParams) (models.GenerationParams, error) {
	p.Prompt = strings.TrimSpace(p.Prompt)
	switch n := utf8.RuneCountInString(p.Prompt); {
	case n == 0:
		return p, &ValidationError{Field: "prompt", Message: "must not be empty"}
	case n > MaxPromptLength:
		return p, &ValidationError{Field: "prompt", Message: fmt.Sprintf("must be at most %d characters", MaxPromptLength)}
	}
	lower := strings.ToLower(p.Prompt)
	for _, term := range prohibitedTerms {
		if strings.Contains(lower, term) {
			return p, &ValidationError{Field: "prompt", Message: "contains prohibited content: " + term}
		}
	}

	if p.Duration == 0 {
		p.Duration = DefaultDuration
	}
	if p.Duration < 1 || p.Duration > MaxDuration {
		return p, &ValidationError{Field: "duration", Message: fmt.Sprintf("must be between 1 and %d seconds", MaxDuration)}
	}

	if p.Resolution == "" {
		p.Resolution = DefaultResolution
	}
	if !slices.Contains(resolutions, p.Resolution) {
		return p, &ValidationError{Field: "resolution", Message: "must be one of " + strings.Join(resolutions, ", ")}
	}

	if p.AspectRatio == "" {
		p.AspectRatio = DefaultAspectRatio
	}
	if !slices.Contains(aspectRatios, p.AspectRatio) {
		return p, &ValidationError{Field: "aspect_ratio", Message: "must be one of " + strings.Join(aspectRatios, ", ")}
	}

	if p.Style != "" && !slices.Contains(styles, p.Style) {
		return p, &ValidationError{Field: "style", Message: "must be one of " + strings.Join(styles, ", ")}
	}

	if p.Model == "" {
		p.Model = generation.DefaultModel().ID
	}
	m, ok := generation.LookupModel(p.Model)
	switch {
	case !ok:
		return p, &ValidationError{Field: "model", Message: fmt.Sprintf("unknown model %q", p.Model)}
	case p.Duration > m.MaxDuration:
		return p, &ValidationError{Field: "duration", Message: fmt.Sprintf("%s supports at most %d seconds", m.ID, m.MaxDuration)}
	case !m.Supports(p.Resolution, p.Style):
		return p, &ValidationError{Field: "model", Message: fmt.Sprintf("%s does not support this resolution or style", m.ID)}
	}

	if p.WebhookURL != "" {
		u, err := url.Parse(p.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return p, &ValidationError{Field: "webhook_url", Message: "must be an absolute http or https URL"}
		}
	}
	return p, nil
}
