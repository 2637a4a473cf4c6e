package generation

import "slices"

// Model describes a generation model callers may request.
type Model struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	Description          string   `json:"description"`
	MaxDuration          int      `json:"max_duration"`
	SupportedResolutions []string `json:"supported_resolutions"`
	SupportedStyles      []string `json:"supported_styles"`
	Default              bool     `json:"default"`
}

// Supports reports whether m can render the given resolution and style. An
// empty style is always supported.
func (m Model) Supports(resolution, style string) bool {
	if !slices.Contains(m.SupportedResolutions, resolution) {
		return false
	}
	return style == "" || slices.Contains(m.SupportedStyles, style)
}

var catalog = []Model{
	{
		ID:                   "dream-machine-1.5",
		Name:                 "Dream Machine 1.5",
		Description:          "Latest generation model with improved quality and coherence",
		MaxDuration:          300,
		SupportedResolutions: []string{"480p", "720p", "1080p", "4k"},
		SupportedStyles:      []string{"cinematic", "anime", "realistic", "artistic", "documentary"},
		Default:              true,
	},
	{
		ID:                   "dream-machine-1.0",
		Name:                 "Dream Machine 1.0",
		Description:          "Original Dream Machine model",
		MaxDuration:          120,
		SupportedResolutions: []string{"480p", "720p", "1080p"},
		SupportedStyles:      []string{"cinematic", "realistic"},
	},
}

// Models returns the available models, default first.
func Models() []Model {
	out := make([]Model, len(catalog))
	for i, m := range catalog {
		m.SupportedResolutions = slices.Clone(m.SupportedResolutions)
		m.SupportedStyles = slices.Clone(m.SupportedStyles)
		out[i] = m
	}
	return out
}

// LookupModel returns the model with the given id.
func LookupModel(id string) (Model, bool) {
	for _, m := range Models() {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}

// DefaultModel returns the model used when a request names none.
func DefaultModel() Model {
	return Models()[0]
}
