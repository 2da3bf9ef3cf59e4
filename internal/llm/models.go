// Package llm wraps the hosted completion API behind a small client
// interface: one synchronous reply per turn, plus a cached credential
// validation probe.
package llm

// ModelInfo describes one selectable completion model.
type ModelInfo struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// The two supported tiers: fast/cheap and slower/higher-quality.
const (
	ModelFast    = "gpt-3.5-turbo"
	ModelQuality = "gpt-4"
)

var supportedModels = []ModelInfo{
	{ID: ModelFast, Label: "GPT-3.5 Turbo", Description: "Fast and economical"},
	{ID: ModelQuality, Label: "GPT-4", Description: "Slower but more capable"},
}

// SupportedModels returns the enumerated model set.
func SupportedModels() []ModelInfo {
	out := make([]ModelInfo, len(supportedModels))
	copy(out, supportedModels)
	return out
}

// IsSupported reports whether the model identifier is one of the enumerated set.
func IsSupported(model string) bool {
	for _, m := range supportedModels {
		if m.ID == model {
			return true
		}
	}
	return false
}

// ClampTemperature bounds a user-adjustable temperature to [0, 1].
func ClampTemperature(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
