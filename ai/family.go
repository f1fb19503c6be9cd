package ai

import "strings"

// ModelFamily is the request schema a generation model speaks.
// It is resolved once from the model identifier when a provider is built.
type ModelFamily int

const (
	// FamilyGeneric sends a bare prompt with max_tokens and temperature.
	FamilyGeneric ModelFamily = iota
	// FamilyClaude uses the Human/Assistant text completion schema.
	FamilyClaude
	// FamilyNova uses the messages + inferenceConfig schema.
	FamilyNova
)

// ResolveFamily maps a model identifier to its family.
func ResolveFamily(modelID string) ModelFamily {
	id := strings.ToLower(modelID)
	switch {
	case strings.Contains(id, "claude"):
		return FamilyClaude
	case strings.Contains(id, "nova"):
		return FamilyNova
	default:
		return FamilyGeneric
	}
}

func (f ModelFamily) String() string {
	switch f {
	case FamilyClaude:
		return "claude"
	case FamilyNova:
		return "nova"
	default:
		return "generic"
	}
}
