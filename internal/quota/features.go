package quota

import (
	"fmt"
	"strings"
)

// Feature names a tier capability.
type Feature string

const (
	FeatureDirectMode        Feature = "direct_mode"
	FeatureCodeGeneration    Feature = "code_generation"
	FeatureCollaboration     Feature = "collaboration"
	FeatureRepositoryImport  Feature = "repository_import"
	FeatureAdvancedAnalytics Feature = "advanced_analytics"
	FeatureMultiProviderLLM  Feature = "multi_provider_llm"
	FeatureAPIAccess         Feature = "api_access"
)

var allFeatures = []Feature{
	FeatureDirectMode,
	FeatureCodeGeneration,
	FeatureCollaboration,
	FeatureRepositoryImport,
	FeatureAdvancedAnalytics,
	FeatureMultiProviderLLM,
	FeatureAPIAccess,
}

// AllFeatures lists every known feature.
func AllFeatures() []Feature {
	return append([]Feature(nil), allFeatures...)
}

func ParseFeature(s string) (Feature, error) {
	f := Feature(strings.ToLower(strings.TrimSpace(s)))
	if _, err := (Features{}).Has(f); err != nil {
		return "", err
	}
	return f, nil
}

// Features is the capability set of one tier. Every Feature constant maps to
// exactly one field; an unmapped name is an error, never a silent false.
type Features struct {
	DirectMode        bool `json:"direct_mode"`
	CodeGeneration    bool `json:"code_generation"`
	Collaboration     bool `json:"collaboration"`
	RepositoryImport  bool `json:"repository_import"`
	AdvancedAnalytics bool `json:"advanced_analytics"`
	MultiProviderLLM  bool `json:"multi_provider_llm"`
	APIAccess         bool `json:"api_access"`
}

func (f Features) Has(feature Feature) (bool, error) {
	switch feature {
	case FeatureDirectMode:
		return f.DirectMode, nil
	case FeatureCodeGeneration:
		return f.CodeGeneration, nil
	case FeatureCollaboration:
		return f.Collaboration, nil
	case FeatureRepositoryImport:
		return f.RepositoryImport, nil
	case FeatureAdvancedAnalytics:
		return f.AdvancedAnalytics, nil
	case FeatureMultiProviderLLM:
		return f.MultiProviderLLM, nil
	case FeatureAPIAccess:
		return f.APIAccess, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownFeature, string(feature))
	}
}

// Enabled lists the features set to true, in declaration order.
func (f Features) Enabled() []Feature {
	var out []Feature
	for _, feature := range allFeatures {
		if ok, _ := f.Has(feature); ok {
			out = append(out, feature)
		}
	}
	return out
}

// Label is the human-readable name used in rejection messages.
func (f Feature) Label() string {
	switch f {
	case FeatureAPIAccess:
		return "API access"
	case FeatureMultiProviderLLM:
		return "Multi-provider LLM"
	}
	words := strings.Split(string(f), "_")
	if len(words) > 0 && words[0] != "" {
		words[0] = strings.ToUpper(words[0][:1]) + words[0][1:]
	}
	return strings.Join(words, " ")
}
