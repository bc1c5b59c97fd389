package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingCredential is returned when a selected provider has no API key.
var ErrMissingCredential = errors.New("missing provider credential")

// RequiredCredentials lists the environment variables the selected providers need.
func RequiredCredentials(cfg *Config) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	add(credentialForEmbedder(cfg.Embedder.Provider))
	add(credentialForLLM(cfg.LLM.Provider))
	return out
}

// ValidateCredentials fails fast when a provider selected by cfg has no key.
func ValidateCredentials(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	var missing []string
	for _, name := range RequiredCredentials(cfg) {
		if credentialValue(cfg, name) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredential, strings.Join(missing, ", "))
	}
	return nil
}

func credentialForEmbedder(provider string) string {
	switch provider {
	case "google":
		return "GOOGLE_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	default:
		return ""
	}
}

func credentialForLLM(provider string) string {
	switch provider {
	case "groq":
		return "GROQ_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	default:
		return ""
	}
}

func credentialValue(cfg *Config, name string) string {
	switch name {
	case "GOOGLE_API_KEY":
		return cfg.Providers.GoogleAPIKey.Value()
	case "GROQ_API_KEY":
		return cfg.Providers.GroqAPIKey.Value()
	case "OPENAI_API_KEY":
		return cfg.Providers.OpenAIAPIKey.Value()
	default:
		return ""
	}
}
