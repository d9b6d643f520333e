package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/babelmark/babelmark/internal/backend"
	"github.com/babelmark/babelmark/internal/segment"
)

// Options are the per-run translation switches.
type Options struct {
	TranslateLinkText bool   `json:"translateLinkText" yaml:"translateLinkText"`
	TranslateImageAlt bool   `json:"translateImageAlt" yaml:"translateImageAlt"`
	Spellcheck        bool   `json:"spellcheck" yaml:"spellcheck"`
	PunctuationLocale string `json:"punctuationLocale,omitempty" yaml:"punctuationLocale,omitempty"`
}

// Segment returns the options that affect segmentation.
func (o Options) Segment() segment.Options {
	return segment.Options{
		TranslateLinkText: o.TranslateLinkText,
		TranslateImageAlt: o.TranslateImageAlt,
	}
}

// Settings is a user's saved translation preferences.
type Settings struct {
	TargetLang     string                  `json:"targetLang" yaml:"targetLang"`
	Model          string                  `json:"model" yaml:"model"`
	APIKey         string                  `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	APIBase        string                  `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`
	Options        Options                 `json:"options" yaml:"options"`
	Glossary       []backend.GlossaryEntry `json:"glossary" yaml:"glossary"`
	ProtectedTerms []string                `json:"protectedTerms" yaml:"protectedTerms"`
	Concurrency    int                     `json:"concurrency" yaml:"concurrency"`
}

func DefaultSettings() Settings {
	return Settings{
		TargetLang: "en",
		Model:      backend.DefaultModel,
		Options: Options{
			TranslateLinkText: true,
			Spellcheck:        true,
		},
		Concurrency: 3,
	}
}

// LoadSettings reads a YAML or JSON settings file. Fields absent from the file
// keep their defaults.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	b, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return s, nil
}

// Instructions builds the system message inputs for a run.
func (s Settings) Instructions(baseTemplate string) backend.Instructions {
	return backend.Instructions{
		BaseTemplate:      baseTemplate,
		TargetLang:        s.TargetLang,
		Spellcheck:        s.Options.Spellcheck,
		PunctuationLocale: s.Options.PunctuationLocale,
		Glossary:          s.Glossary,
		ProtectedTerms:    s.ProtectedTerms,
	}
}
