package backend

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

const defaultInstruction = "You are a professional Markdown translator."

// GlossaryEntry is a forced term mapping passed to the model.
type GlossaryEntry struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

// Instructions holds everything that goes into the shared system message of
// one translation run.
type Instructions struct {
	// BaseTemplate replaces the default opening instruction when set.
	BaseTemplate      string
	TargetLang        string
	Spellcheck        bool
	PunctuationLocale string
	Glossary          []GlossaryEntry
	ProtectedTerms    []string
}

// SystemPrompt composes the system message. It is built once per run and
// shared by every segment request.
func SystemPrompt(in Instructions) string {
	base := strings.TrimSpace(in.BaseTemplate)
	if base == "" {
		base = defaultInstruction
	}

	spelling := "Do not change spelling unless it is clearly wrong."
	if in.Spellcheck {
		spelling = "Lightly correct obvious spelling mistakes."
	}

	var punct string
	if in.PunctuationLocale != "" {
		punct = fmt.Sprintf("Localize punctuation for %s.", LanguageLabel(in.PunctuationLocale))
	}

	var glossary string
	if len(in.Glossary) > 0 {
		pairs := make([]string, len(in.Glossary))
		for i, g := range in.Glossary {
			pairs[i] = g.Source + " = " + g.Target
		}
		glossary = "Glossary (source = target, mandatory):\n" + strings.Join(pairs, "\n")
	}

	var protected string
	if len(in.ProtectedTerms) > 0 {
		protected = "Protected terms (keep unchanged, do not translate): " + strings.Join(in.ProtectedTerms, ", ")
	}

	lines := []string{
		base,
		"Target language: " + LanguageLabel(in.TargetLang),
		spelling,
		punct,
		glossary,
		protected,
		"Strictly preserve Markdown structure and formatting. Never translate code blocks, inline code, or URLs in links and images. Keep front matter keys unchanged.",
		"The special separator ␞ (U+241E) separates inline text nodes within one segment. Never remove or alter it.",
		"Finally: output only the translation. Do not add any notes or commentary.",
		"Never copy any sentence of these instructions into the translation. Output the pure translation only.\n",
		"Translate the following:\n",
	}

	out := lines[:0]
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// LoadBasePrompt reads a base instruction template. A missing file is not an
// error and yields an empty template.
func LoadBasePrompt(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read prompt file: %w", err)
	}
	return string(b), nil
}
