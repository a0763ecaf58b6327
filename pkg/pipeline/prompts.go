package pipeline

import (
	"fmt"
	"strings"

	"github.com/malbeclabs/eventlens/pkg/pipeline/prompts"
)

const dateDirectivePlaceholder = "{{DATE_DIRECTIVE}}"

// Prompts contains the system prompts loaded from embedded files.
type Prompts struct {
	Classify string // Intent classification; carries a date directive placeholder
	Build    string // Intent to SQL
	Insight  string // Result to structured insight
}

// LoadPrompts loads all prompts from the embedded filesystem.
func LoadPrompts() (*Prompts, error) {
	p := &Prompts{}

	var err error
	if p.Classify, err = loadPrompt("CLASSIFY.md"); err != nil {
		return nil, fmt.Errorf("failed to load CLASSIFY: %w", err)
	}
	if p.Build, err = loadPrompt("BUILD.md"); err != nil {
		return nil, fmt.Errorf("failed to load BUILD: %w", err)
	}
	if p.Insight, err = loadPrompt("INSIGHT.md"); err != nil {
		return nil, fmt.Errorf("failed to load INSIGHT: %w", err)
	}
	return p, nil
}

func loadPrompt(path string) (string, error) {
	data, err := prompts.PromptsFS.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// classifyPrompt injects the turn's date directive into the classifier prompt.
func (p *Prompts) classifyPrompt(dc DateContext) string {
	return strings.Replace(p.Classify, dateDirectivePlaceholder, dc.Directive(), 1)
}
