// Package prompts loads versioned prompt definitions from disk. Each prompt
// lives at <dir>/<kind>/<version>.json so prompt text can change without a
// redeploy, and versions stay addressable for job dedup.
package prompts

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/local/summarizer/internal/store"
)

// Params carries per-prompt generation settings.
type Params struct {
	MaxOutputTokens int `json:"max_output_tokens"`
}

// Prompt is one versioned prompt definition.
type Prompt struct {
	SystemPrompt string `json:"system_prompt"`
	UserPrompt   string `json:"user_prompt"`
	Params       Params `json:"params"`
}

// Render substitutes {NAME} placeholders in the user prompt.
func (p *Prompt) Render(vars map[string]string) string {
	out := p.UserPrompt
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

// FSSource loads prompts from a directory tree.
type FSSource struct {
	dir string
}

// NewFSSource creates a source rooted at dir.
func NewFSSource(dir string) *FSSource {
	return &FSSource{dir: dir}
}

// Load reads the prompt for a kind and version.
func (s *FSSource) Load(kind, version string) (*Prompt, error) {
	path := filepath.Join(s.dir, kind, version+".json")
	var p Prompt
	if err := store.ReadJSON(path, &p); err != nil {
		return nil, fmt.Errorf("load prompt %s/%s: %w", kind, version, err)
	}
	if p.SystemPrompt == "" || p.UserPrompt == "" {
		return nil, fmt.Errorf("prompt %s/%s is missing system_prompt or user_prompt", kind, version)
	}
	return &p, nil
}
