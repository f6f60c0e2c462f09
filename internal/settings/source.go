package settings

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Source resolves the current option bag. The dispatcher calls it once per
// event and stores the result in the work item.
type Source interface {
	Load(ctx context.Context) (ResolvedConfig, error)
}

// FileSource reads the option bag from a flat YAML document:
//
//	enable_ai_reply: true
//	ai_model: gpt-4o-mini
//	keyword_rules:
//	  password reset: See FAQ #3
//
// The file is re-read on every Load so edits apply to the next event.
type FileSource struct {
	Path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (s *FileSource) Load(_ context.Context) (ResolvedConfig, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return ResolvedConfig{}, fmt.Errorf("reading settings file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return ResolvedConfig{}, fmt.Errorf("parsing settings file %s: %w", s.Path, err)
	}

	return FromAny(raw)
}

// StaticSource always returns the same bag.
type StaticSource ResolvedConfig

func (s StaticSource) Load(_ context.Context) (ResolvedConfig, error) {
	return ResolvedConfig(s), nil
}
