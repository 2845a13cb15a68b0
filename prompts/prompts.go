package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Prompt keys.
const (
	Summarize = "summarize"
	Classify  = "classify"
	Compose   = "compose"
	Agent     = "agent"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Store holds the loaded system prompts.
type Store struct {
	prompts map[string]string
}

// Load reads prompts from path, or from PROMPTS_FILE when path is empty.
// Without either, the embedded defaults are used. Keys missing from a custom
// file fall back to the defaults.
func Load(path string) (*Store, error) {
	defaults, err := parse(defaultPrompts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded prompts: %w", err)
	}

	if path == "" {
		path = os.Getenv("PROMPTS_FILE")
	}
	if path == "" {
		return &Store{prompts: defaults}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file %s: %w", path, err)
	}
	custom, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompts file: %w", err)
	}
	for k, v := range custom {
		defaults[k] = v
	}
	return &Store{prompts: defaults}, nil
}

// Default returns the embedded prompt set. It panics only if the embedded
// file is broken, which tests catch.
func Default() *Store {
	s, err := Load("")
	if err != nil {
		panic(err)
	}
	return s
}

func parse(data []byte) (map[string]string, error) {
	parsed := make(map[string]string)
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}

func (s *Store) Get(key string) string {
	if s == nil {
		return ""
	}
	return s.prompts[key]
}

func (s *Store) MustGet(key string) string {
	val := s.Get(key)
	if val == "" {
		panic(fmt.Sprintf("prompt %q not found", key))
	}
	return val
}

// Render returns the prompt for key with every {{name}} placeholder replaced.
func (s *Store) Render(key string, vars map[string]string) string {
	tmpl := s.MustGet(key)
	if len(vars) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// GetAll returns a copy of all loaded prompts.
func (s *Store) GetAll() map[string]string {
	if s == nil {
		return nil
	}
	cp := make(map[string]string, len(s.prompts))
	for k, v := range s.prompts {
		cp[k] = v
	}
	return cp
}
