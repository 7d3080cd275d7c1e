// Package prompts loads the system/user prompt pairs used by every command.
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yml
var defaultPrompts []byte

// Prompt is one system/user pair. The user prompt carries {name}
// placeholders filled by Render.
type Prompt struct {
	System string `yaml:"system_prompt"`
	User   string `yaml:"user_prompt"`
}

// Set is a named collection of prompts.
type Set struct {
	prompts map[string]Prompt
}

// Default returns the prompts compiled into the binary.
func Default() (*Set, error) {
	return Parse(defaultPrompts)
}

// Load reads prompts from path. Entries missing from the file fall back to
// the compiled-in defaults.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("prompts: read %s: %w", path, err)
	}
	set, err := Parse(data)
	if err != nil {
		return nil, err
	}
	def, err := Default()
	if err != nil {
		return nil, err
	}
	for name, p := range def.prompts {
		if _, ok := set.prompts[name]; !ok {
			set.prompts[name] = p
		}
	}
	return set, nil
}

// Parse decodes a YAML document of name -> {system_prompt, user_prompt}.
func Parse(data []byte) (*Set, error) {
	var m map[string]Prompt
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("prompts: parse: %w", err)
	}
	if m == nil {
		m = make(map[string]Prompt)
	}
	return &Set{prompts: m}, nil
}

// Names returns the prompt names in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.prompts))
	for n := range s.prompts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Render fills the named prompt's placeholders. ok is false when the prompt
// does not exist. Placeholders without a value are left as written.
func (s *Set) Render(name string, vars map[string]string) (system, user string, ok bool) {
	p, ok := s.prompts[name]
	if !ok {
		return "", "", false
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(p.System), r.Replace(p.User), true
}
