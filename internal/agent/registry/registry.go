// Package registry maps agent profile names to launch commands. Profiles
// come from an agents.yaml file layered over built-in defaults.
package registry

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Profile describes how to launch one agent.
type Profile struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Command     string            `yaml:"command"`
	Args        []string          `yaml:"args,omitempty"`
	Env         map[string]string `yaml:"env,omitempty"`
}

// registryFile is the on-disk shape of agents.yaml.
type registryFile struct {
	Agents []Profile `yaml:"agents"`
}

// Registry is an immutable set of agent profiles.
type Registry struct {
	profiles map[string]Profile
}

// defaults are the agents known out of the box. A file entry with the same
// name replaces the default.
var defaults = []Profile{
	{
		Name:        "claude-code",
		Description: "Claude Code over ACP",
		Command:     "claude-code-acp",
	},
	{
		Name:        "gemini",
		Description: "Gemini CLI over ACP",
		Command:     "gemini",
		Args:        []string{"--experimental-acp"},
	},
}

// Load reads agents.yaml from path and merges it over the defaults. A
// missing file yields just the defaults; a malformed file is an error.
func Load(path string) (*Registry, error) {
	r := &Registry{profiles: make(map[string]Profile)}
	for _, p := range defaults {
		r.profiles[p.Name] = p
	}

	if path == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("reading agent registry %s: %w", path, err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing agent registry %s: %w", path, err)
	}
	for _, p := range file.Agents {
		if p.Name == "" || p.Command == "" {
			return nil, fmt.Errorf("agent registry %s: every agent needs a name and a command", path)
		}
		r.profiles[p.Name] = p
	}
	return r, nil
}

// Get returns the profile for name.
func (r *Registry) Get(name string) (Profile, bool) {
	p, ok := r.profiles[name]
	return p, ok
}

// Names lists all profile names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
