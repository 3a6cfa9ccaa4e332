package pageaccess

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed menu.yaml
var defaultMenu []byte

// MenuItem is one page of the back-office navigation
type MenuItem struct {
	Slug   string `yaml:"slug" json:"slug"`
	Label  string `yaml:"label" json:"label"`
	Path   string `yaml:"path" json:"path,omitempty"`
	System bool   `yaml:"system" json:"system"`
}

type menuFile struct {
	Items []MenuItem `yaml:"items"`
}

// Registry is the static, ordered menu. It is loaded once and never changes.
type Registry struct {
	items []MenuItem
	index map[string]int
}

// DefaultRegistry returns the registry built into the binary
func DefaultRegistry() (*Registry, error) {
	return ParseRegistry(defaultMenu)
}

// LoadRegistry reads a registry from path, or the built-in menu when path is empty
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read menu registry: %w", err)
	}
	return ParseRegistry(data)
}

// ParseRegistry parses a YAML menu document
func ParseRegistry(data []byte) (*Registry, error) {
	var file menuFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse menu registry: %w", err)
	}
	return NewRegistry(file.Items)
}

// NewRegistry builds a registry from items, rejecting empty or repeated slugs
func NewRegistry(items []MenuItem) (*Registry, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("menu registry is empty")
	}

	r := &Registry{
		items: make([]MenuItem, 0, len(items)),
		index: make(map[string]int, len(items)),
	}
	for i, item := range items {
		item.Slug = strings.TrimSpace(item.Slug)
		if item.Slug == "" {
			return nil, fmt.Errorf("menu item %d has no slug", i)
		}
		if _, dup := r.index[item.Slug]; dup {
			return nil, fmt.Errorf("duplicate menu slug %q", item.Slug)
		}
		if item.Label == "" {
			item.Label = item.Slug
		}
		r.index[item.Slug] = len(r.items)
		r.items = append(r.items, item)
	}
	return r, nil
}

// Items returns a copy of the menu in registry order
func (r *Registry) Items() []MenuItem {
	out := make([]MenuItem, len(r.items))
	copy(out, r.items)
	return out
}

// Lookup finds a menu item by slug
func (r *Registry) Lookup(slug string) (MenuItem, bool) {
	i, ok := r.index[slug]
	if !ok {
		return MenuItem{}, false
	}
	return r.items[i], true
}

// Len returns the number of pages
func (r *Registry) Len() int {
	return len(r.items)
}
