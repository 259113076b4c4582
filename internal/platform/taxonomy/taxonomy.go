// Package taxonomy exposes the marketplace category tree shipped with the binary.
package taxonomy

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kalamitra/api/internal/domain"
)

//go:embed categories.yaml
var defaultCategories []byte

type file struct {
	Categories []entry `yaml:"categories"`
}

type entry struct {
	Name          string   `yaml:"name"`
	Aliases       []string `yaml:"aliases"`
	Subcategories []string `yaml:"subcategories"`
}

// Taxonomy resolves free-form category names onto the canonical tree.
type Taxonomy struct {
	categories []domain.Category
	index      map[string]string
}

var (
	defaultOnce sync.Once
	defaultTax  *Taxonomy
	defaultErr  error
)

// Default returns the embedded taxonomy.
func Default() (*Taxonomy, error) {
	defaultOnce.Do(func() {
		defaultTax, defaultErr = Parse(defaultCategories)
	})
	return defaultTax, defaultErr
}

// Parse decodes a YAML category tree.
func Parse(data []byte) (*Taxonomy, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("taxonomy: decode: %w", err)
	}
	t := &Taxonomy{index: make(map[string]string)}
	for _, e := range f.Categories {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, fmt.Errorf("taxonomy: category without name")
		}
		subs := make([]string, 0, len(e.Subcategories))
		for _, sub := range e.Subcategories {
			if sub = strings.TrimSpace(sub); sub != "" {
				subs = append(subs, sub)
			}
		}
		t.categories = append(t.categories, domain.Category{Name: name, Subcategories: subs})

		t.add(name, name)
		for _, alias := range e.Aliases {
			t.add(alias, name)
		}
		for _, sub := range subs {
			t.add(sub, name)
		}
	}
	return t, nil
}

// add keeps the first mapping so top-level names win over later subcategories.
func (t *Taxonomy) add(key, canonical string) {
	key = foldKey(key)
	if key == "" {
		return
	}
	if _, exists := t.index[key]; !exists {
		t.index[key] = canonical
	}
}

// Categories returns a copy of the tree.
func (t *Taxonomy) Categories() []domain.Category {
	if t == nil {
		return nil
	}
	out := make([]domain.Category, len(t.categories))
	for i, c := range t.categories {
		out[i] = domain.Category{Name: c.Name, Subcategories: append([]string(nil), c.Subcategories...)}
	}
	return out
}

// Match returns the canonical category for name, ignoring case and surrounding space.
func (t *Taxonomy) Match(name string) (string, bool) {
	if t == nil {
		return "", false
	}
	canonical, ok := t.index[foldKey(name)]
	return canonical, ok
}

// Canonical returns the matched category or name unchanged.
func (t *Taxonomy) Canonical(name string) string {
	if canonical, ok := t.Match(name); ok {
		return canonical
	}
	return strings.TrimSpace(name)
}

func foldKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
