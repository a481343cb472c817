package taxonomy

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	apperrors "github.com/rajasatyajit/brocante/internal/errors"
	"github.com/rajasatyajit/brocante/internal/models"
	"github.com/rajasatyajit/brocante/pkg/utils"
)

//go:embed default.yaml
var defaultYAML []byte

// File is the on-disk layout of a taxonomy document
type File struct {
	Categories []CategoryFile `yaml:"categories"`
	Exclusions []string       `yaml:"exclusions"`
}

// CategoryFile is one category entry of a taxonomy document
type CategoryFile struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// Entry is a category with its normalized keyword phrases
type Entry struct {
	Category models.Category
	Keywords []string
}

// Taxonomy holds the ordered category keyword sets and the exclusion set.
// It is immutable once built.
type Taxonomy struct {
	entries    []Entry
	exclusions []string
}

// Default returns the taxonomy compiled into the binary.
func Default() *Taxonomy {
	t, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("taxonomy: embedded default is invalid: %v", err))
	}
	return t
}

// Load reads a taxonomy document from path. An empty path yields Default.
func Load(path string) (*Taxonomy, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("taxonomy %s: %w", path, err)
	}
	return t, nil
}

// Parse builds a Taxonomy from YAML. Category order in the document is the
// matching priority. Every category must be a known label and appear once.
func Parse(data []byte) (*Taxonomy, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	if len(f.Categories) == 0 {
		return nil, apperrors.ValidationError{Field: "categories", Message: "taxonomy has no categories"}
	}

	t := &Taxonomy{}
	seen := make(map[models.Category]bool)
	for _, c := range f.Categories {
		cat := models.Category(c.Name)
		if !cat.Valid() {
			return nil, apperrors.ValidationError{Field: "categories", Message: fmt.Sprintf("unknown category %q", c.Name)}
		}
		if seen[cat] {
			return nil, apperrors.ValidationError{Field: "categories", Message: fmt.Sprintf("duplicate category %q", c.Name)}
		}
		seen[cat] = true
		t.entries = append(t.entries, Entry{Category: cat, Keywords: normalizeAll(c.Keywords)})
	}
	t.exclusions = normalizeAll(f.Exclusions)
	return t, nil
}

func normalizeAll(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		n := utils.NormalizeText(p)
		if n == "" || slices.Contains(out, n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Entries returns the categories in priority order.
func (t *Taxonomy) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	for i, e := range t.entries {
		out[i] = Entry{Category: e.Category, Keywords: slices.Clone(e.Keywords)}
	}
	return out
}

// Exclusions returns the normalized exclusion phrases.
func (t *Taxonomy) Exclusions() []string {
	return slices.Clone(t.exclusions)
}

// Excluded returns the first exclusion phrase found in normalized text.
func (t *Taxonomy) Excluded(text string) (string, bool) {
	return utils.FirstMatch(text, t.exclusions)
}

// Match returns the first category, in priority order, with a keyword found
// in normalized text, along with the keyword that matched.
func (t *Taxonomy) Match(text string) (models.Category, string, bool) {
	for _, e := range t.entries {
		if kw, ok := utils.FirstMatch(text, e.Keywords); ok {
			return e.Category, kw, true
		}
	}
	return "", "", false
}
