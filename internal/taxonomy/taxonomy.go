// Package taxonomy supplies the closed set of concepts entities can be linked to.
package taxonomy

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Lllllllleong/financialentityflow/internal/models"
)

// DefaultNamespace labels tags whose concept carries no namespace prefix.
const DefaultNamespace = "us-gaap"

//go:embed concepts.yaml
var defaultConcepts []byte

// Source lists the concept dictionary. Implementations are read-only and safe for concurrent use.
type Source interface {
	ListConcepts(ctx context.Context) ([]models.TaxonomyConcept, error)
}

type file struct {
	Taxonomy string                   `yaml:"taxonomy"`
	Concepts []models.TaxonomyConcept `yaml:"concepts"`
}

// Load parses a YAML concept dictionary.
func Load(r io.Reader) ([]models.TaxonomyConcept, error) {
	var f file
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode taxonomy: %w", err)
	}
	ns := f.Taxonomy
	if ns == "" {
		ns = DefaultNamespace
	}
	for i, c := range f.Concepts {
		if c.Name == "" {
			return nil, fmt.Errorf("concept %d has no name", i)
		}
		if c.ID == "" {
			f.Concepts[i].ID = ns + ":" + c.Name
		}
		if c.Period != "" && c.Period != models.PeriodInstant && c.Period != models.PeriodDuration {
			return nil, fmt.Errorf("concept %s: unknown period %q", c.Name, c.Period)
		}
	}
	return f.Concepts, nil
}

// LoadFile parses a YAML concept dictionary from disk.
func LoadFile(path string) ([]models.TaxonomyConcept, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return Load(fh)
}

// Static is a fixed, in-memory Source.
type Static struct {
	concepts []models.TaxonomyConcept
}

// NewStatic copies concepts into a Source.
func NewStatic(concepts []models.TaxonomyConcept) *Static {
	return &Static{concepts: append([]models.TaxonomyConcept(nil), concepts...)}
}

// ListConcepts returns a copy so callers cannot mutate the shared dictionary.
func (s *Static) ListConcepts(context.Context) ([]models.TaxonomyConcept, error) {
	return append([]models.TaxonomyConcept(nil), s.concepts...), nil
}

var (
	defaultOnce   sync.Once
	defaultSource *Static
	defaultErr    error
)

// Default returns the embedded US-GAAP dictionary.
func Default() (*Static, error) {
	defaultOnce.Do(func() {
		var concepts []models.TaxonomyConcept
		concepts, defaultErr = Load(strings.NewReader(string(defaultConcepts)))
		defaultSource = NewStatic(concepts)
	})
	return defaultSource, defaultErr
}

// Open returns the dictionary at path, or the embedded default when path is empty.
func Open(path string) (Source, error) {
	if path == "" {
		return Default()
	}
	concepts, err := LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load taxonomy %s: %w", path, err)
	}
	return NewStatic(concepts), nil
}

// Catalog indexes concepts by id and by bare name.
type Catalog struct {
	concepts []models.TaxonomyConcept
	byID     map[string]models.TaxonomyConcept
	byName   map[string]models.TaxonomyConcept
}

// NewCatalog builds lookup tables over concepts.
func NewCatalog(concepts []models.TaxonomyConcept) *Catalog {
	c := &Catalog{
		concepts: concepts,
		byID:     make(map[string]models.TaxonomyConcept, len(concepts)),
		byName:   make(map[string]models.TaxonomyConcept, len(concepts)),
	}
	for _, concept := range concepts {
		c.byID[strings.ToLower(concept.ID)] = concept
		c.byName[strings.ToLower(concept.Name)] = concept
	}
	return c
}

// Concepts returns the indexed concepts in dictionary order.
func (c *Catalog) Concepts() []models.TaxonomyConcept { return c.concepts }

// Resolve maps an id or a bare name (case-insensitive) onto a known concept.
func (c *Catalog) Resolve(ref string) (models.TaxonomyConcept, bool) {
	key := strings.ToLower(strings.TrimSpace(ref))
	if concept, ok := c.byID[key]; ok {
		return concept, true
	}
	if concept, ok := c.byName[key]; ok {
		return concept, true
	}
	if _, name, ok := strings.Cut(key, ":"); ok {
		concept, found := c.byName[name]
		return concept, found
	}
	return models.TaxonomyConcept{}, false
}

// Namespace returns the prefix of a concept id, or DefaultNamespace.
func Namespace(id string) string {
	if ns, _, ok := strings.Cut(id, ":"); ok && ns != "" {
		return ns
	}
	return DefaultNamespace
}
