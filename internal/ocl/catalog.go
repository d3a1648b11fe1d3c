package ocl

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/concept-importer/backend/internal/models"
	"gopkg.in/yaml.v3"
)

// Messages the catalog reports for skipped references.
const (
	MsgAdded     = "Added the latest versions of concept to the collection."
	MsgDuplicate = "Concept or Mapping reference name must be unique in a collection."
)

// Catalog is an in-memory concept repository loaded from YAML. It serves
// offline deployments and development without a live repository.
type Catalog struct {
	mu           sync.RWMutex
	concepts     map[string]*models.Concept
	dictionaries map[string]map[string]struct{}
	reject       map[string][]string
}

type catalogFile struct {
	Concepts []struct {
		ID         string `yaml:"id"`
		URL        string `yaml:"url"`
		VersionURL string `yaml:"version_url"`
		SourceURL  string `yaml:"source_url"`
		Retired    bool   `yaml:"retired"`
		Mappings   []struct {
			MapType      string `yaml:"map_type"`
			ToConceptURL string `yaml:"to_concept_url"`
			Retired      bool   `yaml:"retired"`
		} `yaml:"mappings"`
	} `yaml:"concepts"`
	Dictionaries map[string][]string `yaml:"dictionaries"`
	Reject       map[string][]string `yaml:"reject"`
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		concepts:     make(map[string]*models.Concept),
		dictionaries: make(map[string]map[string]struct{}),
		reject:       make(map[string][]string),
	}
}

// LoadCatalog reads a catalog file from disk.
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	defer f.Close()
	return ParseCatalog(f)
}

// ParseCatalog decodes a catalog from YAML.
func ParseCatalog(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	c := NewCatalog()
	for _, fc := range file.Concepts {
		concept := &models.Concept{
			ID:         fc.ID,
			URL:        fc.URL,
			VersionURL: fc.VersionURL,
			SourceURL:  fc.SourceURL,
			Retired:    fc.Retired,
		}
		for _, m := range fc.Mappings {
			concept.Mappings = append(concept.Mappings, models.Mapping{
				MapType:      m.MapType,
				ToConceptURL: m.ToConceptURL,
				Retired:      m.Retired,
			})
		}
		c.AddConcept(concept)
	}
	for dict, exprs := range file.Dictionaries {
		c.AddDictionary(dict, exprs...)
	}
	for expr, msg := range file.Reject {
		c.Reject(expr, msg...)
	}
	return c, nil
}

// AddConcept registers a concept under its URL and version URL.
func (c *Catalog) AddConcept(concept *models.Concept) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.concepts[normalize(concept.URL)] = concept
	if concept.VersionURL != "" {
		c.concepts[normalize(concept.VersionURL)] = concept
	}
}

// AddDictionary registers a dictionary with existing references.
func (c *Catalog) AddDictionary(dictionaryURL string, expressions ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	refs, ok := c.dictionaries[normalize(dictionaryURL)]
	if !ok {
		refs = make(map[string]struct{})
		c.dictionaries[normalize(dictionaryURL)] = refs
	}
	for _, e := range expressions {
		refs[normalize(e)] = struct{}{}
	}
}

// Reject makes AddReferences skip expr with the given reason fragments.
func (c *Catalog) Reject(expr string, reason ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reject[normalize(expr)] = reason
}

// RetrieveConcept implements the importer's concept lookup.
func (c *Catalog) RetrieveConcept(ctx context.Context, conceptURL string) (*models.Concept, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	concept, ok := c.concepts[normalize(conceptURL)]
	if !ok {
		return nil, fmt.Errorf("retrieving concept %s: %w", conceptURL, ErrNotFound)
	}
	cp := *concept
	cp.Mappings = append([]models.Mapping(nil), concept.Mappings...)
	return &cp, nil
}

// ListReferences returns a dictionary's references in sorted order.
func (c *Catalog) ListReferences(ctx context.Context, dictionaryURL string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	refs, ok := c.dictionaries[normalize(dictionaryURL)]
	if !ok {
		return nil, fmt.Errorf("listing references of %s: %w", dictionaryURL, ErrNotFound)
	}
	out := make([]string, 0, len(refs))
	for r := range refs {
		out = append(out, r)
	}
	sort.Strings(out)
	return out, nil
}

// AddReferences adds each expression, reporting one row per expression.
func (c *Catalog) AddReferences(ctx context.Context, dictionaryURL string, expressions []string) ([]models.ConceptResultRow, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	refs, ok := c.dictionaries[normalize(dictionaryURL)]
	if !ok {
		return nil, fmt.Errorf("adding references to %s: %w", dictionaryURL, ErrNotFound)
	}

	rows := make([]models.ConceptResultRow, 0, len(expressions))
	for _, expr := range expressions {
		key := normalize(expr)
		row := models.ConceptResultRow{Expression: expr}
		if reason, rejected := c.reject[key]; rejected {
			row.Message = models.MultipleReason(reason...)
		} else if _, exists := refs[key]; exists {
			row.Message = models.MultipleReason(MsgDuplicate)
		} else {
			refs[key] = struct{}{}
			row.Added = true
			row.Message = models.SingleReason(MsgAdded)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func normalize(u string) string {
	if u == "" || strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}
