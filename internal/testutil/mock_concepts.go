// mock_concepts.go - Mock concept repository for testing
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/concept-importer/backend/internal/models"
)

// SourceURL is the source every mock concept lives in.
const SourceURL = "/orgs/CIEL/sources/CIEL/"

// DictionaryURL is the dictionary NewMockConceptAPI creates.
const DictionaryURL = "/users/testUser/collections/testDictionary/"

// ConceptURL returns the URL of a mock concept.
func ConceptURL(id string) string {
	return SourceURL + "concepts/" + id + "/"
}

// MockConceptAPI implements importer.ConceptAPI for testing. It records
// every call and can be told to fail or to hold AddReferences until
// released.
type MockConceptAPI struct {
	mu           sync.Mutex
	concepts     map[string]*models.Concept
	dictionaries map[string]map[string]struct{}
	failures     map[string]error

	// ListErr, when set, fails every ListReferences call.
	ListErr error
	// Gate, when set, blocks AddReferences until it is closed.
	Gate chan struct{}

	Retrieved []string
	Added     []string
}

// NewMockConceptAPI creates a mock with an empty DictionaryURL.
func NewMockConceptAPI() *MockConceptAPI {
	m := &MockConceptAPI{
		concepts:     make(map[string]*models.Concept),
		dictionaries: make(map[string]map[string]struct{}),
		failures:     make(map[string]error),
	}
	m.dictionaries[DictionaryURL] = make(map[string]struct{})
	return m
}

// AddConcept registers a concept whose mappings point at targets.
func (m *MockConceptAPI) AddConcept(id string, targets ...string) *models.Concept {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := &models.Concept{ID: id, URL: ConceptURL(id), SourceURL: SourceURL}
	for _, t := range targets {
		c.Mappings = append(c.Mappings, models.Mapping{MapType: "SAME-AS", ToConceptURL: ConceptURL(t)})
	}
	m.concepts[c.URL] = c
	return c
}

// AddReference puts expr into the dictionary up front.
func (m *MockConceptAPI) AddReference(dictionaryURL, expr string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	refs, ok := m.dictionaries[dictionaryURL]
	if !ok {
		refs = make(map[string]struct{})
		m.dictionaries[dictionaryURL] = refs
	}
	refs[expr] = struct{}{}
}

// FailAdd makes AddReferences return err for expr.
func (m *MockConceptAPI) FailAdd(expr string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[expr] = err
}

func (m *MockConceptAPI) RetrieveConcept(ctx context.Context, conceptURL string) (*models.Concept, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Retrieved = append(m.Retrieved, conceptURL)
	c, ok := m.concepts[conceptURL]
	if !ok {
		return nil, fmt.Errorf("concept not found: %s", conceptURL)
	}
	cp := *c
	return &cp, nil
}

func (m *MockConceptAPI) ListReferences(ctx context.Context, dictionaryURL string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListErr != nil {
		return nil, m.ListErr
	}
	refs, ok := m.dictionaries[dictionaryURL]
	if !ok {
		return nil, fmt.Errorf("dictionary not found: %s", dictionaryURL)
	}
	out := make([]string, 0, len(refs))
	for r := range refs {
		out = append(out, r)
	}
	return out, nil
}

func (m *MockConceptAPI) AddReferences(ctx context.Context, dictionaryURL string, expressions []string) ([]models.ConceptResultRow, error) {
	if gate := m.gate(); gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	refs, ok := m.dictionaries[dictionaryURL]
	if !ok {
		return nil, fmt.Errorf("dictionary not found: %s", dictionaryURL)
	}

	rows := make([]models.ConceptResultRow, 0, len(expressions))
	for _, expr := range expressions {
		m.Added = append(m.Added, expr)
		if err, fail := m.failures[expr]; fail {
			return nil, err
		}
		row := models.ConceptResultRow{Expression: expr}
		if _, exists := refs[expr]; exists {
			row.Message = models.MultipleReason("Concept", "already", "exists")
		} else {
			refs[expr] = struct{}{}
			row.Added = true
			row.Message = models.SingleReason("Added")
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (m *MockConceptAPI) gate() chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Gate
}

// AddedIDs returns the concept ids passed to AddReferences, in order.
func (m *MockConceptAPI) AddedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.Added))
	for _, expr := range m.Added {
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(expr, SourceURL+"concepts/"), "/"))
	}
	return ids
}
