package models

import "strings"

// conceptSegment marks a concept-version URL; everything else in a result
// list is housekeeping (mappings, collection references).
const conceptSegment = "/concepts/"

// ConceptIDSegment is the position of the concept id when an expression
// such as /orgs/{org}/sources/{source}/concepts/{id}/{version}/ is split on "/".
const ConceptIDSegment = 6

// ContainerNameSegment is the position of the source or dictionary name in
// an owner-scoped container URL.
const ContainerNameSegment = 4

// ConceptResultRow is one outcome line returned by the import API.
type ConceptResultRow struct {
	Expression string `json:"expression"`
	Added      bool   `json:"added"`
	Message    Reason `json:"message"`
}

// IsConcept reports whether the row references a concept version.
func (r ConceptResultRow) IsConcept() bool {
	return strings.Contains(r.Expression, conceptSegment)
}

// ConceptID returns the concept id segment of the expression, or "" when
// the expression is too short.
func (r ConceptResultRow) ConceptID() string {
	return PathSegment(r.Expression, ConceptIDSegment)
}

// PathSegment returns the i-th element of url split on "/", or "".
func PathSegment(url string, i int) string {
	parts := strings.Split(url, "/")
	if i < 0 || i >= len(parts) {
		return ""
	}
	return parts[i]
}

// VersionlessURL strips the version segment from a concept-version URL.
// Other URLs are returned unchanged.
func VersionlessURL(expr string) string {
	parts := strings.Split(expr, "/")
	if len(parts) <= ConceptIDSegment+2 || parts[ConceptIDSegment-1] != "concepts" || parts[ConceptIDSegment+1] == "" {
		return expr
	}
	return strings.Join(parts[:ConceptIDSegment+1], "/") + "/"
}

// ConceptRef identifies a concept the user asked to import.
type ConceptRef struct {
	ID        string `json:"id"`
	URL       string `json:"url,omitempty"`
	SourceURL string `json:"sourceUrl,omitempty"`
}

// ConceptURL returns URL, or builds it from the source URL and id.
func (c ConceptRef) ConceptURL() string {
	if c.URL != "" {
		return c.URL
	}
	if c.SourceURL == "" || c.ID == "" {
		return ""
	}
	base := c.SourceURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + "concepts/" + c.ID + "/"
}

// Mapping is an outgoing mapping of a concept.
type Mapping struct {
	MapType         string `json:"map_type"`
	ToConceptURL    string `json:"to_concept_url"`
	ToConceptCode   string `json:"to_concept_code,omitempty"`
	ToSourceURL     string `json:"to_source_url,omitempty"`
	Retired         bool   `json:"retired,omitempty"`
	ExternalID      string `json:"external_id,omitempty"`
	FromConceptURL  string `json:"from_concept_url,omitempty"`
	FromConceptCode string `json:"from_concept_code,omitempty"`
}

// Concept is the subset of a concept resource the importer needs.
type Concept struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	VersionURL string    `json:"version_url,omitempty"`
	SourceURL  string    `json:"source_url,omitempty"`
	Retired    bool      `json:"retired,omitempty"`
	Mappings   []Mapping `json:"mappings,omitempty"`
}

// ReferenceURL is the URL recorded in a dictionary for this concept,
// preferring the pinned version.
func (c *Concept) ReferenceURL() string {
	if c.VersionURL != "" {
		return c.VersionURL
	}
	return c.URL
}
