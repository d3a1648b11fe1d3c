// Package ocl talks to the concept repository API that owns sources,
// concepts and dictionaries.
package ocl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/concept-importer/backend/internal/models"
)

var (
	ErrUnauthorized = errors.New("not authorized")
	ErrNotFound     = errors.New("resource not found")
)

// Client is an HTTP client for the concept repository API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for baseURL authenticating with token (may be
// empty for anonymous access).
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// RetrieveConcept fetches a concept with its mappings.
func (c *Client) RetrieveConcept(ctx context.Context, conceptURL string) (*models.Concept, error) {
	q := url.Values{}
	q.Set("verbose", "true")
	q.Set("includeMappings", "true")

	var concept models.Concept
	if err := c.do(ctx, http.MethodGet, conceptURL, q, nil, &concept); err != nil {
		return nil, fmt.Errorf("retrieving concept %s: %w", conceptURL, err)
	}
	return &concept, nil
}

// ListReferences returns the expressions already referenced by a dictionary.
func (c *Client) ListReferences(ctx context.Context, dictionaryURL string) ([]string, error) {
	q := url.Values{}
	q.Set("limit", "0")

	var refs []struct {
		Expression string `json:"expression"`
	}
	if err := c.do(ctx, http.MethodGet, joinPath(dictionaryURL, "references/"), q, nil, &refs); err != nil {
		return nil, fmt.Errorf("listing references of %s: %w", dictionaryURL, err)
	}

	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.Expression)
	}
	return out, nil
}

// AddReferences adds expressions to a dictionary without cascading; the
// importer resolves dependencies itself.
func (c *Client) AddReferences(ctx context.Context, dictionaryURL string, expressions []string) ([]models.ConceptResultRow, error) {
	q := url.Values{}
	q.Set("cascade", "none")

	body := map[string]interface{}{
		"data": map[string][]string{"expressions": expressions},
	}

	var rows []models.ConceptResultRow
	if err := c.do(ctx, http.MethodPut, joinPath(dictionaryURL, "references/"), q, body, &rows); err != nil {
		return nil, fmt.Errorf("adding references to %s: %w", dictionaryURL, err)
	}
	return rows, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: %w", resp.Status, ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", resp.Status, ErrNotFound)
	case resp.StatusCode >= 300:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func joinPath(base, suffix string) string {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + suffix
}
