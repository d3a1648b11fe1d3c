// Package importer adds user-selected concepts to a dictionary, pulling in
// every concept their mappings point to so the dictionary never holds a
// dangling mapping target.
package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/concept-importer/backend/internal/models"
	"github.com/concept-importer/backend/internal/ocl"
	"github.com/concept-importer/backend/internal/tracker"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrent caps in-flight invocations per importer.
const DefaultMaxConcurrent = 4

var (
	ErrNoConcepts     = errors.New("no concepts to import")
	ErrNoDictionary   = errors.New("target dictionary is required")
	ErrMissingConcept = errors.New("concept has neither url nor source url")
)

// ConceptAPI is the repository the importer reads from and writes to.
type ConceptAPI interface {
	RetrieveConcept(ctx context.Context, conceptURL string) (*models.Concept, error)
	ListReferences(ctx context.Context, dictionaryURL string) ([]string, error)
	AddReferences(ctx context.Context, dictionaryURL string, expressions []string) ([]models.ConceptResultRow, error)
}

// Request is one bulk add-to-dictionary invocation.
type Request struct {
	// ContainerURL is the list view the concepts were selected from; it is
	// handed to the completion hook so that view can be refreshed.
	ContainerURL  string
	DictionaryURL string
	Concepts      []models.ConceptRef
}

func (r Request) validate() error {
	if r.DictionaryURL == "" {
		return ErrNoDictionary
	}
	if len(r.Concepts) == 0 {
		return ErrNoConcepts
	}
	for _, c := range r.Concepts {
		if c.ConceptURL() == "" {
			return fmt.Errorf("concept %q: %w", c.ID, ErrMissingConcept)
		}
	}
	return nil
}

// CompletionFunc runs after an invocation settles.
type CompletionFunc func(req Request, slot models.Slot)

// Importer runs invocations and reports them through a tracker.
type Importer struct {
	api        ConceptAPI
	tracker    *tracker.Tracker
	sem        *semaphore.Weighted
	wg         sync.WaitGroup
	onComplete CompletionFunc
}

// Option configures an Importer.
type Option func(*Importer)

// WithMaxConcurrent caps in-flight invocations; queued ones stay loading.
func WithMaxConcurrent(n int) Option {
	return func(imp *Importer) {
		if n > 0 {
			imp.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithCompletion registers a hook run after every settlement.
func WithCompletion(fn CompletionFunc) Option {
	return func(imp *Importer) {
		imp.onComplete = fn
	}
}

// New creates an importer.
func New(api ConceptAPI, t *tracker.Tracker, opts ...Option) *Importer {
	imp := &Importer{
		api:     api,
		tracker: t,
		sem:     semaphore.NewWeighted(DefaultMaxConcurrent),
	}
	for _, opt := range opts {
		opt(imp)
	}
	return imp
}

// Start allocates a slot and runs the invocation in the background. The
// invocation cannot be cancelled: it outlives ctx.
func (imp *Importer) Start(ctx context.Context, req Request) (models.Slot, error) {
	if err := req.validate(); err != nil {
		return models.Slot{}, err
	}

	slot := imp.tracker.StartOperation(BuildLabel(req), req.DictionaryURL)
	fmt.Printf("[Import %s] slot %d: %s\n", shortID(slot.ID), slot.Index, slot.Label)

	imp.wg.Add(1)
	go func() {
		defer imp.wg.Done()
		imp.run(context.WithoutCancel(ctx), slot, req)
	}()

	return slot, nil
}

// Wait blocks until every started invocation has settled.
func (imp *Importer) Wait() {
	imp.wg.Wait()
}

func (imp *Importer) run(ctx context.Context, slot models.Slot, req Request) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("[Import %s] PANIC recovered: %v\n", shortID(slot.ID), r)
			imp.settleError(slot, req, fmt.Sprintf("import panicked: %v", r))
		}
	}()

	if err := imp.sem.Acquire(ctx, 1); err != nil {
		imp.settleError(slot, req, err.Error())
		return
	}
	defer imp.sem.Release(1)

	rows, err := imp.Import(ctx, req)
	if err != nil {
		imp.settleError(slot, req, err.Error())
		return
	}

	result := models.ImportResult{
		Payload: rows,
		Meta:    models.NewRequestMeta(req.DictionaryURL, req.Concepts),
	}
	if err := imp.tracker.SettleSuccess(slot.Index, result); err != nil {
		fmt.Printf("[Import %s] settle failed: %v\n", shortID(slot.ID), err)
		return
	}
	fmt.Printf("[Import %s] settled: %d rows\n", shortID(slot.ID), len(rows))
	imp.complete(slot.Index, req)
}

func (imp *Importer) settleError(slot models.Slot, req Request, msg string) {
	fmt.Printf("[Import %s] ERROR: %s\n", shortID(slot.ID), msg)
	if err := imp.tracker.SettleError(slot.Index, models.ErrorPayload(msg)); err != nil {
		fmt.Printf("[Import %s] settle failed: %v\n", shortID(slot.ID), err)
		return
	}
	imp.complete(slot.Index, req)
}

func (imp *Importer) complete(index int, req Request) {
	if imp.onComplete == nil {
		return
	}
	if settled, ok := imp.tracker.Slot(index); ok {
		imp.onComplete(req, settled)
	}
}

// Import performs the invocation synchronously and returns the flat result
// list in discovery order. Only a request-level failure (the dictionary
// cannot be read, or the API refuses the credentials) is returned as an
// error; every other problem becomes a skipped row.
func (imp *Importer) Import(ctx context.Context, req Request) ([]models.ConceptResultRow, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	existing, err := imp.api.ListReferences(ctx, req.DictionaryURL)
	if err != nil {
		return nil, err
	}

	w := &walk{
		api:        imp.api,
		dictionary: req.DictionaryURL,
		present:    make(map[string]struct{}, len(existing)),
		attempted:  make(map[string]struct{}),
	}
	for _, expr := range existing {
		w.markPresent(expr)
	}

	for _, c := range req.Concepts {
		if err := w.visit(ctx, c.ConceptURL()); err != nil {
			return nil, err
		}
	}
	return w.rows, nil
}

// walk is the state of one dependency traversal.
type walk struct {
	api        ConceptAPI
	dictionary string
	present    map[string]struct{}
	attempted  map[string]struct{}
	rows       []models.ConceptResultRow
}

func (w *walk) markPresent(expr string) {
	w.present[normalize(expr)] = struct{}{}
	w.present[normalize(models.VersionlessURL(expr))] = struct{}{}
}

func (w *walk) isPresent(expr string) bool {
	_, ok := w.present[normalize(expr)]
	return ok
}

// markAttempted reports false when expr was already attempted.
func (w *walk) markAttempted(expr string) bool {
	key := normalize(expr)
	if _, seen := w.attempted[key]; seen {
		return false
	}
	w.attempted[key] = struct{}{}
	return true
}

// visit attempts conceptURL after first attempting every mapping target
// missing from the dictionary.
func (w *walk) visit(ctx context.Context, conceptURL string) error {
	if !w.markAttempted(conceptURL) {
		return nil
	}

	concept, err := w.api.RetrieveConcept(ctx, conceptURL)
	if err != nil {
		if errors.Is(err, ocl.ErrUnauthorized) {
			return err
		}
		w.skip(conceptURL, "Could not retrieve concept:", err.Error())
		return nil
	}

	ref := concept.ReferenceURL()
	if ref == "" {
		ref = conceptURL
	}
	if normalize(ref) != normalize(conceptURL) && !w.markAttempted(ref) {
		return nil
	}

	for _, m := range concept.Mappings {
		target := m.ToConceptURL
		if m.Retired || target == "" || w.isPresent(target) {
			continue
		}
		if err := w.visit(ctx, target); err != nil {
			return err
		}
	}

	rows, err := w.api.AddReferences(ctx, w.dictionary, []string{ref})
	if err != nil {
		if errors.Is(err, ocl.ErrUnauthorized) {
			return err
		}
		w.skip(ref, "Could not add reference:", err.Error())
		return nil
	}

	for _, row := range rows {
		if row.Added {
			w.markPresent(row.Expression)
		}
		w.rows = append(w.rows, row)
	}
	return nil
}

func (w *walk) skip(expr string, reason ...string) {
	w.rows = append(w.rows, models.ConceptResultRow{
		Expression: expr,
		Added:      false,
		Message:    models.MultipleReason(reason...),
	})
}

func normalize(u string) string {
	if u == "" || strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
