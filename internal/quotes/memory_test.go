package quotes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/comercia/comercia/internal/shared"
)

type memoryState struct {
	quotes        map[int64]Quote
	opportunities map[int64]uuid.UUID
	projectQuotes map[int64]bool
	nextID        int64
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		quotes:        make(map[int64]Quote, len(s.quotes)),
		opportunities: make(map[int64]uuid.UUID, len(s.opportunities)),
		projectQuotes: make(map[int64]bool, len(s.projectQuotes)),
		nextID:        s.nextID,
	}
	for id := range s.projectQuotes {
		out.projectQuotes[id] = true
	}
	for id, q := range s.quotes {
		out.quotes[id] = q.Clone()
	}
	for id, ws := range s.opportunities {
		out.opportunities[id] = ws
	}
	return out
}

// memoryQuoteRepo commits a transaction's writes only when fn succeeds.
type memoryQuoteRepo struct {
	mu       sync.Mutex
	state    memoryState
	catalog  map[int64]CatalogItem
	failNext error
}

type memoryQuoteTx struct {
	state *memoryState
	fail  error
}

func newMemoryQuoteRepo() *memoryQuoteRepo {
	return &memoryQuoteRepo{
		state: memoryState{
			quotes:        make(map[int64]Quote),
			opportunities: make(map[int64]uuid.UUID),
			projectQuotes: make(map[int64]bool),
		},
		catalog: make(map[int64]CatalogItem),
	}
}

func (r *memoryQuoteRepo) addOpportunity(ws uuid.UUID, id int64) {
	r.state.opportunities[id] = ws
}

func (r *memoryQuoteRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	working := r.state.clone()
	tx := &memoryQuoteTx{state: &working, fail: r.failNext}
	r.failNext = nil
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.state = working
	return nil
}

func (r *memoryQuoteRepo) Get(ctx context.Context, ws uuid.UUID, id int64) (Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.state.quotes[id]
	if !ok || q.WorkspaceID != ws {
		return Quote{}, fmt.Errorf("quote %d: %w", id, shared.ErrNotFound)
	}
	return q.Clone(), nil
}

func (r *memoryQuoteRepo) ListByOpportunity(ctx context.Context, ws uuid.UUID, opportunityID int64) ([]Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Quote
	for _, q := range r.state.quotes {
		if q.WorkspaceID == ws && q.OpportunityID == opportunityID {
			out = append(out, q.Clone())
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && newer(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func newer(a, b Quote) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func (r *memoryQuoteRepo) FindSent(ctx context.Context, ws uuid.UUID, opportunityID int64) (*Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return findSentIn(r.state, ws, opportunityID), nil
}

func (r *memoryQuoteRepo) GetCatalogItem(ctx context.Context, ws uuid.UUID, id int64) (CatalogItem, error) {
	ci, ok := r.catalog[id]
	if !ok || ci.WorkspaceID != ws {
		return CatalogItem{}, shared.ErrNotFound
	}
	return ci, nil
}

func findSentIn(state memoryState, ws uuid.UUID, opportunityID int64) *Quote {
	for _, q := range state.quotes {
		if q.WorkspaceID == ws && q.OpportunityID == opportunityID && q.Status == StatusSent {
			out := q.Clone()
			return &out
		}
	}
	return nil
}

func (t *memoryQuoteTx) nextID() int64 {
	t.state.nextID++
	return t.state.nextID
}

func (t *memoryQuoteTx) LockOpportunity(ctx context.Context, ws uuid.UUID, opportunityID int64) error {
	if owner, ok := t.state.opportunities[opportunityID]; !ok || owner != ws {
		return fmt.Errorf("opportunity %d: %w", opportunityID, shared.ErrNotFound)
	}
	return nil
}

func (t *memoryQuoteTx) GetForUpdate(ctx context.Context, ws uuid.UUID, id int64) (Quote, error) {
	q, ok := t.state.quotes[id]
	if !ok || q.WorkspaceID != ws {
		return Quote{}, fmt.Errorf("quote %d: %w", id, shared.ErrNotFound)
	}
	return q.Clone(), nil
}

func (t *memoryQuoteTx) FindSent(ctx context.Context, ws uuid.UUID, opportunityID int64) (*Quote, error) {
	return findSentIn(*t.state, ws, opportunityID), nil
}

func (t *memoryQuoteTx) Create(ctx context.Context, q Quote) (int64, error) {
	q.ID = t.nextID()
	q.Items = nil
	t.state.quotes[q.ID] = q
	return q.ID, nil
}

func (t *memoryQuoteTx) InsertItem(ctx context.Context, item Item) (int64, error) {
	q, ok := t.state.quotes[item.QuoteID]
	if !ok {
		return 0, shared.ErrNotFound
	}
	item.ID = t.nextID()
	item.Rubros = nil
	q.Items = append(q.Items, item)
	t.state.quotes[q.ID] = q
	return item.ID, nil
}

func (t *memoryQuoteTx) InsertRubro(ctx context.Context, r Rubro) (int64, error) {
	if t.fail != nil {
		return 0, t.fail
	}
	for id, q := range t.state.quotes {
		for i := range q.Items {
			if q.Items[i].ID == r.ItemID {
				r.ID = t.nextID()
				r.Total = RubroTotal(r)
				q.Items[i].Rubros = append(q.Items[i].Rubros, r)
				t.state.quotes[id] = q
				return r.ID, nil
			}
		}
	}
	return 0, shared.ErrNotFound
}

func (t *memoryQuoteTx) UpdateRubro(ctx context.Context, r Rubro) error {
	for id, q := range t.state.quotes {
		for i := range q.Items {
			for j := range q.Items[i].Rubros {
				if q.Items[i].Rubros[j].ID == r.ID {
					r.Total = RubroTotal(r)
					q.Items[i].Rubros[j] = r
					t.state.quotes[id] = q
					return nil
				}
			}
		}
	}
	return shared.ErrNotFound
}

func (t *memoryQuoteTx) DeleteRubro(ctx context.Context, rubroID int64) error {
	for id, q := range t.state.quotes {
		for i := range q.Items {
			for j := range q.Items[i].Rubros {
				if q.Items[i].Rubros[j].ID == rubroID {
					rubros := q.Items[i].Rubros
					q.Items[i].Rubros = append(rubros[:j:j], rubros[j+1:]...)
					t.state.quotes[id] = q
					return nil
				}
			}
		}
	}
	return nil
}

func (t *memoryQuoteTx) DeleteItem(ctx context.Context, itemID int64) error {
	for id, q := range t.state.quotes {
		for i := range q.Items {
			if q.Items[i].ID == itemID {
				q.Items = append(q.Items[:i:i], q.Items[i+1:]...)
				t.state.quotes[id] = q
				return nil
			}
		}
	}
	return nil
}

func (t *memoryQuoteTx) SaveTotals(ctx context.Context, q Quote) error {
	stored, ok := t.state.quotes[q.ID]
	if !ok {
		return shared.ErrNotFound
	}
	stored.Description = q.Description
	stored.Total = q.Total
	stored.CostTotal = q.CostTotal
	stored.MarginPct = q.MarginPct
	stored.UpdatedAt = q.UpdatedAt
	for i := range stored.Items {
		for _, item := range q.Items {
			if item.ID == stored.Items[i].ID {
				stored.Items[i].Subtotal = item.Subtotal
			}
		}
	}
	t.state.quotes[q.ID] = stored
	return nil
}

func (t *memoryQuoteTx) UpdateStatus(ctx context.Context, id int64, from, to Status, sentAt, validUntil *time.Time) error {
	q, ok := t.state.quotes[id]
	if !ok {
		return shared.ErrNotFound
	}
	if q.Status != from {
		return shared.Conflict(fmt.Sprintf("quote is no longer %s", from), "")
	}
	if to == StatusSent && findSentIn(*t.state, q.WorkspaceID, q.OpportunityID) != nil {
		return shared.Conflict(reasonSentExists, "")
	}
	q.Status = to
	if sentAt != nil {
		q.SentAt = sentAt
	}
	if validUntil != nil {
		q.ValidUntil = validUntil
	}
	t.state.quotes[id] = q
	return nil
}

func (t *memoryQuoteTx) Delete(ctx context.Context, id int64) error {
	if t.state.projectQuotes[id] {
		return shared.Conflict(reasonGovernsProject, "")
	}
	delete(t.state.quotes, id)
	return nil
}

type stubSequencer struct {
	n   int
	err error
}

func (s *stubSequencer) Next(ctx context.Context, ws uuid.UUID) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.n++
	return fmt.Sprintf("COT-%04d", s.n), nil
}

type recordingNotifier struct {
	events []SentEvent
}

func (n *recordingNotifier) QuoteSent(ctx context.Context, event SentEvent) error {
	n.events = append(n.events, event)
	return nil
}

type countingRecorder struct {
	counts map[string]int
}

func (c *countingRecorder) QuoteTransition(action, outcome string) {
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[action+"/"+outcome]++
}

type memoryIdempotency struct {
	keys map[string]bool
}

func (m *memoryIdempotency) Claim(ctx context.Context, ws uuid.UUID, key, operation string) error {
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) Release(ctx context.Context, ws uuid.UUID, key string) error {
	delete(m.keys, key)
	return nil
}

var errInjected = errors.New("injected failure")
