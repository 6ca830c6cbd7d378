package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/comercia/comercia/internal/counterparties"
	"github.com/comercia/comercia/internal/quotes"
	"github.com/comercia/comercia/internal/shared"
)

type pipelineState struct {
	opportunities map[int64]Opportunity
	projects      map[int64]Project
	nextID        int64
}

func (s pipelineState) clone() pipelineState {
	out := pipelineState{
		opportunities: make(map[int64]Opportunity, len(s.opportunities)),
		projects:      make(map[int64]Project, len(s.projects)),
		nextID:        s.nextID,
	}
	for id, o := range s.opportunities {
		out.opportunities[id] = o
	}
	for id, p := range s.projects {
		p.BudgetLines = append([]BudgetLine(nil), p.BudgetLines...)
		out.projects[id] = p
	}
	return out
}

// memoryPipelineRepo keeps a transaction's writes only if fn succeeds.
type memoryPipelineRepo struct {
	mu              sync.Mutex
	state           pipelineState
	failBudgetLines error
}

type memoryPipelineTx struct {
	state *pipelineState
	fail  error
}

func newMemoryPipelineRepo() *memoryPipelineRepo {
	return &memoryPipelineRepo{state: pipelineState{
		opportunities: make(map[int64]Opportunity),
		projects:      make(map[int64]Project),
	}}
}

func (r *memoryPipelineRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	working := r.state.clone()
	if err := fn(ctx, &memoryPipelineTx{state: &working, fail: r.failBudgetLines}); err != nil {
		return err
	}
	r.state = working
	return nil
}

func (r *memoryPipelineRepo) Get(ctx context.Context, ws uuid.UUID, id int64) (Opportunity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.state.opportunities[id]
	if !ok || o.WorkspaceID != ws {
		return Opportunity{}, fmt.Errorf("opportunity %d: %w", id, shared.ErrNotFound)
	}
	return o, nil
}

func (r *memoryPipelineRepo) Create(ctx context.Context, o Opportunity) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.nextID++
	o.ID = r.state.nextID
	r.state.opportunities[o.ID] = o
	return o.ID, nil
}

func (r *memoryPipelineRepo) GetProject(ctx context.Context, ws uuid.UUID, opportunityID int64) (Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.state.projects {
		if p.WorkspaceID == ws && p.OpportunityID == opportunityID {
			return p, nil
		}
	}
	return Project{}, shared.ErrNotFound
}

func (r *memoryPipelineRepo) projectCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.state.projects)
}

func (t *memoryPipelineTx) LockOpportunity(ctx context.Context, ws uuid.UUID, id int64) (Opportunity, error) {
	o, ok := t.state.opportunities[id]
	if !ok || o.WorkspaceID != ws {
		return Opportunity{}, fmt.Errorf("opportunity %d: %w", id, shared.ErrNotFound)
	}
	return o, nil
}

func (t *memoryPipelineTx) UpdateStage(ctx context.Context, c StageChange) error {
	o := t.state.opportunities[c.OpportunityID]
	if o.Stage != c.From {
		return shared.Conflict("opportunity is no longer "+string(c.From), "")
	}
	o.Stage = c.To
	o.LossReason = c.LossReason
	o.LossNote = c.LossNote
	action := c.Action
	at := c.At
	o.LastAction = &action
	o.LastActionAt = &at
	t.state.opportunities[o.ID] = o
	return nil
}

func (t *memoryPipelineTx) InsertProject(ctx context.Context, p Project) (int64, error) {
	for _, existing := range t.state.projects {
		if existing.OpportunityID == p.OpportunityID {
			return 0, shared.Conflict("opportunity already has a project", "")
		}
	}
	t.state.nextID++
	p.ID = t.state.nextID
	p.BudgetLines = nil
	t.state.projects[p.ID] = p
	return p.ID, nil
}

func (t *memoryPipelineTx) InsertBudgetLine(ctx context.Context, line BudgetLine) (int64, error) {
	if t.fail != nil {
		return 0, t.fail
	}
	p := t.state.projects[line.ProjectID]
	t.state.nextID++
	line.ID = t.state.nextID
	p.BudgetLines = append(p.BudgetLines, line)
	t.state.projects[p.ID] = p
	return line.ID, nil
}

type fakeQuotes struct {
	quotes map[int64]quotes.Quote
}

func (f *fakeQuotes) Get(ctx context.Context, scope shared.Scope, id int64) (quotes.Quote, error) {
	q, ok := f.quotes[id]
	if !ok || q.WorkspaceID != scope.WorkspaceID {
		return quotes.Quote{}, shared.ErrNotFound
	}
	return q, nil
}

func (f *fakeQuotes) List(ctx context.Context, scope shared.Scope, opportunityID int64) ([]quotes.Quote, error) {
	var out []quotes.Quote
	for _, q := range f.quotes {
		if q.WorkspaceID == scope.WorkspaceID && q.OpportunityID == opportunityID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeQuotes) Accept(ctx context.Context, scope shared.Scope, id int64) (quotes.Quote, error) {
	q, err := f.Get(ctx, scope, id)
	if err != nil {
		return quotes.Quote{}, err
	}
	to, err := quotes.Transition(q.Status, quotes.ActionAccept)
	if err != nil {
		return quotes.Quote{}, err
	}
	q.Status = to
	f.quotes[id] = q
	return q, nil
}

type fakeParties struct {
	records map[counterparties.Ref]counterparties.Counterparty
	patches int
}

func (f *fakeParties) Get(ctx context.Context, scope shared.Scope, ref counterparties.Ref) (counterparties.Counterparty, error) {
	c, ok := f.records[ref]
	if !ok {
		return counterparties.Counterparty{}, shared.ErrNotFound
	}
	return c, nil
}

func (f *fakeParties) ValidatePatch(patch counterparties.FiscalPatch) error {
	if patch.Regime != nil && *patch.Regime == "" {
		return shared.Validation("regime")
	}
	return nil
}

func (f *fakeParties) ApplyFiscalPatch(ctx context.Context, scope shared.Scope, ref counterparties.Ref, patch counterparties.FiscalPatch) (counterparties.Counterparty, error) {
	if err := f.ValidatePatch(patch); err != nil {
		return counterparties.Counterparty{}, err
	}
	c, err := f.Get(ctx, scope, ref)
	if err != nil {
		return counterparties.Counterparty{}, err
	}
	patch.Apply(&c)
	f.records[ref] = c
	f.patches++
	return c, nil
}

type recordingProjects struct {
	events []ProjectCreatedEvent
}

func (r *recordingProjects) ProjectCreated(ctx context.Context, event ProjectCreatedEvent) error {
	r.events = append(r.events, event)
	return nil
}

type winCounter struct {
	outcomes map[string]int
}

func (w *winCounter) WinOutcome(outcome string) {
	if w.outcomes == nil {
		w.outcomes = make(map[string]int)
	}
	w.outcomes[outcome]++
}

type recordingAudit struct {
	entries []shared.AuditLog
}

func (r *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	if err := log.Check(); err != nil {
		return err
	}
	r.entries = append(r.entries, log)
	return nil
}
