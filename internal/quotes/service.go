package quotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/comercia/comercia/internal/shared"
)

// DefaultValidity is how long a sent quote stays valid.
const DefaultValidity = 30 * 24 * time.Hour

const (
	reasonSentExists     = "opportunity already has a sent quote"
	reasonGovernsProject = "quote governs a project"
)

// Sequencer issues human-readable consecutives per workspace.
type Sequencer interface {
	Next(ctx context.Context, workspaceID uuid.UUID) (string, error)
}

// Notifier is told about quotes that reached the client.
type Notifier interface {
	QuoteSent(ctx context.Context, event SentEvent) error
}

// Recorder counts state machine outcomes.
type Recorder interface {
	QuoteTransition(action, outcome string)
}

// IdempotencyPort guards retried duplications.
type IdempotencyPort interface {
	Claim(ctx context.Context, workspaceID uuid.UUID, key, operation string) error
	Release(ctx context.Context, workspaceID uuid.UUID, key string) error
}

// SentEvent describes a quote that was sent or reopened.
type SentEvent struct {
	WorkspaceID   uuid.UUID `json:"workspace_id"`
	QuoteID       int64     `json:"quote_id"`
	OpportunityID int64     `json:"opportunity_id"`
	Consecutive   string    `json:"consecutive"`
	Total         float64   `json:"total"`
	ValidUntil    time.Time `json:"valid_until"`
}

// Options carries the optional collaborators of Service.
type Options struct {
	Sequencer   Sequencer
	Notifier    Notifier
	Metrics     Recorder
	Idempotency IdempotencyPort
	Logger      *slog.Logger
	Validity    time.Duration
	Now         func() time.Time
}

// Service implements the quote state machine and line-item editing.
type Service struct {
	repo        Repository
	seq         Sequencer
	notifier    Notifier
	metrics     Recorder
	idempotency IdempotencyPort
	logger      *slog.Logger
	validate    *validator.Validate
	validity    time.Duration
	now         func() time.Time
}

// NewService constructs the quote service.
func NewService(repo Repository, opts Options) *Service {
	s := &Service{
		repo:        repo,
		seq:         opts.Sequencer,
		notifier:    opts.Notifier,
		metrics:     opts.Metrics,
		idempotency: opts.Idempotency,
		logger:      opts.Logger,
		validate:    shared.NewValidator(),
		validity:    opts.Validity,
		now:         opts.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.validity <= 0 {
		s.validity = DefaultValidity
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Create opens a draft quote on an existing opportunity.
func (s *Service) Create(ctx context.Context, scope shared.Scope, req CreateQuoteRequest) (Quote, error) {
	if err := scope.Validate(); err != nil {
		return Quote{}, err
	}
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return Quote{}, err
	}
	now := s.now()
	q := Quote{
		WorkspaceID:   scope.WorkspaceID,
		OpportunityID: req.OpportunityID,
		Mode:          req.Mode,
		Status:        StatusDraft,
		Description:   req.Description,
		Total:         req.Total,
		Consecutive:   s.nextConsecutive(ctx, scope.WorkspaceID),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	Recalculate(&q)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockOpportunity(ctx, scope.WorkspaceID, q.OpportunityID); err != nil {
			return err
		}
		id, err := tx.Create(ctx, q)
		if err != nil {
			return fmt.Errorf("create quote: %w", err)
		}
		q.ID = id
		return nil
	})
	if err != nil {
		return Quote{}, err
	}
	return q, nil
}

// Get returns the quote with its item/rubro tree.
func (s *Service) Get(ctx context.Context, scope shared.Scope, id int64) (Quote, error) {
	if err := scope.Validate(); err != nil {
		return Quote{}, err
	}
	return s.repo.Get(ctx, scope.WorkspaceID, id)
}

// List returns the quotes of an opportunity, newest first.
func (s *Service) List(ctx context.Context, scope shared.Scope, opportunityID int64) ([]Quote, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListByOpportunity(ctx, scope.WorkspaceID, opportunityID)
}

// Patch edits the header of a draft quote.
func (s *Service) Patch(ctx context.Context, scope shared.Scope, id int64, patch QuotePatch) (Quote, error) {
	if err := shared.ValidateStruct(s.validate, patch); err != nil {
		return Quote{}, err
	}
	return s.mutateDraft(ctx, scope, id, func(_ context.Context, _ TxRepository, q *Quote) error {
		if patch.Description != nil {
			desc := *patch.Description
			q.Description = &desc
		}
		if patch.Total != nil {
			q.Total = *patch.Total
		}
		return nil
	})
}

// Delete removes a draft or rejected quote and its tree.
func (s *Service) Delete(ctx context.Context, scope shared.Scope, id int64) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetForUpdate(ctx, scope.WorkspaceID, id)
		if err != nil {
			return err
		}
		if _, err := Transition(q.Status, ActionDelete); err != nil {
			return err
		}
		if err := tx.Delete(ctx, q.ID); err != nil {
			var conflict *shared.ConflictError
			if errors.As(err, &conflict) && conflict.Reason == reasonGovernsProject {
				return shared.Conflict(reasonGovernsProject, q.Consecutive)
			}
			return err
		}
		return nil
	})
	s.record(ActionDelete, err)
	return err
}

// Send moves a draft to sent, stamping the send time and validity.
func (s *Service) Send(ctx context.Context, scope shared.Scope, id int64) (Quote, error) {
	return s.publish(ctx, scope, id, ActionSend)
}

// Reopen moves a rejected quote back to sent under the same guard as Send.
func (s *Service) Reopen(ctx context.Context, scope shared.Scope, id int64) (Quote, error) {
	return s.publish(ctx, scope, id, ActionReopen)
}

// Accept marks a sent quote accepted. Winning the opportunity is the
// caller's concern.
func (s *Service) Accept(ctx context.Context, scope shared.Scope, id int64) (Quote, error) {
	return s.settle(ctx, scope, id, ActionAccept)
}

// Reject marks a sent quote rejected.
func (s *Service) Reject(ctx context.Context, scope shared.Scope, id int64) (Quote, error) {
	return s.settle(ctx, scope, id, ActionReject)
}

func (s *Service) publish(ctx context.Context, scope shared.Scope, id int64, action Action) (Quote, error) {
	if err := scope.Validate(); err != nil {
		return Quote{}, err
	}
	var (
		out           Quote
		opportunityID int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetForUpdate(ctx, scope.WorkspaceID, id)
		if err != nil {
			return err
		}
		opportunityID = q.OpportunityID
		to, err := Transition(q.Status, action)
		if err != nil {
			return err
		}
		if err := tx.LockOpportunity(ctx, scope.WorkspaceID, q.OpportunityID); err != nil {
			return err
		}
		sent, err := tx.FindSent(ctx, scope.WorkspaceID, q.OpportunityID)
		if err != nil {
			return err
		}
		if sent != nil && sent.ID != q.ID {
			return shared.Conflict(reasonSentExists, sent.Consecutive)
		}
		sentAt := s.now()
		validUntil := sentAt.Add(s.validity)
		if err := tx.UpdateStatus(ctx, q.ID, q.Status, to, &sentAt, &validUntil); err != nil {
			return err
		}
		q.Status = to
		q.SentAt = &sentAt
		q.ValidUntil = &validUntil
		q.UpdatedAt = sentAt
		out = q
		return nil
	})
	if err != nil {
		err = s.withBlocker(ctx, scope, opportunityID, err)
		s.record(action, err)
		return Quote{}, err
	}
	s.record(action, nil)
	s.logger.Info("quote sent", slog.Int64("quote_id", out.ID), slog.String("consecutive", out.Consecutive), slog.String("action", string(action)))
	s.notifySent(ctx, out)
	return out, nil
}

func (s *Service) settle(ctx context.Context, scope shared.Scope, id int64, action Action) (Quote, error) {
	if err := scope.Validate(); err != nil {
		return Quote{}, err
	}
	var out Quote
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetForUpdate(ctx, scope.WorkspaceID, id)
		if err != nil {
			return err
		}
		to, err := Transition(q.Status, action)
		if err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, q.ID, q.Status, to, nil, nil); err != nil {
			return err
		}
		q.Status = to
		q.UpdatedAt = s.now()
		out = q
		return nil
	})
	s.record(action, err)
	if err != nil {
		return Quote{}, err
	}
	return out, nil
}

// withBlocker fills in the blocking consecutive when the conflict was raised
// by the unique index rather than the in-transaction check.
func (s *Service) withBlocker(ctx context.Context, scope shared.Scope, opportunityID int64, err error) error {
	var conflict *shared.ConflictError
	if !errors.As(err, &conflict) || conflict.Reason != reasonSentExists || conflict.Blocking != "" || opportunityID == 0 {
		return err
	}
	sent, lookupErr := s.repo.FindSent(ctx, scope.WorkspaceID, opportunityID)
	if lookupErr != nil || sent == nil {
		return err
	}
	return shared.Conflict(reasonSentExists, sent.Consecutive)
}

// Duplicate copies any quote into a new draft with a fresh consecutive. A
// non-empty idempotency key makes retries of the same request fail instead of
// producing a second copy.
func (s *Service) Duplicate(ctx context.Context, scope shared.Scope, id int64, idempotencyKey string) (Quote, error) {
	if err := scope.Validate(); err != nil {
		return Quote{}, err
	}
	if s.idempotency != nil && idempotencyKey != "" {
		if err := s.idempotency.Claim(ctx, scope.WorkspaceID, idempotencyKey, "quotes.duplicate"); err != nil {
			return Quote{}, err
		}
	}
	out, err := s.duplicate(ctx, scope, id)
	if err != nil && s.idempotency != nil && idempotencyKey != "" {
		if releaseErr := s.idempotency.Release(ctx, scope.WorkspaceID, idempotencyKey); releaseErr != nil {
			s.logger.Warn("release idempotency key", slog.Any("error", releaseErr))
		}
	}
	s.record(ActionDuplicate, err)
	return out, err
}

func (s *Service) duplicate(ctx context.Context, scope shared.Scope, id int64) (Quote, error) {
	src, err := s.repo.Get(ctx, scope.WorkspaceID, id)
	if err != nil {
		return Quote{}, err
	}
	status, err := Transition(src.Status, ActionDuplicate)
	if err != nil {
		return Quote{}, err
	}
	now := s.now()
	copied := src.Clone()
	copied.ID = 0
	copied.Status = status
	copied.Consecutive = s.nextConsecutive(ctx, scope.WorkspaceID)
	copied.SentAt = nil
	copied.ValidUntil = nil
	copied.DuplicatedFrom = &src.ID
	copied.CreatedAt = now
	copied.UpdatedAt = now
	if copied.Mode != ModeDetailed {
		copied.Items = nil
	}
	Recalculate(&copied)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		newID, err := tx.Create(ctx, copied)
		if err != nil {
			return fmt.Errorf("create duplicate: %w", err)
		}
		copied.ID = newID
		for i := range copied.Items {
			item := &copied.Items[i]
			item.QuoteID = newID
			if item.ID, err = tx.InsertItem(ctx, *item); err != nil {
				return fmt.Errorf("copy item: %w", err)
			}
			for j := range item.Rubros {
				item.Rubros[j].ItemID = item.ID
				if item.Rubros[j].ID, err = tx.InsertRubro(ctx, item.Rubros[j]); err != nil {
					return fmt.Errorf("copy rubro: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return Quote{}, err
	}
	return copied, nil
}

// AddItem appends a blank item to a detailed draft.
func (s *Service) AddItem(ctx context.Context, scope shared.Scope, quoteID int64, input ItemInput) (Quote, error) {
	if err := shared.ValidateStruct(s.validate, input); err != nil {
		return Quote{}, err
	}
	return s.mutateDraft(ctx, scope, quoteID, func(ctx context.Context, tx TxRepository, q *Quote) error {
		if err := requireDetailed(*q); err != nil {
			return err
		}
		item := Item{QuoteID: q.ID, Name: input.Name, Position: q.nextPosition()}
		id, err := tx.InsertItem(ctx, item)
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		item.ID = id
		q.Items = append(q.Items, item)
		return nil
	})
}

// AddItemFromCatalog appends an item seeded from a catalog template.
func (s *Service) AddItemFromCatalog(ctx context.Context, scope shared.Scope, quoteID, catalogItemID int64) (Quote, error) {
	if err := scope.Validate(); err != nil {
		return Quote{}, err
	}
	ci, err := s.repo.GetCatalogItem(ctx, scope.WorkspaceID, catalogItemID)
	if err != nil {
		return Quote{}, err
	}
	return s.mutateDraft(ctx, scope, quoteID, func(ctx context.Context, tx TxRepository, q *Quote) error {
		if err := requireDetailed(*q); err != nil {
			return err
		}
		item := ItemFromCatalog(ci, q.nextPosition())
		item.QuoteID = q.ID
		if item.ID, err = tx.InsertItem(ctx, item); err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		for i := range item.Rubros {
			item.Rubros[i].ItemID = item.ID
			if item.Rubros[i].ID, err = tx.InsertRubro(ctx, item.Rubros[i]); err != nil {
				return fmt.Errorf("insert rubro: %w", err)
			}
		}
		q.Items = append(q.Items, item)
		return nil
	})
}

// DeleteItem removes an item and its rubros from a draft.
func (s *Service) DeleteItem(ctx context.Context, scope shared.Scope, quoteID, itemID int64) (Quote, error) {
	return s.mutateDraft(ctx, scope, quoteID, func(ctx context.Context, tx TxRepository, q *Quote) error {
		idx := q.itemIndex(itemID)
		if idx < 0 {
			return fmt.Errorf("item %d: %w", itemID, shared.ErrNotFound)
		}
		if err := tx.DeleteItem(ctx, itemID); err != nil {
			return fmt.Errorf("delete item: %w", err)
		}
		q.Items = append(q.Items[:idx], q.Items[idx+1:]...)
		return nil
	})
}

// AddRubro appends a cost line to an item of a draft.
func (s *Service) AddRubro(ctx context.Context, scope shared.Scope, quoteID, itemID int64, input RubroInput) (Quote, error) {
	if err := shared.ValidateStruct(s.validate, input); err != nil {
		return Quote{}, err
	}
	return s.mutateDraft(ctx, scope, quoteID, func(ctx context.Context, tx TxRepository, q *Quote) error {
		idx := q.itemIndex(itemID)
		if idx < 0 {
			return fmt.Errorf("item %d: %w", itemID, shared.ErrNotFound)
		}
		r := Rubro{
			ItemID:      itemID,
			Category:    input.Category,
			Description: input.Description,
			Quantity:    input.Quantity,
			Unit:        input.Unit,
			UnitPrice:   input.UnitPrice,
		}
		r.Total = RubroTotal(r)
		id, err := tx.InsertRubro(ctx, r)
		if err != nil {
			return fmt.Errorf("insert rubro: %w", err)
		}
		r.ID = id
		q.Items[idx].Rubros = append(q.Items[idx].Rubros, r)
		return nil
	})
}

// UpdateRubro edits a cost line of a draft.
func (s *Service) UpdateRubro(ctx context.Context, scope shared.Scope, quoteID, rubroID int64, patch RubroPatch) (Quote, error) {
	if err := shared.ValidateStruct(s.validate, patch); err != nil {
		return Quote{}, err
	}
	return s.mutateDraft(ctx, scope, quoteID, func(ctx context.Context, tx TxRepository, q *Quote) error {
		i, j := q.rubroIndex(rubroID)
		if i < 0 {
			return fmt.Errorf("rubro %d: %w", rubroID, shared.ErrNotFound)
		}
		r := &q.Items[i].Rubros[j]
		if patch.Category != nil {
			r.Category = *patch.Category
		}
		if patch.Description != nil {
			r.Description = *patch.Description
		}
		if patch.Quantity != nil {
			r.Quantity = *patch.Quantity
		}
		if patch.Unit != nil {
			r.Unit = *patch.Unit
		}
		if patch.UnitPrice != nil {
			r.UnitPrice = *patch.UnitPrice
		}
		r.Total = RubroTotal(*r)
		return tx.UpdateRubro(ctx, *r)
	})
}

// DeleteRubro removes a cost line from a draft.
func (s *Service) DeleteRubro(ctx context.Context, scope shared.Scope, quoteID, rubroID int64) (Quote, error) {
	return s.mutateDraft(ctx, scope, quoteID, func(ctx context.Context, tx TxRepository, q *Quote) error {
		i, j := q.rubroIndex(rubroID)
		if i < 0 {
			return fmt.Errorf("rubro %d: %w", rubroID, shared.ErrNotFound)
		}
		if err := tx.DeleteRubro(ctx, rubroID); err != nil {
			return fmt.Errorf("delete rubro: %w", err)
		}
		rubros := q.Items[i].Rubros
		q.Items[i].Rubros = append(rubros[:j], rubros[j+1:]...)
		return nil
	})
}

// mutateDraft locks the quote, applies fn and persists the recomputed
// subtotals, cost and margin in the same transaction.
func (s *Service) mutateDraft(ctx context.Context, scope shared.Scope, quoteID int64, fn func(context.Context, TxRepository, *Quote) error) (Quote, error) {
	if err := scope.Validate(); err != nil {
		return Quote{}, err
	}
	var out Quote
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetForUpdate(ctx, scope.WorkspaceID, quoteID)
		if err != nil {
			return err
		}
		if _, err := Transition(q.Status, ActionEdit); err != nil {
			return err
		}
		if err := fn(ctx, tx, &q); err != nil {
			return err
		}
		Recalculate(&q)
		q.UpdatedAt = s.now()
		if err := tx.SaveTotals(ctx, q); err != nil {
			return fmt.Errorf("save totals: %w", err)
		}
		out = q
		return nil
	})
	if err != nil {
		return Quote{}, err
	}
	return out, nil
}

func requireDetailed(q Quote) error {
	if q.Mode != ModeDetailed {
		return shared.Validation("items require a detailed quote")
	}
	return nil
}

// nextPosition places a new item after every existing one, including when
// earlier deletes left gaps.
func (q Quote) nextPosition() int {
	next := 0
	for _, item := range q.Items {
		if item.Position >= next {
			next = item.Position + 1
		}
	}
	return next
}

func (q Quote) itemIndex(itemID int64) int {
	for i, item := range q.Items {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}

func (q Quote) rubroIndex(rubroID int64) (int, int) {
	for i, item := range q.Items {
		for j, r := range item.Rubros {
			if r.ID == rubroID {
				return i, j
			}
		}
	}
	return -1, -1
}

// nextConsecutive never fails: when the sequence is unavailable the quote gets
// a placeholder and the failure is logged.
func (s *Service) nextConsecutive(ctx context.Context, workspaceID uuid.UUID) string {
	if s.seq != nil {
		consecutive, err := s.seq.Next(ctx, workspaceID)
		if err == nil {
			return consecutive
		}
		s.logger.Warn("quote sequence unavailable, using placeholder", slog.Any("error", err))
	}
	return PlaceholderConsecutive()
}

// PlaceholderConsecutive is assigned when no sequence number could be issued.
func PlaceholderConsecutive() string {
	return "COT-TMP-" + uuid.NewString()[:8]
}

func (s *Service) notifySent(ctx context.Context, q Quote) {
	if s.notifier == nil || q.ValidUntil == nil {
		return
	}
	event := SentEvent{
		WorkspaceID:   q.WorkspaceID,
		QuoteID:       q.ID,
		OpportunityID: q.OpportunityID,
		Consecutive:   q.Consecutive,
		Total:         q.Total,
		ValidUntil:    *q.ValidUntil,
	}
	if err := s.notifier.QuoteSent(ctx, event); err != nil {
		s.logger.Warn("enqueue quote sent notification", slog.Any("error", err), slog.Int64("quote_id", q.ID))
	}
}

func (s *Service) record(action Action, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.QuoteTransition(string(action), Outcome(err))
}

// Outcome classifies an operation result for metrics labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, shared.ErrConflict), errors.Is(err, shared.ErrIdempotencyConflict):
		return "conflict"
	case errors.Is(err, shared.ErrValidation):
		return "invalid"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
