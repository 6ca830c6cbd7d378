package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/comercia/comercia/internal/counterparties"
	"github.com/comercia/comercia/internal/quotes"
	"github.com/comercia/comercia/internal/shared"
)

// QuotePort is the slice of the quote service the pipeline needs.
type QuotePort interface {
	Get(ctx context.Context, scope shared.Scope, id int64) (quotes.Quote, error)
	List(ctx context.Context, scope shared.Scope, opportunityID int64) ([]quotes.Quote, error)
	Accept(ctx context.Context, scope shared.Scope, id int64) (quotes.Quote, error)
}

// CounterpartyPort reads and completes counterparty fiscal data.
type CounterpartyPort interface {
	Get(ctx context.Context, scope shared.Scope, ref counterparties.Ref) (counterparties.Counterparty, error)
	ValidatePatch(patch counterparties.FiscalPatch) error
	ApplyFiscalPatch(ctx context.Context, scope shared.Scope, ref counterparties.Ref, patch counterparties.FiscalPatch) (counterparties.Counterparty, error)
}

// Notifier is told about projects created by a win.
type Notifier interface {
	ProjectCreated(ctx context.Context, event ProjectCreatedEvent) error
}

// Recorder counts win attempts by outcome.
type Recorder interface {
	WinOutcome(outcome string)
}

// Auditor keeps the trail of stage changes.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ProjectCreatedEvent describes a freshly won deal.
type ProjectCreatedEvent struct {
	WorkspaceID    uuid.UUID `json:"workspace_id"`
	ProjectID      int64     `json:"project_id"`
	OpportunityID  int64     `json:"opportunity_id"`
	Name           string    `json:"name"`
	TotalBudget    float64   `json:"total_budget"`
	EstimatedHours float64   `json:"estimated_hours"`
}

// Options carries the optional collaborators of Service.
type Options struct {
	Notifier Notifier
	Metrics  Recorder
	Audit    Auditor
	Logger   *slog.Logger
	Now      func() time.Time
}

// Service runs the opportunity stage machine.
type Service struct {
	repo           Repository
	quotes         QuotePort
	counterparties CounterpartyPort
	notifier       Notifier
	metrics        Recorder
	audit          Auditor
	logger         *slog.Logger
	validate       *validator.Validate
	now            func() time.Time
}

// NewService constructs the pipeline service.
func NewService(repo Repository, quoteSvc QuotePort, parties CounterpartyPort, opts Options) *Service {
	s := &Service{
		repo:           repo,
		quotes:         quoteSvc,
		counterparties: parties,
		notifier:       opts.Notifier,
		metrics:        opts.Metrics,
		audit:          opts.Audit,
		logger:         opts.Logger,
		validate:       shared.NewValidator(),
		now:            opts.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Create opens an opportunity in the initial stage.
func (s *Service) Create(ctx context.Context, scope shared.Scope, req CreateOpportunityRequest) (Opportunity, error) {
	if err := scope.Validate(); err != nil {
		return Opportunity{}, err
	}
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return Opportunity{}, err
	}
	if req.ContactID == nil && req.CompanyID == nil {
		return Opportunity{}, shared.Validation("an opportunity needs a contact or a company")
	}
	now := s.now()
	action := "Oportunidad creada"
	o := Opportunity{
		WorkspaceID:    scope.WorkspaceID,
		ContactID:      req.ContactID,
		CompanyID:      req.CompanyID,
		Description:    req.Description,
		EstimatedValue: req.EstimatedValue,
		Stage:          StageNew,
		LastAction:     &action,
		LastActionAt:   &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	id, err := s.repo.Create(ctx, o)
	if err != nil {
		return Opportunity{}, err
	}
	o.ID = id
	return o, nil
}

// Get returns an opportunity of the caller's workspace.
func (s *Service) Get(ctx context.Context, scope shared.Scope, id int64) (Opportunity, error) {
	if err := scope.Validate(); err != nil {
		return Opportunity{}, err
	}
	return s.repo.Get(ctx, scope.WorkspaceID, id)
}

// Project returns the project created when the opportunity was won.
func (s *Service) Project(ctx context.Context, scope shared.Scope, opportunityID int64) (Project, error) {
	if err := scope.Validate(); err != nil {
		return Project{}, err
	}
	return s.repo.GetProject(ctx, scope.WorkspaceID, opportunityID)
}

// Advance moves an opportunity exactly one stage forward.
func (s *Service) Advance(ctx context.Context, scope shared.Scope, id int64) (Opportunity, error) {
	if err := scope.Validate(); err != nil {
		return Opportunity{}, err
	}
	return s.changeStage(ctx, scope, id, ActionAdvance, nil, nil)
}

// Lose closes an opportunity as lost with a reason from the closed list.
func (s *Service) Lose(ctx context.Context, scope shared.Scope, id int64, req LoseRequest) (Opportunity, error) {
	if err := scope.Validate(); err != nil {
		return Opportunity{}, err
	}
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return Opportunity{}, err
	}
	reason := req.Reason
	return s.changeStage(ctx, scope, id, ActionLose, &reason, req.Note)
}

func (s *Service) changeStage(ctx context.Context, scope shared.Scope, id int64, action Action, reason *LossReason, note *string) (Opportunity, error) {
	var out Opportunity
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.LockOpportunity(ctx, scope.WorkspaceID, id)
		if err != nil {
			return err
		}
		to, err := Transition(o.Stage, action)
		if err != nil {
			return err
		}
		now := s.now()
		desc := lastAction(action, to)
		if err := tx.UpdateStage(ctx, StageChange{
			OpportunityID: o.ID,
			From:          o.Stage,
			To:            to,
			LossReason:    reason,
			LossNote:      note,
			Action:        desc,
			At:            now,
		}); err != nil {
			return err
		}
		o.Stage = to
		o.LossReason = reason
		o.LossNote = note
		o.LastAction = &desc
		o.LastActionAt = &now
		o.UpdatedAt = now
		out = o
		return nil
	})
	if err != nil {
		return Opportunity{}, err
	}
	meta := map[string]any{"stage": string(out.Stage)}
	if reason != nil {
		meta["loss_reason"] = string(*reason)
	}
	s.recordAudit(ctx, scope, action, out.ID, meta)
	return out, nil
}

// AcceptResult pairs an accepted quote with the win it triggered.
type AcceptResult struct {
	Quote quotes.Quote `json:"quote"`
	WinResult
}

// AcceptQuote accepts a sent quote and wins its opportunity. When the
// counterparty's fiscal data is incomplete the quote stays accepted and the
// result asks for the missing fields; a later Win completes the deal.
func (s *Service) AcceptQuote(ctx context.Context, scope shared.Scope, quoteID int64, patch *counterparties.FiscalPatch) (AcceptResult, error) {
	if err := scope.Validate(); err != nil {
		return AcceptResult{}, err
	}
	q, err := s.quotes.Get(ctx, scope, quoteID)
	if err != nil {
		return AcceptResult{}, err
	}
	o, err := s.repo.Get(ctx, scope.WorkspaceID, q.OpportunityID)
	if err != nil {
		return AcceptResult{}, err
	}
	if o.Stage.Terminal() {
		return AcceptResult{}, shared.Conflict(fmt.Sprintf("opportunity is already %s", o.Stage), "")
	}
	if patch != nil {
		if err := s.counterparties.ValidatePatch(*patch); err != nil {
			return AcceptResult{}, err
		}
	}
	accepted, err := s.quotes.Accept(ctx, scope, quoteID)
	if err != nil {
		return AcceptResult{}, err
	}
	res, err := s.Win(ctx, scope, accepted.OpportunityID, patch)
	if err != nil {
		return AcceptResult{Quote: accepted}, fmt.Errorf("quote %s accepted but win failed: %w", accepted.Consecutive, err)
	}
	return AcceptResult{Quote: accepted, WinResult: res}, nil
}

func (s *Service) recordAudit(ctx context.Context, scope shared.Scope, action Action, opportunityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{
		WorkspaceID: scope.WorkspaceID,
		ActorID:     scope.ActorID,
		Action:      "opportunity." + string(action),
		Entity:      "opportunity",
		EntityID:    strconv.FormatInt(opportunityID, 10),
		Meta:        meta,
		At:          s.now(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("record audit log", slog.Any("error", err), slog.String("action", entry.Action))
	}
}

func (s *Service) recordWin(outcome string) {
	if s.metrics != nil {
		s.metrics.WinOutcome(outcome)
	}
}

func winOutcome(err error) string {
	switch {
	case err == nil:
		return "won"
	case errors.Is(err, shared.ErrConflict):
		return "conflict"
	case errors.Is(err, shared.ErrValidation):
		return "invalid"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
