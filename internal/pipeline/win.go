package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/comercia/comercia/internal/counterparties"
	"github.com/comercia/comercia/internal/quotes"
	"github.com/comercia/comercia/internal/shared"
)

// Win closes an opportunity as won. It applies the optional fiscal patch,
// checks the counterparty is complete and then, in one transaction, marks the
// opportunity won and creates its project with budget lines. An incomplete
// counterparty is reported through WinResult.NeedsFiscalData with a nil error
// and nothing else changes.
func (s *Service) Win(ctx context.Context, scope shared.Scope, opportunityID int64, patch *counterparties.FiscalPatch) (WinResult, error) {
	res, err := s.win(ctx, scope, opportunityID, patch)
	switch {
	case err != nil:
		s.recordWin(winOutcome(err))
	case res.NeedsFiscalData != nil:
		s.recordWin("needs_fiscal_data")
	default:
		s.recordWin("won")
	}
	return res, err
}

func (s *Service) win(ctx context.Context, scope shared.Scope, opportunityID int64, patch *counterparties.FiscalPatch) (WinResult, error) {
	if err := scope.Validate(); err != nil {
		return WinResult{}, err
	}
	opp, err := s.repo.Get(ctx, scope.WorkspaceID, opportunityID)
	if err != nil {
		return WinResult{}, err
	}
	if opp.Stage.Terminal() {
		return WinResult{}, shared.Conflict(fmt.Sprintf("opportunity is already %s", opp.Stage), "")
	}
	ref, ok := opp.Counterparty()
	if !ok {
		return WinResult{}, shared.Validation("opportunity %d has no counterparty", opp.ID)
	}

	if patch != nil {
		if _, err := s.counterparties.ApplyFiscalPatch(ctx, scope, ref, *patch); err != nil {
			return WinResult{}, fmt.Errorf("apply fiscal patch: %w", err)
		}
	}

	var (
		party     counterparties.Counterparty
		quoteList []quotes.Quote
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		party, err = s.counterparties.Get(gctx, scope, ref)
		return err
	})
	g.Go(func() error {
		var err error
		quoteList, err = s.quotes.List(gctx, scope, opp.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return WinResult{}, err
	}

	if missing := party.Missing(); len(missing) > 0 {
		return WinResult{
			Opportunity:     &opp,
			NeedsFiscalData: &FiscalGap{Counterparty: ref, Missing: missing},
		}, nil
	}

	project := PlanProject(opp, ref, SelectQuote(quoteList))
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockOpportunity(ctx, scope.WorkspaceID, opp.ID)
		if err != nil {
			return err
		}
		to, err := Transition(locked.Stage, ActionWin)
		if err != nil {
			return err
		}
		now := s.now()
		desc := lastAction(ActionWin, to)
		if err := tx.UpdateStage(ctx, StageChange{
			OpportunityID: locked.ID,
			From:          locked.Stage,
			To:            to,
			Action:        desc,
			At:            now,
		}); err != nil {
			return err
		}
		project.CreatedAt = now
		project.ID, err = tx.InsertProject(ctx, project)
		if err != nil {
			return err
		}
		for i := range project.BudgetLines {
			line := &project.BudgetLines[i]
			line.ProjectID = project.ID
			if line.ID, err = tx.InsertBudgetLine(ctx, *line); err != nil {
				return err
			}
		}
		locked.Stage = to
		locked.LastAction = &desc
		locked.LastActionAt = &now
		locked.UpdatedAt = now
		opp = locked
		return nil
	})
	if err != nil {
		return WinResult{}, err
	}

	s.logger.Info("opportunity won",
		slog.Int64("opportunity_id", opp.ID),
		slog.Int64("project_id", project.ID),
		slog.Float64("budget", project.TotalBudget))
	s.recordAudit(ctx, scope, ActionWin, opp.ID, map[string]any{
		"project_id":   project.ID,
		"total_budget": project.TotalBudget,
	})
	s.notifyProject(ctx, project)
	return WinResult{Opportunity: &opp, Project: &project}, nil
}

// SelectQuote picks the quote governing a won deal: the accepted one when
// there is one, otherwise the most recently created quote in any status.
// quoteList is ordered newest first. Nil means there are no quotes.
func SelectQuote(quoteList []quotes.Quote) *quotes.Quote {
	for i := range quoteList {
		if quoteList[i].Status == quotes.StatusAccepted {
			return &quoteList[i]
		}
	}
	if len(quoteList) == 0 {
		return nil
	}
	latest := &quoteList[0]
	for i := range quoteList[1:] {
		q := &quoteList[i+1]
		if q.CreatedAt.After(latest.CreatedAt) {
			latest = q
		}
	}
	return latest
}

// PlanProject snapshots the financials of a won deal. Profit, margin and
// retention are left for the project team to estimate.
func PlanProject(opp Opportunity, ref counterparties.Ref, q *quotes.Quote) Project {
	p := Project{
		WorkspaceID:   opp.WorkspaceID,
		OpportunityID: opp.ID,
		Counterparty:  ref,
		ContactID:     opp.ContactID,
		Name:          projectName(opp, q),
		TotalBudget:   opp.EstimatedValue,
	}
	if q == nil {
		p.BudgetLines = []BudgetLine{generalLine("Presupuesto estimado", p.TotalBudget)}
		return p
	}
	quoteID := q.ID
	p.QuoteID = &quoteID
	p.TotalBudget = q.Total
	if q.Mode != quotes.ModeDetailed {
		desc := "Presupuesto general"
		if q.Description != nil && *q.Description != "" {
			desc = *q.Description
		}
		p.BudgetLines = []BudgetLine{generalLine(desc, p.TotalBudget)}
		return p
	}
	p.EstimatedHours = quotes.LaborHours(q.Items)
	p.BudgetLines = make([]BudgetLine, 0, len(q.Items))
	for _, item := range q.Items {
		category := BudgetGeneral
		if len(item.Rubros) > 0 {
			category = BudgetCategoryFor(item.Rubros[0].Category)
		}
		p.BudgetLines = append(p.BudgetLines, BudgetLine{
			Category:    category,
			Description: item.Name,
			Amount:      quotes.ItemSubtotal(item),
		})
	}
	if len(p.BudgetLines) == 0 {
		p.BudgetLines = []BudgetLine{generalLine("Presupuesto general", p.TotalBudget)}
	}
	return p
}

func generalLine(desc string, amount float64) BudgetLine {
	return BudgetLine{Category: BudgetGeneral, Description: desc, Amount: amount}
}

func projectName(opp Opportunity, q *quotes.Quote) string {
	if opp.Description != "" {
		return opp.Description
	}
	if q != nil {
		return "Proyecto " + q.Consecutive
	}
	return fmt.Sprintf("Proyecto oportunidad %d", opp.ID)
}

func (s *Service) notifyProject(ctx context.Context, p Project) {
	if s.notifier == nil {
		return
	}
	event := ProjectCreatedEvent{
		WorkspaceID:    p.WorkspaceID,
		ProjectID:      p.ID,
		OpportunityID:  p.OpportunityID,
		Name:           p.Name,
		TotalBudget:    p.TotalBudget,
		EstimatedHours: p.EstimatedHours,
	}
	if err := s.notifier.ProjectCreated(ctx, event); err != nil {
		s.logger.Warn("enqueue project created notification", slog.Any("error", err), slog.Int64("project_id", p.ID))
	}
}
