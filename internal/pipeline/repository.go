package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/comercia/comercia/internal/counterparties"
	"github.com/comercia/comercia/internal/platform/db"
	"github.com/comercia/comercia/internal/shared"
)

// Repository is the persistence port used by Service.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, workspaceID uuid.UUID, id int64) (Opportunity, error)
	Create(ctx context.Context, o Opportunity) (int64, error)
	GetProject(ctx context.Context, workspaceID uuid.UUID, opportunityID int64) (Project, error)
}

// TxRepository exposes the locked writes of a stage change.
type TxRepository interface {
	LockOpportunity(ctx context.Context, workspaceID uuid.UUID, id int64) (Opportunity, error)
	UpdateStage(ctx context.Context, change StageChange) error
	InsertProject(ctx context.Context, p Project) (int64, error)
	InsertBudgetLine(ctx context.Context, line BudgetLine) (int64, error)
}

// StageChange is a conditional stage update: it applies only while the row is
// still in From.
type StageChange struct {
	OpportunityID int64
	From          Stage
	To            Stage
	LossReason    *LossReason
	LossNote      *string
	Action        string
	At            time.Time
}

const projectsOpportunityKey = "projects_opportunity_id_key"

// PGRepository is the PostgreSQL implementation of Repository.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx runs fn in one read-committed transaction. Callers lock the
// opportunity row first.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTxIso(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, projectsOpportunityKey):
		return shared.Conflict("opportunity already has a project", "")
	case db.IsConcurrencyFailure(err):
		return shared.Conflict("opportunity changed concurrently, retry", "")
	default:
		return err
	}
}

const opportunityColumns = `id, workspace_id, contact_id, company_id, description, estimated_value, stage,
	loss_reason, loss_note, last_action, last_action_at, created_at, updated_at`

func scanOpportunity(row pgx.Row) (Opportunity, error) {
	var o Opportunity
	err := row.Scan(&o.ID, &o.WorkspaceID, &o.ContactID, &o.CompanyID, &o.Description, &o.EstimatedValue, &o.Stage,
		&o.LossReason, &o.LossNote, &o.LastAction, &o.LastActionAt, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func getOpportunity(ctx context.Context, q db.Querier, workspaceID uuid.UUID, id int64, forUpdate bool) (Opportunity, error) {
	query := `SELECT ` + opportunityColumns + ` FROM opportunities WHERE workspace_id = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	o, err := scanOpportunity(q.QueryRow(ctx, query, workspaceID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Opportunity{}, fmt.Errorf("opportunity %d: %w", id, shared.ErrNotFound)
	}
	return o, err
}

func (r *PGRepository) Get(ctx context.Context, workspaceID uuid.UUID, id int64) (Opportunity, error) {
	return getOpportunity(ctx, r.pool, workspaceID, id, false)
}

func (r *PGRepository) Create(ctx context.Context, o Opportunity) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO opportunities (workspace_id, contact_id, company_id, description, estimated_value, stage, last_action, last_action_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		o.WorkspaceID, o.ContactID, o.CompanyID, o.Description, o.EstimatedValue, o.Stage, o.LastAction, o.LastActionAt, o.CreatedAt, o.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert opportunity: %w", err)
	}
	return id, nil
}

func (r *PGRepository) GetProject(ctx context.Context, workspaceID uuid.UUID, opportunityID int64) (Project, error) {
	var (
		p         Project
		companyID *int64
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, workspace_id, opportunity_id, quote_id, company_id, contact_id, name, total_budget,
		       estimated_profit, estimated_margin, estimated_retention, estimated_hours, created_at
		FROM projects WHERE workspace_id = $1 AND opportunity_id = $2`, workspaceID, opportunityID).
		Scan(&p.ID, &p.WorkspaceID, &p.OpportunityID, &p.QuoteID, &companyID, &p.ContactID, &p.Name, &p.TotalBudget,
			&p.EstimatedProfit, &p.EstimatedMargin, &p.EstimatedRetention, &p.EstimatedHours, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, fmt.Errorf("project for opportunity %d: %w", opportunityID, shared.ErrNotFound)
		}
		return Project{}, err
	}
	switch {
	case companyID != nil:
		p.Counterparty = counterparties.Ref{Kind: counterparties.KindCompany, ID: *companyID}
	case p.ContactID != nil:
		p.Counterparty = counterparties.Ref{Kind: counterparties.KindContact, ID: *p.ContactID}
	}

	rows, err := r.pool.Query(ctx, `SELECT id, project_id, category, description, amount FROM project_budget_lines WHERE project_id = $1 ORDER BY id`, p.ID)
	if err != nil {
		return Project{}, err
	}
	p.BudgetLines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (BudgetLine, error) {
		var l BudgetLine
		err := row.Scan(&l.ID, &l.ProjectID, &l.Category, &l.Description, &l.Amount)
		return l, err
	})
	if err != nil {
		return Project{}, err
	}
	return p, nil
}

func (t *txRepo) LockOpportunity(ctx context.Context, workspaceID uuid.UUID, id int64) (Opportunity, error) {
	return getOpportunity(ctx, t.tx, workspaceID, id, true)
}

func (t *txRepo) UpdateStage(ctx context.Context, c StageChange) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE opportunities
		SET stage = $3, loss_reason = $4, loss_note = $5, last_action = $6, last_action_at = $7, updated_at = $7
		WHERE id = $1 AND stage = $2`,
		c.OpportunityID, c.From, c.To, c.LossReason, c.LossNote, c.Action, c.At)
	if err != nil {
		return fmt.Errorf("update stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.Conflict(fmt.Sprintf("opportunity is no longer %s", c.From), "")
	}
	return nil
}

func (t *txRepo) InsertProject(ctx context.Context, p Project) (int64, error) {
	var companyID *int64
	if p.Counterparty.Kind == counterparties.KindCompany {
		companyID = &p.Counterparty.ID
	}
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO projects (workspace_id, opportunity_id, quote_id, company_id, contact_id, name, total_budget,
		                      estimated_profit, estimated_margin, estimated_retention, estimated_hours, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		p.WorkspaceID, p.OpportunityID, p.QuoteID, companyID, p.ContactID, p.Name, p.TotalBudget,
		p.EstimatedProfit, p.EstimatedMargin, p.EstimatedRetention, p.EstimatedHours, p.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert project: %w", err)
	}
	return id, nil
}

func (t *txRepo) InsertBudgetLine(ctx context.Context, line BudgetLine) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO project_budget_lines (project_id, category, description, amount) VALUES ($1, $2, $3, $4) RETURNING id`,
		line.ProjectID, line.Category, line.Description, line.Amount).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert budget line: %w", err)
	}
	return id, nil
}
