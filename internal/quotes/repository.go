package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/comercia/comercia/internal/platform/db"
	"github.com/comercia/comercia/internal/shared"
)

const (
	sentIndex    = "quotes_one_sent_per_opportunity"
	projectQuote = "projects_quote_id_fkey"
)

// Repository is the persistence port used by Service.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, workspaceID uuid.UUID, id int64) (Quote, error)
	ListByOpportunity(ctx context.Context, workspaceID uuid.UUID, opportunityID int64) ([]Quote, error)
	FindSent(ctx context.Context, workspaceID uuid.UUID, opportunityID int64) (*Quote, error)
	GetCatalogItem(ctx context.Context, workspaceID uuid.UUID, id int64) (CatalogItem, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	LockOpportunity(ctx context.Context, workspaceID uuid.UUID, opportunityID int64) error
	GetForUpdate(ctx context.Context, workspaceID uuid.UUID, id int64) (Quote, error)
	FindSent(ctx context.Context, workspaceID uuid.UUID, opportunityID int64) (*Quote, error)
	Create(ctx context.Context, q Quote) (int64, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	InsertRubro(ctx context.Context, r Rubro) (int64, error)
	UpdateRubro(ctx context.Context, r Rubro) error
	DeleteRubro(ctx context.Context, id int64) error
	DeleteItem(ctx context.Context, id int64) error
	SaveTotals(ctx context.Context, q Quote) error
	UpdateStatus(ctx context.Context, id int64, from, to Status, sentAt, validUntil *time.Time) error
	Delete(ctx context.Context, id int64) error
}

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

// WithTx runs fn in a read-committed transaction; rows that guard invariants
// are locked explicitly.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTxIso(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
	return mapWriteError(err)
}

func mapWriteError(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, sentIndex):
		return shared.Conflict(reasonSentExists, "")
	case db.IsForeignKeyViolation(err, projectQuote):
		return shared.Conflict(reasonGovernsProject, "")
	case db.IsConcurrencyFailure(err):
		return shared.Conflict("quote changed concurrently, retry", "")
	default:
		return err
	}
}

func (r *PGRepository) Get(ctx context.Context, workspaceID uuid.UUID, id int64) (Quote, error) {
	return loadQuote(ctx, r.pool, workspaceID, id, false)
}

func (r *PGRepository) FindSent(ctx context.Context, workspaceID uuid.UUID, opportunityID int64) (*Quote, error) {
	return findSent(ctx, r.pool, workspaceID, opportunityID)
}

func (r *PGRepository) ListByOpportunity(ctx context.Context, workspaceID uuid.UUID, opportunityID int64) ([]Quote, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM quotes WHERE workspace_id = $1 AND opportunity_id = $2 ORDER BY created_at DESC, id DESC`, workspaceID, opportunityID)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	quotes := make([]Quote, 0, len(ids))
	for _, id := range ids {
		q, err := loadQuote(ctx, r.pool, workspaceID, id, false)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

func (r *PGRepository) GetCatalogItem(ctx context.Context, workspaceID uuid.UUID, id int64) (CatalogItem, error) {
	var (
		ci       CatalogItem
		template []byte
	)
	err := r.pool.QueryRow(ctx, `SELECT id, workspace_id, name, price, rubro_template FROM catalog_items WHERE workspace_id = $1 AND id = $2`, workspaceID, id).
		Scan(&ci.ID, &ci.WorkspaceID, &ci.Name, &ci.Price, &template)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CatalogItem{}, fmt.Errorf("catalog item %d: %w", id, shared.ErrNotFound)
		}
		return CatalogItem{}, err
	}
	if len(template) > 0 {
		if err := json.Unmarshal(template, &ci.Rubros); err != nil {
			return CatalogItem{}, fmt.Errorf("decode rubro template: %w", err)
		}
	}
	return ci, nil
}

func (t *txRepo) LockOpportunity(ctx context.Context, workspaceID uuid.UUID, opportunityID int64) error {
	var id int64
	err := t.tx.QueryRow(ctx, `SELECT id FROM opportunities WHERE workspace_id = $1 AND id = $2 FOR UPDATE`, workspaceID, opportunityID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("opportunity %d: %w", opportunityID, shared.ErrNotFound)
	}
	return err
}

func (t *txRepo) GetForUpdate(ctx context.Context, workspaceID uuid.UUID, id int64) (Quote, error) {
	return loadQuote(ctx, t.tx, workspaceID, id, true)
}

func (t *txRepo) FindSent(ctx context.Context, workspaceID uuid.UUID, opportunityID int64) (*Quote, error) {
	return findSent(ctx, t.tx, workspaceID, opportunityID)
}

func (t *txRepo) Create(ctx context.Context, q Quote) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO quotes (workspace_id, opportunity_id, mode, status, description, total, cost_total, margin_pct, consecutive, duplicated_from, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		q.WorkspaceID, q.OpportunityID, q.Mode, q.Status, q.Description, q.Total, q.CostTotal, q.MarginPct, q.Consecutive, q.DuplicatedFrom, q.CreatedAt, q.UpdatedAt,
	).Scan(&id)
	return id, err
}

func (t *txRepo) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO quote_items (quote_id, name, position, subtotal) VALUES ($1, $2, $3, $4) RETURNING id`,
		item.QuoteID, item.Name, item.Position, item.Subtotal).Scan(&id)
	return id, err
}

func (t *txRepo) InsertRubro(ctx context.Context, r Rubro) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO quote_rubros (item_id, category, description, quantity, unit, unit_price, total)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		r.ItemID, r.Category, r.Description, r.Quantity, r.Unit, r.UnitPrice, RubroTotal(r)).Scan(&id)
	return id, err
}

func (t *txRepo) UpdateRubro(ctx context.Context, r Rubro) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE quote_rubros SET category = $2, description = $3, quantity = $4, unit = $5, unit_price = $6, total = $7
		WHERE id = $1`,
		r.ID, r.Category, r.Description, r.Quantity, r.Unit, r.UnitPrice, RubroTotal(r))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rubro %d: %w", r.ID, shared.ErrNotFound)
	}
	return nil
}

func (t *txRepo) DeleteRubro(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM quote_rubros WHERE id = $1`, id)
	return err
}

func (t *txRepo) DeleteItem(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM quote_items WHERE id = $1`, id)
	return err
}

func (t *txRepo) SaveTotals(ctx context.Context, q Quote) error {
	batch := &pgx.Batch{}
	batch.Queue(`UPDATE quotes SET description = $2, total = $3, cost_total = $4, margin_pct = $5, updated_at = NOW() WHERE id = $1`,
		q.ID, q.Description, q.Total, q.CostTotal, q.MarginPct)
	for _, item := range q.Items {
		batch.Queue(`UPDATE quote_items SET name = $2, position = $3, subtotal = $4 WHERE id = $1`, item.ID, item.Name, item.Position, item.Subtotal)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, from, to Status, sentAt, validUntil *time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE quotes
		SET status = $3,
		    sent_at = COALESCE($4, sent_at),
		    valid_until = COALESCE($5, valid_until),
		    updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		id, from, to, sentAt, validUntil)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.Conflict(fmt.Sprintf("quote is no longer %s", from), "")
	}
	return nil
}

func (t *txRepo) Delete(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM quotes WHERE id = $1`, id)
	return mapWriteError(err)
}

const quoteColumns = `id, workspace_id, opportunity_id, mode, status, description, total, cost_total, margin_pct,
	consecutive, sent_at, valid_until, duplicated_from, created_at, updated_at`

func scanQuote(row pgx.Row) (Quote, error) {
	var q Quote
	err := row.Scan(
		&q.ID, &q.WorkspaceID, &q.OpportunityID, &q.Mode, &q.Status, &q.Description, &q.Total, &q.CostTotal, &q.MarginPct,
		&q.Consecutive, &q.SentAt, &q.ValidUntil, &q.DuplicatedFrom, &q.CreatedAt, &q.UpdatedAt,
	)
	return q, err
}

func findSent(ctx context.Context, q db.Querier, workspaceID uuid.UUID, opportunityID int64) (*Quote, error) {
	quote, err := scanQuote(q.QueryRow(ctx,
		`SELECT `+quoteColumns+` FROM quotes WHERE workspace_id = $1 AND opportunity_id = $2 AND status = 'sent' LIMIT 1`,
		workspaceID, opportunityID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &quote, nil
}

func loadQuote(ctx context.Context, q db.Querier, workspaceID uuid.UUID, id int64, forUpdate bool) (Quote, error) {
	query := `SELECT ` + quoteColumns + ` FROM quotes WHERE workspace_id = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	quote, err := scanQuote(q.QueryRow(ctx, query, workspaceID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quote{}, fmt.Errorf("quote %d: %w", id, shared.ErrNotFound)
		}
		return Quote{}, err
	}

	rows, err := q.Query(ctx, `SELECT id, quote_id, name, position, subtotal FROM quote_items WHERE quote_id = $1 ORDER BY position, id`, id)
	if err != nil {
		return Quote{}, err
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) {
		var item Item
		err := row.Scan(&item.ID, &item.QuoteID, &item.Name, &item.Position, &item.Subtotal)
		return item, err
	})
	if err != nil {
		return Quote{}, err
	}

	rows, err = q.Query(ctx, `
		SELECT r.id, r.item_id, r.category, r.description, r.quantity, r.unit, r.unit_price, r.total
		FROM quote_rubros r
		JOIN quote_items i ON i.id = r.item_id
		WHERE i.quote_id = $1
		ORDER BY r.id`, id)
	if err != nil {
		return Quote{}, err
	}
	rubros, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Rubro, error) {
		var r Rubro
		err := row.Scan(&r.ID, &r.ItemID, &r.Category, &r.Description, &r.Quantity, &r.Unit, &r.UnitPrice, &r.Total)
		return r, err
	})
	if err != nil {
		return Quote{}, err
	}

	byItem := make(map[int64]int, len(items))
	for i := range items {
		byItem[items[i].ID] = i
	}
	for _, r := range rubros {
		if idx, ok := byItem[r.ItemID]; ok {
			items[idx].Rubros = append(items[idx].Rubros, r)
		}
	}
	quote.Items = items
	return quote, nil
}
