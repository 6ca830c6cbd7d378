package counterparties

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/comercia/comercia/internal/fiscal"
	"github.com/comercia/comercia/internal/platform/db"
	"github.com/comercia/comercia/internal/shared"
)

// Repository persists counterparty fiscal records.
type Repository interface {
	Get(ctx context.Context, workspaceID uuid.UUID, ref Ref) (Counterparty, error)
	ApplyFiscalPatch(ctx context.Context, workspaceID uuid.UUID, ref Ref, patch FiscalPatch) (Counterparty, error)
}

// PGRepository reads and writes the companies and contacts tables.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func table(kind Kind) (string, error) {
	switch kind {
	case KindCompany:
		return "companies", nil
	case KindContact:
		return "contacts", nil
	default:
		return "", shared.Validation("unknown counterparty kind %q", kind)
	}
}

const fiscalColumns = `id, workspace_id, name, document_number, document_type, person_type, regime,
	autorretenedor, gran_contribuyente, agente_retenedor, responsable_iva, ica_activity_code, ica_rate`

func (r *PGRepository) Get(ctx context.Context, workspaceID uuid.UUID, ref Ref) (Counterparty, error) {
	return load(ctx, r.pool, workspaceID, ref, false)
}

// ApplyFiscalPatch locks the row, applies the patch and writes every fiscal
// column back.
func (r *PGRepository) ApplyFiscalPatch(ctx context.Context, workspaceID uuid.UUID, ref Ref, patch FiscalPatch) (Counterparty, error) {
	tbl, err := table(ref.Kind)
	if err != nil {
		return Counterparty{}, err
	}
	var out Counterparty
	err = db.WithTxIso(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		c, err := load(ctx, tx, workspaceID, ref, true)
		if err != nil {
			return err
		}
		patch.Apply(&c)
		var rate decimal.NullDecimal
		if c.Profile.ICARate != nil {
			rate = decimal.NewNullDecimal(*c.Profile.ICARate)
		}
		_, err = tx.Exec(ctx, `UPDATE `+tbl+` SET
			document_number = $3, document_type = $4, person_type = $5, regime = $6,
			autorretenedor = $7, gran_contribuyente = $8, agente_retenedor = $9, responsable_iva = $10,
			ica_activity_code = $11, ica_rate = $12, updated_at = NOW()
			WHERE workspace_id = $1 AND id = $2`,
			workspaceID, ref.ID,
			nullable(c.Identity.DocumentNumber), nullable(string(c.Identity.DocumentType)),
			nullable(string(c.Profile.PersonType)), nullable(string(c.Profile.Regime)),
			c.Profile.SelfWithholding.Ptr(), c.Profile.LargeTaxpayer.Ptr(),
			c.Profile.WithholdingAgent.Ptr(), c.Profile.VATResponsible.Ptr(),
			nullable(c.Profile.ICAActivityCode), rate,
		)
		if err != nil {
			return fmt.Errorf("update %s fiscal data: %w", tbl, err)
		}
		out = c
		return nil
	})
	return out, err
}

func load(ctx context.Context, q db.Querier, workspaceID uuid.UUID, ref Ref, forUpdate bool) (Counterparty, error) {
	tbl, err := table(ref.Kind)
	if err != nil {
		return Counterparty{}, err
	}
	query := `SELECT ` + fiscalColumns + ` FROM ` + tbl + ` WHERE workspace_id = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var (
		c                                           Counterparty
		docNumber, docType, personType, regime, ica *string
		selfW, large, agent, vat                    *bool
		rate                                        decimal.NullDecimal
	)
	err = q.QueryRow(ctx, query, workspaceID, ref.ID).Scan(
		&c.ID, &c.WorkspaceID, &c.Name, &docNumber, &docType, &personType, &regime,
		&selfW, &large, &agent, &vat, &ica, &rate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Counterparty{}, fmt.Errorf("%s %d: %w", ref.Kind, ref.ID, shared.ErrNotFound)
		}
		return Counterparty{}, err
	}
	c.Kind = ref.Kind
	c.Identity = fiscal.Identity{
		DocumentNumber: deref(docNumber),
		DocumentType:   fiscal.DocumentType(deref(docType)),
	}
	c.Profile = fiscal.TaxProfile{
		PersonType:       fiscal.PersonType(deref(personType)),
		Regime:           fiscal.Regime(deref(regime)),
		SelfWithholding:  fiscal.TriStateOf(selfW),
		LargeTaxpayer:    fiscal.TriStateOf(large),
		WithholdingAgent: fiscal.TriStateOf(agent),
		VATResponsible:   fiscal.TriStateOf(vat),
		ICAActivityCode:  deref(ica),
	}
	if rate.Valid {
		r := rate.Decimal
		c.Profile.ICARate = &r
	}
	return c, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
