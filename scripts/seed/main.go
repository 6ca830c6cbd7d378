// Command seed loads a demo workspace: contacts, companies with complete and
// incomplete fiscal data, and a small catalog.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/comercia/comercia/internal/app"
	"github.com/comercia/comercia/internal/platform/db"
	"github.com/comercia/comercia/internal/quotes"
)

// demoWorkspace is fixed so the seed is idempotent across runs.
var demoWorkspace = uuid.MustParse("8b0c7f8e-2c1a-4f7e-9d55-0c1f6a7b2e10")

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	ctx := context.Background()

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	steps := []struct {
		name string
		fn   func(context.Context, pgx.Tx) error
	}{
		{"contacts", seedContacts},
		{"companies", seedCompanies},
		{"catalog", seedCatalog},
	}
	err = db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, demoWorkspace.String()); err != nil {
			return err
		}
		var existing int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM companies WHERE workspace_id = $1`, demoWorkspace).Scan(&existing); err != nil {
			return err
		}
		if existing > 0 {
			logger.Info("demo workspace already seeded", slog.String("workspace_id", demoWorkspace.String()))
			return nil
		}
		for _, step := range steps {
			logger.Info("seeding", slog.String("step", step.name))
			if err := step.fn(ctx, tx); err != nil {
				return fmt.Errorf("seed %s: %w", step.name, err)
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("seed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("seed complete",
		slog.String("workspace_id", demoWorkspace.String()),
		slog.Time("at", time.Now()))
}

func seedContacts(ctx context.Context, tx pgx.Tx) error {
	contacts := []struct {
		name, email, doc string
		complete         bool
	}{
		{"Laura Gómez", "laura@example.com", "1020304050", true},
		{"Andrés Rojas", "andres@example.com", "", false},
	}
	for _, c := range contacts {
		if !c.complete {
			_, err := tx.Exec(ctx,
				`INSERT INTO contacts (workspace_id, name, email) VALUES ($1, $2, $3)`,
				demoWorkspace, c.name, c.email)
			if err != nil {
				return err
			}
			continue
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO contacts (workspace_id, name, email, document_number, document_type,
				person_type, regime, autorretenedor, gran_contribuyente, agente_retenedor, responsable_iva)
			VALUES ($1, $2, $3, $4, 'CC', 'natural', 'ordinario', FALSE, FALSE, FALSE, FALSE)`,
			demoWorkspace, c.name, c.email, c.doc)
		if err != nil {
			return err
		}
	}
	return nil
}

func seedCompanies(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO companies (workspace_id, name, document_number, document_type, person_type, regime,
			autorretenedor, gran_contribuyente, agente_retenedor, responsable_iva, ica_activity_code)
		VALUES ($1, 'Constructora Andina SAS', '900123456', 'NIT', 'juridica', 'ordinario',
			FALSE, TRUE, TRUE, TRUE, '7110')`, demoWorkspace)
	if err != nil {
		return err
	}
	// Missing regime and flags: winning a deal with it asks for fiscal data.
	_, err = tx.Exec(ctx, `
		INSERT INTO companies (workspace_id, name, document_number, document_type)
		VALUES ($1, 'Inversiones del Valle SAS', '901555777', 'NIT')`, demoWorkspace)
	return err
}

func seedCatalog(ctx context.Context, tx pgx.Tx) error {
	items := []struct {
		name   string
		price  float64
		rubros []quotes.RubroTemplate
	}{
		{
			name:  "Diseño arquitectónico",
			price: 0,
			rubros: []quotes.RubroTemplate{
				{Category: quotes.CategoryLabor, Description: "Arquitecto", Quantity: 40, Unit: "hora", UnitPrice: 50000},
				{Category: quotes.CategoryMaterials, Description: "Impresión de planos", Quantity: 1, Unit: "global", UnitPrice: 500000},
			},
		},
		{name: "Visita técnica", price: 750000},
	}
	for _, it := range items {
		template, err := json.Marshal(it.rubros)
		if err != nil {
			return err
		}
		if it.rubros == nil {
			template = []byte("[]")
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO catalog_items (workspace_id, name, price, rubro_template) VALUES ($1, $2, $3, $4)`,
			demoWorkspace, it.name, it.price, template)
		if err != nil {
			return err
		}
	}
	return nil
}
