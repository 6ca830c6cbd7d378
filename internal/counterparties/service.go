package counterparties

import (
	"context"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/comercia/comercia/internal/fiscal"
	"github.com/comercia/comercia/internal/shared"
)

// Service reads and patches counterparty fiscal data.
type Service struct {
	repo     Repository
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService constructs the service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	v := shared.NewValidator()
	_ = v.RegisterValidation("document", func(fl validator.FieldLevel) bool {
		return validDocument(fl.Field().String())
	})
	return &Service{repo: repo, logger: logger, validate: v}
}

// Get loads a counterparty of the caller's workspace.
func (s *Service) Get(ctx context.Context, scope shared.Scope, ref Ref) (Counterparty, error) {
	if err := scope.Validate(); err != nil {
		return Counterparty{}, err
	}
	if !ref.Valid() {
		return Counterparty{}, shared.Validation("invalid counterparty reference %s/%d", ref.Kind, ref.ID)
	}
	return s.repo.Get(ctx, scope.WorkspaceID, ref)
}

// ValidatePatch checks a patch without applying it.
func (s *Service) ValidatePatch(patch FiscalPatch) error {
	if err := shared.ValidateStruct(s.validate, patch); err != nil {
		return err
	}
	return patch.checkRate()
}

// ApplyFiscalPatch validates and persists patch, returning the updated record.
func (s *Service) ApplyFiscalPatch(ctx context.Context, scope shared.Scope, ref Ref, patch FiscalPatch) (Counterparty, error) {
	if err := scope.Validate(); err != nil {
		return Counterparty{}, err
	}
	if !ref.Valid() {
		return Counterparty{}, shared.Validation("invalid counterparty reference %s/%d", ref.Kind, ref.ID)
	}
	if err := s.ValidatePatch(patch); err != nil {
		return Counterparty{}, err
	}
	if patch.Empty() {
		return s.repo.Get(ctx, scope.WorkspaceID, ref)
	}
	c, err := s.repo.ApplyFiscalPatch(ctx, scope.WorkspaceID, ref, patch)
	if err != nil {
		return Counterparty{}, err
	}
	s.logger.Info("counterparty fiscal data updated", slog.String("kind", string(ref.Kind)), slog.Int64("id", ref.ID))
	return c, nil
}

// Profile returns the tax profile of a counterparty for previews.
func (s *Service) Profile(ctx context.Context, scope shared.Scope, kind string, id int64) (fiscal.TaxProfile, error) {
	c, err := s.Get(ctx, scope, Ref{Kind: Kind(kind), ID: id})
	if err != nil {
		return fiscal.TaxProfile{}, err
	}
	return c.Profile, nil
}
