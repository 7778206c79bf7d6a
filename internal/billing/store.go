package billing

import (
	"context"
	"encoding/json"

	"huddle/internal/types"
)

// CatalogRepo persists the single catalog override. Implemented by
// db.PlanConfigRepo against the plan_config singleton row.
type CatalogRepo interface {
	// GetOverride returns the stored catalog override, or nil when no
	// override has ever been written.
	GetOverride(ctx context.Context) (json.RawMessage, error)

	// SetOverride replaces the stored catalog wholesale and records who
	// wrote it.
	SetOverride(ctx context.Context, catalog types.PlanCatalog, updatedBy string) error
}

// ConfigStore is the Global Config Store: it owns the one mutable catalog
// instance. Reads merge the override over the defaults; writes replace the
// whole catalog, never patch it.
type ConfigStore struct {
	repo   CatalogRepo
	logger types.Logger
}

// NewConfigStore creates a ConfigStore backed by the given repository.
func NewConfigStore(repo CatalogRepo, logger types.Logger) *ConfigStore {
	return &ConfigStore{repo: repo, logger: logger}
}

// Get returns the effective catalog. A missing override is not an error (the
// defaults apply); an infrastructure failure of the lookup itself surfaces as
// ErrCodeConfigUnavailable.
func (s *ConfigStore) Get(ctx context.Context) (types.PlanCatalog, error) {
	raw, err := s.repo.GetOverride(ctx)
	if err != nil {
		return DefaultCatalog(), types.NewAppError(
			types.ErrCodeConfigUnavailable,
			"plan catalog lookup failed",
			err,
		)
	}

	merged, err := MergeCatalog(raw)
	if err != nil {
		// A malformed override must not break user-facing reads; fall back
		// to the defaults and flag the row for an operator.
		s.logger.Error("stored plan catalog is malformed, serving defaults",
			"error", err.Error(),
		)
		return DefaultCatalog(), nil
	}
	return merged, nil
}

// Set replaces the catalog override. The write is attributed to the admin
// principal on the context; without one the operation fails with
// ErrCodeConfigNoAdmin and nothing is stored.
func (s *ConfigStore) Set(ctx context.Context, catalog types.PlanCatalog) error {
	actor, ok := types.GetActor(ctx)
	if !ok || !actor.IsAdmin() {
		return types.NewAppError(
			types.ErrCodeConfigNoAdmin,
			"no admin principal to attach the catalog override to",
			nil,
		)
	}

	if err := ValidateCatalog(catalog); err != nil {
		return err
	}

	if err := s.repo.SetOverride(ctx, catalog, actor.ID); err != nil {
		return types.NewAppError(
			types.ErrCodeConfigUnavailable,
			"plan catalog write failed",
			err,
		)
	}

	s.logger.Info("plan catalog replaced", "updated_by", actor.ID)
	return nil
}

// Resolve returns the effective catalog for evaluation paths. It never fails:
// if the override store is unreachable the defaults are served, because an
// admission or feature decision must not break merely because the config
// lookup did.
func (s *ConfigStore) Resolve(ctx context.Context) types.PlanCatalog {
	catalog, err := s.Get(ctx)
	if err != nil {
		s.logger.Warn("plan catalog unavailable, serving defaults",
			"error", err.Error(),
		)
		return DefaultCatalog()
	}
	return catalog
}
