package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"huddle/internal/types"
)

// planConfigRowID pins the plan_config table to a single row. The catalog
// override is global; there is never more than one.
const planConfigRowID = 1

// PlanConfigRepo persists the plan catalog override as a singleton JSONB row.
// Reads return the raw stored document; merging over defaults happens in the
// billing layer so a partial or stale row can never be served directly.
type PlanConfigRepo struct {
	db DBTX
}

// NewPlanConfigRepo creates a PlanConfigRepo backed by the given database
// connection (pool or transaction).
func NewPlanConfigRepo(db DBTX) *PlanConfigRepo {
	return &PlanConfigRepo{db: db}
}

// GetOverride returns the stored catalog override, or nil when no override
// has ever been written. A missing row is not an error; the defaults apply.
func (r *PlanConfigRepo) GetOverride(ctx context.Context) (json.RawMessage, error) {
	var raw []byte
	err := r.db.QueryRow(ctx,
		`SELECT catalog FROM plan_config WHERE id = $1`,
		planConfigRowID,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read plan catalog override", err)
	}
	return json.RawMessage(raw), nil
}

// SetOverride replaces the stored catalog wholesale and records who wrote it.
// The document is always the full three-tier catalog; partial patches are
// rejected upstream before they reach this method.
func (r *PlanConfigRepo) SetOverride(ctx context.Context, catalog types.PlanCatalog, updatedBy string) error {
	doc, err := json.Marshal(catalog)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode plan catalog", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO plan_config (id, catalog, updated_by, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (id) DO UPDATE
		 SET catalog = EXCLUDED.catalog,
		     updated_by = EXCLUDED.updated_by,
		     updated_at = NOW()`,
		planConfigRowID,
		doc,
		updatedBy,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to write plan catalog override", err)
	}
	return nil
}
