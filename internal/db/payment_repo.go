package db

import (
	"context"
	"log/slog"

	"huddle/internal/types"
)

// PaymentLedgerRepo records processed payment references in the payment_ledger
// table. The reference column carries a unique constraint, which makes the
// insert the idempotency gate: the same purchase arriving via the synchronous
// verify path and the signed webhook collapses to a single row.
type PaymentLedgerRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewPaymentLedgerRepo creates a PaymentLedgerRepo backed by the given
// database connection (pool or transaction).
func NewPaymentLedgerRepo(db DBTX, logger *slog.Logger) *PaymentLedgerRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentLedgerRepo{db: db, logger: logger}
}

// Record inserts the payment event keyed by its reference. It returns true
// when the reference was new and false when it had already been recorded,
// letting the caller skip duplicate deliveries without another lookup.
func (r *PaymentLedgerRepo) Record(ctx context.Context, ev types.PaymentEvent) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO payment_ledger
		 (reference, provider, user_id, plan, kind, amount, currency, paid_at, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		 ON CONFLICT (reference) DO NOTHING`,
		ev.Reference,
		ev.Provider,
		ev.UserID,
		ev.Plan,
		ev.Kind,
		ev.Amount,
		ev.Currency,
		ev.PaidAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to record payment reference", err)
	}

	if tag.RowsAffected() == 0 {
		r.logger.Info("payment reference already recorded",
			slog.String("reference", ev.Reference),
			slog.String("provider", string(ev.Provider)),
		)
		return false, nil
	}
	return true, nil
}
