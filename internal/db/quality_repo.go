package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"huddle/internal/types"
)

// QualityRepository provides data access for the quality_samples table:
// post-call ratings submitted by participants on a 1-5 scale.
type QualityRepository struct {
	db DBTX
}

// NewQualityRepository creates a QualityRepository backed by the given
// database connection (pool or transaction).
func NewQualityRepository(db DBTX) *QualityRepository {
	return &QualityRepository{db: db}
}

// Create inserts a quality sample. One sample per user per meeting; a repeat
// submission replaces the earlier score.
func (r *QualityRepository) Create(ctx context.Context, s *types.QualitySample) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO quality_samples (id, meeting_id, user_id, score, comment, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (meeting_id, user_id) DO UPDATE
		 SET score = EXCLUDED.score,
		     comment = EXCLUDED.comment,
		     created_at = EXCLUDED.created_at`,
		s.ID,
		s.MeetingID,
		s.UserID,
		s.Score,
		nilIfEmptyString(s.Comment),
		s.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record quality sample", err)
	}
	return nil
}

// ListByMeeting returns all samples for a meeting, newest first.
func (r *QualityRepository) ListByMeeting(ctx context.Context, meetingID string) ([]types.QualitySample, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, meeting_id, user_id, score, comment, created_at
		 FROM quality_samples WHERE meeting_id = $1 ORDER BY created_at DESC`,
		meetingID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query quality samples", err)
	}
	defer rows.Close()

	var results []types.QualitySample
	for rows.Next() {
		s, scanErr := scanQualitySample(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan quality sample row", scanErr)
		}
		results = append(results, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating quality sample rows", err)
	}
	return results, nil
}

// AverageScore returns the mean score across all samples, or 0 when no
// samples exist. Used by the admin stats dashboard.
func (r *QualityRepository) AverageScore(ctx context.Context) (float64, error) {
	var avg float64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(AVG(score), 0) FROM quality_samples`,
	).Scan(&avg)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to compute average quality score", err)
	}
	return avg, nil
}

// scanQualitySample scans a sample from a pgx.Row or pgx.Rows.
func scanQualitySample(row pgx.Row) (*types.QualitySample, error) {
	var (
		s       types.QualitySample
		comment *string
	)
	err := row.Scan(
		&s.ID,
		&s.MeetingID,
		&s.UserID,
		&s.Score,
		&comment,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if comment != nil {
		s.Comment = *comment
	}
	return &s, nil
}
