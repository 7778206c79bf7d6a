package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"huddle/internal/types"
)

// meetingColumns is the standard column set for meeting queries.
const meetingColumns = `id, owner_id, title, description, scheduled_at, status,
	ended_at, created_at, updated_at`

// ListMeetingsParams defines filtering options for listing a user's meetings.
type ListMeetingsParams struct {
	// UpcomingOnly restricts the listing to scheduled meetings that have not
	// yet started, ordered soonest first.
	UpcomingOnly bool
	// EndedOnly restricts the listing to ended meetings, newest first.
	// Mutually exclusive with UpcomingOnly.
	EndedOnly bool
	Limit     int
	Cursor    string
}

// MeetingRepository provides data access for the meetings table. The row
// holds scheduling metadata only; the live call itself lives with the video
// provider under the same meeting ID.
type MeetingRepository struct {
	db DBTX
}

// NewMeetingRepository creates a MeetingRepository backed by the given
// database connection (pool or transaction).
func NewMeetingRepository(db DBTX) *MeetingRepository {
	return &MeetingRepository{db: db}
}

// Create inserts a new meeting record.
func (r *MeetingRepository) Create(ctx context.Context, m *types.Meeting) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO meetings (id, owner_id, title, description, scheduled_at, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		m.ID,
		m.OwnerID,
		m.Title,
		nilIfEmptyString(m.Description),
		m.ScheduledAt,
		m.Status,
		m.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create meeting", err)
	}
	return nil
}

// GetByID retrieves a meeting by ID. Ownership checks are the caller's
// responsibility; admins may read any meeting.
func (r *MeetingRepository) GetByID(ctx context.Context, id string) (*types.Meeting, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+meetingColumns+` FROM meetings WHERE id = $1`,
		id,
	)

	m, err := scanMeetingRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundMeeting, "meeting not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve meeting", err)
	}
	return m, nil
}

// ListByOwner retrieves meetings owned by a user with cursor pagination on
// scheduled_at. Returns up to limit+1 rows; the caller detects pagination by
// the extra row and trims it before building the response.
func (r *MeetingRepository) ListByOwner(ctx context.Context, ownerID string, params ListMeetingsParams) ([]*types.Meeting, error) {
	conditions := []string{"owner_id = $1"}
	args := []any{ownerID}
	argIdx := 2

	order := "scheduled_at DESC"
	cursorOp := "<"
	if params.UpcomingOnly {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, types.MeetingScheduled)
		argIdx++
		conditions = append(conditions, fmt.Sprintf("scheduled_at >= $%d", argIdx))
		args = append(args, time.Now().UTC())
		argIdx++
		order = "scheduled_at ASC"
		cursorOp = ">"
	} else if params.EndedOnly {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, types.MeetingEnded)
		argIdx++
	}

	if params.Cursor != "" {
		cursorTime, err := time.Parse(time.RFC3339Nano, params.Cursor)
		if err != nil {
			return nil, types.NewAppError(
				types.ErrCodeValidationMissingField,
				"invalid cursor format; expected RFC3339 timestamp",
				err,
			)
		}
		conditions = append(conditions, fmt.Sprintf("scheduled_at %s $%d", cursorOp, argIdx))
		args = append(args, cursorTime)
		argIdx++
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}

	query := fmt.Sprintf(
		`SELECT %s FROM meetings WHERE %s ORDER BY %s LIMIT $%d`,
		meetingColumns,
		strings.Join(conditions, " AND "),
		order,
		argIdx,
	)
	args = append(args, limit+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query meetings", err)
	}
	defer rows.Close()

	var results []*types.Meeting
	for rows.Next() {
		m, scanErr := scanMeetingRow(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan meeting row", scanErr)
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating meeting rows", err)
	}
	return results, nil
}

// Update modifies a meeting's schedulable fields, scoped to the owner.
// Returns ErrCodeNotFoundMeeting when the meeting does not exist, belongs to
// someone else, or has already ended.
func (r *MeetingRepository) Update(ctx context.Context, id, ownerID, title, description string, scheduledAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE meetings
		 SET title = $1, description = $2, scheduled_at = $3, updated_at = NOW()
		 WHERE id = $4 AND owner_id = $5 AND status = $6`,
		title,
		nilIfEmptyString(description),
		scheduledAt,
		id,
		ownerID,
		types.MeetingScheduled,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update meeting", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundMeeting, "meeting not found or no longer scheduled", nil)
	}
	return nil
}

// SetStatus transitions a meeting's lifecycle state, scoped to the owner.
// endedAt is recorded only for the ended transition; passing nil leaves it
// untouched.
func (r *MeetingRepository) SetStatus(ctx context.Context, id, ownerID string, status types.MeetingStatus, endedAt *time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE meetings
		 SET status = $1, ended_at = COALESCE($2, ended_at), updated_at = NOW()
		 WHERE id = $3 AND owner_id = $4 AND status = $5`,
		status,
		endedAt,
		id,
		ownerID,
		types.MeetingScheduled,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update meeting status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundMeeting, "meeting not found or no longer scheduled", nil)
	}
	return nil
}

// CountAll returns the total number of meeting records. Used by the admin
// stats dashboard.
func (r *MeetingRepository) CountAll(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM meetings`).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count meetings", err)
	}
	return count, nil
}

// CountUpcoming returns the number of scheduled meetings that have not yet
// started. Used by the admin stats dashboard.
func (r *MeetingRepository) CountUpcoming(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM meetings WHERE status = $1 AND scheduled_at >= NOW()`,
		types.MeetingScheduled,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count upcoming meetings", err)
	}
	return count, nil
}

// scanMeetingRow scans a meeting from a pgx.Row or pgx.Rows. Column order
// must match meetingColumns.
func scanMeetingRow(row pgx.Row) (*types.Meeting, error) {
	var (
		m           types.Meeting
		description *string
	)
	err := row.Scan(
		&m.ID,
		&m.OwnerID,
		&m.Title,
		&description,
		&m.ScheduledAt,
		&m.Status,
		&m.EndedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if description != nil {
		m.Description = *description
	}
	return &m, nil
}

// nilIfEmptyString returns nil for empty strings so nullable VARCHAR columns
// store NULL instead of "".
func nilIfEmptyString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
