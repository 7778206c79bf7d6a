package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"huddle/internal/types"
)

// Note: mockDBTX, mockRow, and mockRows are defined in apikey_repo_test.go.

func TestQualityRepository_Create_UpsertsPerUserAndMeeting(t *testing.T) {
	db := new(mockDBTX)
	repo := NewQualityRepository(db)

	db.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "ON CONFLICT (meeting_id, user_id) DO UPDATE")
	}), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Create(context.Background(), &types.QualitySample{
		ID:        "qs_1",
		MeetingID: "mtg_1",
		UserID:    "user-1",
		Score:     4,
		Comment:   "minor audio lag",
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestQualityRepository_Create_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewQualityRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.Create(context.Background(), &types.QualitySample{ID: "qs_1"})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestQualityRepository_ListByMeeting(t *testing.T) {
	db := new(mockDBTX)
	repo := NewQualityRepository(db)

	now := time.Now().UTC()
	rows := newMockRows([][]any{
		{"qs_2", "mtg_1", "user-2", 5, nil, now},
		{"qs_1", "mtg_1", "user-1", 3, "choppy video", now.Add(-time.Minute)},
	})

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(rows, nil)

	samples, err := repo.ListByMeeting(context.Background(), "mtg_1")
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, 5, samples[0].Score)
	assert.Empty(t, samples[0].Comment)
	assert.Equal(t, "choppy video", samples[1].Comment)
}

func TestQualityRepository_AverageScore(t *testing.T) {
	db := new(mockDBTX)
	repo := NewQualityRepository(db)

	row := &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*float64) = 4.25
		return nil
	}}

	db.On("QueryRow", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "COALESCE(AVG(score), 0)")
	}), mock.Anything).Return(row)

	avg, err := repo.AverageScore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4.25, avg)
}
