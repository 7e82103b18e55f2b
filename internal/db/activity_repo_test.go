package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lovebirdz/internal/types"
)

func TestActivityRepo_Increment_DeltaPerKind(t *testing.T) {
	cases := []struct {
		kind    types.EventKind
		likes   int64
		matches int64
		swipes  int64
	}{
		{types.EventLike, 1, 0, 0},
		{types.EventMatch, 0, 1, 0},
		{types.EventSwipe, 0, 0, 1},
	}

	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			db := new(mockDBTX)
			repo := NewActivityRepo(db)

			var gotArgs []any
			db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
				Run(func(args mock.Arguments) {
					gotArgs = args.Get(2).([]any)
				}).
				Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

			err := repo.Increment(context.Background(), "acc_1", tc.kind, 2024, 3)
			require.NoError(t, err)

			require.Len(t, gotArgs, 6)
			assert.Equal(t, "acc_1", gotArgs[0])
			assert.Equal(t, 2024, gotArgs[1])
			assert.Equal(t, 3, gotArgs[2])
			assert.Equal(t, tc.likes, gotArgs[3])
			assert.Equal(t, tc.matches, gotArgs[4])
			assert.Equal(t, tc.swipes, gotArgs[5])
		})
	}
}

func TestActivityRepo_Increment_SingleStatement(t *testing.T) {
	db := new(mockDBTX)
	repo := NewActivityRepo(db)

	var gotSQL string
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			gotSQL = args.Get(1).(string)
		}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Increment(context.Background(), "acc_1", types.EventLike, 2024, 3)
	require.NoError(t, err)

	// The insert-or-add decision must live inside one statement; a separate
	// read would reopen the lost-update window.
	assert.Contains(t, gotSQL, "ON CONFLICT (account_id, year, month)")
	assert.Contains(t, gotSQL, "account_activity.likes   + EXCLUDED.likes")
	db.AssertNumberOfCalls(t, "Exec", 1)
	db.AssertNotCalled(t, "Query")
	db.AssertNotCalled(t, "QueryRow")
}

func TestActivityRepo_Increment_UnknownKind(t *testing.T) {
	db := new(mockDBTX)
	repo := NewActivityRepo(db)

	err := repo.Increment(context.Background(), "acc_1", types.EventKind("poke"), 2024, 3)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalUnexpected, appErr.Code)
	db.AssertNotCalled(t, "Exec")
}

func TestActivityRepo_Increment_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewActivityRepo(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.Increment(context.Background(), "acc_1", types.EventLike, 2024, 3)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestActivityRepo_ListByYear(t *testing.T) {
	db := new(mockDBTX)
	repo := NewActivityRepo(db)

	rows := newMockRows([][]any{
		{"acc_1", 2024, 3, int64(3), int64(1), int64(9)},
		{"acc_1", 2024, 4, int64(1), int64(0), int64(2)},
	})
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	records, err := repo.ListByYear(context.Background(), "acc_1", 2024)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 3, records[0].Month)
	assert.Equal(t, int64(3), records[0].Likes)
	assert.Equal(t, 4, records[1].Month)
	assert.Equal(t, int64(2), records[1].Swipes)
}

func TestActivityRepo_ListByYear_Empty(t *testing.T) {
	db := new(mockDBTX)
	repo := NewActivityRepo(db)

	rows := newMockRows(nil)
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	records, err := repo.ListByYear(context.Background(), "acc_1", 2031)
	require.NoError(t, err)
	assert.Empty(t, records)
}
