package activity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lovebirdz/internal/types"
)

func TestAggregatorBuild_FoldsRecordsIntoSeries(t *testing.T) {
	store := new(mockLedgerStore)
	agg := NewAggregator(store, nil)

	store.On("ListByYear", mock.Anything, "acc_1", 2024).Return([]types.ActivityRecord{
		{AccountID: "acc_1", Year: 2024, Month: 3, Likes: 12, Matches: 4, Swipes: 90},
		{AccountID: "acc_1", Year: 2024, Month: 11, Likes: 2, Matches: 1, Swipes: 7},
	}, nil)

	chart, err := agg.Build(context.Background(), "acc_1", 2024)
	require.NoError(t, err)

	require.Len(t, chart.Likes, 12)
	require.Len(t, chart.Matches, 12)
	require.Len(t, chart.Swipes, 12)

	assert.Equal(t, int64(12), chart.Likes[2])
	assert.Equal(t, int64(4), chart.Matches[2])
	assert.Equal(t, int64(90), chart.Swipes[2])
	assert.Equal(t, int64(2), chart.Likes[10])
	assert.Equal(t, int64(7), chart.Swipes[10])

	// Unreported months stay zero.
	assert.Equal(t, int64(0), chart.Likes[0])
	assert.Equal(t, int64(0), chart.Swipes[11])
}

func TestAggregatorBuild_NoRecordsIsAllZero(t *testing.T) {
	store := new(mockLedgerStore)
	agg := NewAggregator(store, nil)

	store.On("ListByYear", mock.Anything, "acc_1", 2023).Return([]types.ActivityRecord{}, nil)

	chart, err := agg.Build(context.Background(), "acc_1", 2023)
	require.NoError(t, err)
	for i := 0; i < 12; i++ {
		assert.Zero(t, chart.Likes[i])
		assert.Zero(t, chart.Matches[i])
		assert.Zero(t, chart.Swipes[i])
	}
}

func TestAggregatorBuild_RejectsNonPositiveYear(t *testing.T) {
	store := new(mockLedgerStore)
	agg := NewAggregator(store, nil)

	for _, year := range []int{0, -5} {
		_, err := agg.Build(context.Background(), "acc_1", year)
		var appErr *types.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, types.ErrCodeValidationInvalidYear, appErr.Code)
	}
	store.AssertNotCalled(t, "ListByYear")
}

func TestAggregatorBuild_SkipsOutOfRangeMonth(t *testing.T) {
	store := new(mockLedgerStore)
	agg := NewAggregator(store, nil)

	store.On("ListByYear", mock.Anything, "acc_1", 2024).Return([]types.ActivityRecord{
		{AccountID: "acc_1", Year: 2024, Month: 13, Likes: 99},
		{AccountID: "acc_1", Year: 2024, Month: 0, Likes: 50},
		{AccountID: "acc_1", Year: 2024, Month: 6, Likes: 3},
	}, nil)

	chart, err := agg.Build(context.Background(), "acc_1", 2024)
	require.NoError(t, err)

	var total int64
	for _, n := range chart.Likes {
		total += n
	}
	assert.Equal(t, int64(3), total)
}

func TestAggregatorBuild_StoreErrorPropagates(t *testing.T) {
	store := new(mockLedgerStore)
	agg := NewAggregator(store, nil)

	store.On("ListByYear", mock.Anything, "acc_1", 2024).
		Return(nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list activity", nil))

	_, err := agg.Build(context.Background(), "acc_1", 2024)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
