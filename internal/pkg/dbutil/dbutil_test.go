package dbutil

import (
	"context"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	appErr "github.com/corpusd/corpusd/internal/pkg/errors"
)

func TestFinalizeRebindsPlaceholders(t *testing.T) {
	query, args := Finalize("UPDATE documents SET display_name = ? WHERE id = ?", []interface{}{"name", int64(1)})
	require.Equal(t, "UPDATE documents SET display_name = $1 WHERE id = $2", query)
	require.Len(t, args, 2)
}

func TestIsConflict(t *testing.T) {
	require.True(t, IsConflict(&pq.Error{Code: "23505"}))
	require.True(t, IsConflict(&pq.Error{Code: "23514"}))
	require.False(t, IsConflict(&pq.Error{Code: "42703"}))
	require.False(t, IsConflict(errors.New("plain")))
	require.False(t, IsConflict(nil))
}

func TestClassify(t *testing.T) {
	require.NoError(t, Classify(nil))
	require.ErrorIs(t, Classify(&pq.Error{Code: "23505"}), appErr.ErrConflict)
	require.ErrorIs(t, Classify(context.DeadlineExceeded), appErr.ErrPoolExhausted)

	plain := errors.New("plain")
	require.Equal(t, plain, Classify(plain))
}

func TestIsTransient(t *testing.T) {
	require.True(t, IsTransient(appErr.ErrPoolExhausted))
	require.True(t, IsTransient(&pq.Error{Code: "40001"}))
	require.True(t, IsTransient(&pq.Error{Code: "40P01"}))
	require.True(t, IsTransient(&pq.Error{Code: "08006"}))
	require.False(t, IsTransient(&pq.Error{Code: "23505"}))
	require.False(t, IsTransient(errors.New("plain")))
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 5, func() error {
		calls++
		return errors.New("permanent")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestWithRetryRetriesTransientError(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 5, func() error {
		calls++
		if calls < 3 {
			return &pq.Error{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}
