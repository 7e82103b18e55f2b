package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lovebirdz/internal/types"
)

// mockTx satisfies pgx.Tx for the methods the store exercises; the embedded
// interface covers the rest.
type mockTx struct {
	pgx.Tx

	execSQL    []string
	execErr    error
	committed  bool
	rolledBack bool
}

func (t *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	t.execSQL = append(t.execSQL, sql)
	if t.execErr != nil {
		return pgconn.CommandTag{}, t.execErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (t *mockTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *mockTx) Rollback(ctx context.Context) error {
	// Mirrors pgx: rollback after commit is a no-op.
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type mockTxBeginner struct {
	tx       *mockTx
	beginErr error
}

func (b *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	if b.beginErr != nil {
		return nil, b.beginErr
	}
	return b.tx, nil
}

func TestAccountStore_CreateAccountWithPreference_PreferenceFirst(t *testing.T) {
	tx := &mockTx{}
	store := NewAccountStore(&mockTxBeginner{tx: tx}, new(mockDBTX))

	err := store.CreateAccountWithPreference(context.Background(),
		&types.Account{ID: "acc_1", PreferenceID: "pref_1"},
		&types.Preference{ID: "pref_1", AccountID: "acc_1"},
	)
	require.NoError(t, err)
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)

	// The preference row must land before the account that references it.
	require.Len(t, tx.execSQL, 2)
	assert.Contains(t, tx.execSQL[0], "INSERT INTO preferences")
	assert.Contains(t, tx.execSQL[1], "INSERT INTO accounts")
}

func TestAccountStore_CreateAccountWithPreference_RollsBackOnError(t *testing.T) {
	tx := &mockTx{execErr: errors.New("disk full")}
	store := NewAccountStore(&mockTxBeginner{tx: tx}, new(mockDBTX))

	err := store.CreateAccountWithPreference(context.Background(),
		&types.Account{ID: "acc_1"},
		&types.Preference{ID: "pref_1"},
	)
	require.Error(t, err)
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestWithTx_BeginError(t *testing.T) {
	err := WithTx(context.Background(), &mockTxBeginner{beginErr: errors.New("pool exhausted")}, func(tx DBTX) error {
		t.Fatal("fn must not run when Begin fails")
		return nil
	})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
