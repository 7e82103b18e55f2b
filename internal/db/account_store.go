package db

import (
	"context"

	"lovebirdz/internal/types"
)

// AccountStore composes AccountRepo with transactional account creation.
// The embedded repo serves the non-transactional methods; the store itself
// owns the one write path that must be atomic.
type AccountStore struct {
	*AccountRepo
	pool TxBeginner
}

// NewAccountStore creates an AccountStore over the given pool. The pool
// serves double duty: it is the DBTX for plain queries and the TxBeginner
// for the provisioning transaction.
func NewAccountStore(pool TxBeginner, q DBTX) *AccountStore {
	return &AccountStore{
		AccountRepo: NewAccountRepo(q),
		pool:        pool,
	}
}

// CreateAccountWithPreference persists a provisioned account and its
// preference record in a single transaction. Either both rows exist
// afterward or neither does; a partial account is never observable.
//
// The preference row goes in first, matching the creation-path ordering the
// account's preference_id reference implies.
func (s *AccountStore) CreateAccountWithPreference(ctx context.Context, a *types.Account, p *types.Preference) error {
	return WithTx(ctx, s.pool, func(tx DBTX) error {
		repo := NewAccountRepo(tx)
		if err := repo.CreatePreference(ctx, p); err != nil {
			return err
		}
		return repo.Create(ctx, a)
	})
}
