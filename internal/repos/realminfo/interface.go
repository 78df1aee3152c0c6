package realminfo

import (
	"context"
	"errors"
)

var ErrRealmNotFound = errors.New("realm not found")

type Info struct {
	RealmID      int
	Name         string
	RewardItemID int
	Balance      int64
}

// RealmInfo is static realm registration data plus the periodically
// refreshed balance snapshot. Live online/offline state is not here; that
// belongs to the registry, which only realm connect/disconnect mutates.
type RealmInfo interface {
	Get(ctx context.Context, realmID int) (Info, error)
	List(ctx context.Context) ([]Info, error)
	UpdateBalance(ctx context.Context, realmID int, balance int64) error
	// TotalBalance sums the last known balance of every realm.
	TotalBalance(ctx context.Context) (int64, error)
}
