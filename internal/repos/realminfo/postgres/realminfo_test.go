package realminfo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fastprodman/realmpay/internal/infra/pgtestutil"
	"github.com/fastprodman/realmpay/internal/repos/realminfo"
)

func TestRealmInfo_GetAndUpdateBalance(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	_, err := db.Exec(`INSERT INTO realms (realm_id, name, reward_item_id) VALUES (1, 'Bartz', 4037)`)
	if err != nil {
		t.Fatalf("seed realm: %v", err)
	}

	info, err := repo.Get(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	want := realminfo.Info{RealmID: 1, Name: "Bartz", RewardItemID: 4037, Balance: 0}
	if info != want {
		t.Fatalf("want %+v, got %+v", want, info)
	}

	_, err = repo.Get(ctx, 99)
	if !errors.Is(err, realminfo.ErrRealmNotFound) {
		t.Fatalf("want ErrRealmNotFound, got %v", err)
	}

	err = repo.UpdateBalance(ctx, 1, 5000)
	if err != nil {
		t.Fatalf("update balance: %v", err)
	}

	err = repo.UpdateBalance(ctx, 99, 5000)
	if !errors.Is(err, realminfo.ErrRealmNotFound) {
		t.Fatalf("update of unknown realm: want ErrRealmNotFound, got %v", err)
	}

	info, err = repo.Get(ctx, 1)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if info.Balance != 5000 {
		t.Fatalf("want balance 5000, got %d", info.Balance)
	}
}

func TestRealmInfo_TotalBalance(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	// Empty table sums to zero, not NULL.
	total, err := repo.TotalBalance(ctx)
	if err != nil {
		t.Fatalf("total on empty table: %v", err)
	}
	if total != 0 {
		t.Fatalf("want 0, got %d", total)
	}

	_, err = db.Exec(`INSERT INTO realms (realm_id, name, reward_item_id, balance) VALUES
		(1, 'Bartz', 4037, 300),
		(2, 'Sieghardt', 4037, 200)`)
	if err != nil {
		t.Fatalf("seed realms: %v", err)
	}

	total, err = repo.TotalBalance(ctx)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total != 500 {
		t.Fatalf("want 500, got %d", total)
	}

	infos, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].RealmID != 1 || infos[1].RealmID != 2 {
		t.Fatalf("unexpected list: %+v", infos)
	}
}
