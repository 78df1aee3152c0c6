package transferlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fastprodman/realmpay/internal/infra/pgtestutil"
	"github.com/fastprodman/realmpay/internal/repos/transferlog"
)

func TestTransferLog_DuplicateTxHash(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	entry := transferlog.Entry{
		TxHash:    "0xabc",
		RealmID:   1,
		Character: "Bob",
		Wallet:    "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Amount:    40,
	}

	err := repo.InsertDeposit(ctx, entry)
	if err != nil {
		t.Fatalf("insert deposit: %v", err)
	}

	err = repo.InsertDeposit(ctx, entry)
	if !errors.Is(err, transferlog.ErrDuplicateTransfer) {
		t.Fatalf("want ErrDuplicateTransfer, got %v", err)
	}

	// The two tables are independent: the same hash may appear in each.
	err = repo.InsertWithdrawal(ctx, entry)
	if err != nil {
		t.Fatalf("insert withdrawal: %v", err)
	}

	err = repo.InsertWithdrawal(ctx, entry)
	if !errors.Is(err, transferlog.ErrDuplicateTransfer) {
		t.Fatalf("want ErrDuplicateTransfer, got %v", err)
	}
}
