package realms

import (
	"context"
	"fmt"
	"strconv"
)

// PushConfig hands a connected realm its operating parameters: the
// operator payout wallet, the on-chain token symbol, and the reward
// unit item id, in that order. Realm workers bind the fields
// positionally, so the order is part of the wire contract.
func PushConfig(ctx context.Context, router *Router, reg *Registry, wallet, symbol string, realmID int) error {
	itemID, ok := reg.RewardItemID(realmID)
	if !ok {
		return fmt.Errorf("realm %d: %w", realmID, ErrRealmUnavailable)
	}

	resp, err := router.Send(ctx, realmID, "setConfig", []string{
		wallet,
		symbol,
		strconv.Itoa(itemID),
	})
	if err != nil {
		return err
	}

	if !resp.OK {
		return fmt.Errorf("realm %d refused config: %s", realmID, resp.Error)
	}

	return nil
}
