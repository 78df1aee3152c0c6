package payserve

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/fastprodman/realmpay/internal/repos/transferlog"
)

// Inbound message types.
const (
	msgLogDeposit    = "logDeposit"
	msgLogWithdrawal = "logWithdrawal"
	msgRequest       = "request"
)

// Outbound message types.
const (
	msgLogin       = "login"
	msgRenewRealms = "renewRealms"
	msgResponse    = "response"
)

type inboundMsg struct {
	Type string          `json:"type"`
	Seq  uint64          `json:"seq,omitempty"`
	Data json.RawMessage `json:"data"`
}

type outboundMsg struct {
	Type string `json:"type"`
	Seq  uint64 `json:"seq,omitempty"`
	Data any    `json:"data"`
}

type loginData struct {
	Symbol       string `json:"symbol"`
	Wallet       string `json:"wallet"`
	Password     string `json:"password"`
	OnlineRealms []int  `json:"onlineRealms"`
}

type renewData struct {
	OnlineRealms []int `json:"onlineRealms"`
}

// transferEvent is a confirmed on-chain movement as the payment service
// reports it. Amounts and the refund token travel as decimal strings.
type transferEvent struct {
	TxHash    string `json:"txHash"`
	Wallet    string `json:"wallet"`
	RealmID   int    `json:"realmId"`
	Character string `json:"character"`
	Amount    string `json:"amount"`
	Refund    string `json:"refund,omitempty"`
}

func (ev transferEvent) entry() (transferlog.Entry, error) {
	if ev.TxHash == "" || ev.Character == "" {
		return transferlog.Entry{}, fmt.Errorf("transfer event missing tx hash or character")
	}

	amount, err := strconv.ParseInt(ev.Amount, 10, 64)
	if err != nil || amount <= 0 {
		return transferlog.Entry{}, fmt.Errorf("transfer event %s: bad amount %q", ev.TxHash, ev.Amount)
	}

	return transferlog.Entry{
		TxHash:    ev.TxHash,
		RealmID:   ev.RealmID,
		Character: ev.Character,
		Wallet:    ev.Wallet,
		Amount:    amount,
	}, nil
}

func (ev transferEvent) refundUnlock() (int64, error) {
	unlock, err := strconv.ParseInt(ev.Refund, 10, 64)
	if err != nil || unlock <= 0 {
		return 0, fmt.Errorf("transfer event %s: bad refund token %q", ev.TxHash, ev.Refund)
	}

	return unlock, nil
}
