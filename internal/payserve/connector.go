// Package payserve maintains the persistent duplex channel to the
// payment service and translates its messages into engine calls.
package payserve

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fastprodman/realmpay/internal/config"
	"github.com/fastprodman/realmpay/internal/dispatch"
	"github.com/fastprodman/realmpay/internal/realms"
	"github.com/fastprodman/realmpay/internal/repos/transferlog"
)

const (
	initialBackoff = time.Second
	maxBackoff     = time.Minute
	// A session that survives this long resets the reconnect backoff.
	stableSession = time.Minute
)

type settler interface {
	Deposit(ctx context.Context, e transferlog.Entry) error
	Finalize(ctx context.Context, e transferlog.Entry, refundUnlock int64) error
}

type requestHandler interface {
	Handle(ctx context.Context, env dispatch.Envelope) realms.Response
}

// Connector dials the payment service, logs in, and keeps reconnecting
// with capped backoff. Inbound settlement events and requests run on
// their own goroutines so a slow database call never stalls the read
// loop.
type Connector struct {
	cfg      config.PayServiceConfig
	settler  settler
	requests requestHandler
	online   func() []int

	mu   sync.Mutex
	conn *websocket.Conn
}

func New(cfg config.PayServiceConfig, s settler, r requestHandler, online func() []int) *Connector {
	return &Connector{cfg: cfg, settler: s, requests: r, online: online}
}

// Run blocks until ctx is cancelled.
func (c *Connector) Run(ctx context.Context) error {
	backoff := initialBackoff

	for {
		started := time.Now()

		err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}

		if time.Since(started) > stableSession {
			backoff = initialBackoff
		}

		slog.Warn("payment service session ended",
			"error", err, "reconnect_in", backoff.String())

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *Connector) session(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()
	}()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	err = c.send(outboundMsg{Type: msgLogin, Data: loginData{
		Symbol:       c.cfg.Symbol,
		Wallet:       c.cfg.Wallet,
		Password:     c.cfg.Password,
		OnlineRealms: c.online(),
	}})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	slog.Info("payment service connected", "url", c.cfg.URL)

	for {
		var msg inboundMsg

		err := conn.ReadJSON(&msg)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		go c.handle(ctx, msg)
	}
}

// RenewRealms pushes the fresh online realm list. A nil connection is
// fine; the next login carries the list anyway.
func (c *Connector) RenewRealms(online []int) {
	err := c.send(outboundMsg{Type: msgRenewRealms, Data: renewData{OnlineRealms: online}})
	if err != nil {
		slog.Warn("renew realms push failed", "error", err)
	}
}

func (c *Connector) send(msg outboundMsg) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	return c.conn.WriteJSON(msg)
}

func (c *Connector) handle(ctx context.Context, msg inboundMsg) {
	switch msg.Type {
	case msgLogDeposit:
		c.handleDeposit(ctx, msg.Data)
	case msgLogWithdrawal:
		c.handleWithdrawal(ctx, msg.Data)
	case msgRequest:
		c.handleRequest(ctx, msg)
	default:
		slog.Warn("unknown payment service message", "type", msg.Type)
	}
}

func (c *Connector) handleDeposit(ctx context.Context, data json.RawMessage) {
	var ev transferEvent

	err := json.Unmarshal(data, &ev)
	if err != nil {
		slog.Error("undecodable deposit event", "error", err, "payload", string(data))

		return
	}

	entry, err := ev.entry()
	if err != nil {
		slog.Error("rejected deposit event", "error", err)

		return
	}

	err = c.settler.Deposit(ctx, entry)
	if err != nil {
		slog.Error("deposit settlement failed", "tx_hash", entry.TxHash, "error", err)
	}
}

func (c *Connector) handleWithdrawal(ctx context.Context, data json.RawMessage) {
	var ev transferEvent

	err := json.Unmarshal(data, &ev)
	if err != nil {
		slog.Error("undecodable withdrawal event", "error", err, "payload", string(data))

		return
	}

	entry, err := ev.entry()
	if err != nil {
		slog.Error("rejected withdrawal event", "error", err)

		return
	}

	unlock, err := ev.refundUnlock()
	if err != nil {
		slog.Error("rejected withdrawal event", "error", err)

		return
	}

	err = c.settler.Finalize(ctx, entry, unlock)
	if err != nil {
		slog.Error("withdrawal settlement failed", "tx_hash", entry.TxHash, "error", err)
	}
}

func (c *Connector) handleRequest(ctx context.Context, msg inboundMsg) {
	var env dispatch.Envelope

	err := json.Unmarshal(msg.Data, &env)
	if err != nil {
		c.respond(msg.Seq, realms.Fail("malformed request envelope"))

		return
	}

	c.respond(msg.Seq, c.requests.Handle(ctx, env))
}

func (c *Connector) respond(seq uint64, resp realms.Response) {
	err := c.send(outboundMsg{Type: msgResponse, Seq: seq, Data: resp})
	if err != nil {
		slog.Warn("response push failed", "seq", seq, "error", err)
	}
}
