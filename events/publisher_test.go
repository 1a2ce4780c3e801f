package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/wallet-engine/events"
	"github.com/warp/wallet-engine/ledger"
	"github.com/warp/wallet-engine/ledger/store"
)

type published struct {
	exchange string
	key      string
	msg      amqp091.Publishing
}

type fakeChannel struct {
	declared []string
	sent     []published
	failAt   int // 1-based publish that fails, 0 = never
	closed   bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp091.Table) error {
	f.declared = append(f.declared, name+"/"+kind)
	if !durable {
		return errors.New("exchange must be durable")
	}
	return nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	if f.failAt > 0 && len(f.sent)+1 == f.failAt {
		return errors.New("channel closed")
	}
	f.sent = append(f.sent, published{exchange, key, msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

var at = time.Date(2025, time.June, 1, 9, 30, 0, 0, time.UTC)

func change(reason ledger.ChangeReason, delta, balance string) ledger.BalanceChange {
	return ledger.BalanceChange{
		UserID: "alice", WalletID: "w1", TransactionID: "t1", Reason: reason,
		Delta: decimal.RequireFromString(delta), Balance: decimal.RequireFromString(balance), At: at,
	}
}

func TestNewPublisher_DeclaresTopicExchange(t *testing.T) {
	ch := &fakeChannel{}
	_, err := events.NewPublisher(ch, "wallets", "", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"wallets/topic"}, ch.declared)

	_, err = events.NewPublisher(ch, "", "", zerolog.Nop())
	assert.Error(t, err)
}

func TestPublishBalanceChanges_RoutingAndBody(t *testing.T) {
	// GIVEN: An apply followed by a reconciliation
	// WHEN: Publishing the batch
	// THEN: Each change gets its own routing key and a persistent JSON body

	ch := &fakeChannel{}
	p, err := events.NewPublisher(ch, "wallets", "wallet", zerolog.Nop())
	require.NoError(t, err)

	err = p.PublishBalanceChanges(context.Background(), []ledger.BalanceChange{
		change(ledger.ReasonApply, "-30.50", "69.50"),
		change(ledger.ReasonRecalculate, "0.50", "70"),
	})
	require.NoError(t, err)
	require.Len(t, ch.sent, 2)

	assert.Equal(t, "wallets", ch.sent[0].exchange)
	assert.Equal(t, "wallet.balance_changed", ch.sent[0].key)
	assert.Equal(t, "wallet.reconciled", ch.sent[1].key)
	assert.Equal(t, amqp091.Persistent, ch.sent[0].msg.DeliveryMode)
	assert.Equal(t, "application/json", ch.sent[0].msg.ContentType)

	msg, err := events.MessageFromJSON(ch.sent[0].msg.Body)
	require.NoError(t, err)
	assert.Equal(t, events.EventBalanceChanged, msg.Event)
	assert.Equal(t, "w1", msg.WalletID)
	assert.Equal(t, "-30.5", msg.Delta)
	assert.Equal(t, "69.5", msg.Balance)
	assert.Equal(t, "apply", msg.Reason)
	assert.True(t, msg.At.Equal(at))
}

func TestPublishBalanceChanges_MessageIDsUnique(t *testing.T) {
	// GIVEN: Two manual overrides of the same wallet with identical fields
	// WHEN: Publishing them
	// THEN: Each message carries a distinct id

	ch := &fakeChannel{}
	p, err := events.NewPublisher(ch, "wallets", "wallet", zerolog.Nop())
	require.NoError(t, err)

	same := change(ledger.ReasonManual, "5", "105")
	require.NoError(t, p.PublishBalanceChanges(context.Background(), []ledger.BalanceChange{same, same}))
	require.NoError(t, p.PublishBalanceChanges(context.Background(), []ledger.BalanceChange{same}))

	require.Len(t, ch.sent, 3)
	seen := map[string]bool{}
	for _, s := range ch.sent {
		require.NotEmpty(t, s.msg.MessageId)
		assert.False(t, seen[s.msg.MessageId], "duplicate message id %s", s.msg.MessageId)
		seen[s.msg.MessageId] = true
	}
}

func TestPublishBalanceChanges_StopsAtFirstFailure(t *testing.T) {
	ch := &fakeChannel{failAt: 2}
	p, err := events.NewPublisher(ch, "wallets", "wallet", zerolog.Nop())
	require.NoError(t, err)

	err = p.PublishBalanceChanges(context.Background(), []ledger.BalanceChange{
		change(ledger.ReasonRevert, "10", "10"),
		change(ledger.ReasonApply, "-5", "5"),
		change(ledger.ReasonApply, "-5", "0"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet.balance_changed")
	assert.Len(t, ch.sent, 1)
}

func TestPublisher_WiredIntoLedger_PublishFailureDoesNotFailMutation(t *testing.T) {
	// GIVEN: A broker channel that rejects every publish
	// WHEN: A wallet balance is set manually
	// THEN: The write succeeds anyway

	ch := &fakeChannel{failAt: 1}
	p, err := events.NewPublisher(ch, "wallets", "wallet", zerolog.Nop())
	require.NoError(t, err)

	st := store.NewTxMemory()
	wallets := ledger.NewWalletService(st, ledger.WithPublisher(p))
	w, err := wallets.Create(context.Background(), "alice", "Cash", ledger.WalletCash, decimal.Zero)
	require.NoError(t, err)

	got, err := wallets.SetBalance(context.Background(), "alice", w.ID, decimal.NewFromInt(12))
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(12)))
	assert.Empty(t, ch.sent)
}

func TestNop(t *testing.T) {
	assert.NoError(t, events.Nop{}.PublishBalanceChanges(context.Background(), []ledger.BalanceChange{change(ledger.ReasonApply, "1", "1")}))
}

func TestPublisher_Close(t *testing.T) {
	ch := &fakeChannel{}
	p, err := events.NewPublisher(ch, "wallets", "wallet", zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}
