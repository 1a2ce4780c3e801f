/*
Package events publishes committed wallet balance changes to RabbitMQ.

PURPOSE:
  Downstream consumers (dashboards, sync workers) learn about balance moves
  without polling. Publishing happens after the unit of work commits, so a
  message never describes a write that was rolled back.

MESSAGES:
  <prefix>.balance_changed  apply, revert and manual balance writes
  <prefix>.reconciled       drift corrected by recalculation

DELIVERY:
  Best-effort. The ledger logs publish failures and carries on; consumers
  that need the exact figure can re-read the wallet.
*/
package events

import (
	"encoding/json"
	"time"

	"github.com/warp/wallet-engine/ledger"
)

const (
	EventBalanceChanged = "balance_changed"
	EventReconciled     = "reconciled"
)

// Message is the JSON body of a published balance change. Money travels as
// decimal strings so consumers never see float rounding.
type Message struct {
	Event         string    `json:"event"`
	UserID        string    `json:"user_id"`
	WalletID      string    `json:"wallet_id"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Reason        string    `json:"reason"`
	Delta         string    `json:"delta"`
	Balance       string    `json:"balance"`
	At            time.Time `json:"at"`
}

// EventFor maps a change reason to the event name it is published under.
func EventFor(reason ledger.ChangeReason) string {
	if reason == ledger.ReasonRecalculate {
		return EventReconciled
	}
	return EventBalanceChanged
}

func NewMessage(c ledger.BalanceChange) Message {
	return Message{
		Event:         EventFor(c.Reason),
		UserID:        string(c.UserID),
		WalletID:      string(c.WalletID),
		TransactionID: string(c.TransactionID),
		Reason:        string(c.Reason),
		Delta:         c.Delta.String(),
		Balance:       c.Balance.String(),
		At:            c.At.UTC(),
	}
}

func (m Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func MessageFromJSON(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	return m, nil
}
