package ledger

import "github.com/shopspring/decimal"

// =============================================================================
// BALANCE EFFECT CALCULATOR
// =============================================================================

// Leg is a signed change to one wallet's balance.
type Leg struct {
	WalletID WalletID
	Delta    decimal.Decimal
}

// Effect maps a transaction to the balance legs it contributes.
//
// The stored sign of Amount is ignored: expenses always decrease the source
// wallet and incomes always increase it. A transfer debits WalletID and, when
// ToWalletID names a different wallet, credits ToWalletID by the same amount.
// A transfer without a destination behaves exactly like an expense.
//
// Children contribute nothing; their parent carries the aggregate.
// Pure: no I/O, deterministic.
func Effect(tx Transaction) []Leg {
	if tx.IsChild() || tx.WalletID == "" {
		return nil
	}
	amount := tx.EffectiveAmount()

	switch tx.Type {
	case TypeIncome:
		return []Leg{{WalletID: tx.WalletID, Delta: amount}}
	case TypeExpense:
		return []Leg{{WalletID: tx.WalletID, Delta: amount.Neg()}}
	case TypeTransfer:
		legs := []Leg{{WalletID: tx.WalletID, Delta: amount.Neg()}}
		if tx.ToWalletID != "" && tx.ToWalletID != tx.WalletID {
			legs = append(legs, Leg{WalletID: tx.ToWalletID, Delta: amount})
		}
		return legs
	}
	return nil
}

// EffectOn sums the legs of tx that land on walletID.
func EffectOn(tx Transaction, walletID WalletID) decimal.Decimal {
	total := decimal.Zero
	for _, leg := range Effect(tx) {
		if leg.WalletID == walletID {
			total = total.Add(leg.Delta)
		}
	}
	return total
}

// invert flips the sign of every leg.
func invert(legs []Leg) []Leg {
	out := make([]Leg, len(legs))
	for i, l := range legs {
		out[i] = Leg{WalletID: l.WalletID, Delta: l.Delta.Neg()}
	}
	return out
}
