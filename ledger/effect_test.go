package ledger_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/wallet-engine/ledger"
)

func tx(typ ledger.TransactionType, amount string, qty int) ledger.Transaction {
	return ledger.Transaction{
		ID:       "t1",
		UserID:   alice,
		WalletID: "w1",
		Amount:   decimal.RequireFromString(amount),
		Quantity: qty,
		Type:     typ,
	}
}

func TestEffect_SignFollowsType(t *testing.T) {
	cases := []struct {
		name   string
		tx     ledger.Transaction
		expect string
	}{
		{"expense positive amount", tx(ledger.TypeExpense, "30", 1), "-30"},
		{"expense negative amount", tx(ledger.TypeExpense, "-30", 1), "-30"},
		{"income positive amount", tx(ledger.TypeIncome, "100", 1), "100"},
		{"income negative amount", tx(ledger.TypeIncome, "-100", 1), "100"},
		{"quantity multiplies", tx(ledger.TypeExpense, "2.50", 4), "-10"},
		{"zero quantity counts as one", tx(ledger.TypeExpense, "7", 0), "-7"},
		{"transfer without destination acts like expense", tx(ledger.TypeTransfer, "15", 1), "-15"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			legs := ledger.Effect(c.tx)
			require.Len(t, legs, 1)
			assert.Equal(t, ledger.WalletID("w1"), legs[0].WalletID)
			assert.True(t, decimal.RequireFromString(c.expect).Equal(legs[0].Delta), "got %s", legs[0].Delta)
		})
	}
}

func TestEffect_ChildHasNoEffect(t *testing.T) {
	child := tx(ledger.TypeExpense, "10", 1)
	child.ParentID = "parent"

	assert.Empty(t, ledger.Effect(child))
	assert.True(t, ledger.EffectOn(child, "w1").IsZero())
}

func TestEffect_TransferWithDestination_TwoLegs(t *testing.T) {
	// GIVEN: A transfer of 50 from w1 to w2
	// WHEN: Computing its effect
	// THEN: w1 is debited and w2 credited by the same amount

	transfer := tx(ledger.TypeTransfer, "50", 1)
	transfer.ToWalletID = "w2"

	legs := ledger.Effect(transfer)
	require.Len(t, legs, 2)
	assertDecimal(t, -50, ledger.EffectOn(transfer, "w1"), "source")
	assertDecimal(t, 50, ledger.EffectOn(transfer, "w2"), "destination")
	assert.True(t, ledger.EffectOn(transfer, "w3").IsZero())
}

func TestEffect_TransferToSameWallet_SingleLeg(t *testing.T) {
	transfer := tx(ledger.TypeTransfer, "50", 1)
	transfer.ToWalletID = "w1"

	assert.Len(t, ledger.Effect(transfer), 1)
	assertDecimal(t, -50, ledger.EffectOn(transfer, "w1"), "self transfer")
}

func TestEffect_NoWallet_NoLegs(t *testing.T) {
	orphan := tx(ledger.TypeExpense, "10", 1)
	orphan.WalletID = ""
	assert.Empty(t, ledger.Effect(orphan))
}
