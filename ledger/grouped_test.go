package ledger_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/wallet-engine/ledger"
)

func groceryRun(t *testing.T, f *fixture, walletID ledger.WalletID) (ledger.Transaction, []ledger.Transaction) {
	t.Helper()
	parent, children, err := f.txs.CreateGrouped(f.ctx, alice,
		ledger.Draft{WalletID: walletID, Type: ledger.TypeExpense, Category: "Groceries", Establishment: "Market"},
		[]ledger.Draft{
			{Amount: ledger.Amount(10), Quantity: 1, Item: "bread"},
			{Amount: ledger.Amount(20), Quantity: 1, Item: "cheese"},
			{Amount: ledger.Amount(5), Quantity: 2, Item: "milk"},
		})
	require.NoError(t, err)
	return parent, children
}

func TestCreateGrouped_ParentCarriesAggregate(t *testing.T) {
	// GIVEN: Children [10, 20, 5] with quantities [1, 1, 2]
	// WHEN: Creating the grouped expense
	// THEN: Parent amount is 40, wallet decreases by 40 exactly once

	f := newTxFixture(t)
	a := f.wallet(t, "A")

	parent, children := groceryRun(t, f, a)

	assertDecimal(t, 40, parent.Amount, "parent amount")
	assert.True(t, parent.HasChildren)
	assert.Equal(t, 3, parent.ChildrenCount)
	require.Len(t, children, 3)
	for _, c := range children {
		assert.Equal(t, parent.ID, c.ParentID)
		assert.Equal(t, ledger.TypeExpense, c.Type, "children inherit the parent's type")
	}
	assertBalance(t, f, a, -40)
}

func TestCreateGrouped_IgnoresParentAmount(t *testing.T) {
	f := newTxFixture(t)
	a := f.wallet(t, "A")

	parent, _, err := f.txs.CreateGrouped(f.ctx, alice,
		ledger.Draft{WalletID: a, Type: ledger.TypeExpense, Amount: ledger.Amount(999)},
		[]ledger.Draft{{Amount: ledger.Amount(3)}})
	require.NoError(t, err)

	assertDecimal(t, 3, parent.Amount, "parent amount")
	assertBalance(t, f, a, -3)
}

func TestCreateGrouped_InvalidChild_NothingPersisted(t *testing.T) {
	f := newTxFixture(t)
	a := f.wallet(t, "A")

	_, _, err := f.txs.CreateGrouped(f.ctx, alice,
		ledger.Draft{WalletID: a, Type: ledger.TypeExpense},
		[]ledger.Draft{{Amount: ledger.Amount(3)}, {Item: "no amount"}})

	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "children[1].amount", verr.Field)

	all, err := f.store.ListAllTransactions(f.ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, all)
	assertBalance(t, f, a, 0)
}

func TestCreateGrouped_Recalculate_ChildrenNotDoubleCounted(t *testing.T) {
	f := newTxFixture(t)
	a := f.wallet(t, "A")
	groceryRun(t, f, a)

	balance, err := f.balances.RecalculateWalletBalance(f.ctx, a, alice)
	require.NoError(t, err)
	assertDecimal(t, -40, balance, "recalculated")
}

func TestDelete_Parent_RemovesChildren(t *testing.T) {
	f := newTxFixture(t)
	a := f.wallet(t, "A")
	parent, _ := groceryRun(t, f, a)

	require.NoError(t, f.txs.Delete(f.ctx, alice, parent.ID))

	assertBalance(t, f, a, 0)
	all, err := f.store.ListAllTransactions(f.ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAddChild_RecomputesParent(t *testing.T) {
	f := newTxFixture(t)
	a := f.wallet(t, "A")
	parent, _ := groceryRun(t, f, a)

	child, err := f.txs.AddChild(f.ctx, alice, parent.ID, ledger.Draft{Amount: ledger.Amount(7), Item: "eggs"})
	require.NoError(t, err)
	assert.Equal(t, parent.ID, child.ParentID)

	updated, err := f.txs.Get(f.ctx, alice, parent.ID)
	require.NoError(t, err)
	assertDecimal(t, 47, updated.Amount, "parent amount")
	assert.Equal(t, 4, updated.ChildrenCount)
	assertBalance(t, f, a, -47)
}

func TestAddChild_ToOrdinaryTransaction_BecomesParent(t *testing.T) {
	f := newTxFixture(t)
	a := f.wallet(t, "A")
	e := f.create(t, a, ledger.TypeExpense, 30)

	_, err := f.txs.AddChild(f.ctx, alice, e.ID, ledger.Draft{Amount: ledger.Amount(12)})
	require.NoError(t, err)

	updated, err := f.txs.Get(f.ctx, alice, e.ID)
	require.NoError(t, err)
	assert.True(t, updated.HasChildren)
	assertDecimal(t, 12, updated.Amount, "parent amount")
	assertBalance(t, f, a, -12)
}

func TestAddChild_ToChild_Rejected(t *testing.T) {
	f := newTxFixture(t)
	a := f.wallet(t, "A")
	_, children := groceryRun(t, f, a)

	_, err := f.txs.AddChild(f.ctx, alice, children[0].ID, ledger.Draft{Amount: ledger.Amount(1)})
	assert.True(t, ledger.IsClientError(err))
	assertBalance(t, f, a, -40)
}

func TestUpdateChild_RecomputesParent(t *testing.T) {
	f := newTxFixture(t)
	a := f.wallet(t, "A")
	parent, children := groceryRun(t, f, a)

	// milk: 5 x 2 -> 5 x 4
	_, err := f.txs.UpdateChild(f.ctx, alice, parent.ID, children[2].ID, ledger.Patch{Quantity: ptr(4)})
	require.NoError(t, err)

	updated, err := f.txs.Get(f.ctx, alice, parent.ID)
	require.NoError(t, err)
	assertDecimal(t, 50, updated.Amount, "parent amount")
	assertBalance(t, f, a, -50)
}

func TestUpdateChild_WrongParent_NotFound(t *testing.T) {
	f := newTxFixture(t)
	a := f.wallet(t, "A")
	_, children := groceryRun(t, f, a)
	other, _ := groceryRun(t, f, a)

	_, err := f.txs.UpdateChild(f.ctx, alice, other.ID, children[0].ID, ledger.Patch{Amount: ptr(decimal.NewFromInt(1))})
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

func TestDeleteChild_LastChild_ParentBecomesOrdinary(t *testing.T) {
	f := newTxFixture(t)
	a := f.wallet(t, "A")
	parent, _, err := f.txs.CreateGrouped(f.ctx, alice,
		ledger.Draft{WalletID: a, Type: ledger.TypeExpense},
		[]ledger.Draft{{Amount: ledger.Amount(8)}, {Amount: ledger.Amount(2)}})
	require.NoError(t, err)
	children, err := f.txs.Children(f.ctx, alice, parent.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)

	require.NoError(t, f.txs.DeleteChild(f.ctx, alice, parent.ID, children[0].ID))
	assertBalance(t, f, a, -2)

	require.NoError(t, f.txs.DeleteChild(f.ctx, alice, parent.ID, children[1].ID))
	updated, err := f.txs.Get(f.ctx, alice, parent.ID)
	require.NoError(t, err)
	assert.False(t, updated.HasChildren)
	assert.Equal(t, 0, updated.ChildrenCount)
	assert.True(t, updated.Amount.IsZero())
	assertBalance(t, f, a, 0)
}

func TestDelete_ChildByID_RecomputesParent(t *testing.T) {
	f := newTxFixture(t)
	a := f.wallet(t, "A")
	_, children := groceryRun(t, f, a)

	require.NoError(t, f.txs.Delete(f.ctx, alice, children[1].ID))
	assertBalance(t, f, a, -20)
}

func TestGrouped_MoveParent_MovesAggregate(t *testing.T) {
	f := newTxFixture(t)
	a := f.wallet(t, "A")
	b := f.wallet(t, "B")
	parent, _ := groceryRun(t, f, a)

	_, err := f.txs.Update(f.ctx, alice, parent.ID, ledger.Patch{WalletID: ptr(b)})
	require.NoError(t, err)

	assertBalance(t, f, a, 0)
	assertBalance(t, f, b, -40)
}

func TestGrouped_MoveParent_ChildrenFollow(t *testing.T) {
	// GIVEN: A grouped purchase on wallet A
	// WHEN: The parent is moved to wallet B
	// THEN: Every child names B, and A can be deleted

	f := newTxFixture(t)
	a := f.wallet(t, "A")
	b := f.wallet(t, "B")
	parent, _ := groceryRun(t, f, a)

	_, err := f.txs.Update(f.ctx, alice, parent.ID, ledger.Patch{WalletID: ptr(b)})
	require.NoError(t, err)

	children, err := f.txs.Children(f.ctx, alice, parent.ID)
	require.NoError(t, err)
	require.Len(t, children, 3)
	for _, c := range children {
		assert.Equal(t, b, c.WalletID)
	}

	require.NoError(t, f.wallets.Delete(f.ctx, alice, a))
	assertBalance(t, f, b, -40)
}

func TestGrouped_ChildWalletAlwaysParents(t *testing.T) {
	f := newTxFixture(t)
	a := f.wallet(t, "A")
	b := f.wallet(t, "B")
	parent, children := groceryRun(t, f, a)

	added, err := f.txs.AddChild(f.ctx, alice, parent.ID, ledger.Draft{WalletID: b, Amount: ledger.Amount(1)})
	require.NoError(t, err)
	assert.Equal(t, a, added.WalletID)

	updated, err := f.txs.UpdateChild(f.ctx, alice, parent.ID, children[0].ID, ledger.Patch{WalletID: ptr(b)})
	require.NoError(t, err)
	assert.Equal(t, a, updated.WalletID)

	require.NoError(t, f.wallets.Delete(f.ctx, alice, b))
}
