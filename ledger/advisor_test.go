package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/wallet-engine/ledger"
	"github.com/warp/wallet-engine/ledger/store"
)

func seedRules(t *testing.T, mem *store.Memory, rules ...ledger.MerchantRule) {
	t.Helper()
	for _, r := range rules {
		r.UserID = alice
		require.NoError(t, mem.SaveRule(context.Background(), r))
	}
}

func TestRuleAdvisor_MatchesEstablishmentCaseInsensitive(t *testing.T) {
	mem := store.NewMemory()
	seedRules(t, mem, ledger.MerchantRule{ID: "r1", MerchantName: "starbucks", DefaultCategory: "Coffee", DefaultWalletID: "card"})

	sug, err := ledger.NewRuleAdvisor(mem).Suggest(context.Background(), alice, ledger.Draft{Establishment: "STARBUCKS #1234"})
	require.NoError(t, err)
	assert.Equal(t, "Coffee", sug.Category)
	assert.Equal(t, ledger.WalletID("card"), sug.WalletID)
	assert.Equal(t, "r1", sug.RuleID)
}

func TestRuleAdvisor_LongestNameWins(t *testing.T) {
	mem := store.NewMemory()
	seedRules(t, mem,
		ledger.MerchantRule{ID: "short", MerchantName: "uber", DefaultCategory: "Transport"},
		ledger.MerchantRule{ID: "long", MerchantName: "uber eats", DefaultCategory: "Food"},
	)

	sug, err := ledger.NewRuleAdvisor(mem).Suggest(context.Background(), alice, ledger.Draft{Establishment: "Uber Eats order"})
	require.NoError(t, err)
	assert.Equal(t, "long", sug.RuleID)
}

func TestRuleAdvisor_FallsBackToItem(t *testing.T) {
	mem := store.NewMemory()
	seedRules(t, mem, ledger.MerchantRule{ID: "r1", MerchantName: "netflix", DefaultCategory: "Subscriptions"})

	sug, err := ledger.NewRuleAdvisor(mem).Suggest(context.Background(), alice, ledger.Draft{Establishment: "Card payment", Item: "Netflix monthly"})
	require.NoError(t, err)
	assert.Equal(t, "Subscriptions", sug.Category)
}

func TestRuleAdvisor_NoMatch_EmptySuggestion(t *testing.T) {
	mem := store.NewMemory()
	seedRules(t, mem, ledger.MerchantRule{ID: "r1", MerchantName: "netflix", DefaultCategory: "Subscriptions"})

	sug, err := ledger.NewRuleAdvisor(mem).Suggest(context.Background(), alice, ledger.Draft{Establishment: "Bakery"})
	require.NoError(t, err)
	assert.Equal(t, ledger.Suggestion{}, sug)
}

func TestRuleAdvisor_OtherUsersRulesIgnored(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.SaveRule(context.Background(), ledger.MerchantRule{
		ID: "r1", UserID: "bob", MerchantName: "bakery", DefaultCategory: "Food",
	}))

	sug, err := ledger.NewRuleAdvisor(mem).Suggest(context.Background(), alice, ledger.Draft{Establishment: "Bakery"})
	require.NoError(t, err)
	assert.Empty(t, sug.Category)
}

func TestValidateRule(t *testing.T) {
	assert.NoError(t, ledger.ValidateRule(ledger.MerchantRule{MerchantName: "x", DefaultCategory: "y"}))
	assert.True(t, ledger.IsClientError(ledger.ValidateRule(ledger.MerchantRule{DefaultCategory: "y"})))
	assert.True(t, ledger.IsClientError(ledger.ValidateRule(ledger.MerchantRule{MerchantName: "x"})))
	assert.True(t, ledger.IsClientError(ledger.ValidateRule(ledger.MerchantRule{MerchantName: "x", DefaultCategory: "y", DefaultType: "gift"})))
}
