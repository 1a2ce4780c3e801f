package ledger

import (
	"context"
	"fmt"
	"strings"
)

// =============================================================================
// SMART-CATEGORIZATION ADVISOR
// =============================================================================

// Suggestion holds defaults for a draft. Empty fields mean "no opinion".
type Suggestion struct {
	Category    string
	Subcategory string
	WalletID    WalletID
	Type        TransactionType
	RuleID      string
}

// Advisor supplies defaults when a draft omits its category or wallet.
// Its output is ordinary input data: it is checked for presence, not trusted
// beyond that (a suggested wallet still has to exist for the user).
type Advisor interface {
	Suggest(ctx context.Context, userID UserID, draft Draft) (Suggestion, error)
}

// fill copies suggestion fields into the draft where the draft is empty.
func (s Suggestion) fill(d Draft) Draft {
	if d.Category == "" {
		d.Category = s.Category
		if d.Subcategory == "" {
			d.Subcategory = s.Subcategory
		}
	}
	if d.WalletID == "" {
		d.WalletID = s.WalletID
	}
	if d.Type == "" {
		d.Type = s.Type
	}
	return d
}

func needsAdvice(d Draft) bool {
	return d.Category == "" || d.WalletID == "" || d.Type == ""
}

// =============================================================================
// MERCHANT RULES
// =============================================================================

// MerchantRule maps a merchant name to default transaction fields.
type MerchantRule struct {
	ID                 string
	UserID             UserID
	MerchantName       string
	DefaultCategory    string
	DefaultSubcategory string
	DefaultWalletID    WalletID
	DefaultType        TransactionType
}

// ErrRuleNotFound is returned when saving over a rule of another user.
var ErrRuleNotFound = fmt.Errorf("merchant rule %w", ErrNotFound)

// RuleStore keeps merchant rules. SaveRule inserts or replaces by ID.
type RuleStore interface {
	SaveRule(ctx context.Context, rule MerchantRule) error
	ListRules(ctx context.Context, userID UserID) ([]MerchantRule, error)
}

// RuleAdvisor suggests defaults from the user's merchant rules. The
// establishment is matched first, then the item; matching is
// case-insensitive and a rule matches when its merchant name is contained
// in the text. The longest matching merchant name wins.
type RuleAdvisor struct {
	Rules RuleStore
}

func NewRuleAdvisor(rules RuleStore) *RuleAdvisor {
	return &RuleAdvisor{Rules: rules}
}

func (a *RuleAdvisor) Suggest(ctx context.Context, userID UserID, draft Draft) (Suggestion, error) {
	rules, err := a.Rules.ListRules(ctx, userID)
	if err != nil {
		return Suggestion{}, storeErr("list rules", err)
	}
	for _, text := range []string{draft.Establishment, draft.Item} {
		if r, ok := bestRule(rules, text); ok {
			return Suggestion{
				Category:    r.DefaultCategory,
				Subcategory: r.DefaultSubcategory,
				WalletID:    r.DefaultWalletID,
				Type:        r.DefaultType,
				RuleID:      r.ID,
			}, nil
		}
	}
	return Suggestion{}, nil
}

func bestRule(rules []MerchantRule, text string) (MerchantRule, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return MerchantRule{}, false
	}
	var (
		best    MerchantRule
		bestLen int
	)
	for _, r := range rules {
		name := strings.ToLower(strings.TrimSpace(r.MerchantName))
		if name == "" || !strings.Contains(text, name) {
			continue
		}
		if len(name) > bestLen {
			best, bestLen = r, len(name)
		}
	}
	return best, bestLen > 0
}

// ValidateRule checks a rule before it is saved.
func ValidateRule(r MerchantRule) error {
	if strings.TrimSpace(r.MerchantName) == "" {
		return invalid("merchant_name", "is required")
	}
	if strings.TrimSpace(r.DefaultCategory) == "" {
		return invalid("default_category", "is required")
	}
	if r.DefaultType != "" && !r.DefaultType.Valid() {
		return invalid("default_type", "unknown transaction type %q", r.DefaultType)
	}
	return nil
}
