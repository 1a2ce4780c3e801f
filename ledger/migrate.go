package ledger

import (
	"context"
	"sort"
)

// =============================================================================
// ORPHANED WALLET REFERENCES
// =============================================================================

// WalletRef is a record outside the ledger (an installment plan, say) that
// names a source and an optional destination wallet.
type WalletRef struct {
	ID                  string
	SourceWalletID      WalletID
	DestinationWalletID WalletID
}

// WalletRefStore is implemented by stores that keep other wallet-referencing
// records. The migrator uses it when present.
type WalletRefStore interface {
	ListWalletRefs(ctx context.Context, userID UserID) ([]WalletRef, error)
	ReassignWalletRef(ctx context.Context, userID UserID, ref WalletRef) error
}

// MigrationResult reports what MigrateOrphanedWalletReferences changed.
type MigrationResult struct {
	TransactionsMigrated int
	InstallmentsMigrated int
	DefaultWalletID      WalletID
	AffectedWallets      []WalletID
}

// Migrator repairs records whose wallet no longer exists.
type Migrator struct {
	store Store
	refs  WalletRefStore // optional
	opts  options
}

func NewMigrator(store Store, refs WalletRefStore, opts ...Option) *Migrator {
	return &Migrator{store: store, refs: refs, opts: buildOptions(opts)}
}

// MigrateOrphanedWalletReferences reassigns every reference to a wallet the
// user does not own to the user's default (oldest) wallet.
//
// Balances are NOT adjusted. The result lists every wallet that gained rows
// so the caller can run RecalculateWalletBalance on each. Per-record failures
// are logged and skipped; a user without wallets gets an empty result.
func (m *Migrator) MigrateOrphanedWalletReferences(ctx context.Context, userID UserID) (MigrationResult, error) {
	wallets, err := m.store.ListWallets(ctx, userID)
	if err != nil {
		return MigrationResult{}, storeErr("list wallets", err)
	}
	if len(wallets) == 0 {
		return MigrationResult{}, nil
	}

	def := wallets[0].ID
	owned := make(map[WalletID]bool, len(wallets))
	for _, w := range wallets {
		owned[w.ID] = true
	}
	orphan := func(id WalletID) bool { return id != "" && !owned[id] }

	result := MigrationResult{DefaultWalletID: def}
	affected := map[WalletID]bool{}
	log := m.opts.log.With().Str("user_id", string(userID)).Logger()

	txs, err := m.store.ListAllTransactions(ctx, userID)
	if err != nil {
		return MigrationResult{}, storeErr("list transactions", err)
	}
	for _, tx := range txs {
		if !orphan(tx.WalletID) && !orphan(tx.ToWalletID) {
			continue
		}
		fixed := tx
		if orphan(fixed.WalletID) {
			fixed.WalletID = def
		}
		if orphan(fixed.ToWalletID) {
			fixed.ToWalletID = def
		}
		if fixed.Type == TypeTransfer && fixed.ToWalletID == fixed.WalletID {
			fixed.ToWalletID = ""
		}
		fixed.UpdatedAt = m.opts.now()
		if err := m.store.UpdateTransaction(ctx, fixed); err != nil {
			log.Warn().Err(err).Str("transaction_id", string(tx.ID)).Msg("failed to migrate transaction")
			continue
		}
		result.TransactionsMigrated++
		affected[def] = true
	}

	if m.refs != nil {
		refs, err := m.refs.ListWalletRefs(ctx, userID)
		if err != nil {
			log.Warn().Err(err).Msg("failed to list installment wallet references")
			refs = nil
		}
		for _, ref := range refs {
			if !orphan(ref.SourceWalletID) && !orphan(ref.DestinationWalletID) {
				continue
			}
			fixed := ref
			if orphan(fixed.SourceWalletID) {
				fixed.SourceWalletID = def
			}
			if orphan(fixed.DestinationWalletID) {
				fixed.DestinationWalletID = def
			}
			if err := m.refs.ReassignWalletRef(ctx, userID, fixed); err != nil {
				log.Warn().Err(err).Str("installment_id", ref.ID).Msg("failed to migrate installment")
				continue
			}
			result.InstallmentsMigrated++
			affected[def] = true
		}
	}

	for id := range affected {
		result.AffectedWallets = append(result.AffectedWallets, id)
	}
	sort.Slice(result.AffectedWallets, func(i, j int) bool {
		return result.AffectedWallets[i] < result.AffectedWallets[j]
	})

	if result.TransactionsMigrated+result.InstallmentsMigrated > 0 {
		log.Info().
			Int("transactions", result.TransactionsMigrated).
			Int("installments", result.InstallmentsMigrated).
			Str("default_wallet_id", string(def)).
			Msg("migrated orphaned wallet references")
	}
	return result, nil
}
