package wallet

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var testClock = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

// stubStore is an in-memory Store. WithTx serializes callbacks with a mutex,
// which is enough to exercise the service's locking discipline: the service
// only mutates state inside WithTx.
type stubStore struct {
	mu       sync.Mutex
	wallets  map[string]WalletSnapshot
	entries  []LedgerEntry
	nextID   uint64
	settings *Settings

	conflictsLeft int
	insertErr     error
	consumeErrID  uint64
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		wallets: make(map[string]WalletSnapshot),
		nextID:  1,
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.conflictsLeft > 0 {
		store.conflictsLeft--
		return ErrStorageConflict
	}
	return fn(ctx, store)
}

func (store *stubStore) LockWallet(ctx context.Context, userID string) (WalletSnapshot, error) {
	snapshot, ok := store.wallets[userID]
	if !ok {
		snapshot = WalletSnapshot{UserID: userID}
		store.wallets[userID] = snapshot
	}
	return snapshot, nil
}

func (store *stubStore) GetWalletForUpdate(ctx context.Context, userID string) (WalletSnapshot, error) {
	snapshot, ok := store.wallets[userID]
	if !ok {
		return WalletSnapshot{}, ErrWalletNotFound
	}
	return snapshot, nil
}

func (store *stubStore) GetWallet(ctx context.Context, userID string) (WalletSnapshot, error) {
	return store.GetWalletForUpdate(ctx, userID)
}

func (store *stubStore) UpdateWalletTotals(ctx context.Context, snapshot WalletSnapshot) error {
	if _, ok := store.wallets[snapshot.UserID]; !ok {
		return ErrWalletNotFound
	}
	store.wallets[snapshot.UserID] = snapshot
	return nil
}

func (store *stubStore) InsertEntry(ctx context.Context, input EntryInput) (LedgerEntry, error) {
	if store.insertErr != nil {
		return LedgerEntry{}, store.insertErr
	}
	entry := LedgerEntry{
		ID:              store.nextID,
		UserID:          input.UserID,
		Kind:            input.Kind,
		Amount:          input.Amount,
		RemainingAmount: input.RemainingAmount,
		ReferenceType:   input.ReferenceType,
		ReferenceID:     input.ReferenceID,
		Description:     input.Description,
		ExpiresAt:       input.ExpiresAt,
		CreatedAt:       input.CreatedAt,
	}
	store.nextID++
	store.entries = append(store.entries, entry)
	return entry, nil
}

func (store *stubStore) ListOpenCredits(ctx context.Context, userID string) ([]LedgerEntry, error) {
	var open []LedgerEntry
	for _, entry := range store.entries {
		if entry.UserID == userID && entry.Kind == KindCredit && entry.RemainingAmount > 0 {
			open = append(open, entry)
		}
	}
	sort.Slice(open, func(left, right int) bool {
		if open[left].CreatedAt.Equal(open[right].CreatedAt) {
			return open[left].ID < open[right].ID
		}
		return open[left].CreatedAt.Before(open[right].CreatedAt)
	})
	return open, nil
}

func (store *stubStore) GetCreditForUpdate(ctx context.Context, userID string, entryID uint64) (LedgerEntry, error) {
	for _, entry := range store.entries {
		if entry.ID == entryID && entry.UserID == userID && entry.Kind == KindCredit {
			return entry, nil
		}
	}
	return LedgerEntry{}, ErrWalletNotFound
}

func (store *stubStore) ConsumeCredit(ctx context.Context, entryID uint64, amount int64) error {
	if store.consumeErrID != 0 && entryID == store.consumeErrID {
		return WrapError("store", "ledger_entry", "consume", ErrStorageConflict)
	}
	for index := range store.entries {
		if store.entries[index].ID != entryID {
			continue
		}
		if store.entries[index].RemainingAmount < amount {
			return WrapError("store", "ledger_entry", "remaining_underflow", ErrLedgerInconsistent)
		}
		store.entries[index].RemainingAmount -= amount
		return nil
	}
	return WrapError("store", "ledger_entry", "missing", ErrLedgerInconsistent)
}

func (store *stubStore) ListEntries(ctx context.Context, userID string, offset int, limit int) ([]LedgerEntry, int64, error) {
	var owned []LedgerEntry
	for _, entry := range store.entries {
		if entry.UserID == userID {
			owned = append(owned, entry)
		}
	}
	sort.Slice(owned, func(left, right int) bool {
		if owned[left].CreatedAt.Equal(owned[right].CreatedAt) {
			return owned[left].ID > owned[right].ID
		}
		return owned[left].CreatedAt.After(owned[right].CreatedAt)
	})
	total := int64(len(owned))
	if offset >= len(owned) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(owned) {
		end = len(owned)
	}
	return append([]LedgerEntry(nil), owned[offset:end]...), total, nil
}

func (store *stubStore) FindCreditByReference(ctx context.Context, userID string, referenceType string) (LedgerEntry, bool, error) {
	for _, entry := range store.entries {
		if entry.UserID == userID && entry.Kind == KindCredit && entry.ReferenceType == referenceType {
			return entry, true, nil
		}
	}
	return LedgerEntry{}, false, nil
}

func (store *stubStore) ListExpiredCredits(ctx context.Context, asOf time.Time, afterID uint64, limit int) ([]LedgerEntry, error) {
	var expired []LedgerEntry
	for _, entry := range store.entries {
		if entry.Kind != KindCredit || entry.RemainingAmount <= 0 || entry.ID <= afterID {
			continue
		}
		if entry.ExpiresAt == nil || entry.ExpiresAt.After(asOf) {
			continue
		}
		expired = append(expired, entry)
	}
	sort.Slice(expired, func(left, right int) bool {
		return expired[left].ID < expired[right].ID
	})
	if len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

func (store *stubStore) GetSettings(ctx context.Context) (Settings, error) {
	if store.settings == nil {
		return DefaultSettings(), nil
	}
	return *store.settings, nil
}

func (store *stubStore) SaveSettings(ctx context.Context, settings Settings) error {
	store.settings = &settings
	return nil
}

func (store *stubStore) mustWallet(test *testing.T, userID string) WalletSnapshot {
	test.Helper()
	snapshot, ok := store.wallets[userID]
	if !ok {
		test.Fatalf("wallet %s not found", userID)
	}
	return snapshot
}

func (store *stubStore) mustEntry(test *testing.T, entryID uint64) LedgerEntry {
	test.Helper()
	for _, entry := range store.entries {
		if entry.ID == entryID {
			return entry
		}
	}
	test.Fatalf("entry %d not found", entryID)
	return LedgerEntry{}
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, func() time.Time { return testClock }, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustCredit(test *testing.T, service *Service, userID string, amount int64) LedgerEntry {
	test.Helper()
	entry, err := service.PostCredit(context.Background(), userID, amount, "PROMO", "", "", nil)
	if err != nil {
		test.Fatalf("credit: %v", err)
	}
	return entry
}

func mustDecimal(test *testing.T, raw string) decimal.Decimal {
	test.Helper()
	value, err := decimal.NewFromString(raw)
	if err != nil {
		test.Fatalf("decimal %q: %v", raw, err)
	}
	return value
}

func assertInvariant(test *testing.T, snapshot WalletSnapshot) {
	test.Helper()
	derived := snapshot.LifetimeEarned - snapshot.LifetimeRedeemed - snapshot.LifetimeExpired
	if snapshot.Balance != derived {
		test.Fatalf("balance %d does not match lifetime counters (earned=%d redeemed=%d expired=%d)",
			snapshot.Balance, snapshot.LifetimeEarned, snapshot.LifetimeRedeemed, snapshot.LifetimeExpired)
	}
}
