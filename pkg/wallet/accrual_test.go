package wallet

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestFirstPurchaseBonusCreditsConfiguredCoins(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	settings := DefaultSettings()
	settings.FirstPurchaseCoins = 100
	settings.CoinExpiryDays = 30
	store.settings = &settings
	service := mustNewService(test, store)

	entry, err := service.CreditFirstPurchaseBonus(context.Background(), "user-1", "order-1")
	if err != nil {
		test.Fatalf("bonus: %v", err)
	}
	if entry.Amount != 100 {
		test.Fatalf("expected 100 coins, got %d", entry.Amount)
	}
	if entry.ReferenceType != ReferenceFirstPurchase {
		test.Fatalf("unexpected reference type %q", entry.ReferenceType)
	}
	if entry.ExpiresAt == nil {
		test.Fatalf("expected expiry horizon on the bonus credit")
	}
	expected := testClock.AddDate(0, 0, 30)
	if !entry.ExpiresAt.Equal(expected) {
		test.Fatalf("expected expiry %s, got %s", expected, entry.ExpiresAt)
	}
	snapshot := store.mustWallet(test, "user-1")
	if snapshot.Balance != 100 {
		test.Fatalf("expected balance 100, got %d", snapshot.Balance)
	}
}

func TestFirstPurchaseBonusIsIdempotent(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	settings := DefaultSettings()
	settings.FirstPurchaseCoins = 100
	store.settings = &settings
	service := mustNewService(test, store)

	first, err := service.CreditFirstPurchaseBonus(context.Background(), "user-1", "order-1")
	if err != nil {
		test.Fatalf("bonus: %v", err)
	}
	second, err := service.CreditFirstPurchaseBonus(context.Background(), "user-1", "order-2")
	if err != nil {
		test.Fatalf("repeat bonus: %v", err)
	}
	if second.ID != first.ID {
		test.Fatalf("expected the existing entry back, got %d vs %d", second.ID, first.ID)
	}
	if len(store.entries) != 1 {
		test.Fatalf("expected a single credit entry, got %d", len(store.entries))
	}
	snapshot := store.mustWallet(test, "user-1")
	if snapshot.Balance != 100 {
		test.Fatalf("expected balance unchanged at 100, got %d", snapshot.Balance)
	}
}

func TestFirstPurchaseBonusConcurrentCallsPostOneCredit(test *testing.T) {
	test.Parallel()
	settings := DefaultSettings()
	settings.FirstPurchaseCoins = 100
	store := newRowLockStore(test, settings)
	service := mustNewService(test, store)

	orderIDs := []string{"order-1", "order-2"}
	errs := make([]error, len(orderIDs))
	var group sync.WaitGroup
	for index, orderID := range orderIDs {
		group.Add(1)
		go func(slot int, orderID string) {
			defer group.Done()
			_, errs[slot] = service.CreditFirstPurchaseBonus(context.Background(), "user-1", orderID)
		}(index, orderID)
	}
	group.Wait()
	for slot, err := range errs {
		if err != nil {
			test.Fatalf("bonus call %d: %v", slot, err)
		}
	}

	credits := 0
	for _, entry := range store.listEntries() {
		if entry.ReferenceType == ReferenceFirstPurchase {
			credits++
		}
	}
	if credits != 1 {
		test.Fatalf("expected exactly one first-purchase credit, got %d", credits)
	}
	snapshot := store.mustWallet(test, "user-1")
	if snapshot.Balance != 100 {
		test.Fatalf("expected balance 100, got %d", snapshot.Balance)
	}
	assertInvariant(test, snapshot)
}

func TestFirstPurchaseBonusZeroConfiguredIsNoOp(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)

	entry, err := service.CreditFirstPurchaseBonus(context.Background(), "user-1", "order-1")
	if err != nil {
		test.Fatalf("bonus: %v", err)
	}
	if entry.ID != 0 {
		test.Fatalf("expected no entry posted, got id %d", entry.ID)
	}
	if len(store.entries) != 0 {
		test.Fatalf("expected no ledger writes, got %d", len(store.entries))
	}
}

func TestFirstPurchaseBonusNeverExpiresWhenConfigured(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	settings := DefaultSettings()
	settings.FirstPurchaseCoins = 25
	settings.CoinExpiryDays = CoinExpiryNever
	store.settings = &settings
	service := mustNewService(test, store)

	entry, err := service.CreditFirstPurchaseBonus(context.Background(), "user-1", "order-1")
	if err != nil {
		test.Fatalf("bonus: %v", err)
	}
	if entry.ExpiresAt != nil {
		test.Fatalf("expected no expiry, got %s", entry.ExpiresAt)
	}
}

// rowLockStore runs transaction callbacks concurrently and serializes only
// on the per-user wallet row lock, held until the transaction returns, the
// way the SQL stores do. Reads that skip the lock see whatever is committed
// at that instant, so it reproduces the interleavings a serialized stub
// cannot.
type rowLockStore struct {
	Store

	dataMu   sync.Mutex
	lockMu   sync.Mutex
	locks    map[string]*sync.Mutex
	wallets  map[string]WalletSnapshot
	entries  []LedgerEntry
	nextID   uint64
	settings Settings
}

func newRowLockStore(test *testing.T, settings Settings) *rowLockStore {
	test.Helper()
	return &rowLockStore{
		locks:    make(map[string]*sync.Mutex),
		wallets:  make(map[string]WalletSnapshot),
		nextID:   1,
		settings: settings,
	}
}

func (store *rowLockStore) userLock(userID string) *sync.Mutex {
	store.lockMu.Lock()
	defer store.lockMu.Unlock()
	lock, ok := store.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		store.locks[userID] = lock
	}
	return lock
}

func (store *rowLockStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	tx := &rowLockTx{store: store}
	defer tx.release()
	return fn(ctx, tx)
}

func (store *rowLockStore) listEntries() []LedgerEntry {
	store.dataMu.Lock()
	defer store.dataMu.Unlock()
	return append([]LedgerEntry(nil), store.entries...)
}

func (store *rowLockStore) mustWallet(test *testing.T, userID string) WalletSnapshot {
	test.Helper()
	store.dataMu.Lock()
	defer store.dataMu.Unlock()
	snapshot, ok := store.wallets[userID]
	if !ok {
		test.Fatalf("wallet %s not found", userID)
	}
	return snapshot
}

type rowLockTx struct {
	Store

	store *rowLockStore
	held  []*sync.Mutex
}

func (tx *rowLockTx) release() {
	for _, lock := range tx.held {
		lock.Unlock()
	}
	tx.held = nil
}

func (tx *rowLockTx) LockWallet(ctx context.Context, userID string) (WalletSnapshot, error) {
	lock := tx.store.userLock(userID)
	lock.Lock()
	tx.held = append(tx.held, lock)
	tx.store.dataMu.Lock()
	defer tx.store.dataMu.Unlock()
	snapshot, ok := tx.store.wallets[userID]
	if !ok {
		snapshot = WalletSnapshot{UserID: userID}
		tx.store.wallets[userID] = snapshot
	}
	return snapshot, nil
}

func (tx *rowLockTx) FindCreditByReference(ctx context.Context, userID string, referenceType string) (LedgerEntry, bool, error) {
	tx.store.dataMu.Lock()
	defer tx.store.dataMu.Unlock()
	for _, entry := range tx.store.entries {
		if entry.UserID == userID && entry.Kind == KindCredit && entry.ReferenceType == referenceType {
			return entry, true, nil
		}
	}
	return LedgerEntry{}, false, nil
}

func (tx *rowLockTx) GetSettings(ctx context.Context) (Settings, error) {
	return tx.store.settings, nil
}

func (tx *rowLockTx) InsertEntry(ctx context.Context, input EntryInput) (LedgerEntry, error) {
	tx.store.dataMu.Lock()
	defer tx.store.dataMu.Unlock()
	entry := LedgerEntry{
		ID:              tx.store.nextID,
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
	tx.store.nextID++
	tx.store.entries = append(tx.store.entries, entry)
	return entry, nil
}

func (tx *rowLockTx) UpdateWalletTotals(ctx context.Context, snapshot WalletSnapshot) error {
	tx.store.dataMu.Lock()
	defer tx.store.dataMu.Unlock()
	tx.store.wallets[snapshot.UserID] = snapshot
	return nil
}

func TestCreditManualHonorsExplicitExpiry(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	expiresAt := testClock.Add(48 * time.Hour)

	entry, err := service.CreditManual(context.Background(), "user-1", 40, ReferenceManualRedeem, "grant-1", "support goodwill", &expiresAt)
	if err != nil {
		test.Fatalf("manual credit: %v", err)
	}
	if entry.ExpiresAt == nil || !entry.ExpiresAt.Equal(expiresAt) {
		test.Fatalf("expected explicit expiry, got %v", entry.ExpiresAt)
	}
	if entry.ReferenceType != ReferenceManualRedeem {
		test.Fatalf("unexpected reference type %q", entry.ReferenceType)
	}
}
