package wallet

import (
	"context"
	"time"
)

// Store is the persistence contract used by Service. Implementations must
// run every callback passed to WithTx as one atomic unit, and must serialize
// concurrent mutations of the same wallet row (LockWallet and
// GetWalletForUpdate take a per-user row lock for the remainder of the
// transaction). Lock or serialization failures surface as StorageConflict.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	// LockWallet returns the locked wallet row, creating it lazily. Used by
	// the credit path, which is allowed to bring a wallet into existence.
	LockWallet(ctx context.Context, userID string) (WalletSnapshot, error)
	// GetWalletForUpdate returns the locked wallet row or WalletNotFound.
	GetWalletForUpdate(ctx context.Context, userID string) (WalletSnapshot, error)
	GetWallet(ctx context.Context, userID string) (WalletSnapshot, error)
	UpdateWalletTotals(ctx context.Context, snapshot WalletSnapshot) error

	InsertEntry(ctx context.Context, input EntryInput) (LedgerEntry, error)
	// ListOpenCredits returns CREDIT entries with a positive remainder in
	// FIFO order: created_at ascending, ties broken by id ascending.
	ListOpenCredits(ctx context.Context, userID string) ([]LedgerEntry, error)
	GetCreditForUpdate(ctx context.Context, userID string, entryID uint64) (LedgerEntry, error)
	// ConsumeCredit reduces remaining_amount on a CREDIT entry. It must
	// refuse to drive the remainder negative.
	ConsumeCredit(ctx context.Context, entryID uint64, amount int64) error
	ListEntries(ctx context.Context, userID string, offset int, limit int) ([]LedgerEntry, int64, error)
	FindCreditByReference(ctx context.Context, userID string, referenceType string) (LedgerEntry, bool, error)
	// ListExpiredCredits pages through open CREDIT entries whose expiry
	// horizon has passed, ordered by id ascending (ids are assigned
	// monotonically, so id order is creation order).
	ListExpiredCredits(ctx context.Context, asOf time.Time, afterID uint64, limit int) ([]LedgerEntry, error)

	GetSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, settings Settings) error
}
