package wallet

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind enumerates ledger entry kinds.
type EntryKind string

const (
	KindCredit  EntryKind = "CREDIT"
	KindDebit   EntryKind = "DEBIT"
	KindExpired EntryKind = "EXPIRED"
)

// String returns the stored representation of the kind.
func (kind EntryKind) String() string {
	return string(kind)
}

// ParseEntryKind validates a stored entry kind.
func ParseEntryKind(raw string) (EntryKind, error) {
	switch EntryKind(raw) {
	case KindCredit, KindDebit, KindExpired:
		return EntryKind(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEntryKind, raw)
}

// Reference types recorded on ledger entries. ReferenceType is free-form;
// these are the tags the core itself writes.
const (
	ReferenceFirstPurchase = "FIRST_PURCHASE"
	ReferenceOrderDiscount = "ORDER_DISCOUNT"
	ReferenceManualRedeem  = "MANUAL_REDEEM"
	ReferenceExpired       = "EXPIRED"
)

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return trimmed, nil
}

// NewCoinAmount validates a coin count and ensures it is strictly positive.
func NewCoinAmount(raw int64) (int64, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return raw, nil
}

// LedgerEntry is a single immutable line in the wallet ledger. Only
// RemainingAmount on CREDIT entries is ever mutated after insert, and only
// downward, by redemption or expiry consumption.
type LedgerEntry struct {
	ID              uint64
	UserID          string
	Kind            EntryKind
	Amount          int64
	RemainingAmount int64
	ReferenceType   string
	ReferenceID     string
	Description     string
	ExpiresAt       *time.Time
	CreatedAt       time.Time
}

// EntryInput describes a ledger line before the store assigns its id.
type EntryInput struct {
	UserID          string
	Kind            EntryKind
	Amount          int64
	RemainingAmount int64
	ReferenceType   string
	ReferenceID     string
	Description     string
	ExpiresAt       *time.Time
	CreatedAt       time.Time
}

// WalletSnapshot is the derived per-user balance view. The ledger replay
// invariant Balance == LifetimeEarned - LifetimeRedeemed - LifetimeExpired
// holds after every write.
type WalletSnapshot struct {
	UserID           string
	Balance          int64
	LifetimeEarned   int64
	LifetimeRedeemed int64
	LifetimeExpired  int64
}

// RedeemRequest is a "spend coins on this order" request from checkout.
type RedeemRequest struct {
	UserID         string
	RequestedCoins int64
	OrderValue     decimal.Decimal
	Category       string
	ReferenceType  string
	ReferenceID    string
	Description    string
}

// RedeemResult reports the coins actually debited and the currency discount
// checkout should apply.
type RedeemResult struct {
	CoinsUsed      int64
	DiscountAmount decimal.Decimal
	Entry          LedgerEntry
}

// SweepReport summarizes one expiry sweep pass.
type SweepReport struct {
	Scanned      int
	Expired      int
	CoinsExpired int64
	Failures     int
}
