package gormstore

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Wallet mirrors the wallets table: one balance snapshot row per user,
// written only inside the same transaction as its ledger entries.
type Wallet struct {
	UserID           string `gorm:"primaryKey;size:64"`
	Balance          int64  `gorm:"not null"`
	LifetimeEarned   int64  `gorm:"not null"`
	LifetimeRedeemed int64  `gorm:"not null"`
	LifetimeExpired  int64  `gorm:"not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (Wallet) TableName() string { return "wallets" }

// LedgerEntry mirrors the wallet_ledger table. Rows are append-only; only
// remaining_amount on CREDIT rows is ever updated, and only downward. The
// autoincrement id doubles as the FIFO tie-break on equal created_at.
type LedgerEntry struct {
	ID              uint64     `gorm:"primaryKey;autoIncrement"`
	UserID          string     `gorm:"size:64;not null;index:idx_wallet_ledger_user_created,priority:1;index:idx_wallet_ledger_user_reference,priority:1"`
	Kind            string     `gorm:"size:16;not null"`
	Amount          int64      `gorm:"not null"`
	RemainingAmount int64      `gorm:"not null"`
	ReferenceType   string     `gorm:"size:64;index:idx_wallet_ledger_user_reference,priority:2"`
	ReferenceID     string     `gorm:"size:128"`
	Description     string     `gorm:"size:255"`
	ExpiresAt       *time.Time `gorm:"index:idx_wallet_ledger_expires"`
	CreatedAt       time.Time  `gorm:"not null;index:idx_wallet_ledger_user_created,priority:2"`
}

func (LedgerEntry) TableName() string { return "wallet_ledger" }

// Settings mirrors the singleton wallet_settings row.
type Settings struct {
	ID                   uint            `gorm:"primaryKey"`
	CoinToCurrencyRatio  decimal.Decimal `gorm:"type:numeric;not null"`
	FirstPurchaseCoins   int64           `gorm:"not null"`
	CoinExpiryDays       int             `gorm:"not null"`
	MaxUsagePercentage   int64           `gorm:"not null"`
	MinCartValue         decimal.Decimal `gorm:"type:numeric;not null"`
	MaxRedeemableCoins   int64           `gorm:"not null"`
	ApplicableCategories datatypes.JSON  `gorm:"not null"`
	IsActive             bool            `gorm:"not null"`
	UpdatedAt            time.Time
}

func (Settings) TableName() string { return "wallet_settings" }
