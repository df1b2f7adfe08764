package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/supercoins/pkg/wallet"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	settingsRowID = 1

	pgSerializationFailureCode = "40001"
	pgDeadlockDetectedCode     = "40P01"
	pgLockNotAvailableCode     = "55P03"
	sqliteBusyCode             = 5
	sqliteLockedCode           = 6

	errorOperationStore  = "store"
	errorSubjectWallet   = "wallet"
	errorSubjectEntry    = "entry"
	errorSubjectSettings = "settings"
	errorCodeLock        = "lock"
	errorCodeGet         = "get"
	errorCodeCreate      = "create"
	errorCodeUpdate      = "update"
	errorCodeInsert      = "insert"
	errorCodeList        = "list"
	errorCodeConsume     = "consume"
	errorCodeFind        = "find"
	errorCodeCount       = "count"
	errorCodeDecode      = "decode"
	errorCodeEncode      = "encode"
	errorCodeSave        = "save"
)

// Store implements wallet.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates the wallet schema. Used for sqlite and tests;
// postgres deployments run managed migrations.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Wallet{}, &LedgerEntry{}, &Settings{})
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore wallet.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

// LockWallet returns the row-locked wallet for userID, creating it lazily.
func (store *Store) LockWallet(ctx context.Context, userID string) (wallet.WalletSnapshot, error) {
	snapshot, err := store.GetWalletForUpdate(ctx, userID)
	if err == nil {
		return snapshot, nil
	}
	if !errors.Is(err, wallet.ErrWalletNotFound) {
		return wallet.WalletSnapshot{}, err
	}
	row := Wallet{UserID: userID}
	createErr := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&row).Error
	if createErr != nil {
		return wallet.WalletSnapshot{}, wrapStoreError(errorSubjectWallet, errorCodeCreate, mapConflict(createErr))
	}
	return store.GetWalletForUpdate(ctx, userID)
}

// GetWalletForUpdate returns the row-locked wallet or WalletNotFound.
func (store *Store) GetWalletForUpdate(ctx context.Context, userID string) (wallet.WalletSnapshot, error) {
	var row Wallet
	err := store.withLock(store.db.WithContext(ctx)).
		Where("user_id = ?", userID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return wallet.WalletSnapshot{}, wrapStoreError(errorSubjectWallet, errorCodeGet, wallet.ErrWalletNotFound)
		}
		return wallet.WalletSnapshot{}, wrapStoreError(errorSubjectWallet, errorCodeLock, mapConflict(err))
	}
	return mapWallet(row), nil
}

// GetWallet returns the wallet snapshot without locking.
func (store *Store) GetWallet(ctx context.Context, userID string) (wallet.WalletSnapshot, error) {
	var row Wallet
	err := store.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return wallet.WalletSnapshot{}, wrapStoreError(errorSubjectWallet, errorCodeGet, wallet.ErrWalletNotFound)
		}
		return wallet.WalletSnapshot{}, wrapStoreError(errorSubjectWallet, errorCodeGet, err)
	}
	return mapWallet(row), nil
}

// UpdateWalletTotals persists a mutated balance snapshot.
func (store *Store) UpdateWalletTotals(ctx context.Context, snapshot wallet.WalletSnapshot) error {
	result := store.db.WithContext(ctx).
		Model(&Wallet{}).
		Where("user_id = ?", snapshot.UserID).
		Updates(map[string]interface{}{
			"balance":           snapshot.Balance,
			"lifetime_earned":   snapshot.LifetimeEarned,
			"lifetime_redeemed": snapshot.LifetimeRedeemed,
			"lifetime_expired":  snapshot.LifetimeExpired,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectWallet, errorCodeUpdate, mapConflict(result.Error))
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectWallet, errorCodeUpdate, wallet.ErrWalletNotFound)
	}
	return nil
}

// InsertEntry appends one ledger line and returns it with its assigned id.
func (store *Store) InsertEntry(ctx context.Context, input wallet.EntryInput) (wallet.LedgerEntry, error) {
	row := LedgerEntry{
		UserID:          input.UserID,
		Kind:            input.Kind.String(),
		Amount:          input.Amount,
		RemainingAmount: input.RemainingAmount,
		ReferenceType:   input.ReferenceType,
		ReferenceID:     input.ReferenceID,
		Description:     input.Description,
		ExpiresAt:       input.ExpiresAt,
		CreatedAt:       input.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wallet.LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeInsert, mapConflict(err))
	}
	return mapLedgerEntry(row)
}

// ListOpenCredits returns CREDIT entries with a positive remainder in FIFO
// order, locked for the rest of the transaction.
func (store *Store) ListOpenCredits(ctx context.Context, userID string) ([]wallet.LedgerEntry, error) {
	var rows []LedgerEntry
	err := store.withLock(store.db.WithContext(ctx)).
		Where("user_id = ? AND kind = ? AND remaining_amount > 0", userID, wallet.KindCredit.String()).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, mapConflict(err))
	}
	return mapLedgerEntries(rows)
}

// GetCreditForUpdate returns one locked CREDIT entry.
func (store *Store) GetCreditForUpdate(ctx context.Context, userID string, entryID uint64) (wallet.LedgerEntry, error) {
	var row LedgerEntry
	err := store.withLock(store.db.WithContext(ctx)).
		Where("id = ? AND user_id = ? AND kind = ?", entryID, userID, wallet.KindCredit.String()).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return wallet.LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, wallet.ErrLedgerInconsistent)
		}
		return wallet.LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeLock, mapConflict(err))
	}
	return mapLedgerEntry(row)
}

// ConsumeCredit reduces remaining_amount on a CREDIT entry. The guard in the
// WHERE clause refuses to drive the remainder negative.
func (store *Store) ConsumeCredit(ctx context.Context, entryID uint64, amount int64) error {
	result := store.db.WithContext(ctx).
		Model(&LedgerEntry{}).
		Where("id = ? AND remaining_amount >= ?", entryID, amount).
		Update("remaining_amount", gorm.Expr("remaining_amount - ?", amount))
	if result.Error != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeConsume, mapConflict(result.Error))
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectEntry, errorCodeConsume, wallet.ErrLedgerInconsistent)
	}
	return nil
}

// ListEntries returns a newest-first page of a user's ledger plus the total.
func (store *Store) ListEntries(ctx context.Context, userID string, offset int, limit int) ([]wallet.LedgerEntry, int64, error) {
	var total int64
	err := store.db.WithContext(ctx).
		Model(&LedgerEntry{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	if err != nil {
		return nil, 0, wrapStoreError(errorSubjectEntry, errorCodeCount, err)
	}
	var rows []LedgerEntry
	err = store.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	entries, mapErr := mapLedgerEntries(rows)
	if mapErr != nil {
		return nil, 0, mapErr
	}
	return entries, total, nil
}

// FindCreditByReference returns the earliest CREDIT entry carrying the
// reference type, if any. Used for first-purchase idempotency.
func (store *Store) FindCreditByReference(ctx context.Context, userID string, referenceType string) (wallet.LedgerEntry, bool, error) {
	var row LedgerEntry
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND kind = ? AND reference_type = ?", userID, wallet.KindCredit.String(), referenceType).
		Order("id ASC").
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return wallet.LedgerEntry{}, false, nil
		}
		return wallet.LedgerEntry{}, false, wrapStoreError(errorSubjectEntry, errorCodeFind, err)
	}
	entry, mapErr := mapLedgerEntry(row)
	if mapErr != nil {
		return wallet.LedgerEntry{}, false, mapErr
	}
	return entry, true, nil
}

// ListExpiredCredits pages through open CREDIT entries past their expiry
// horizon, id-ascending (ids are monotonic, so id order is creation order).
func (store *Store) ListExpiredCredits(ctx context.Context, asOf time.Time, afterID uint64, limit int) ([]wallet.LedgerEntry, error) {
	var rows []LedgerEntry
	err := store.db.WithContext(ctx).
		Where("kind = ? AND remaining_amount > 0 AND expires_at IS NOT NULL AND expires_at <= ? AND id > ?",
			wallet.KindCredit.String(), asOf, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	return mapLedgerEntries(rows)
}

// GetSettings returns the singleton policy row, falling back to defaults
// before an operator has saved one.
func (store *Store) GetSettings(ctx context.Context) (wallet.Settings, error) {
	var row Settings
	err := store.db.WithContext(ctx).Where("id = ?", settingsRowID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return wallet.DefaultSettings(), nil
		}
		return wallet.Settings{}, wrapStoreError(errorSubjectSettings, errorCodeGet, err)
	}
	return mapSettings(row)
}

// SaveSettings upserts the singleton policy row in place.
func (store *Store) SaveSettings(ctx context.Context, settings wallet.Settings) error {
	categories, err := json.Marshal(settings.ApplicableCategories)
	if err != nil {
		return wrapStoreError(errorSubjectSettings, errorCodeEncode, err)
	}
	row := Settings{
		ID:                   settingsRowID,
		CoinToCurrencyRatio:  settings.CoinToCurrencyRatio,
		FirstPurchaseCoins:   settings.FirstPurchaseCoins,
		CoinExpiryDays:       settings.CoinExpiryDays,
		MaxUsagePercentage:   settings.MaxUsagePercentage,
		MinCartValue:         settings.MinCartValue,
		MaxRedeemableCoins:   settings.MaxRedeemableCoins,
		ApplicableCategories: categories,
		IsActive:             settings.IsActive,
	}
	err = store.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectSettings, errorCodeSave, mapConflict(err))
	}
	return nil
}

// withLock applies a row lock on dialects that support it. sqlite has a
// single writer and rejects FOR UPDATE syntax.
func (store *Store) withLock(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func wrapStoreError(subject string, code string, err error) error {
	return wallet.WrapError(errorOperationStore, subject, code, err)
}

// mapConflict translates driver-level lock and serialization failures into
// the retryable StorageConflict signal.
func mapConflict(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailureCode, pgDeadlockDetectedCode, pgLockNotAvailableCode:
			return wallet.ErrStorageConflict
		}
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code() & 0xFF
		if code == sqliteBusyCode || code == sqliteLockedCode {
			return wallet.ErrStorageConflict
		}
	}
	return err
}

func mapWallet(row Wallet) wallet.WalletSnapshot {
	return wallet.WalletSnapshot{
		UserID:           row.UserID,
		Balance:          row.Balance,
		LifetimeEarned:   row.LifetimeEarned,
		LifetimeRedeemed: row.LifetimeRedeemed,
		LifetimeExpired:  row.LifetimeExpired,
	}
}

func mapLedgerEntry(row LedgerEntry) (wallet.LedgerEntry, error) {
	kind, err := wallet.ParseEntryKind(row.Kind)
	if err != nil {
		return wallet.LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeDecode, err)
	}
	return wallet.LedgerEntry{
		ID:              row.ID,
		UserID:          row.UserID,
		Kind:            kind,
		Amount:          row.Amount,
		RemainingAmount: row.RemainingAmount,
		ReferenceType:   row.ReferenceType,
		ReferenceID:     row.ReferenceID,
		Description:     row.Description,
		ExpiresAt:       row.ExpiresAt,
		CreatedAt:       row.CreatedAt,
	}, nil
}

func mapLedgerEntries(rows []LedgerEntry) ([]wallet.LedgerEntry, error) {
	entries := make([]wallet.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerEntry(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func mapSettings(row Settings) (wallet.Settings, error) {
	var categories []string
	if len(row.ApplicableCategories) > 0 {
		if err := json.Unmarshal(row.ApplicableCategories, &categories); err != nil {
			return wallet.Settings{}, wrapStoreError(errorSubjectSettings, errorCodeDecode, err)
		}
	}
	return wallet.Settings{
		CoinToCurrencyRatio:  row.CoinToCurrencyRatio,
		FirstPurchaseCoins:   row.FirstPurchaseCoins,
		CoinExpiryDays:       row.CoinExpiryDays,
		MaxUsagePercentage:   row.MaxUsagePercentage,
		MinCartValue:         row.MinCartValue,
		MaxRedeemableCoins:   row.MaxRedeemableCoins,
		ApplicableCategories: categories,
		IsActive:             row.IsActive,
	}, nil
}
