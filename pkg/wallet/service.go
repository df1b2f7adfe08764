package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Service contains the wallet domain logic over a Store.
type Service struct {
	store           Store
	nowFn           func() time.Time
	logger          OperationLogger
	conflictRetries int
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now, conflictRetries: defaultConflictRetries}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// PostCredit appends a CREDIT entry and atomically raises the balance and
// lifetime earned counters, creating the wallet row on first credit.
func (service *Service) PostCredit(ctx context.Context, userID string, amount int64, referenceType string, referenceID string, description string, expiresAt *time.Time) (LedgerEntry, error) {
	var entry LedgerEntry
	operationError := func() error {
		normalizedUserID, err := NewUserID(userID)
		if err != nil {
			return err
		}
		coins, err := NewCoinAmount(amount)
		if err != nil {
			return err
		}
		return service.runInTx(ctx, func(ctx context.Context, txStore Store) error {
			posted, err := service.creditTx(ctx, txStore, normalizedUserID, coins, referenceType, referenceID, description, expiresAt)
			if err != nil {
				return err
			}
			entry = posted
			return nil
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation:     operationCredit,
		UserID:        userID,
		Coins:         amount,
		ReferenceType: referenceType,
		ReferenceID:   referenceID,
		Error:         operationError,
	})
	return entry, operationError
}

// PostDebit appends a DEBIT (or EXPIRED, when referenceType says so) entry,
// lowers the balance, and consumes open CREDIT remainders oldest-first.
func (service *Service) PostDebit(ctx context.Context, userID string, amount int64, referenceType string, referenceID string, description string) (LedgerEntry, error) {
	var entry LedgerEntry
	operationError := func() error {
		normalizedUserID, err := NewUserID(userID)
		if err != nil {
			return err
		}
		coins, err := NewCoinAmount(amount)
		if err != nil {
			return err
		}
		return service.runInTx(ctx, func(ctx context.Context, txStore Store) error {
			snapshot, err := txStore.GetWalletForUpdate(ctx, normalizedUserID)
			if err != nil {
				if errors.Is(err, ErrWalletNotFound) {
					return ErrInsufficientBalance
				}
				return err
			}
			posted, err := service.debitLockedTx(ctx, txStore, snapshot, coins, referenceType, referenceID, description)
			if err != nil {
				return err
			}
			entry = posted
			return nil
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation:     operationDebit,
		UserID:        userID,
		Coins:         amount,
		ReferenceType: referenceType,
		ReferenceID:   referenceID,
		Error:         operationError,
	})
	return entry, operationError
}

// GetBalance returns the wallet snapshot, or WalletNotFound for a user who
// never earned coins. API boundaries translate that into a zero balance.
func (service *Service) GetBalance(ctx context.Context, userID string) (WalletSnapshot, error) {
	normalizedUserID, err := NewUserID(userID)
	if err != nil {
		return WalletSnapshot{}, err
	}
	return service.store.GetWallet(ctx, normalizedUserID)
}

// ListTransactions returns ledger entries newest-first plus the total count.
// Pages are 1-based.
func (service *Service) ListTransactions(ctx context.Context, userID string, page int, pageSize int) ([]LedgerEntry, int64, error) {
	normalizedUserID, err := NewUserID(userID)
	if err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return service.store.ListEntries(ctx, normalizedUserID, (page-1)*pageSize, pageSize)
}

// GetSettings returns the active redemption policy.
func (service *Service) GetSettings(ctx context.Context) (Settings, error) {
	return service.store.GetSettings(ctx)
}

// UpdateSettings merges the patch over the stored policy, validates the
// result, and persists it. The update applies to subsequent operations only.
func (service *Service) UpdateSettings(ctx context.Context, patch SettingsPatch) (Settings, error) {
	var updated Settings
	operationError := service.runInTx(ctx, func(ctx context.Context, txStore Store) error {
		current, err := txStore.GetSettings(ctx)
		if err != nil {
			return err
		}
		merged := patch.ApplyTo(current)
		if err := merged.Validate(); err != nil {
			return err
		}
		if err := txStore.SaveSettings(ctx, merged); err != nil {
			return err
		}
		updated = merged
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationSettings,
		Error:     operationError,
	})
	return updated, operationError
}

// creditTx posts a credit inside an open transaction.
func (service *Service) creditTx(ctx context.Context, txStore Store, userID string, coins int64, referenceType string, referenceID string, description string, expiresAt *time.Time) (LedgerEntry, error) {
	snapshot, err := txStore.LockWallet(ctx, userID)
	if err != nil {
		return LedgerEntry{}, err
	}
	return service.creditLockedTx(ctx, txStore, snapshot, coins, referenceType, referenceID, description, expiresAt)
}

// creditLockedTx posts a credit against an already-locked wallet snapshot.
func (service *Service) creditLockedTx(ctx context.Context, txStore Store, snapshot WalletSnapshot, coins int64, referenceType string, referenceID string, description string, expiresAt *time.Time) (LedgerEntry, error) {
	entry, err := txStore.InsertEntry(ctx, EntryInput{
		UserID:          snapshot.UserID,
		Kind:            KindCredit,
		Amount:          coins,
		RemainingAmount: coins,
		ReferenceType:   referenceType,
		ReferenceID:     referenceID,
		Description:     description,
		ExpiresAt:       expiresAt,
		CreatedAt:       service.nowFn(),
	})
	if err != nil {
		return LedgerEntry{}, err
	}
	snapshot.Balance += coins
	snapshot.LifetimeEarned += coins
	if err := txStore.UpdateWalletTotals(ctx, snapshot); err != nil {
		return LedgerEntry{}, err
	}
	return entry, nil
}

// debitLockedTx posts a debit against an already-locked wallet snapshot,
// consuming open credit remainders in FIFO order.
func (service *Service) debitLockedTx(ctx context.Context, txStore Store, snapshot WalletSnapshot, coins int64, referenceType string, referenceID string, description string) (LedgerEntry, error) {
	if snapshot.Balance < coins {
		return LedgerEntry{}, ErrInsufficientBalance
	}
	if err := consumeOpenCredits(ctx, txStore, snapshot.UserID, coins); err != nil {
		return LedgerEntry{}, err
	}
	kind := KindDebit
	if referenceType == ReferenceExpired {
		kind = KindExpired
	}
	entry, err := txStore.InsertEntry(ctx, EntryInput{
		UserID:        snapshot.UserID,
		Kind:          kind,
		Amount:        coins,
		ReferenceType: referenceType,
		ReferenceID:   referenceID,
		Description:   description,
		CreatedAt:     service.nowFn(),
	})
	if err != nil {
		return LedgerEntry{}, err
	}
	snapshot.Balance -= coins
	if kind == KindExpired {
		snapshot.LifetimeExpired += coins
	} else {
		snapshot.LifetimeRedeemed += coins
	}
	if err := txStore.UpdateWalletTotals(ctx, snapshot); err != nil {
		return LedgerEntry{}, err
	}
	return entry, nil
}

// consumeOpenCredits draws down remaining_amount on the oldest open CREDIT
// entries first until the debit is fully allocated. The same walk order is
// used by the expiry sweep, so redemption and expiry can never disagree
// about which coins are left.
func consumeOpenCredits(ctx context.Context, txStore Store, userID string, coins int64) error {
	credits, err := txStore.ListOpenCredits(ctx, userID)
	if err != nil {
		return err
	}
	remaining := coins
	for _, credit := range credits {
		if remaining == 0 {
			break
		}
		take := credit.RemainingAmount
		if take > remaining {
			take = remaining
		}
		if err := txStore.ConsumeCredit(ctx, credit.ID, take); err != nil {
			return err
		}
		remaining -= take
	}
	if remaining > 0 {
		// Balance said there was enough; the open credits disagree.
		return WrapError("service", "ledger", "fifo_underflow", ErrLedgerInconsistent)
	}
	return nil
}

// runInTx executes fn in a store transaction, retrying bounded times on
// StorageConflict before surfacing RedemptionUnavailable.
func (service *Service) runInTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	var err error
	for attempt := 0; attempt <= service.conflictRetries; attempt++ {
		err = service.store.WithTx(ctx, fn)
		if !errors.Is(err, ErrStorageConflict) {
			return err
		}
	}
	return WrapError("service", "tx", "conflict_retries_exhausted", ErrRedemptionUnavailable)
}

func (service *Service) logOperation(ctx context.Context, record OperationLog) {
	if service.logger == nil {
		return
	}
	if record.Status == "" {
		if record.Error != nil {
			record.Status = operationStatusError
		} else {
			record.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, record)
}
