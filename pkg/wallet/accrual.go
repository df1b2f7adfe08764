package wallet

import (
	"context"
	"time"
)

// CreditFirstPurchaseBonus awards the configured first-purchase coins.
// Idempotent: a second call for the same user returns the existing CREDIT
// entry instead of double-crediting.
func (service *Service) CreditFirstPurchaseBonus(ctx context.Context, userID string, orderID string) (LedgerEntry, error) {
	var entry LedgerEntry
	operationError := func() error {
		normalizedUserID, err := NewUserID(userID)
		if err != nil {
			return err
		}
		return service.runInTx(ctx, func(ctx context.Context, txStore Store) error {
			settings, err := txStore.GetSettings(ctx)
			if err != nil {
				return err
			}
			if settings.FirstPurchaseCoins <= 0 {
				// No bonus configured; nothing to post.
				return nil
			}
			// The wallet row lock is the serialization point for the bonus
			// check: a concurrent call blocks here until this transaction
			// commits and then sees the posted entry.
			snapshot, err := txStore.LockWallet(ctx, normalizedUserID)
			if err != nil {
				return err
			}
			existing, found, err := txStore.FindCreditByReference(ctx, normalizedUserID, ReferenceFirstPurchase)
			if err != nil {
				return err
			}
			if found {
				entry = existing
				return nil
			}
			posted, err := service.creditLockedTx(
				ctx,
				txStore,
				snapshot,
				settings.FirstPurchaseCoins,
				ReferenceFirstPurchase,
				orderID,
				"first purchase bonus",
				settings.ExpiryFor(service.nowFn()),
			)
			if err != nil {
				return err
			}
			entry = posted
			return nil
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation:     operationAccrue,
		UserID:        userID,
		Coins:         entry.Amount,
		ReferenceType: ReferenceFirstPurchase,
		ReferenceID:   orderID,
		Error:         operationError,
	})
	return entry, operationError
}

// CreditManual posts a promotional or compensating grant. Duplicate
// suppression is the caller's responsibility via referenceID uniqueness at
// the event source.
func (service *Service) CreditManual(ctx context.Context, userID string, amount int64, referenceType string, referenceID string, description string, expiresAt *time.Time) (LedgerEntry, error) {
	return service.PostCredit(ctx, userID, amount, referenceType, referenceID, description, expiresAt)
}
