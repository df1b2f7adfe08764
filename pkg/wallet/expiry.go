package wallet

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// SweepExpired converts unconsumed, time-expired credit remainders into
// EXPIRED debits. Each credit entry is expired in its own transaction bound
// to that specific entry, so the sweep can never consume coins from a
// younger, non-expired credit, and re-running it is a no-op for entries
// whose remainder already reached zero. A failure on one entry is counted
// and skipped; it never aborts the sweep for other users.
func (service *Service) SweepExpired(ctx context.Context, asOf time.Time, batchLimit int) (SweepReport, error) {
	if batchLimit <= 0 {
		batchLimit = defaultSweepBatchLimit
	}
	var report SweepReport
	var afterID uint64
	for {
		credits, err := service.store.ListExpiredCredits(ctx, asOf, afterID, batchLimit)
		if err != nil {
			return report, err
		}
		if len(credits) == 0 {
			return report, nil
		}
		for _, credit := range credits {
			afterID = credit.ID
			report.Scanned++
			coins, err := service.expireCredit(ctx, credit)
			if err != nil {
				report.Failures++
				continue
			}
			if coins > 0 {
				report.Expired++
				report.CoinsExpired += coins
			}
		}
		if len(credits) < batchLimit {
			return report, nil
		}
	}
}

// expireCredit expires whatever remains of one specific credit entry.
func (service *Service) expireCredit(ctx context.Context, credit LedgerEntry) (int64, error) {
	var coins int64
	operationError := service.runInTx(ctx, func(ctx context.Context, txStore Store) error {
		coins = 0
		// Wallet row first, then the credit row: same lock order as the
		// debit path, so sweep and redemption cannot deadlock.
		snapshot, err := txStore.GetWalletForUpdate(ctx, credit.UserID)
		if err != nil {
			return err
		}
		current, err := txStore.GetCreditForUpdate(ctx, credit.UserID, credit.ID)
		if err != nil {
			return err
		}
		if current.RemainingAmount == 0 {
			// Fully consumed by redemption or an earlier sweep.
			return nil
		}
		remainder := current.RemainingAmount
		if err := txStore.ConsumeCredit(ctx, current.ID, remainder); err != nil {
			return err
		}
		if snapshot.Balance < remainder {
			return WrapError("service", "ledger", "expiry_underflow", ErrLedgerInconsistent)
		}
		if _, err := txStore.InsertEntry(ctx, EntryInput{
			UserID:        credit.UserID,
			Kind:          KindExpired,
			Amount:        remainder,
			ReferenceType: ReferenceExpired,
			ReferenceID:   strconv.FormatUint(current.ID, 10),
			Description:   "coins expired",
			CreatedAt:     service.nowFn(),
		}); err != nil {
			return err
		}
		snapshot.Balance -= remainder
		snapshot.LifetimeExpired += remainder
		if err := txStore.UpdateWalletTotals(ctx, snapshot); err != nil {
			return err
		}
		coins = remainder
		return nil
	})
	if operationError != nil && errors.Is(operationError, ErrWalletNotFound) {
		// A credit row without a wallet row cannot happen through this
		// service; treat it as a per-entry failure, not a sweep abort.
		operationError = WrapError("service", "ledger", "wallet_missing", ErrLedgerInconsistent)
	}
	if operationError != nil && errors.Is(operationError, ErrRedemptionUnavailable) {
		// Retry exhaustion in a background sweep is an ordinary conflict;
		// the next sweep run picks the entry up again.
		operationError = WrapError("service", "ledger", "expiry_conflict", ErrStorageConflict)
	}
	service.logOperation(ctx, OperationLog{
		Operation:     operationExpire,
		UserID:        credit.UserID,
		Coins:         coins,
		ReferenceType: ReferenceExpired,
		ReferenceID:   strconv.FormatUint(credit.ID, 10),
		Error:         operationError,
	})
	return coins, operationError
}
