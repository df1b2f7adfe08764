package wallet

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var decimalHundred = decimal.NewFromInt(100)

// Redeem turns a spend request into a currency discount, enforcing every
// policy limit atomically with the ledger debit. The first failing check
// wins and leaves no side effects. When the requested coins exceed the
// per-order percentage ceiling the spend is clamped, not rejected; a clamp
// down to zero fails with UsagePercentageExceeded.
func (service *Service) Redeem(ctx context.Context, request RedeemRequest) (RedeemResult, error) {
	var result RedeemResult
	referenceType := request.ReferenceType
	if referenceType == "" {
		referenceType = ReferenceOrderDiscount
	}
	operationError := func() error {
		normalizedUserID, err := NewUserID(request.UserID)
		if err != nil {
			return err
		}
		return service.runInTx(ctx, func(ctx context.Context, txStore Store) error {
			settings, err := txStore.GetSettings(ctx)
			if err != nil {
				return err
			}
			if !settings.IsActive {
				return ErrWalletDisabled
			}
			if request.RequestedCoins <= 0 {
				return ErrInvalidAmount
			}
			if request.OrderValue.LessThan(settings.MinCartValue) {
				return ErrBelowMinimumCartValue
			}
			if !settings.CategoryEligible(request.Category) {
				return ErrCategoryNotEligible
			}
			// A zero cap means no per-transaction limit.
			if settings.MaxRedeemableCoins > 0 && request.RequestedCoins > settings.MaxRedeemableCoins {
				return ErrExceedsPerTransactionCap
			}
			snapshot, err := txStore.GetWalletForUpdate(ctx, normalizedUserID)
			if err != nil {
				if errors.Is(err, ErrWalletNotFound) {
					return ErrInsufficientBalance
				}
				return err
			}
			if request.RequestedCoins > snapshot.Balance {
				return ErrInsufficientBalance
			}
			coinsUsed := clampToUsageCeiling(request.RequestedCoins, request.OrderValue, settings)
			if coinsUsed <= 0 {
				return ErrUsagePercentageExceeded
			}
			entry, err := service.debitLockedTx(ctx, txStore, snapshot, coinsUsed, referenceType, request.ReferenceID, request.Description)
			if err != nil {
				return err
			}
			result = RedeemResult{
				CoinsUsed:      coinsUsed,
				DiscountAmount: settings.CoinToCurrencyRatio.Mul(decimal.NewFromInt(coinsUsed)),
				Entry:          entry,
			}
			return nil
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation:     operationRedeem,
		UserID:        request.UserID,
		Coins:         result.CoinsUsed,
		ReferenceType: referenceType,
		ReferenceID:   request.ReferenceID,
		Error:         operationError,
	})
	return result, operationError
}

// clampToUsageCeiling caps the spend at the fraction of the order value the
// policy allows to be paid in coins.
func clampToUsageCeiling(requestedCoins int64, orderValue decimal.Decimal, settings Settings) int64 {
	maxCoinValue := orderValue.
		Mul(decimal.NewFromInt(settings.MaxUsagePercentage)).
		Div(decimalHundred).
		Floor()
	requestedValue := settings.CoinToCurrencyRatio.Mul(decimal.NewFromInt(requestedCoins))
	if !requestedValue.GreaterThan(maxCoinValue) {
		return requestedCoins
	}
	return maxCoinValue.Div(settings.CoinToCurrencyRatio).Floor().IntPart()
}
