package wallet

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CoinExpiryNever disables expiry for newly earned credits.
const CoinExpiryNever = 0

// Settings is the tenant-wide redemption policy. A single active row,
// admin-mutated; changes apply to subsequent operations only and never
// rewrite past ledger entries.
type Settings struct {
	CoinToCurrencyRatio  decimal.Decimal
	FirstPurchaseCoins   int64
	CoinExpiryDays       int
	MaxUsagePercentage   int64
	MinCartValue         decimal.Decimal
	MaxRedeemableCoins   int64
	ApplicableCategories []string
	IsActive             bool
}

// DefaultSettings returns the policy used before an operator saves one.
func DefaultSettings() Settings {
	return Settings{
		CoinToCurrencyRatio: decimal.NewFromInt(1),
		FirstPurchaseCoins:  0,
		CoinExpiryDays:      365,
		MaxUsagePercentage:  100,
		MinCartValue:        decimal.Zero,
		MaxRedeemableCoins:  0,
		IsActive:            true,
	}
}

// Validate ensures the policy contains sane values.
func (settings Settings) Validate() error {
	if !settings.CoinToCurrencyRatio.IsPositive() {
		return fmt.Errorf("%w: coin to currency ratio must be greater than zero", ErrInvalidSettings)
	}
	if settings.FirstPurchaseCoins < 0 {
		return fmt.Errorf("%w: first purchase coins must not be negative", ErrInvalidSettings)
	}
	if settings.CoinExpiryDays < CoinExpiryNever {
		return fmt.Errorf("%w: coin expiry days must not be negative", ErrInvalidSettings)
	}
	if settings.MaxUsagePercentage < 0 || settings.MaxUsagePercentage > 100 {
		return fmt.Errorf("%w: max usage percentage must be between 0 and 100", ErrInvalidSettings)
	}
	if settings.MinCartValue.IsNegative() {
		return fmt.Errorf("%w: min cart value must not be negative", ErrInvalidSettings)
	}
	if settings.MaxRedeemableCoins < 0 {
		return fmt.Errorf("%w: max redeemable coins must not be negative", ErrInvalidSettings)
	}
	return nil
}

// CategoryEligible reports whether an order category may receive a coin
// discount. An empty category set means every category is eligible.
func (settings Settings) CategoryEligible(category string) bool {
	if len(settings.ApplicableCategories) == 0 {
		return true
	}
	for _, eligible := range settings.ApplicableCategories {
		if eligible == category {
			return true
		}
	}
	return false
}

// ExpiryFor computes the expiry horizon for a credit earned now, or nil when
// the policy never expires coins.
func (settings Settings) ExpiryFor(now time.Time) *time.Time {
	if settings.CoinExpiryDays == CoinExpiryNever {
		return nil
	}
	expiresAt := now.AddDate(0, 0, settings.CoinExpiryDays)
	return &expiresAt
}

// SettingsPatch carries optional overrides for an admin settings update.
// Nil fields leave the stored value untouched.
type SettingsPatch struct {
	CoinToCurrencyRatio  *decimal.Decimal
	FirstPurchaseCoins   *int64
	CoinExpiryDays       *int
	MaxUsagePercentage   *int64
	MinCartValue         *decimal.Decimal
	MaxRedeemableCoins   *int64
	ApplicableCategories *[]string
	IsActive             *bool
}

// ApplyTo merges the patch over an existing policy.
func (patch SettingsPatch) ApplyTo(settings Settings) Settings {
	if patch.CoinToCurrencyRatio != nil {
		settings.CoinToCurrencyRatio = *patch.CoinToCurrencyRatio
	}
	if patch.FirstPurchaseCoins != nil {
		settings.FirstPurchaseCoins = *patch.FirstPurchaseCoins
	}
	if patch.CoinExpiryDays != nil {
		settings.CoinExpiryDays = *patch.CoinExpiryDays
	}
	if patch.MaxUsagePercentage != nil {
		settings.MaxUsagePercentage = *patch.MaxUsagePercentage
	}
	if patch.MinCartValue != nil {
		settings.MinCartValue = *patch.MinCartValue
	}
	if patch.MaxRedeemableCoins != nil {
		settings.MaxRedeemableCoins = *patch.MaxRedeemableCoins
	}
	if patch.ApplicableCategories != nil {
		settings.ApplicableCategories = *patch.ApplicableCategories
	}
	if patch.IsActive != nil {
		settings.IsActive = *patch.IsActive
	}
	return settings
}
