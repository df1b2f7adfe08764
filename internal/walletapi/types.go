package walletapi

import (
	"bytes"
	"fmt"

	"github.com/MarkoPoloResearchLab/supercoins/pkg/wallet"
	"github.com/shopspring/decimal"
)

// DecimalValue accepts both JSON numbers and decimal strings. Storefront
// clients historically sent monetary fields as strings; the coercion lives
// here at the boundary, never inside the ledger.
type DecimalValue struct {
	decimal.Decimal
}

// UnmarshalJSON parses a quoted or bare decimal.
func (value *DecimalValue) UnmarshalJSON(raw []byte) error {
	trimmed := bytes.Trim(bytes.TrimSpace(raw), `"`)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		value.Decimal = decimal.Zero
		return nil
	}
	parsed, err := decimal.NewFromString(string(trimmed))
	if err != nil {
		return fmt.Errorf("invalid decimal value %q: %w", string(raw), err)
	}
	value.Decimal = parsed
	return nil
}

// MarshalJSON renders the decimal as a bare number.
func (value DecimalValue) MarshalJSON() ([]byte, error) {
	return []byte(value.Decimal.String()), nil
}

// WalletEnvelope wraps wallet payloads returned by the API endpoints.
type WalletEnvelope struct {
	Wallet WalletPayload `json:"wallet"`
}

// WalletPayload describes the balance snapshot and recent entry history.
type WalletPayload struct {
	Balance BalancePayload `json:"balance"`
	Entries []EntryPayload `json:"entries"`
}

// BalancePayload mirrors the wallet snapshot for the UI.
type BalancePayload struct {
	Balance          int64 `json:"balance"`
	LifetimeEarned   int64 `json:"lifetime_earned"`
	LifetimeRedeemed int64 `json:"lifetime_redeemed"`
	LifetimeExpired  int64 `json:"lifetime_expired"`
}

// EntryPayload mirrors the ledger entry contract for the UI.
type EntryPayload struct {
	ID               uint64 `json:"id"`
	Kind             string `json:"kind"`
	Amount           int64  `json:"amount"`
	RemainingAmount  int64  `json:"remaining_amount"`
	ReferenceType    string `json:"reference_type"`
	ReferenceID      string `json:"reference_id"`
	Description      string `json:"description"`
	ExpiresAtUnixUTC int64  `json:"expires_at_unix_utc"`
	CreatedUnixUTC   int64  `json:"created_unix_utc"`
}

// TransactionsEnvelope is the paginated history response.
type TransactionsEnvelope struct {
	Entries  []EntryPayload `json:"entries"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// RedeemPayload is the spend request posted by checkout.
type RedeemPayload struct {
	Coins       int64        `json:"coins"`
	OrderValue  DecimalValue `json:"order_value"`
	Category    string       `json:"category"`
	ReferenceID string       `json:"reference_id"`
	Description string       `json:"description"`
}

// RedeemEnvelope carries the redemption outcome. Status is "success" or a
// stable policy-failure code; checkout decides whether to block or fall back
// to full-price payment.
type RedeemEnvelope struct {
	Status         string         `json:"status"`
	CoinsUsed      int64          `json:"coins_used"`
	DiscountAmount string         `json:"discount_amount"`
	Wallet         BalancePayload `json:"wallet"`
}

// FirstPurchasePayload triggers the first-purchase bonus.
type FirstPurchasePayload struct {
	OrderID string `json:"order_id"`
}

// ManualCreditPayload is an admin/promotions grant.
type ManualCreditPayload struct {
	UserID        string `json:"user_id"`
	Coins         int64  `json:"coins"`
	ReferenceType string `json:"reference_type"`
	ReferenceID   string `json:"reference_id"`
	Description   string `json:"description"`
	ExpiresInDays int    `json:"expires_in_days"`
}

// SettingsPayload is the admin-facing policy document.
type SettingsPayload struct {
	CoinToCurrencyRatio  DecimalValue `json:"coin_to_currency_ratio"`
	FirstPurchaseCoins   int64        `json:"first_purchase_coins"`
	CoinExpiryDays       int          `json:"coin_expiry_days"`
	MaxUsagePercentage   int64        `json:"max_usage_percentage"`
	MinCartValue         DecimalValue `json:"min_cart_value"`
	MaxRedeemableCoins   int64        `json:"max_redeemable_coins"`
	ApplicableCategories []string     `json:"applicable_categories"`
	IsActive             bool         `json:"is_active"`
}

// SettingsUpdatePayload carries optional overrides. The legacy client field
// name isEnabled is accepted as an alias for is_active.
type SettingsUpdatePayload struct {
	CoinToCurrencyRatio  *DecimalValue `json:"coin_to_currency_ratio"`
	FirstPurchaseCoins   *int64        `json:"first_purchase_coins"`
	CoinExpiryDays       *int          `json:"coin_expiry_days"`
	MaxUsagePercentage   *int64        `json:"max_usage_percentage"`
	MinCartValue         *DecimalValue `json:"min_cart_value"`
	MaxRedeemableCoins   *int64        `json:"max_redeemable_coins"`
	ApplicableCategories *[]string     `json:"applicable_categories"`
	IsActive             *bool         `json:"is_active"`
	IsEnabledLegacy      *bool         `json:"isEnabled"`
}

// ToPatch translates the boundary payload into a core settings patch.
func (payload SettingsUpdatePayload) ToPatch() wallet.SettingsPatch {
	patch := wallet.SettingsPatch{
		FirstPurchaseCoins:   payload.FirstPurchaseCoins,
		CoinExpiryDays:       payload.CoinExpiryDays,
		MaxUsagePercentage:   payload.MaxUsagePercentage,
		MaxRedeemableCoins:   payload.MaxRedeemableCoins,
		ApplicableCategories: payload.ApplicableCategories,
		IsActive:             payload.IsActive,
	}
	if payload.CoinToCurrencyRatio != nil {
		ratio := payload.CoinToCurrencyRatio.Decimal
		patch.CoinToCurrencyRatio = &ratio
	}
	if payload.MinCartValue != nil {
		minCart := payload.MinCartValue.Decimal
		patch.MinCartValue = &minCart
	}
	if patch.IsActive == nil && payload.IsEnabledLegacy != nil {
		patch.IsActive = payload.IsEnabledLegacy
	}
	return patch
}

func settingsPayloadFrom(settings wallet.Settings) SettingsPayload {
	return SettingsPayload{
		CoinToCurrencyRatio:  DecimalValue{settings.CoinToCurrencyRatio},
		FirstPurchaseCoins:   settings.FirstPurchaseCoins,
		CoinExpiryDays:       settings.CoinExpiryDays,
		MaxUsagePercentage:   settings.MaxUsagePercentage,
		MinCartValue:         DecimalValue{settings.MinCartValue},
		MaxRedeemableCoins:   settings.MaxRedeemableCoins,
		ApplicableCategories: settings.ApplicableCategories,
		IsActive:             settings.IsActive,
	}
}

func balancePayloadFrom(snapshot wallet.WalletSnapshot) BalancePayload {
	return BalancePayload{
		Balance:          snapshot.Balance,
		LifetimeEarned:   snapshot.LifetimeEarned,
		LifetimeRedeemed: snapshot.LifetimeRedeemed,
		LifetimeExpired:  snapshot.LifetimeExpired,
	}
}

func entryPayloadFrom(entry wallet.LedgerEntry) EntryPayload {
	var expiresAt int64
	if entry.ExpiresAt != nil {
		expiresAt = entry.ExpiresAt.Unix()
	}
	return EntryPayload{
		ID:               entry.ID,
		Kind:             entry.Kind.String(),
		Amount:           entry.Amount,
		RemainingAmount:  entry.RemainingAmount,
		ReferenceType:    entry.ReferenceType,
		ReferenceID:      entry.ReferenceID,
		Description:      entry.Description,
		ExpiresAtUnixUTC: expiresAt,
		CreatedUnixUTC:   entry.CreatedAt.Unix(),
	}
}

func entryPayloadsFrom(entries []wallet.LedgerEntry) []EntryPayload {
	payloads := make([]EntryPayload, 0, len(entries))
	for _, entry := range entries {
		payloads = append(payloads, entryPayloadFrom(entry))
	}
	return payloads
}

// ErrorEnvelope encodes API errors.
type ErrorEnvelope struct {
	Error ErrorPayload `json:"error"`
}

// ErrorPayload contains the code and message for user-visible errors.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
