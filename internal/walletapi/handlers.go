package walletapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MarkoPoloResearchLab/supercoins/internal/metrics"
	"github.com/MarkoPoloResearchLab/supercoins/pkg/wallet"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	statusSuccess = "success"

	codeUnauthorized   = "unauthorized"
	codeForbidden      = "forbidden"
	codeInvalidPayload = "invalid_payload"
	codeWalletError    = "wallet_error"
)

type httpHandler struct {
	logger  *zap.Logger
	service *wallet.Service
}

func (handler *httpHandler) handleWallet(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(codeUnauthorized, "missing session"))
		return
	}
	handler.respondWithWallet(ctx, claims.GetUserID())
}

func (handler *httpHandler) handleTransactions(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(codeUnauthorized, "missing session"))
		return
	}
	page := queryInt(ctx, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := queryInt(ctx, "page_size", 20)
	if pageSize < 1 {
		pageSize = 20
	}
	entries, total, err := handler.service.ListTransactions(ctx.Request.Context(), claims.GetUserID(), page, pageSize)
	if err != nil {
		handler.logger.Error("transactions list failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse(codeWalletError, "transactions unavailable"))
		return
	}
	ctx.JSON(http.StatusOK, TransactionsEnvelope{
		Entries:  entryPayloadsFrom(entries),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

func (handler *httpHandler) handleRedeem(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(codeUnauthorized, "missing session"))
		return
	}
	var payload RedeemPayload
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "expected JSON body"))
		return
	}
	result, err := handler.service.Redeem(ctx.Request.Context(), wallet.RedeemRequest{
		UserID:         claims.GetUserID(),
		RequestedCoins: payload.Coins,
		OrderValue:     payload.OrderValue.Decimal,
		Category:       payload.Category,
		ReferenceID:    payload.ReferenceID,
		Description:    payload.Description,
	})
	if err != nil {
		status, ok := redeemFailureStatus(err)
		if !ok {
			if errors.Is(err, wallet.ErrRedemptionUnavailable) {
				metrics.RedemptionsTotal.WithLabelValues("redemption_unavailable").Inc()
				ctx.JSON(http.StatusServiceUnavailable, errorResponse("redemption_unavailable", "try again later"))
				return
			}
			handler.logger.Error("redeem failed", zap.Error(err))
			ctx.JSON(http.StatusInternalServerError, errorResponse(codeWalletError, "redeem failed"))
			return
		}
		// Policy failures are typed results for checkout, not errors.
		metrics.RedemptionsTotal.WithLabelValues(status).Inc()
		handler.respondRedeemStatus(ctx, status, claims.GetUserID(), wallet.RedeemResult{})
		return
	}
	metrics.RedemptionsTotal.WithLabelValues(statusSuccess).Inc()
	metrics.CoinsRedeemedTotal.Add(float64(result.CoinsUsed))
	handler.respondRedeemStatus(ctx, statusSuccess, claims.GetUserID(), result)
}

func (handler *httpHandler) handleFirstPurchase(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(codeUnauthorized, "missing session"))
		return
	}
	var payload FirstPurchasePayload
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "expected JSON body"))
		return
	}
	entry, err := handler.service.CreditFirstPurchaseBonus(ctx.Request.Context(), claims.GetUserID(), payload.OrderID)
	if err != nil {
		handler.logger.Error("first purchase bonus failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse(codeWalletError, "credit failed"))
		return
	}
	metrics.CoinsCreditedTotal.Add(float64(entry.Amount))
	handler.respondWithWallet(ctx, claims.GetUserID())
}

func (handler *httpHandler) handleManualCredit(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(codeUnauthorized, "missing session"))
		return
	}
	if !hasRole(claims, adminRole) {
		ctx.JSON(http.StatusForbidden, errorResponse(codeForbidden, "admin role required"))
		return
	}
	var payload ManualCreditPayload
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "expected JSON body"))
		return
	}
	referenceType := payload.ReferenceType
	if referenceType == "" {
		referenceType = wallet.ReferenceManualRedeem
	}
	referenceID := payload.ReferenceID
	if referenceID == "" {
		referenceID = uuid.NewString()
	}
	var expiresAt *time.Time
	if payload.ExpiresInDays > 0 {
		value := time.Now().UTC().AddDate(0, 0, payload.ExpiresInDays)
		expiresAt = &value
	}
	entry, err := handler.service.CreditManual(ctx.Request.Context(), payload.UserID, payload.Coins, referenceType, referenceID, payload.Description, expiresAt)
	if err != nil {
		if errors.Is(err, wallet.ErrInvalidAmount) || errors.Is(err, wallet.ErrInvalidUserID) {
			ctx.JSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, err.Error()))
			return
		}
		handler.logger.Error("manual credit failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse(codeWalletError, "credit failed"))
		return
	}
	metrics.CoinsCreditedTotal.Add(float64(entry.Amount))
	handler.respondWithWallet(ctx, payload.UserID)
}

func (handler *httpHandler) handleGetSettings(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(codeUnauthorized, "missing session"))
		return
	}
	if !hasRole(claims, adminRole) {
		ctx.JSON(http.StatusForbidden, errorResponse(codeForbidden, "admin role required"))
		return
	}
	settings, err := handler.service.GetSettings(ctx.Request.Context())
	if err != nil {
		handler.logger.Error("settings fetch failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse(codeWalletError, "settings unavailable"))
		return
	}
	ctx.JSON(http.StatusOK, settingsPayloadFrom(settings))
}

func (handler *httpHandler) handleUpdateSettings(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(codeUnauthorized, "missing session"))
		return
	}
	if !hasRole(claims, adminRole) {
		ctx.JSON(http.StatusForbidden, errorResponse(codeForbidden, "admin role required"))
		return
	}
	var payload SettingsUpdatePayload
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "expected JSON body"))
		return
	}
	settings, err := handler.service.UpdateSettings(ctx.Request.Context(), payload.ToPatch())
	if err != nil {
		if errors.Is(err, wallet.ErrInvalidSettings) {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_settings", err.Error()))
			return
		}
		handler.logger.Error("settings update failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse(codeWalletError, "settings update failed"))
		return
	}
	ctx.JSON(http.StatusOK, settingsPayloadFrom(settings))
}

func (handler *httpHandler) respondRedeemStatus(ctx *gin.Context, status string, userID string, result wallet.RedeemResult) {
	snapshot := handler.fetchSnapshot(ctx.Request.Context(), userID)
	discount := "0"
	if result.CoinsUsed > 0 {
		discount = result.DiscountAmount.String()
	}
	ctx.JSON(http.StatusOK, RedeemEnvelope{
		Status:         status,
		CoinsUsed:      result.CoinsUsed,
		DiscountAmount: discount,
		Wallet:         balancePayloadFrom(snapshot),
	})
}

func (handler *httpHandler) respondWithWallet(ctx *gin.Context, userID string) {
	snapshot := handler.fetchSnapshot(ctx.Request.Context(), userID)
	entries, _, err := handler.service.ListTransactions(ctx.Request.Context(), userID, 1, walletHistoryLimit)
	if err != nil {
		handler.logger.Error("wallet history fetch failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse(codeWalletError, "wallet unavailable"))
		return
	}
	ctx.JSON(http.StatusOK, WalletEnvelope{Wallet: WalletPayload{
		Balance: balancePayloadFrom(snapshot),
		Entries: entryPayloadsFrom(entries),
	}})
}

// fetchSnapshot treats a never-credited user as a zero balance, per the API
// boundary contract.
func (handler *httpHandler) fetchSnapshot(ctx context.Context, userID string) wallet.WalletSnapshot {
	snapshot, err := handler.service.GetBalance(ctx, userID)
	if err != nil {
		if !errors.Is(err, wallet.ErrWalletNotFound) {
			handler.logger.Error("balance fetch failed", zap.Error(err))
		}
		return wallet.WalletSnapshot{UserID: userID}
	}
	return snapshot
}

// redeemFailureStatus maps policy failures to the stable status codes the
// checkout flow consumes.
func redeemFailureStatus(err error) (string, bool) {
	switch {
	case errors.Is(err, wallet.ErrWalletDisabled):
		return "wallet_disabled", true
	case errors.Is(err, wallet.ErrInvalidAmount):
		return "invalid_amount", true
	case errors.Is(err, wallet.ErrBelowMinimumCartValue):
		return "below_minimum_cart_value", true
	case errors.Is(err, wallet.ErrCategoryNotEligible):
		return "category_not_eligible", true
	case errors.Is(err, wallet.ErrExceedsPerTransactionCap):
		return "exceeds_per_transaction_cap", true
	case errors.Is(err, wallet.ErrInsufficientBalance):
		return "insufficient_balance", true
	case errors.Is(err, wallet.ErrUsagePercentageExceeded):
		return "usage_percentage_exceeded", true
	}
	return "", false
}

func queryInt(ctx *gin.Context, name string, fallback int) int {
	raw := ctx.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
