package main

import (
	"context"

	"github.com/MarkoPoloResearchLab/supercoins/pkg/wallet"
	"go.uber.org/zap"
)

type zapOperationLogger struct {
	logger *zap.Logger
}

func newZapOperationLogger(logger *zap.Logger) *zapOperationLogger {
	return &zapOperationLogger{logger: logger}
}

func (adapter *zapOperationLogger) LogOperation(_ context.Context, record wallet.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", record.Operation),
		zap.String("user_id", record.UserID),
		zap.Int64("coins", record.Coins),
		zap.String("reference_type", record.ReferenceType),
		zap.String("reference_id", record.ReferenceID),
		zap.String("status", record.Status),
	}
	if record.Error != nil {
		fields = append(fields, zap.Error(record.Error))
		adapter.logger.Warn("wallet operation failed", fields...)
		return
	}
	adapter.logger.Info("wallet operation", fields...)
}
