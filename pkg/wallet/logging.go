package wallet

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, record OperationLog)
}

// OperationLog describes a state-changing wallet operation.
type OperationLog struct {
	Operation     string
	UserID        string
	Coins         int64
	ReferenceType string
	ReferenceID   string
	Status        string
	Error         error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithConflictRetries overrides how often a StorageConflict is retried before
// the operation is surfaced as RedemptionUnavailable.
func WithConflictRetries(retries int) ServiceOption {
	return func(service *Service) {
		if retries >= 0 {
			service.conflictRetries = retries
		}
	}
}
