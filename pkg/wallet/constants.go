package wallet

const (
	operationCredit   = "credit"
	operationDebit    = "debit"
	operationRedeem   = "redeem"
	operationAccrue   = "accrue"
	operationExpire   = "expire"
	operationSettings = "settings"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	defaultConflictRetries = 3
	defaultSweepBatchLimit = 100

	defaultPageSize = 20
	maxPageSize     = 200
)
