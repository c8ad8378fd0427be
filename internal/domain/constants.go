package domain

const (
	RoleConsumer = "CONSUMER"
	RoleMerchant = "MERCHANT"

	TxKindTransfer   = "TRANSFER"
	TxKindPayRequest = "PAY_REQUEST"

	TxStatusPending   = "PENDING"
	TxStatusCompleted = "COMPLETED"
	TxStatusFailed    = "FAILED"

	// Pay request statuses
	PayRequestStatusPending  = "PENDING"
	PayRequestStatusApproved = "APPROVED"
	PayRequestStatusRejected = "REJECTED"

	FailureReasonInsufficientBalance = "Insufficient balance"

	// MaxTransferAmount bounds every amount accepted at intake so balance
	// arithmetic can never approach int64 overflow.
	MaxTransferAmount int64 = 1_000_000_000

	MaxPayRequestMessageLength = 500

	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100

	// Audit entity types
	EntityTransaction = "transaction"
	EntityPayRequest  = "pay_request"
	EntityAccount     = "account"
)

// IsValidRole reports whether role is one of the supported account roles.
func IsValidRole(role string) bool {
	return role == RoleConsumer || role == RoleMerchant
}

// IsTransactionStatus reports whether status names a transaction status.
func IsTransactionStatus(status string) bool {
	switch status {
	case TxStatusPending, TxStatusCompleted, TxStatusFailed:
		return true
	}
	return false
}
