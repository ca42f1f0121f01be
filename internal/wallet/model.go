package wallet

import "time"

const (
	StatusActive = "active"
	StatusLocked = "locked"
)

// Transaction types. Amounts are whole currency units (VND), no fractions.
const (
	TypeDeposit        = "deposit"
	TypeWithdraw       = "withdraw"
	TypeBookingPayment = "booking_payment"
	TypeHostPayout     = "host_payout"
	TypeRefund         = "refund"
)

const (
	TxPending   = "pending"
	TxCompleted = "completed"
	TxFailed    = "failed"
)

// Wallet is a user's stored-value account. Created lazily on first use,
// never deleted; admin lock stops new mutations only.
type Wallet struct {
	ID             int       `db:"id" json:"id"`
	UserID         int       `db:"user_id" json:"user_id"`
	Balance        int64     `db:"balance" json:"balance"`
	TotalDeposited int64     `db:"total_deposited" json:"total_deposited"`
	TotalWithdrawn int64     `db:"total_withdrawn" json:"total_withdrawn"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Transaction is an immutable ledger entry. Once completed or failed it is
// never mutated; corrections are new entries. BalanceBefore/BalanceAfter are
// the point-in-time snapshot taken under the row lock.
type Transaction struct {
	ID            int       `db:"id" json:"id"`
	WalletID      int       `db:"wallet_id" json:"wallet_id"`
	Type          string    `db:"type" json:"type"`
	Amount        int64     `db:"amount" json:"amount"` // signed: credits > 0, debits < 0
	BalanceBefore int64     `db:"balance_before" json:"balance_before"`
	BalanceAfter  int64     `db:"balance_after" json:"balance_after"`
	Status        string    `db:"status" json:"status"`
	ExternalRef   string    `db:"external_ref" json:"external_ref,omitempty"`
	Description   string    `db:"description" json:"description,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Meta carries the ledger-entry fields that accompany a balance change.
type Meta struct {
	Type        string
	ExternalRef string
	Description string
}
