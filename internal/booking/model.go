package booking

import "time"

// Payment lifecycle of a booking. Transitions are compare-and-swap on the
// current status, so two concurrent writers can never both move the same
// booking.
const (
	PaymentPending         = "pending"
	PaymentPaid            = "paid"
	PaymentFailed          = "failed"
	PaymentRefundRequested = "refund_requested"
	PaymentRefunded        = "refunded"
)

type Booking struct {
	ID            int       `db:"id" json:"id"`
	GuestID       int       `db:"guest_id" json:"guest_id"`
	HostID        int       `db:"host_id" json:"host_id"`
	TotalPrice    int64     `db:"total_price" json:"total_price"`
	PaymentStatus string    `db:"payment_status" json:"payment_status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}
