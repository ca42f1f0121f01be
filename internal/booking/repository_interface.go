package booking

import "context"

type Repository interface {
	Create(ctx context.Context, guestID, hostID int, totalPrice int64) (*Booking, error)
	GetByID(ctx context.Context, id int) (*Booking, error)
	ListByGuest(ctx context.Context, guestID, limit, offset int) ([]Booking, error)
	// TransitionStatus moves the booking from one payment status to another
	// and reports whether this call won the transition.
	TransitionStatus(ctx context.Context, id int, from, to string) (bool, error)
}
