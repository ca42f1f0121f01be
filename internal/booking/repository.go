package booking

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const bookingColumns = `id, guest_id, host_id, total_price, payment_status, created_at, updated_at`

func (r *repository) Create(ctx context.Context, guestID, hostID int, totalPrice int64) (*Booking, error) {
	b := &Booking{}
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO bookings (guest_id, host_id, total_price)
		 VALUES ($1, $2, $3)
		 RETURNING `+bookingColumns,
		guestID, hostID, totalPrice,
	).StructScan(b)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *repository) GetByID(ctx context.Context, id int) (*Booking, error) {
	b := &Booking{}
	err := r.db.GetContext(ctx, b, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *repository) ListByGuest(ctx context.Context, guestID, limit, offset int) ([]Booking, error) {
	bookings := []Booking{}
	err := r.db.SelectContext(ctx, &bookings,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE guest_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		guestID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// TransitionStatus is the only write path for payment_status. The WHERE
// clause on the expected current status makes the transition a CAS: of two
// concurrent movers exactly one sees rows affected.
func (r *repository) TransitionStatus(ctx context.Context, id int, from, to string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings
		 SET payment_status = $3, updated_at = NOW()
		 WHERE id = $1 AND payment_status = $2`,
		id, from, to,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
