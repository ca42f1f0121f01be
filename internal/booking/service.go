package booking

import (
	"context"
	"errors"
	"fmt"

	"homestay/internal/logger"
	"homestay/internal/metrics"
	"homestay/internal/notify"
	"homestay/internal/wallet"
)

type Service interface {
	Create(ctx context.Context, guestID, hostID int, totalPrice int64) (*Booking, error)
	Get(ctx context.Context, id int) (*Booking, error)
	ListByGuest(ctx context.Context, guestID, limit, offset int) ([]Booking, error)

	// PayWithWallet debits the guest wallet for the full booking total and
	// moves the booking to paid, then settles the host payout.
	PayWithWallet(ctx context.Context, guestID, bookingID int) (*Booking, error)

	// CompleteGatewayPayment and FailGatewayPayment finalize a booking paid
	// directly through a gateway; invoked from the verified callback path.
	CompleteGatewayPayment(ctx context.Context, guestID, bookingID int, amount int64, externalRef string) error
	FailGatewayPayment(ctx context.Context, bookingID int) error

	// Settle re-runs the host payout for a paid booking; a no-op when the
	// payout is already on the ledger. Backs the reconciliation endpoint.
	Settle(ctx context.Context, bookingID int) error

	RequestRefund(ctx context.Context, guestID, bookingID int) error
	ResolveRefund(ctx context.Context, bookingID int, approve bool) (*Booking, error)
}

type service struct {
	repo     Repository
	wallets  wallet.Service
	notifier notify.Publisher

	// commissionPercent of the booking total is withheld from the host
	// payout and credited to the platform wallet.
	commissionPercent int
	platformUserID    int
}

func NewService(repo Repository, wallets wallet.Service, notifier notify.Publisher, commissionPercent, platformUserID int) Service {
	return &service{
		repo:              repo,
		wallets:           wallets,
		notifier:          notifier,
		commissionPercent: commissionPercent,
		platformUserID:    platformUserID,
	}
}

func (s *service) Create(ctx context.Context, guestID, hostID int, totalPrice int64) (*Booking, error) {
	if totalPrice <= 0 {
		return nil, wallet.ErrInvalidAmount
	}
	return s.repo.Create(ctx, guestID, hostID, totalPrice)
}

func (s *service) Get(ctx context.Context, id int) (*Booking, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) ListByGuest(ctx context.Context, guestID, limit, offset int) ([]Booking, error) {
	return s.repo.ListByGuest(ctx, guestID, limit, offset)
}

func bookingRef(id int) string {
	return fmt.Sprintf("booking:%d", id)
}

func (s *service) PayWithWallet(ctx context.Context, guestID, bookingID int) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.GuestID != guestID {
		return nil, ErrNotBookingOwner
	}
	if b.PaymentStatus != PaymentPending {
		return nil, fmt.Errorf("%w: booking is %s", ErrInvalidTransition, b.PaymentStatus)
	}

	// Debit first: the booking only moves to paid once the money is held.
	_, err = s.wallets.Debit(ctx, guestID, b.TotalPrice, wallet.Meta{
		Type:        wallet.TypeBookingPayment,
		ExternalRef: bookingRef(b.ID),
		Description: fmt.Sprintf("payment for booking %d", b.ID),
	})
	if errors.Is(err, wallet.ErrDuplicateRef) {
		// Another request already holds the booking's debit. Fall through
		// and race for the transition on the strength of that debit.
		logger.Warn("booking payment already debited", "booking_id", b.ID)
	} else if err != nil {
		return nil, err
	}

	won, err := s.repo.TransitionStatus(ctx, b.ID, PaymentPending, PaymentPaid)
	if err != nil {
		return nil, err
	}
	if !won {
		// A concurrent call won the transition, and it can only have done so
		// holding this debit: the unique ledger reference permits a single
		// booking:<id> debit, which IS the booking's payment. Reversing it
		// would leave a paid booking unfunded, so report paid as success.
		cur, gErr := s.repo.GetByID(ctx, b.ID)
		if gErr != nil {
			return nil, gErr
		}
		if cur.PaymentStatus != PaymentPaid {
			return nil, fmt.Errorf("%w: booking is %s", ErrInvalidTransition, cur.PaymentStatus)
		}
		logger.Info("booking payment transition lost to concurrent payer",
			"booking_id", b.ID, "guest_id", guestID)
		return cur, nil
	}

	metrics.RecordBookingPayment("wallet")
	s.notifier.Publish(ctx, notify.Event{
		Kind:      notify.EventBookingPaid,
		UserID:    guestID,
		BookingID: b.ID,
		Amount:    b.TotalPrice,
	})
	logger.Info("booking paid from wallet",
		"booking_id", b.ID, "guest_id", guestID, "amount", b.TotalPrice)

	if err := s.settle(ctx, b); err != nil {
		// The booking is paid; settlement is retried by the reconciliation
		// endpoint rather than unwinding the payment.
		logger.WithError(err).Error("host settlement failed", "booking_id", b.ID)
	}

	b.PaymentStatus = PaymentPaid
	return b, nil
}

// CompleteGatewayPayment credits the gateway money into the guest wallet and
// immediately spends it on the booking, leaving a full ledger trail. The
// deposit leg carries the gateway transaction reference, so a replayed
// callback that slipped past the idempotency guard still cannot double-pay.
func (s *service) CompleteGatewayPayment(ctx context.Context, guestID, bookingID int, amount int64, externalRef string) error {
	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.GuestID != guestID {
		return ErrNotBookingOwner
	}
	if amount != b.TotalPrice {
		return fmt.Errorf("%w: got %d, booking total is %d", ErrAmountMismatch, amount, b.TotalPrice)
	}

	_, err = s.wallets.Credit(ctx, guestID, amount, wallet.Meta{
		Type:        wallet.TypeDeposit,
		ExternalRef: externalRef,
		Description: fmt.Sprintf("gateway payment for booking %d", b.ID),
	})
	if errors.Is(err, wallet.ErrDuplicateRef) {
		logger.Warn("gateway payment already credited", "external_ref", externalRef)
	} else if err != nil {
		return err
	}

	_, err = s.wallets.Debit(ctx, guestID, b.TotalPrice, wallet.Meta{
		Type:        wallet.TypeBookingPayment,
		ExternalRef: bookingRef(b.ID),
		Description: fmt.Sprintf("payment for booking %d", b.ID),
	})
	if errors.Is(err, wallet.ErrDuplicateRef) {
		logger.Warn("booking payment already debited", "booking_id", b.ID)
	} else if err != nil {
		return err
	}

	won, err := s.repo.TransitionStatus(ctx, b.ID, PaymentPending, PaymentPaid)
	if err != nil {
		return err
	}
	if !won {
		cur, gErr := s.repo.GetByID(ctx, b.ID)
		if gErr != nil {
			return gErr
		}
		if cur.PaymentStatus != PaymentPaid {
			return fmt.Errorf("%w: booking is %s", ErrInvalidTransition, cur.PaymentStatus)
		}
		// Already paid: settlement below is idempotent, keep going.
	}

	s.notifier.Publish(ctx, notify.Event{
		Kind:      notify.EventBookingPaid,
		UserID:    guestID,
		BookingID: b.ID,
		Amount:    b.TotalPrice,
	})
	logger.Info("booking paid via gateway",
		"booking_id", b.ID, "guest_id", guestID, "external_ref", externalRef)

	return s.settle(ctx, b)
}

// FailGatewayPayment marks a pending booking failed after a declined gateway
// payment. Any other current status means the decline raced a success and is
// ignored.
func (s *service) FailGatewayPayment(ctx context.Context, bookingID int) error {
	won, err := s.repo.TransitionStatus(ctx, bookingID, PaymentPending, PaymentFailed)
	if err != nil {
		return err
	}
	if won {
		logger.Info("booking payment failed", "booking_id", bookingID)
	}
	return nil
}

// settle pays the host their share of the booking total and credits the
// platform commission. Safe to call any number of times for the same booking:
// an existing completed payout entry short-circuits, and the unique ledger
// reference backstops concurrent callers.
func (s *service) settle(ctx context.Context, b *Booking) error {
	ref := bookingRef(b.ID)
	existing, err := s.wallets.CompletedByRef(ctx, wallet.TypeHostPayout, ref)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	commission := b.TotalPrice * int64(s.commissionPercent) / 100
	hostDue := b.TotalPrice - commission

	_, err = s.wallets.Credit(ctx, b.HostID, hostDue, wallet.Meta{
		Type:        wallet.TypeHostPayout,
		ExternalRef: ref,
		Description: fmt.Sprintf("payout for booking %d", b.ID),
	})
	if errors.Is(err, wallet.ErrDuplicateRef) {
		// Concurrent settlement won; nothing left to do.
		return nil
	}
	if err != nil {
		return err
	}

	if commission > 0 {
		_, err = s.wallets.Credit(ctx, s.platformUserID, commission, wallet.Meta{
			Type:        wallet.TypeBookingPayment,
			ExternalRef: ref + ":commission",
			Description: fmt.Sprintf("commission for booking %d", b.ID),
		})
		if err != nil && !errors.Is(err, wallet.ErrDuplicateRef) {
			return err
		}
	}

	metrics.RecordSettlement()
	s.notifier.Publish(ctx, notify.Event{
		Kind:      notify.EventSettlementRecorded,
		UserID:    b.HostID,
		BookingID: b.ID,
		Amount:    hostDue,
	})
	logger.Info("host payout settled",
		"booking_id", b.ID, "host_id", b.HostID, "amount", hostDue, "commission", commission)
	return nil
}

func (s *service) Settle(ctx context.Context, bookingID int) error {
	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.PaymentStatus != PaymentPaid {
		return fmt.Errorf("%w: booking is %s", ErrInvalidTransition, b.PaymentStatus)
	}
	return s.settle(ctx, b)
}

func (s *service) RequestRefund(ctx context.Context, guestID, bookingID int) error {
	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.GuestID != guestID {
		return ErrNotBookingOwner
	}

	won, err := s.repo.TransitionStatus(ctx, bookingID, PaymentPaid, PaymentRefundRequested)
	if err != nil {
		return err
	}
	if !won {
		return fmt.Errorf("%w: booking is %s", ErrInvalidTransition, b.PaymentStatus)
	}

	logger.Info("refund requested", "booking_id", bookingID, "guest_id", guestID)
	return nil
}

// ResolveRefund settles a pending refund request. A rejection moves the
// booking back to paid. An approval returns the full booking total to the
// guest, funded by the host when the payout has settled and by the platform
// wallet otherwise. If the payer wallet cannot cover it the booking stays in
// refund_requested so the resolution can be retried after a top-up.
func (s *service) ResolveRefund(ctx context.Context, bookingID int, approve bool) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.PaymentStatus != PaymentRefundRequested {
		return nil, fmt.Errorf("%w: booking is %s", ErrInvalidTransition, b.PaymentStatus)
	}

	if !approve {
		won, err := s.repo.TransitionStatus(ctx, bookingID, PaymentRefundRequested, PaymentPaid)
		if err != nil {
			return nil, err
		}
		if !won {
			return nil, fmt.Errorf("%w: refund request already resolved", ErrInvalidTransition)
		}
		metrics.RecordRefund("rejected")
		s.notifier.Publish(ctx, notify.Event{
			Kind:      notify.EventRefundResolved,
			UserID:    b.GuestID,
			BookingID: b.ID,
			Detail:    "rejected",
		})
		b.PaymentStatus = PaymentPaid
		return b, nil
	}

	ref := bookingRef(b.ID)
	payerID := s.platformUserID
	settled, err := s.wallets.CompletedByRef(ctx, wallet.TypeHostPayout, ref)
	if err != nil {
		return nil, err
	}
	if settled != nil {
		payerID = b.HostID
	}

	_, err = s.wallets.Debit(ctx, payerID, b.TotalPrice, wallet.Meta{
		Type:        wallet.TypeRefund,
		ExternalRef: ref + ":payer",
		Description: fmt.Sprintf("refund funding for booking %d", b.ID),
	})
	if errors.Is(err, wallet.ErrDuplicateRef) {
		logger.Warn("refund funding already debited", "booking_id", b.ID)
	} else if err != nil {
		return nil, err
	}

	if payerID == s.platformUserID {
		// A concurrent settlement can land the host payout between the
		// CompletedByRef check and the debit above. Once the platform debit
		// is on the ledger the payer choice is fixed, so pull the payout back
		// rather than let the host keep it for a refunded stay. Both legs
		// carry unique references and tolerate a replay.
		late, rErr := s.wallets.CompletedByRef(ctx, wallet.TypeHostPayout, ref)
		if rErr != nil {
			return nil, rErr
		}
		if late != nil {
			_, dErr := s.wallets.Debit(ctx, b.HostID, late.Amount, wallet.Meta{
				Type:        wallet.TypeRefund,
				ExternalRef: ref + ":payout-reversal",
				Description: fmt.Sprintf("payout reversal for refunded booking %d", b.ID),
			})
			if dErr != nil && !errors.Is(dErr, wallet.ErrDuplicateRef) {
				return nil, dErr
			}
			_, cErr := s.wallets.Credit(ctx, s.platformUserID, late.Amount, wallet.Meta{
				Type:        wallet.TypeRefund,
				ExternalRef: ref + ":payout-reversal:platform",
				Description: fmt.Sprintf("payout reversal for refunded booking %d", b.ID),
			})
			if cErr != nil && !errors.Is(cErr, wallet.ErrDuplicateRef) {
				return nil, cErr
			}
			logger.Warn("host payout reversed after refund race",
				"booking_id", b.ID, "host_id", b.HostID, "amount", late.Amount)
		}
	}

	_, err = s.wallets.Credit(ctx, b.GuestID, b.TotalPrice, wallet.Meta{
		Type:        wallet.TypeRefund,
		ExternalRef: ref,
		Description: fmt.Sprintf("refund for booking %d", b.ID),
	})
	if errors.Is(err, wallet.ErrDuplicateRef) {
		logger.Warn("refund already credited", "booking_id", b.ID)
	} else if err != nil {
		return nil, err
	}

	won, err := s.repo.TransitionStatus(ctx, bookingID, PaymentRefundRequested, PaymentRefunded)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, fmt.Errorf("%w: refund request already resolved", ErrInvalidTransition)
	}

	metrics.RecordRefund("approved")
	s.notifier.Publish(ctx, notify.Event{
		Kind:      notify.EventRefundResolved,
		UserID:    b.GuestID,
		BookingID: b.ID,
		Amount:    b.TotalPrice,
		Detail:    "approved",
	})
	logger.Info("refund approved",
		"booking_id", b.ID, "guest_id", b.GuestID, "payer_id", payerID, "amount", b.TotalPrice)

	b.PaymentStatus = PaymentRefunded
	return b, nil
}
