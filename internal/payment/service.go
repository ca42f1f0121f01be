package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"homestay/internal/gateway"
	"homestay/internal/logger"
	"homestay/internal/metrics"
	"homestay/internal/notify"
	"homestay/internal/wallet"
)

var (
	ErrUnknownGateway = errors.New("unknown payment gateway")

	// ErrRequestInFlight is returned for a retried request whose first
	// attempt is still being processed.
	ErrRequestInFlight = errors.New("request already in flight")
)

// Guard is the duplicate-delivery filter the callback path runs behind.
// Satisfied by idempotency.Guard.
type Guard interface {
	Admit(ctx context.Context, ref string) (first bool, cached string, err error)
	Record(ctx context.Context, ref, outcome string) error
	Release(ctx context.Context, ref string) error
}

// BookingSettler finalizes a booking paid directly through a gateway.
// Implemented by the booking service; defined here to keep the dependency
// pointing from booking to payment-agnostic wallet code only.
type BookingSettler interface {
	CompleteGatewayPayment(ctx context.Context, guestID, bookingID int, amount int64, externalRef string) error
	FailGatewayPayment(ctx context.Context, bookingID int) error
}

// Ack is what the callback endpoints answer the gateway with. Duplicate
// deliveries are acknowledged as processed so the gateway stops retrying.
type Ack struct {
	Outcome   gateway.Outcome
	Duplicate bool
}

type Service interface {
	InitiateDeposit(ctx context.Context, userID int, gatewayName string, amount int64, clientIP string) (string, error)
	InitiateBookingPayment(ctx context.Context, userID, bookingID int, gatewayName string, amount int64, clientIP string) (string, error)
	HandleCallback(ctx context.Context, gatewayName string, params map[string]string) (*Ack, error)
	VerifyReturn(gatewayName string, params map[string]string) (*gateway.CallbackResult, error)
	Withdraw(ctx context.Context, userID int, amount int64, idemKey string) (*wallet.Transaction, error)
}

type service struct {
	wallets  wallet.Service
	guard    Guard
	adapters map[string]gateway.Adapter
	settler  BookingSettler
	notifier notify.Publisher
}

func NewService(wallets wallet.Service, guard Guard, settler BookingSettler, notifier notify.Publisher, adapters ...gateway.Adapter) Service {
	m := make(map[string]gateway.Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Name()] = a
	}
	return &service{
		wallets:  wallets,
		guard:    guard,
		adapters: m,
		settler:  settler,
		notifier: notifier,
	}
}

func (s *service) InitiateDeposit(ctx context.Context, userID int, gatewayName string, amount int64, clientIP string) (string, error) {
	if amount <= 0 {
		return "", wallet.ErrInvalidAmount
	}
	adapter, ok := s.adapters[gatewayName]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownGateway, gatewayName)
	}

	// Ensure the wallet exists before the gateway round trip starts.
	if _, err := s.wallets.GetOrCreate(ctx, userID); err != nil {
		return "", err
	}

	redirect, err := adapter.BuildPaymentRequest(gateway.PaymentRequest{
		Amount: amount,
		Intent: gateway.Intent{
			UserID:   userID,
			Kind:     gateway.IntentDeposit,
			IssuedAt: time.Now().Unix(),
		},
		OrderInfo: "wallet deposit",
		ClientIP:  clientIP,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build %s payment request: %w", gatewayName, err)
	}

	logger.Info("deposit initiated", "user_id", userID, "gateway", gatewayName, "amount", amount)
	return redirect, nil
}

func (s *service) InitiateBookingPayment(ctx context.Context, userID, bookingID int, gatewayName string, amount int64, clientIP string) (string, error) {
	if amount <= 0 {
		return "", wallet.ErrInvalidAmount
	}
	adapter, ok := s.adapters[gatewayName]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownGateway, gatewayName)
	}

	redirect, err := adapter.BuildPaymentRequest(gateway.PaymentRequest{
		Amount: amount,
		Intent: gateway.Intent{
			UserID:    userID,
			Kind:      gateway.IntentBooking,
			BookingID: bookingID,
			IssuedAt:  time.Now().Unix(),
		},
		OrderInfo: fmt.Sprintf("booking %d payment", bookingID),
		ClientIP:  clientIP,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build %s payment request: %w", gatewayName, err)
	}

	logger.Info("booking payment initiated",
		"user_id", userID, "booking_id", bookingID, "gateway", gatewayName, "amount", amount)
	return redirect, nil
}

// HandleCallback processes one gateway delivery end to end: verify the
// signature, collapse duplicates, apply the money effect exactly once, then
// record the outcome so later retries are answered from cache.
func (s *service) HandleCallback(ctx context.Context, gatewayName string, params map[string]string) (*Ack, error) {
	adapter, ok := s.adapters[gatewayName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, gatewayName)
	}

	// Verification is pure; nothing is admitted or applied until the
	// signature checks out.
	res, err := adapter.VerifyCallback(params)
	if err != nil {
		metrics.RecordCallback(gatewayName, "rejected")
		logger.WithError(err).Error("gateway callback rejected", "gateway", gatewayName)
		return nil, err
	}

	first, cached, err := s.guard.Admit(ctx, res.ExternalRef)
	if err != nil {
		return nil, fmt.Errorf("idempotency admit failed: %w", err)
	}
	if !first {
		metrics.RecordCallback(gatewayName, "duplicate")
		logger.Info("duplicate gateway callback",
			"gateway", gatewayName, "external_ref", res.ExternalRef)
		outcome := res.Outcome
		if cached != "" {
			outcome = gateway.Outcome(cached)
		}
		return &Ack{Outcome: outcome, Duplicate: true}, nil
	}

	if err := s.applyCallback(ctx, gatewayName, res); err != nil {
		// No effect was applied; free the slot so the gateway's retry
		// can be processed.
		if relErr := s.guard.Release(ctx, res.ExternalRef); relErr != nil {
			logger.WithError(relErr).Error("failed to release idempotency slot",
				"external_ref", res.ExternalRef)
		}
		return nil, err
	}

	if err := s.guard.Record(ctx, res.ExternalRef, string(res.Outcome)); err != nil {
		// The effect is durable; a failed record only costs one wasted
		// duplicate lookup later.
		logger.WithError(err).Error("failed to record callback outcome",
			"external_ref", res.ExternalRef)
	}

	metrics.RecordCallback(gatewayName, string(res.Outcome))
	return &Ack{Outcome: res.Outcome}, nil
}

// VerifyReturn checks a browser redirect's signature and reports the outcome
// without touching any ledger state. Only the server-to-server callback is
// trusted to move money; the redirect exists to tell the user what happened.
func (s *service) VerifyReturn(gatewayName string, params map[string]string) (*gateway.CallbackResult, error) {
	adapter, ok := s.adapters[gatewayName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, gatewayName)
	}

	res, err := adapter.VerifyCallback(params)
	if err != nil {
		logger.WithError(err).Error("gateway return rejected", "gateway", gatewayName)
		return nil, err
	}
	return res, nil
}

func (s *service) applyCallback(ctx context.Context, gatewayName string, res *gateway.CallbackResult) error {
	switch res.Intent.Kind {
	case gateway.IntentDeposit:
		return s.applyDeposit(ctx, gatewayName, res)
	case gateway.IntentBooking:
		return s.applyBookingPayment(ctx, gatewayName, res)
	default:
		return fmt.Errorf("%w: unknown intent kind %q", gateway.ErrMalformedCallback, res.Intent.Kind)
	}
}

func (s *service) applyDeposit(ctx context.Context, gatewayName string, res *gateway.CallbackResult) error {
	meta := wallet.Meta{
		Type:        wallet.TypeDeposit,
		ExternalRef: res.ExternalRef,
		Description: fmt.Sprintf("deposit via %s", gatewayName),
	}

	if res.Outcome == gateway.OutcomeFailure {
		if _, err := s.wallets.RecordFailed(ctx, res.Intent.UserID, meta); err != nil {
			return fmt.Errorf("failed to record failed deposit: %w", err)
		}
		return nil
	}

	_, err := s.wallets.Credit(ctx, res.Intent.UserID, res.Amount, meta)
	if errors.Is(err, wallet.ErrDuplicateRef) {
		// The ledger already holds this gateway transaction; the credit
		// was applied by an earlier delivery that lost its redis slot.
		logger.Warn("deposit already recorded", "external_ref", res.ExternalRef)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to credit deposit: %w", err)
	}

	metrics.RecordDeposit(gatewayName)
	s.notifier.Publish(ctx, notify.Event{
		Kind:   notify.EventDepositCompleted,
		UserID: res.Intent.UserID,
		Amount: res.Amount,
		Detail: gatewayName,
	})
	logger.Info("deposit completed",
		"user_id", res.Intent.UserID, "amount", res.Amount, "external_ref", res.ExternalRef)
	return nil
}

func (s *service) applyBookingPayment(ctx context.Context, gatewayName string, res *gateway.CallbackResult) error {
	if s.settler == nil {
		return errors.New("booking settler not configured")
	}

	if res.Outcome == gateway.OutcomeFailure {
		if err := s.settler.FailGatewayPayment(ctx, res.Intent.BookingID); err != nil {
			return fmt.Errorf("failed to mark booking payment failed: %w", err)
		}
		return nil
	}

	err := s.settler.CompleteGatewayPayment(ctx,
		res.Intent.UserID, res.Intent.BookingID, res.Amount, res.ExternalRef)
	if err != nil {
		return fmt.Errorf("failed to complete gateway booking payment: %w", err)
	}

	metrics.RecordBookingPayment(gatewayName)
	return nil
}

// Withdraw debits the wallet immediately; the ledger entry is the payout
// instruction a back-office job fulfills out of band. idemKey collapses
// client retries of the same request: a repeat delivery is answered with
// the original ledger entry instead of a second debit.
func (s *service) Withdraw(ctx context.Context, userID int, amount int64, idemKey string) (*wallet.Transaction, error) {
	if amount <= 0 {
		return nil, wallet.ErrInvalidAmount
	}
	ref := fmt.Sprintf("withdraw:%d:%s", userID, idemKey)

	first, _, err := s.guard.Admit(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("idempotency admit failed: %w", err)
	}
	if !first {
		existing, err := s.wallets.CompletedByRef(ctx, wallet.TypeWithdraw, ref)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			logger.Info("duplicate withdrawal request",
				"user_id", userID, "external_ref", ref)
			return existing, nil
		}
		// Slot held but nothing on the ledger yet: the first attempt is
		// still running.
		return nil, ErrRequestInFlight
	}

	entry, err := s.wallets.Debit(ctx, userID, amount, wallet.Meta{
		Type:        wallet.TypeWithdraw,
		ExternalRef: ref,
		Description: "withdrawal request",
	})
	if errors.Is(err, wallet.ErrDuplicateRef) {
		// The ledger already holds this request; an earlier attempt applied
		// the debit and then lost its redis slot.
		return s.wallets.CompletedByRef(ctx, wallet.TypeWithdraw, ref)
	}
	if err != nil {
		// No effect was applied; free the slot so the client's retry can
		// be processed.
		if relErr := s.guard.Release(ctx, ref); relErr != nil {
			logger.WithError(relErr).Error("failed to release idempotency slot",
				"external_ref", ref)
		}
		return nil, err
	}

	if err := s.guard.Record(ctx, ref, wallet.TxCompleted); err != nil {
		logger.WithError(err).Error("failed to record withdrawal outcome",
			"external_ref", ref)
	}

	metrics.RecordWithdrawal()
	s.notifier.Publish(ctx, notify.Event{
		Kind:   notify.EventWithdrawalRequested,
		UserID: userID,
		Amount: amount,
	})
	logger.Info("withdrawal requested", "user_id", userID, "amount", amount)
	return entry, nil
}
