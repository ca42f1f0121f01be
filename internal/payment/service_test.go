package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"homestay/internal/gateway"
	"homestay/internal/notify"
	"homestay/internal/wallet"
)

type mockWalletService struct {
	mock.Mock
}

func (m *mockWalletService) GetOrCreate(ctx context.Context, userID int) (*wallet.Wallet, error) {
	args := m.Called(ctx, userID)
	if w := args.Get(0); w != nil {
		return w.(*wallet.Wallet), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockWalletService) Credit(ctx context.Context, userID int, amount int64, meta wallet.Meta) (*wallet.Transaction, error) {
	args := m.Called(ctx, userID, amount, meta)
	if tx := args.Get(0); tx != nil {
		return tx.(*wallet.Transaction), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockWalletService) Debit(ctx context.Context, userID int, amount int64, meta wallet.Meta) (*wallet.Transaction, error) {
	args := m.Called(ctx, userID, amount, meta)
	if tx := args.Get(0); tx != nil {
		return tx.(*wallet.Transaction), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockWalletService) RecordFailed(ctx context.Context, userID int, meta wallet.Meta) (*wallet.Transaction, error) {
	args := m.Called(ctx, userID, meta)
	if tx := args.Get(0); tx != nil {
		return tx.(*wallet.Transaction), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockWalletService) Lock(ctx context.Context, userID int) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *mockWalletService) Unlock(ctx context.Context, userID int) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *mockWalletService) Transactions(ctx context.Context, userID, limit, offset int) ([]wallet.Transaction, error) {
	args := m.Called(ctx, userID, limit, offset)
	if txs := args.Get(0); txs != nil {
		return txs.([]wallet.Transaction), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockWalletService) AllTransactions(ctx context.Context, limit, offset int) ([]wallet.Transaction, error) {
	args := m.Called(ctx, limit, offset)
	if txs := args.Get(0); txs != nil {
		return txs.([]wallet.Transaction), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockWalletService) CompletedByRef(ctx context.Context, txType, externalRef string) (*wallet.Transaction, error) {
	args := m.Called(ctx, txType, externalRef)
	if tx := args.Get(0); tx != nil {
		return tx.(*wallet.Transaction), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockGuard struct {
	mock.Mock
}

func (m *mockGuard) Admit(ctx context.Context, ref string) (bool, string, error) {
	args := m.Called(ctx, ref)
	return args.Bool(0), args.String(1), args.Error(2)
}

func (m *mockGuard) Record(ctx context.Context, ref, outcome string) error {
	return m.Called(ctx, ref, outcome).Error(0)
}

func (m *mockGuard) Release(ctx context.Context, ref string) error {
	return m.Called(ctx, ref).Error(0)
}

type mockSettler struct {
	mock.Mock
}

func (m *mockSettler) CompleteGatewayPayment(ctx context.Context, guestID, bookingID int, amount int64, externalRef string) error {
	return m.Called(ctx, guestID, bookingID, amount, externalRef).Error(0)
}

func (m *mockSettler) FailGatewayPayment(ctx context.Context, bookingID int) error {
	return m.Called(ctx, bookingID).Error(0)
}

// stubAdapter stands in for a real gateway so the orchestration can be tested
// without HMAC plumbing. Signature behavior itself is covered in the gateway
// package tests.
type stubAdapter struct {
	name        string
	redirectURL string
	buildErr    error
	result      *gateway.CallbackResult
	verifyErr   error
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) BuildPaymentRequest(gateway.PaymentRequest) (string, error) {
	return s.redirectURL, s.buildErr
}

func (s *stubAdapter) VerifyCallback(map[string]string) (*gateway.CallbackResult, error) {
	return s.result, s.verifyErr
}

func depositResult(userID int, amount int64, ref string) *gateway.CallbackResult {
	return &gateway.CallbackResult{
		Outcome:     gateway.OutcomeSuccess,
		Amount:      amount,
		ExternalRef: ref,
		RawCode:     "0",
		Intent:      gateway.Intent{UserID: userID, Kind: gateway.IntentDeposit},
	}
}

func newTestService(adapter gateway.Adapter) (Service, *mockWalletService, *mockGuard, *mockSettler) {
	wallets := new(mockWalletService)
	guard := new(mockGuard)
	settler := new(mockSettler)
	svc := NewService(wallets, guard, settler, notify.NoOp{}, adapter)
	return svc, wallets, guard, settler
}

func TestHandleCallback_FirstDeliveryCreditsWallet(t *testing.T) {
	adapter := &stubAdapter{name: "momo", result: depositResult(42, 50000, "momo:tx-1")}
	svc, wallets, guard, _ := newTestService(adapter)

	guard.On("Admit", mock.Anything, "momo:tx-1").Return(true, "", nil)
	wallets.On("Credit", mock.Anything, 42, int64(50000), mock.MatchedBy(func(m wallet.Meta) bool {
		return m.Type == wallet.TypeDeposit && m.ExternalRef == "momo:tx-1"
	})).Return(&wallet.Transaction{ID: 1, Amount: 50000}, nil)
	guard.On("Record", mock.Anything, "momo:tx-1", "success").Return(nil)

	ack, err := svc.HandleCallback(context.Background(), "momo", map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, gateway.OutcomeSuccess, ack.Outcome)
	assert.False(t, ack.Duplicate)
	wallets.AssertExpectations(t)
	guard.AssertExpectations(t)
}

func TestHandleCallback_DuplicateDeliveriesCreditOnce(t *testing.T) {
	adapter := &stubAdapter{name: "momo", result: depositResult(42, 50000, "momo:tx-2")}
	svc, wallets, guard, _ := newTestService(adapter)

	guard.On("Admit", mock.Anything, "momo:tx-2").Return(true, "", nil).Once()
	guard.On("Admit", mock.Anything, "momo:tx-2").Return(false, "success", nil)
	wallets.On("Credit", mock.Anything, 42, int64(50000), mock.Anything).
		Return(&wallet.Transaction{ID: 1}, nil).Once()
	guard.On("Record", mock.Anything, "momo:tx-2", "success").Return(nil).Once()

	for i := 0; i < 5; i++ {
		ack, err := svc.HandleCallback(context.Background(), "momo", map[string]string{})
		require.NoError(t, err)
		assert.Equal(t, gateway.OutcomeSuccess, ack.Outcome)
		if i > 0 {
			assert.True(t, ack.Duplicate)
		}
	}

	// Five deliveries, exactly one credit.
	wallets.AssertNumberOfCalls(t, "Credit", 1)
	guard.AssertExpectations(t)
}

func TestHandleCallback_SignatureMismatchTouchesNothing(t *testing.T) {
	adapter := &stubAdapter{name: "momo", verifyErr: gateway.ErrSignatureMismatch}
	svc, wallets, guard, _ := newTestService(adapter)

	_, err := svc.HandleCallback(context.Background(), "momo", map[string]string{})
	assert.ErrorIs(t, err, gateway.ErrSignatureMismatch)

	wallets.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	wallets.AssertNotCalled(t, "RecordFailed", mock.Anything, mock.Anything, mock.Anything)
	guard.AssertNotCalled(t, "Admit", mock.Anything, mock.Anything)
}

func TestHandleCallback_FailureOutcomeRecordsFailedEntry(t *testing.T) {
	res := depositResult(42, 50000, "momo:tx-3")
	res.Outcome = gateway.OutcomeFailure
	res.RawCode = "1006"
	adapter := &stubAdapter{name: "momo", result: res}
	svc, wallets, guard, _ := newTestService(adapter)

	guard.On("Admit", mock.Anything, "momo:tx-3").Return(true, "", nil)
	wallets.On("RecordFailed", mock.Anything, 42, mock.Anything).
		Return(&wallet.Transaction{ID: 2, Status: wallet.TxFailed}, nil)
	guard.On("Record", mock.Anything, "momo:tx-3", "failure").Return(nil)

	ack, err := svc.HandleCallback(context.Background(), "momo", map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, gateway.OutcomeFailure, ack.Outcome)
	wallets.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	wallets.AssertExpectations(t)
}

func TestHandleCallback_CreditErrorReleasesSlot(t *testing.T) {
	adapter := &stubAdapter{name: "momo", result: depositResult(42, 50000, "momo:tx-4")}
	svc, wallets, guard, _ := newTestService(adapter)

	guard.On("Admit", mock.Anything, "momo:tx-4").Return(true, "", nil)
	wallets.On("Credit", mock.Anything, 42, int64(50000), mock.Anything).
		Return(nil, errors.New("db down"))
	guard.On("Release", mock.Anything, "momo:tx-4").Return(nil)

	_, err := svc.HandleCallback(context.Background(), "momo", map[string]string{})
	assert.Error(t, err)
	guard.AssertCalled(t, "Release", mock.Anything, "momo:tx-4")
	guard.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleCallback_DuplicateLedgerRefAbsorbed(t *testing.T) {
	adapter := &stubAdapter{name: "momo", result: depositResult(42, 50000, "momo:tx-5")}
	svc, wallets, guard, _ := newTestService(adapter)

	guard.On("Admit", mock.Anything, "momo:tx-5").Return(true, "", nil)
	wallets.On("Credit", mock.Anything, 42, int64(50000), mock.Anything).
		Return(nil, wallet.ErrDuplicateRef)
	guard.On("Record", mock.Anything, "momo:tx-5", "success").Return(nil)

	ack, err := svc.HandleCallback(context.Background(), "momo", map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, gateway.OutcomeSuccess, ack.Outcome)
	guard.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
}

func TestHandleCallback_BookingIntentSettlesBooking(t *testing.T) {
	res := &gateway.CallbackResult{
		Outcome:     gateway.OutcomeSuccess,
		Amount:      200000,
		ExternalRef: "vnpay:tx-9",
		RawCode:     "00",
		Intent:      gateway.Intent{UserID: 9, Kind: gateway.IntentBooking, BookingID: 31},
	}
	adapter := &stubAdapter{name: "vnpay", result: res}
	svc, wallets, guard, settler := newTestService(adapter)

	guard.On("Admit", mock.Anything, "vnpay:tx-9").Return(true, "", nil)
	settler.On("CompleteGatewayPayment", mock.Anything, 9, 31, int64(200000), "vnpay:tx-9").Return(nil)
	guard.On("Record", mock.Anything, "vnpay:tx-9", "success").Return(nil)

	ack, err := svc.HandleCallback(context.Background(), "vnpay", map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, gateway.OutcomeSuccess, ack.Outcome)
	settler.AssertExpectations(t)
	wallets.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleCallback_UnknownGateway(t *testing.T) {
	svc, _, _, _ := newTestService(&stubAdapter{name: "momo"})

	_, err := svc.HandleCallback(context.Background(), "stripe", map[string]string{})
	assert.ErrorIs(t, err, ErrUnknownGateway)
}

func TestVerifyReturn_AppliesNothing(t *testing.T) {
	adapter := &stubAdapter{name: "momo", result: depositResult(42, 50000, "momo:tx-6")}
	svc, wallets, guard, _ := newTestService(adapter)

	res, err := svc.VerifyReturn("momo", map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, gateway.OutcomeSuccess, res.Outcome)

	// The redirect path is informational only.
	wallets.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	guard.AssertNotCalled(t, "Admit", mock.Anything, mock.Anything)
}

func TestInitiateDeposit(t *testing.T) {
	adapter := &stubAdapter{name: "momo", redirectURL: "https://gw.example.com/pay?x=1"}
	svc, wallets, _, _ := newTestService(adapter)

	wallets.On("GetOrCreate", mock.Anything, 7).Return(&wallet.Wallet{ID: 1, UserID: 7}, nil)

	redirect, err := svc.InitiateDeposit(context.Background(), 7, "momo", 75000, "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, "https://gw.example.com/pay?x=1", redirect)
	wallets.AssertExpectations(t)
}

func TestInitiateDeposit_RejectsNonPositiveAmount(t *testing.T) {
	svc, _, _, _ := newTestService(&stubAdapter{name: "momo"})

	_, err := svc.InitiateDeposit(context.Background(), 7, "momo", 0, "")
	assert.ErrorIs(t, err, wallet.ErrInvalidAmount)
}

func TestWithdraw(t *testing.T) {
	svc, wallets, guard, _ := newTestService(&stubAdapter{name: "momo"})

	guard.On("Admit", mock.Anything, "withdraw:7:req-1").Return(true, "", nil)
	wallets.On("Debit", mock.Anything, 7, int64(30000), mock.MatchedBy(func(m wallet.Meta) bool {
		return m.Type == wallet.TypeWithdraw && m.ExternalRef == "withdraw:7:req-1"
	})).Return(&wallet.Transaction{ID: 3, Amount: -30000}, nil)
	guard.On("Record", mock.Anything, "withdraw:7:req-1", wallet.TxCompleted).Return(nil)

	entry, err := svc.Withdraw(context.Background(), 7, 30000, "req-1")
	require.NoError(t, err)
	assert.Equal(t, int64(-30000), entry.Amount)
	guard.AssertExpectations(t)
}

func TestWithdraw_RetryReturnsOriginalEntry(t *testing.T) {
	svc, wallets, guard, _ := newTestService(&stubAdapter{name: "momo"})

	// The retry finds the slot taken and is answered from the ledger; no
	// second debit happens.
	guard.On("Admit", mock.Anything, "withdraw:7:req-1").Return(false, wallet.TxCompleted, nil)
	wallets.On("CompletedByRef", mock.Anything, wallet.TypeWithdraw, "withdraw:7:req-1").
		Return(&wallet.Transaction{ID: 3, Amount: -30000, Status: wallet.TxCompleted}, nil)

	entry, err := svc.Withdraw(context.Background(), 7, 30000, "req-1")
	require.NoError(t, err)
	assert.Equal(t, 3, entry.ID)
	wallets.AssertNotCalled(t, "Debit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWithdraw_RetryWhileFirstAttemptRuns(t *testing.T) {
	svc, wallets, guard, _ := newTestService(&stubAdapter{name: "momo"})

	guard.On("Admit", mock.Anything, "withdraw:7:req-1").Return(false, "", nil)
	wallets.On("CompletedByRef", mock.Anything, wallet.TypeWithdraw, "withdraw:7:req-1").
		Return(nil, nil)

	_, err := svc.Withdraw(context.Background(), 7, 30000, "req-1")
	assert.ErrorIs(t, err, ErrRequestInFlight)
	wallets.AssertNotCalled(t, "Debit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWithdraw_InsufficientBalance(t *testing.T) {
	svc, wallets, guard, _ := newTestService(&stubAdapter{name: "momo"})

	guard.On("Admit", mock.Anything, "withdraw:7:req-2").Return(true, "", nil)
	wallets.On("Debit", mock.Anything, 7, int64(999999), mock.Anything).
		Return(nil, wallet.ErrInsufficientBalance)
	// A failed debit frees the slot so the client can retry after a top-up.
	guard.On("Release", mock.Anything, "withdraw:7:req-2").Return(nil)

	_, err := svc.Withdraw(context.Background(), 7, 999999, "req-2")
	assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)
	guard.AssertExpectations(t)
}
