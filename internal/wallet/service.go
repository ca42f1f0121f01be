package wallet

import (
	"context"
	"errors"
	"fmt"

	"homestay/internal/logger"
)

// maxConflictRetries bounds internal retries on storage-level write races
// before the conflict is surfaced to the caller.
const maxConflictRetries = 3

// Service owns wallet balance mutation. No other component writes wallet
// balances or ledger entries.
type Service interface {
	GetOrCreate(ctx context.Context, userID int) (*Wallet, error)
	Credit(ctx context.Context, userID int, amount int64, meta Meta) (*Transaction, error)
	Debit(ctx context.Context, userID int, amount int64, meta Meta) (*Transaction, error)
	RecordFailed(ctx context.Context, userID int, meta Meta) (*Transaction, error)
	Lock(ctx context.Context, userID int) error
	Unlock(ctx context.Context, userID int) error
	Transactions(ctx context.Context, userID int, limit, offset int) ([]Transaction, error)
	AllTransactions(ctx context.Context, limit, offset int) ([]Transaction, error)
	CompletedByRef(ctx context.Context, txType, externalRef string) (*Transaction, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) GetOrCreate(ctx context.Context, userID int) (*Wallet, error) {
	return s.repo.GetOrCreate(ctx, userID)
}

func (s *service) Credit(ctx context.Context, userID int, amount int64, meta Meta) (*Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.applyWithRetry(ctx, userID, amount, meta)
}

func (s *service) Debit(ctx context.Context, userID int, amount int64, meta Meta) (*Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.applyWithRetry(ctx, userID, -amount, meta)
}

func (s *service) applyWithRetry(ctx context.Context, userID int, delta int64, meta Meta) (*Transaction, error) {
	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		entry, err := s.repo.ApplyDelta(ctx, userID, delta, meta)
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, ErrStorageConflict) {
			return nil, err
		}
		lastErr = err
		logger.Warn("wallet mutation conflict, retrying",
			"user_id", userID, "attempt", attempt+1)
	}
	return nil, fmt.Errorf("wallet mutation gave up after %d attempts: %w", maxConflictRetries, lastErr)
}

func (s *service) RecordFailed(ctx context.Context, userID int, meta Meta) (*Transaction, error) {
	return s.repo.RecordFailed(ctx, userID, meta)
}

// Lock is idempotent: locking an already-locked wallet is a no-op success.
func (s *service) Lock(ctx context.Context, userID int) error {
	return s.repo.SetStatus(ctx, userID, StatusLocked)
}

func (s *service) Unlock(ctx context.Context, userID int) error {
	return s.repo.SetStatus(ctx, userID, StatusActive)
}

func (s *service) Transactions(ctx context.Context, userID int, limit, offset int) ([]Transaction, error) {
	return s.repo.Transactions(ctx, userID, limit, offset)
}

func (s *service) AllTransactions(ctx context.Context, limit, offset int) ([]Transaction, error) {
	return s.repo.AllTransactions(ctx, limit, offset)
}

func (s *service) CompletedByRef(ctx context.Context, txType, externalRef string) (*Transaction, error) {
	return s.repo.CompletedByRef(ctx, txType, externalRef)
}
