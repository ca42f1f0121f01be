package wallet

import "context"

type Repository interface {
	GetOrCreate(ctx context.Context, userID int) (*Wallet, error)
	ApplyDelta(ctx context.Context, userID int, delta int64, meta Meta) (*Transaction, error)
	RecordFailed(ctx context.Context, userID int, meta Meta) (*Transaction, error)
	SetStatus(ctx context.Context, userID int, status string) error
	Transactions(ctx context.Context, userID int, limit, offset int) ([]Transaction, error)
	AllTransactions(ctx context.Context, limit, offset int) ([]Transaction, error)
	CompletedByRef(ctx context.Context, txType, externalRef string) (*Transaction, error)
}
