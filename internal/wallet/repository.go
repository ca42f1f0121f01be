package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const walletColumns = `id, user_id, balance, total_deposited, total_withdrawn, status, created_at, updated_at`

func (r *repository) GetOrCreate(ctx context.Context, userID int) (*Wallet, error) {
	w := &Wallet{}
	err := r.db.GetContext(ctx, w, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO wallets (user_id)
		 VALUES ($1)
		 ON CONFLICT (user_id) DO UPDATE SET updated_at = wallets.updated_at
		 RETURNING `+walletColumns,
		userID,
	).StructScan(w)
	if err != nil {
		return nil, err
	}

	return w, nil
}

// ApplyDelta mutates the balance and appends the ledger entry as one unit.
// The row lock serializes concurrent mutations of the same wallet; the
// balance snapshot in the ledger entry is taken under that lock.
func (r *repository) ApplyDelta(ctx context.Context, userID int, delta int64, meta Meta) (*Transaction, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	w, err := lockWallet(ctx, tx, userID)
	if err != nil {
		return nil, mapStorageErr(err)
	}

	if w.Status == StatusLocked {
		return nil, ErrWalletLocked
	}

	newBalance := w.Balance + delta
	if newBalance < 0 {
		return nil, ErrInsufficientBalance
	}

	depositDelta := int64(0)
	withdrawDelta := int64(0)
	if meta.Type == TypeDeposit && delta > 0 {
		depositDelta = delta
	}
	if meta.Type == TypeWithdraw && delta < 0 {
		withdrawDelta = -delta
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE wallets
		 SET balance = $1,
		     total_deposited = total_deposited + $2,
		     total_withdrawn = total_withdrawn + $3,
		     updated_at = NOW()
		 WHERE id = $4`,
		newBalance, depositDelta, withdrawDelta, w.ID,
	)
	if err != nil {
		return nil, mapStorageErr(err)
	}

	entry := &Transaction{}
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO wallet_transactions (wallet_id, type, amount, balance_before, balance_after, status, external_ref, description)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, wallet_id, type, amount, balance_before, balance_after, status, external_ref, description, created_at`,
		w.ID, meta.Type, delta, w.Balance, newBalance, TxCompleted, meta.ExternalRef, meta.Description,
	).StructScan(entry)
	if err != nil {
		return nil, mapStorageErr(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapStorageErr(err)
	}

	return entry, nil
}

// RecordFailed appends a failed ledger entry with no balance change, as an
// audit trail for rejected gateway outcomes.
func (r *repository) RecordFailed(ctx context.Context, userID int, meta Meta) (*Transaction, error) {
	w, err := r.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	entry := &Transaction{}
	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO wallet_transactions (wallet_id, type, amount, balance_before, balance_after, status, external_ref, description)
		 VALUES ($1, $2, 0, $3, $3, $4, $5, $6)
		 RETURNING id, wallet_id, type, amount, balance_before, balance_after, status, external_ref, description, created_at`,
		w.ID, meta.Type, w.Balance, TxFailed, meta.ExternalRef, meta.Description,
	).StructScan(entry)
	if err != nil {
		return nil, mapStorageErr(err)
	}

	return entry, nil
}

func (r *repository) SetStatus(ctx context.Context, userID int, status string) error {
	if _, err := r.GetOrCreate(ctx, userID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE wallets SET status = $1, updated_at = NOW() WHERE user_id = $2`,
		status, userID,
	)
	return err
}

func (r *repository) Transactions(ctx context.Context, userID int, limit, offset int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	var walletID int
	err := r.db.GetContext(ctx, &walletID, `SELECT id FROM wallets WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []Transaction{}, nil
		}
		return nil, err
	}

	var txs []Transaction
	err = r.db.SelectContext(ctx, &txs, `
		SELECT id, wallet_id, type, amount, balance_before, balance_after, status, external_ref, description, created_at
		FROM wallet_transactions
		WHERE wallet_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, walletID, limit, offset)
	if err != nil {
		return nil, err
	}

	return txs, nil
}

func (r *repository) AllTransactions(ctx context.Context, limit, offset int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	var txs []Transaction
	err := r.db.SelectContext(ctx, &txs, `
		SELECT id, wallet_id, type, amount, balance_before, balance_after, status, external_ref, description, created_at
		FROM wallet_transactions
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}

	return txs, nil
}

func (r *repository) CompletedByRef(ctx context.Context, txType, externalRef string) (*Transaction, error) {
	entry := &Transaction{}
	err := r.db.GetContext(ctx, entry, `
		SELECT id, wallet_id, type, amount, balance_before, balance_after, status, external_ref, description, created_at
		FROM wallet_transactions
		WHERE type = $1 AND external_ref = $2 AND status = $3
	`, txType, externalRef, TxCompleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func lockWallet(ctx context.Context, tx *sqlx.Tx, userID int) (*Wallet, error) {
	w := &Wallet{}
	err := tx.QueryRowxContext(ctx,
		`SELECT `+walletColumns+`
		 FROM wallets
		 WHERE user_id = $1
		 FOR UPDATE`,
		userID,
	).StructScan(w)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	err = tx.QueryRowxContext(ctx,
		`INSERT INTO wallets (user_id)
		 VALUES ($1)
		 RETURNING `+walletColumns,
		userID,
	).StructScan(w)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// mapStorageErr translates postgres concurrency and uniqueness failures into
// the package sentinels the service layer acts on.
func mapStorageErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "55P03": // serialization failure, deadlock, lock not available
			return fmt.Errorf("%w: %v", ErrStorageConflict, err)
		case "23505": // unique violation on (type, external_ref)
			return fmt.Errorf("%w: %v", ErrDuplicateRef, err)
		}
	}
	return err
}
