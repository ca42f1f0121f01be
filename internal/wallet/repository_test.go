package wallet

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func setupWalletMock(t *testing.T) (Repository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	repo := NewRepository(sqlxDB)

	closer := func() { sqlxDB.Close() }
	return repo, mock, closer
}

func walletRows(id, userID int, balance int64, status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "balance", "total_deposited", "total_withdrawn", "status", "created_at", "updated_at",
	}).AddRow(id, userID, balance, balance, 0, status, time.Now(), time.Now())
}

func txRows(id, walletID int, txType string, amount, before, after int64, status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "wallet_id", "type", "amount", "balance_before", "balance_after", "status", "external_ref", "description", "created_at",
	}).AddRow(id, walletID, txType, amount, before, after, status, "ref-1", "test", time.Now())
}

func TestGetOrCreate_WhenNotExists(t *testing.T) {
	repo, mock, closer := setupWalletMock(t)
	defer closer()

	mock.ExpectQuery(`SELECT (.+) FROM wallets WHERE user_id = \$1`).
		WithArgs(10).
		WillReturnError(sql.ErrNoRows)

	mock.ExpectQuery(`INSERT INTO wallets \(user_id\)`).
		WithArgs(10).
		WillReturnRows(walletRows(5, 10, 0, StatusActive))

	w, err := repo.GetOrCreate(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 5, w.ID)
	require.Equal(t, int64(0), w.Balance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyDelta_Credit(t *testing.T) {
	repo, mock, closer := setupWalletMock(t)
	defer closer()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM wallets\s+WHERE user_id = \$1\s+FOR UPDATE`).
		WithArgs(20).
		WillReturnRows(walletRows(7, 20, 100000, StatusActive))
	mock.ExpectExec(`UPDATE wallets`).
		WithArgs(int64(150000), int64(50000), int64(0), 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO wallet_transactions`).
		WithArgs(7, TypeDeposit, int64(50000), int64(100000), int64(150000), TxCompleted, "momo:abc", "deposit via momo").
		WillReturnRows(txRows(1, 7, TypeDeposit, 50000, 100000, 150000, TxCompleted))
	mock.ExpectCommit()

	entry, err := repo.ApplyDelta(context.Background(), 20, 50000, Meta{
		Type:        TypeDeposit,
		ExternalRef: "momo:abc",
		Description: "deposit via momo",
	})
	require.NoError(t, err)
	require.Equal(t, int64(150000), entry.BalanceAfter)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyDelta_InsufficientBalance(t *testing.T) {
	repo, mock, closer := setupWalletMock(t)
	defer closer()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM wallets\s+WHERE user_id = \$1\s+FOR UPDATE`).
		WithArgs(20).
		WillReturnRows(walletRows(7, 20, 1000, StatusActive))
	mock.ExpectRollback()

	_, err := repo.ApplyDelta(context.Background(), 20, -5000, Meta{Type: TypeWithdraw})
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyDelta_LockedWallet(t *testing.T) {
	repo, mock, closer := setupWalletMock(t)
	defer closer()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM wallets\s+WHERE user_id = \$1\s+FOR UPDATE`).
		WithArgs(20).
		WillReturnRows(walletRows(7, 20, 100000, StatusLocked))
	mock.ExpectRollback()

	_, err := repo.ApplyDelta(context.Background(), 20, 5000, Meta{Type: TypeDeposit})
	require.ErrorIs(t, err, ErrWalletLocked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyDelta_CreatesWalletLazily(t *testing.T) {
	repo, mock, closer := setupWalletMock(t)
	defer closer()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM wallets\s+WHERE user_id = \$1\s+FOR UPDATE`).
		WithArgs(33).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`INSERT INTO wallets \(user_id\)`).
		WithArgs(33).
		WillReturnRows(walletRows(9, 33, 0, StatusActive))
	mock.ExpectExec(`UPDATE wallets`).
		WithArgs(int64(2000), int64(2000), int64(0), 9).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO wallet_transactions`).
		WithArgs(9, TypeDeposit, int64(2000), int64(0), int64(2000), TxCompleted, "", "").
		WillReturnRows(txRows(2, 9, TypeDeposit, 2000, 0, 2000, TxCompleted))
	mock.ExpectCommit()

	entry, err := repo.ApplyDelta(context.Background(), 33, 2000, Meta{Type: TypeDeposit})
	require.NoError(t, err)
	require.Equal(t, int64(0), entry.BalanceBefore)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFailed_NoBalanceChange(t *testing.T) {
	repo, mock, closer := setupWalletMock(t)
	defer closer()

	mock.ExpectQuery(`SELECT (.+) FROM wallets WHERE user_id = \$1`).
		WithArgs(20).
		WillReturnRows(walletRows(7, 20, 100000, StatusActive))
	mock.ExpectQuery(`INSERT INTO wallet_transactions`).
		WithArgs(7, TypeDeposit, int64(100000), TxFailed, "momo:bad", "gateway reported failure").
		WillReturnRows(txRows(3, 7, TypeDeposit, 0, 100000, 100000, TxFailed))

	entry, err := repo.RecordFailed(context.Background(), 20, Meta{
		Type:        TypeDeposit,
		ExternalRef: "momo:bad",
		Description: "gateway reported failure",
	})
	require.NoError(t, err)
	require.Equal(t, entry.BalanceBefore, entry.BalanceAfter)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompletedByRef_NotFound(t *testing.T) {
	repo, mock, closer := setupWalletMock(t)
	defer closer()

	mock.ExpectQuery(`FROM wallet_transactions`).
		WithArgs(TypeHostPayout, "booking:15", TxCompleted).
		WillReturnError(sql.ErrNoRows)

	entry, err := repo.CompletedByRef(context.Background(), TypeHostPayout, "booking:15")
	require.NoError(t, err)
	require.Nil(t, entry)
	require.NoError(t, mock.ExpectationsWereMet())
}
