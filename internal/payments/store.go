package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ngoendcuong/HomeLengo-sub000/internal/database"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/models"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/notifications"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/packages"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/plans"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/users"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/vnpay"
)

// Store persists checkouts and their gateway outcome.
type Store interface {
	Plan(ctx context.Context, planID int64) (*models.ServicePlan, error)
	// CreatePending inserts the inactive package and the initiated
	// transaction together, filling txn.ID and txn.PackageID.
	CreatePending(ctx context.Context, txn *models.PaymentTransaction, planID int64, now time.Time) error
	FindByTxnRef(ctx context.Context, txnRef string) (*models.PaymentTransaction, error)
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx holds the operations that settle one transaction atomically.
type Tx interface {
	LockUser(ctx context.Context, userID int64) error
	ReloadTransaction(ctx context.Context, txnRef string) (*models.PaymentTransaction, error)
	MarkStatus(ctx context.Context, txnID int64, status string, ret vnpay.Return, now time.Time) error
	PlanForPackage(ctx context.Context, packageID int64) (*models.ServicePlan, error)
	ActivatePackage(ctx context.Context, userID, packageID int64, start, end time.Time) error
	GrantAgent(ctx context.Context, userID int64) error
	Notify(ctx context.Context, userID int64, message, link string) error
}

const txnColumns = "id, txn_ref, user_id, package_id, amount, status, payment_url, response_code, gateway_txn_no, bank_code, created_at, updated_at"

func scanTxn(row interface{ Scan(...any) error }) (*models.PaymentTransaction, error) {
	var t models.PaymentTransaction
	err := row.Scan(&t.ID, &t.TxnRef, &t.UserID, &t.PackageID, &t.Amount, &t.Status, &t.PaymentURL,
		&t.ResponseCode, &t.GatewayTxnNo, &t.BankCode, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to fetch payment transaction: %w", err)
	}
	return &t, nil
}

// MySQLStore implements Store on the primary connection.
type MySQLStore struct {
	DB *sql.DB
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{DB: db}
}

func (s *MySQLStore) Plan(ctx context.Context, planID int64) (*models.ServicePlan, error) {
	return plans.Get(ctx, s.DB, planID)
}

func (s *MySQLStore) CreatePending(ctx context.Context, txn *models.PaymentTransaction, planID int64, now time.Time) error {
	return database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		packageID, err := packages.CreatePending(ctx, tx, txn.UserID, planID, now)
		if err != nil {
			return err
		}

		query := `
			INSERT INTO payment_transactions
			(txn_ref, user_id, package_id, amount, status, payment_url, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
		result, err := tx.ExecContext(ctx, query, txn.TxnRef, txn.UserID, packageID, txn.Amount, txn.Status, txn.PaymentURL, now, now)
		if err != nil {
			return fmt.Errorf("failed to insert payment transaction: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get new transaction ID: %w", err)
		}

		txn.ID = id
		txn.PackageID = packageID
		txn.CreatedAt = now
		txn.UpdatedAt = now
		return nil
	})
}

func (s *MySQLStore) FindByTxnRef(ctx context.Context, txnRef string) (*models.PaymentTransaction, error) {
	query := "SELECT " + txnColumns + " FROM payment_transactions WHERE txn_ref = ?"
	return scanTxn(s.DB.QueryRowContext(ctx, query, txnRef))
}

func (s *MySQLStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		return fn(&mysqlTx{tx: tx})
	})
}

type mysqlTx struct {
	tx *sql.Tx
}

func (t *mysqlTx) LockUser(ctx context.Context, userID int64) error {
	return users.LockUserRow(ctx, t.tx, userID)
}

func (t *mysqlTx) ReloadTransaction(ctx context.Context, txnRef string) (*models.PaymentTransaction, error) {
	query := "SELECT " + txnColumns + " FROM payment_transactions WHERE txn_ref = ? FOR UPDATE"
	return scanTxn(t.tx.QueryRowContext(ctx, query, txnRef))
}

func (t *mysqlTx) MarkStatus(ctx context.Context, txnID int64, status string, ret vnpay.Return, now time.Time) error {
	query := `
		UPDATE payment_transactions
		SET status = ?, response_code = ?, gateway_txn_no = ?, bank_code = ?, updated_at = ?
		WHERE id = ? AND status = ?`
	result, err := t.tx.ExecContext(ctx, query, status,
		nullIfEmpty(ret.ResponseCode), nullIfEmpty(ret.TransactionNo), nullIfEmpty(ret.BankCode),
		now, txnID, models.PaymentInitiated)
	if err != nil {
		return fmt.Errorf("failed to update payment transaction: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return ErrAlreadyProcessed
	}
	return nil
}

func (t *mysqlTx) PlanForPackage(ctx context.Context, packageID int64) (*models.ServicePlan, error) {
	pkg, err := packages.Get(ctx, t.tx, packageID)
	if err != nil {
		return nil, err
	}
	return plans.Get(ctx, t.tx, pkg.PlanID)
}

func (t *mysqlTx) ActivatePackage(ctx context.Context, userID, packageID int64, start, end time.Time) error {
	return packages.Activate(ctx, t.tx, userID, packageID, start, end)
}

func (t *mysqlTx) GrantAgent(ctx context.Context, userID int64) error {
	if err := users.AddRole(ctx, t.tx, userID, models.RoleAgent); err != nil {
		return err
	}
	_, err := users.EnsureAgent(ctx, t.tx, userID)
	return err
}

func (t *mysqlTx) Notify(ctx context.Context, userID int64, message, link string) error {
	return notifications.Add(ctx, t.tx, userID, message, link)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
