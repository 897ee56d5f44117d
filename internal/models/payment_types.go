package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment transaction states. The only transitions are
// initiated -> completed and initiated -> failed.
const (
	PaymentInitiated = "initiated"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
)

// PaymentTransaction is the model for the 'payment_transactions' table. It
// links a gateway TxnRef to the package being paid for, so the callback does
// not depend on any in-memory session.
type PaymentTransaction struct {
	ID           int64           `json:"id" db:"id"`
	TxnRef       string          `json:"txnRef" db:"txn_ref"`
	UserID       int64           `json:"userId" db:"user_id"`
	PackageID    int64           `json:"packageId" db:"package_id"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	Status       string          `json:"status" db:"status"`
	PaymentURL   string          `json:"-" db:"payment_url"`
	ResponseCode *string         `json:"responseCode,omitempty" db:"response_code"`
	GatewayTxnNo *string         `json:"gatewayTxnNo,omitempty" db:"gateway_txn_no"`
	BankCode     *string         `json:"bankCode,omitempty" db:"bank_code"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time       `json:"updatedAt" db:"updated_at"`
}
