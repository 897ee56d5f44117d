// Package payments sells service plans through VNPay: it records a checkout,
// sends the buyer to the gateway and settles the signed return.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/lock"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/models"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/vnpay"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

var (
	ErrInvalidSignature    = errors.New("invalid payment signature")
	ErrTransactionNotFound = errors.New("payment transaction not found")
	ErrAlreadyProcessed    = errors.New("payment transaction already processed")
	ErrPlanNotAvailable    = errors.New("service plan is not available for purchase")
)

const qrSize = 256

// Gateway is the part of the VNPay client the service uses.
type Gateway interface {
	CreatePaymentURL(params url.Values, returnURL, clientIP string) (string, error)
	ValidateSignature(params url.Values, receivedHash string) bool
}

// Checkout is what the buyer needs to continue to the gateway.
type Checkout struct {
	TxnRef     string             `json:"txnRef"`
	PaymentURL string             `json:"paymentUrl"`
	Amount     decimal.Decimal    `json:"amount"`
	Plan       models.ServicePlan `json:"plan"`
}

// Outcome describes how a gateway return was settled.
type Outcome struct {
	TxnRef    string     `json:"txnRef"`
	Status    string     `json:"status"`
	Message   string     `json:"message"`
	PackageID int64      `json:"packageId"`
	EndDate   *time.Time `json:"endDate,omitempty"`
	// Duplicate is set when the transaction had already been settled.
	Duplicate bool `json:"duplicate"`
}

// Succeeded reports whether the package was (or already had been) paid.
func (o Outcome) Succeeded() bool {
	return o.Status == models.PaymentCompleted
}

type Service struct {
	store     Store
	gateway   Gateway
	locker    lock.Locker
	log       *slog.Logger
	returnURL string
	now       func() time.Time
}

func NewService(store Store, gateway Gateway, locker lock.Locker, log *slog.Logger, returnURL string) *Service {
	return &Service{
		store:     store,
		gateway:   gateway,
		locker:    locker,
		log:       log.With("component", "Payments"),
		returnURL: returnURL,
		now:       time.Now,
	}
}

// Checkout creates an inactive package for the plan and an initiated
// transaction, and returns the signed gateway URL.
func (s *Service) Checkout(ctx context.Context, userID, planID int64, clientIP string) (*Checkout, error) {
	plan, err := s.store.Plan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.IsPublic || !plan.Price.IsPositive() {
		return nil, ErrPlanNotAvailable
	}

	txnRef := strings.ReplaceAll(uuid.NewString(), "-", "")
	params := url.Values{}
	params.Set("vnp_TxnRef", txnRef)
	params.Set("vnp_Amount", vnpay.FormatAmount(plan.Price))
	params.Set("vnp_OrderInfo", fmt.Sprintf("Thanh toan goi %s %s", plan.Name, txnRef))

	paymentURL, err := s.gateway.CreatePaymentURL(params, s.returnURL, clientIP)
	if err != nil {
		return nil, fmt.Errorf("failed to build payment URL: %w", err)
	}

	txn := &models.PaymentTransaction{
		TxnRef:     txnRef,
		UserID:     userID,
		Amount:     plan.Price,
		Status:     models.PaymentInitiated,
		PaymentURL: paymentURL,
	}
	if err := s.store.CreatePending(ctx, txn, plan.ID, s.now()); err != nil {
		return nil, err
	}

	s.log.Info("Checkout created", "userID", userID, "planID", plan.ID, "txnRef", txnRef, "packageID", txn.PackageID)
	return &Checkout{TxnRef: txnRef, PaymentURL: paymentURL, Amount: plan.Price, Plan: *plan}, nil
}

// HandleReturn verifies and settles the parameters VNPay appended to the
// return URL. Nothing changes when the signature does not verify.
func (s *Service) HandleReturn(ctx context.Context, values url.Values) (Outcome, error) {
	if !s.gateway.ValidateSignature(values, values.Get(vnpay.ParamSecureHash)) {
		s.log.Warn("Rejected payment return with invalid signature", "txnRef", values.Get("vnp_TxnRef"))
		return Outcome{}, ErrInvalidSignature
	}

	// An unparseable amount is left at zero and settles as a mismatch.
	ret, err := vnpay.ParseReturn(values)
	if err != nil && !errors.Is(err, vnpay.ErrInvalidAmount) {
		return Outcome{}, ErrTransactionNotFound
	}

	txn, err := s.store.FindByTxnRef(ctx, ret.TxnRef)
	if err != nil {
		return Outcome{TxnRef: ret.TxnRef}, err
	}

	unlock, err := s.locker.Lock(ctx, lock.UserKey(txn.UserID))
	if err != nil {
		return Outcome{TxnRef: ret.TxnRef}, err
	}
	defer unlock()

	var out Outcome
	err = s.store.InTx(ctx, func(tx Tx) error {
		if err := tx.LockUser(ctx, txn.UserID); err != nil {
			return err
		}
		var settleErr error
		out, settleErr = s.settle(ctx, tx, ret)
		return settleErr
	})
	if err != nil {
		s.log.Error("Failed to settle payment", "txnRef", ret.TxnRef, "error", err)
		return Outcome{TxnRef: ret.TxnRef}, err
	}

	s.log.Info("Payment return processed",
		"txnRef", ret.TxnRef,
		"status", out.Status,
		"responseCode", ret.ResponseCode,
		"duplicate", out.Duplicate,
	)
	return out, nil
}

func (s *Service) settle(ctx context.Context, tx Tx, ret vnpay.Return) (Outcome, error) {
	txn, err := tx.ReloadTransaction(ctx, ret.TxnRef)
	if err != nil {
		return Outcome{}, err
	}
	now := s.now()
	out := Outcome{TxnRef: txn.TxnRef, PackageID: txn.PackageID}

	if txn.Status != models.PaymentInitiated {
		out.Status = txn.Status
		out.Duplicate = true
		out.Message = "Payment has already been processed"
		return out, nil
	}

	if !ret.Amount.Equal(txn.Amount) {
		s.log.Warn("Payment amount mismatch", "txnRef", txn.TxnRef, "expected", txn.Amount, "received", ret.Amount)
		out.Status = models.PaymentFailed
		out.Message = "Paid amount does not match the order"
		return out, tx.MarkStatus(ctx, txn.ID, models.PaymentFailed, ret, now)
	}

	if !ret.Succeeded() {
		out.Status = models.PaymentFailed
		out.Message = ret.Message()
		return out, tx.MarkStatus(ctx, txn.ID, models.PaymentFailed, ret, now)
	}

	if err := tx.MarkStatus(ctx, txn.ID, models.PaymentCompleted, ret, now); err != nil {
		return out, err
	}
	plan, err := tx.PlanForPackage(ctx, txn.PackageID)
	if err != nil {
		return out, err
	}
	start := now
	end := start.AddDate(0, 0, plan.DurationDays)
	if err := tx.ActivatePackage(ctx, txn.UserID, txn.PackageID, start, end); err != nil {
		return out, err
	}
	if err := tx.GrantAgent(ctx, txn.UserID); err != nil {
		return out, err
	}
	msg := fmt.Sprintf("Your %s package is active until %s.", plan.Name, end.Format("02/01/2006"))
	if err := tx.Notify(ctx, txn.UserID, msg, "/dashboard"); err != nil {
		return out, err
	}

	out.Status = models.PaymentCompleted
	out.Message = ret.Message()
	out.EndDate = &end
	return out, nil
}

// Status returns the stored transaction.
func (s *Service) Status(ctx context.Context, txnRef string) (*models.PaymentTransaction, error) {
	return s.store.FindByTxnRef(ctx, txnRef)
}

// QRCode renders the payment URL of the user's initiated transaction as a
// PNG, so the buyer can finish on a phone.
func (s *Service) QRCode(ctx context.Context, userID int64, txnRef string) ([]byte, error) {
	txn, err := s.store.FindByTxnRef(ctx, txnRef)
	if err != nil {
		return nil, err
	}
	if txn.UserID != userID {
		return nil, ErrTransactionNotFound
	}
	if txn.Status != models.PaymentInitiated {
		return nil, ErrAlreadyProcessed
	}

	png, err := qrcode.Encode(txn.PaymentURL, qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	return png, nil
}
