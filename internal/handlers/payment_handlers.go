package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/packages"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/payments"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/plans"
)

// GetPlans handles GET /api/plans.
func (h *Handlers) GetPlans(c *gin.Context) {
	list, err := plans.ListPublic(c.Request.Context(), h.DB)
	if err != nil {
		h.internalError(c, "Failed to fetch plans", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": list})
}

// GetMyPackages handles GET /api/me/packages.
func (h *Handlers) GetMyPackages(c *gin.Context) {
	s, _ := currentUser(c)
	list, err := packages.ListForUser(c.Request.Context(), h.DB, s.UserID)
	if err != nil {
		h.internalError(c, "Failed to fetch packages", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"packages": list})
}

type CheckoutInput struct {
	PlanID int64 `json:"planId" binding:"required,gt=0"`
}

// Checkout handles POST /api/payments/checkout and returns the VNPay URL the
// browser should be sent to.
func (h *Handlers) Checkout(c *gin.Context) {
	// 1. --- Get User ID & Bind Input ---
	s, _ := currentUser(c)

	var input CheckoutInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 2. --- Create Transaction & Payment URL ---
	co, err := h.Payments.Checkout(c.Request.Context(), s.UserID, input.PlanID, c.ClientIP())
	if err != nil {
		switch {
		case errors.Is(err, plans.ErrPlanNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Plan not found"})
		case errors.Is(err, payments.ErrPlanNotAvailable):
			c.JSON(http.StatusBadRequest, gin.H{"error": "This plan cannot be purchased"})
		default:
			h.internalError(c, "Failed to start checkout", err)
		}
		return
	}
	// 3. --- Respond ---
	c.JSON(http.StatusOK, co)
}

// VNPayReturn handles GET /api/payments/vnpay-return. The browser lands here
// from the gateway and is redirected to the front-end result page.
func (h *Handlers) VNPayReturn(c *gin.Context) {
	// 1. --- Verify & Settle ---
	out, err := h.Payments.HandleReturn(c.Request.Context(), c.Request.URL.Query())

	// 2. --- Map Outcome ---
	status, message := "failed", out.Message
	switch {
	case errors.Is(err, payments.ErrInvalidSignature):
		message = "Invalid payment signature"
	case errors.Is(err, payments.ErrTransactionNotFound):
		message = "Payment session lost, please try again"
	case err != nil:
		h.Log.Error("Payment return failed", "txnRef", out.TxnRef, "error", err)
		message = "Payment could not be processed"
	case out.Succeeded():
		status = "success"
	}

	// 3. --- Redirect (JSON when no result page is configured) ---
	if h.ResultURL == "" {
		code := http.StatusOK
		if err != nil {
			code = http.StatusBadRequest
		}
		c.JSON(code, gin.H{"status": status, "txnRef": out.TxnRef, "message": message})
		return
	}

	q := url.Values{}
	q.Set("status", status)
	q.Set("txnRef", out.TxnRef)
	q.Set("message", message)
	c.Redirect(http.StatusFound, h.ResultURL+"?"+q.Encode())
}

// GetPaymentStatus handles GET /api/payments/:txnRef. Only the buyer sees it.
func (h *Handlers) GetPaymentStatus(c *gin.Context) {
	s, _ := currentUser(c)

	txn, err := h.Payments.Status(c.Request.Context(), c.Param("txnRef"))
	if err != nil || txn.UserID != s.UserID {
		if err == nil || errors.Is(err, payments.ErrTransactionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
			return
		}
		h.internalError(c, "Failed to fetch transaction", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}

// GetPaymentQR handles GET /api/payments/:txnRef/qr and serves a PNG of the
// payment link.
func (h *Handlers) GetPaymentQR(c *gin.Context) {
	s, _ := currentUser(c)

	png, err := h.Payments.QRCode(c.Request.Context(), s.UserID, c.Param("txnRef"))
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrTransactionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
		case errors.Is(err, payments.ErrAlreadyProcessed):
			c.JSON(http.StatusConflict, gin.H{"error": "Transaction is no longer awaiting payment"})
		default:
			h.internalError(c, "Failed to render QR code", err)
		}
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
