// Package vnpay builds signed redirect URLs for the VNPay gateway and
// validates the signed parameters VNPay sends back.
//
// Both directions share CanonicalQuery: only vnp_* keys, hash fields removed,
// empty values dropped, keys sorted byte-wise, keys and values QueryEscaped.
// The HMAC-SHA512 signature is computed over exactly that string.
package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ParamPrefix         = "vnp_"
	ParamSecureHash     = "vnp_SecureHash"
	ParamSecureHashType = "vnp_SecureHashType"

	dateLayout = "20060102150405"
)

// Vietnam has no DST, a fixed zone avoids depending on tzdata.
var vietnamTime = time.FixedZone("ICT", 7*60*60)

var (
	ErrMissingTxnRef = errors.New("vnpay: missing vnp_TxnRef")
	ErrInvalidAmount = errors.New("vnpay: invalid vnp_Amount")
)

// Config holds the merchant credentials and protocol constants.
type Config struct {
	TmnCode    string
	HashSecret string
	PaymentURL string

	Version     string
	Command     string
	CurrCode    string
	Locale      string
	OrderType   string
	ExpireAfter time.Duration
}

// Client signs outbound requests and validates inbound ones.
type Client struct {
	cfg Config
	now func() time.Time
}

// NewClient fills protocol defaults and returns a client.
func NewClient(cfg Config) *Client {
	if cfg.Version == "" {
		cfg.Version = "2.1.0"
	}
	if cfg.Command == "" {
		cfg.Command = "pay"
	}
	if cfg.CurrCode == "" {
		cfg.CurrCode = "VND"
	}
	if cfg.Locale == "" {
		cfg.Locale = "vn"
	}
	if cfg.OrderType == "" {
		cfg.OrderType = "other"
	}
	if cfg.ExpireAfter == 0 {
		cfg.ExpireAfter = 15 * time.Minute
	}
	return &Client{cfg: cfg, now: time.Now}
}

// CreatePaymentURL merges the caller's vnp_* parameters with the required
// protocol fields and returns the gateway URL with vnp_SecureHash appended.
// Caller-supplied required fields are overwritten; vnp_Locale and
// vnp_OrderType are only defaulted.
func (c *Client) CreatePaymentURL(params url.Values, returnURL, clientIP string) (string, error) {
	if c.cfg.PaymentURL == "" {
		return "", errors.New("vnpay: payment URL is not configured")
	}

	now := c.now().In(vietnamTime)
	merged := url.Values{}
	for k, vs := range params {
		if strings.HasPrefix(k, ParamPrefix) && len(vs) > 0 {
			merged.Set(k, vs[0])
		}
	}
	merged.Set("vnp_Version", c.cfg.Version)
	merged.Set("vnp_Command", c.cfg.Command)
	merged.Set("vnp_TmnCode", c.cfg.TmnCode)
	merged.Set("vnp_CurrCode", c.cfg.CurrCode)
	merged.Set("vnp_IpAddr", clientIP)
	merged.Set("vnp_CreateDate", now.Format(dateLayout))
	merged.Set("vnp_ExpireDate", now.Add(c.cfg.ExpireAfter).Format(dateLayout))
	merged.Set("vnp_ReturnUrl", returnURL)
	if merged.Get("vnp_Locale") == "" {
		merged.Set("vnp_Locale", c.cfg.Locale)
	}
	if merged.Get("vnp_OrderType") == "" {
		merged.Set("vnp_OrderType", c.cfg.OrderType)
	}

	query := CanonicalQuery(merged)
	hash := signString(c.cfg.HashSecret, query)
	return fmt.Sprintf("%s?%s&%s=%s", c.cfg.PaymentURL, query, ParamSecureHash, hash), nil
}

// ValidateSignature recomputes the signature over params (hash fields are
// ignored) and compares it with receivedHash, ignoring case.
func (c *Client) ValidateSignature(params url.Values, receivedHash string) bool {
	return Verify(c.cfg.HashSecret, params, receivedHash)
}

// Verify is ValidateSignature with an explicit secret.
func Verify(secret string, params url.Values, receivedHash string) bool {
	if receivedHash == "" {
		return false
	}
	expected := Sign(secret, params)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(receivedHash)))
}

// Sign returns the lowercase hex HMAC-SHA512 of CanonicalQuery(params).
func Sign(secret string, params url.Values) string {
	return signString(secret, CanonicalQuery(params))
}

func signString(secret, data string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// CanonicalQuery is the exact string both directions sign.
func CanonicalQuery(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k, vs := range params {
		if !strings.HasPrefix(k, ParamPrefix) || k == ParamSecureHash || k == ParamSecureHashType {
			continue
		}
		if len(vs) == 0 || vs[0] == "" {
			continue
		}
		keys = append(keys, k)
	}
	// sort.Strings compares bytes, which is the ordinal order VNPay uses.
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k][0]))
	}
	return b.String()
}

// FormatAmount converts a VND amount into VNPay's integer "amount × 100".
func FormatAmount(amount decimal.Decimal) string {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).StringFixed(0)
}

// Return is a typed view of the parameters VNPay appends to vnp_ReturnUrl.
type Return struct {
	TxnRef            string
	Amount            decimal.Decimal
	ResponseCode      string
	TransactionStatus string
	TransactionNo     string
	BankCode          string
	OrderInfo         string
	PayDate           string
	SecureHash        string
}

// ParseReturn extracts the fields the payment flow needs.
func ParseReturn(values url.Values) (Return, error) {
	r := Return{
		TxnRef:            values.Get("vnp_TxnRef"),
		ResponseCode:      values.Get("vnp_ResponseCode"),
		TransactionStatus: values.Get("vnp_TransactionStatus"),
		TransactionNo:     values.Get("vnp_TransactionNo"),
		BankCode:          values.Get("vnp_BankCode"),
		OrderInfo:         values.Get("vnp_OrderInfo"),
		PayDate:           values.Get("vnp_PayDate"),
		SecureHash:        values.Get(ParamSecureHash),
	}
	if r.TxnRef == "" {
		return r, ErrMissingTxnRef
	}
	if raw := values.Get("vnp_Amount"); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return r, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
		}
		r.Amount = amount.Div(decimal.NewFromInt(100))
	}
	return r, nil
}

// Succeeded reports whether the gateway says the payment went through.
func (r Return) Succeeded() bool {
	return r.ResponseCode == "00" && (r.TransactionStatus == "" || r.TransactionStatus == "00")
}

// Message is a user-facing description of the response code.
func (r Return) Message() string {
	if msg, ok := responseMessages[r.ResponseCode]; ok {
		return msg
	}
	return "Payment failed"
}

var responseMessages = map[string]string{
	"00": "Payment successful",
	"07": "Payment deducted but flagged as suspicious",
	"09": "Card or account is not registered for internet banking",
	"10": "Card or account verification failed too many times",
	"11": "Payment window expired",
	"12": "Card or account is locked",
	"13": "Wrong one-time password",
	"24": "Payment cancelled by customer",
	"51": "Insufficient balance",
	"65": "Daily transaction limit exceeded",
	"75": "Bank is under maintenance",
	"79": "Wrong payment password too many times",
	"99": "Unknown gateway error",
}
