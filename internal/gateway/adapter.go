package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

const (
	IntentDeposit = "deposit"
	IntentBooking = "booking"
)

var (
	ErrSignatureMismatch = errors.New("callback signature mismatch")
	ErrMalformedCallback = errors.New("malformed callback payload")
)

// Intent is the opaque purpose payload carried through the gateway round trip.
// It travels base64(JSON)-encoded in the gateway's free-form field and comes
// back verbatim in the callback.
type Intent struct {
	UserID    int    `json:"user_id"`
	Kind      string `json:"kind"`
	BookingID int    `json:"booking_id,omitempty"`
	IssuedAt  int64  `json:"issued_at"`
}

func (i Intent) Encode() (string, error) {
	b, err := json.Marshal(i)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func DecodeIntent(s string) (Intent, error) {
	var i Intent
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return i, err
	}
	if err := json.Unmarshal(b, &i); err != nil {
		return i, err
	}
	return i, nil
}

type PaymentRequest struct {
	Amount    int64
	Intent    Intent
	OrderInfo string
	ClientIP  string
}

// CallbackResult is the canonical outcome shape both adapters normalize into.
type CallbackResult struct {
	Outcome     Outcome
	Amount      int64
	ExternalRef string // gateway transaction id, prefixed with the gateway name
	RawCode     string
	Intent      Intent
}

// Adapter builds outbound payment requests and verifies inbound callbacks for
// one gateway. Implementations differ in field names, signature algorithm and
// success-code conventions; everything downstream consumes CallbackResult.
type Adapter interface {
	Name() string
	BuildPaymentRequest(req PaymentRequest) (string, error)
	VerifyCallback(params map[string]string) (*CallbackResult, error)
}

// codeEquals compares a gateway result code against the adapter's canonical
// success code, tolerating numeric literals vs numeric-looking strings
// ("0", 0 and "00" all normalize to 0).
func codeEquals(raw string, want int) bool {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return n == want
}

func hmacSHA256Hex(secret, data string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

func hmacSHA512Hex(secret, data string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

func signaturesEqual(expected, got string) bool {
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(got)))
}
