package gateway

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// vnpaySuccessCode: vnp_ResponseCode "00" means the payment was captured.
const vnpaySuccessCode = 0

// VNPay implements the VNPay-shaped contract: HMAC-SHA512 over the sorted,
// URL-encoded vnp_ parameters, response code "00" for success, amounts
// multiplied by 100 on the wire, intent carried in vnp_OrderInfo.
type VNPay struct {
	endpoint  string
	tmnCode   string
	secret    string
	returnURL string
}

type VNPayConfig struct {
	Endpoint  string
	TmnCode   string
	Secret    string
	ReturnURL string
}

func NewVNPay(cfg VNPayConfig) *VNPay {
	return &VNPay{
		endpoint:  cfg.Endpoint,
		tmnCode:   cfg.TmnCode,
		secret:    cfg.Secret,
		returnURL: cfg.ReturnURL,
	}
}

func (v *VNPay) Name() string { return "vnpay" }

func (v *VNPay) BuildPaymentRequest(req PaymentRequest) (string, error) {
	if req.Amount <= 0 {
		return "", fmt.Errorf("payment amount must be positive, got %d", req.Amount)
	}

	orderInfo, err := req.Intent.Encode()
	if err != nil {
		return "", fmt.Errorf("failed to encode intent: %w", err)
	}

	q := url.Values{}
	q.Set("vnp_Version", "2.1.0")
	q.Set("vnp_Command", "pay")
	q.Set("vnp_TmnCode", v.tmnCode)
	q.Set("vnp_Amount", strconv.FormatInt(req.Amount*100, 10))
	q.Set("vnp_CurrCode", "VND")
	q.Set("vnp_TxnRef", uuid.NewString())
	q.Set("vnp_OrderInfo", orderInfo)
	q.Set("vnp_OrderType", "other")
	q.Set("vnp_Locale", "vn")
	q.Set("vnp_IpAddr", req.ClientIP)
	q.Set("vnp_CreateDate", time.Now().Format("20060102150405"))
	q.Set("vnp_ReturnUrl", v.returnURL)

	// Encode() sorts keys; the hash covers the exact string sent.
	signData := q.Encode()
	q.Set("vnp_SecureHash", hmacSHA512Hex(v.secret, signData))

	return v.endpoint + "?" + q.Encode(), nil
}

func (v *VNPay) VerifyCallback(params map[string]string) (*CallbackResult, error) {
	got := params["vnp_SecureHash"]
	if got == "" {
		return nil, ErrSignatureMismatch
	}

	signable := url.Values{}
	for k, val := range params {
		if k == "vnp_SecureHash" || k == "vnp_SecureHashType" {
			continue
		}
		if val == "" {
			continue
		}
		signable.Set(k, val)
	}
	expected := hmacSHA512Hex(v.secret, signable.Encode())
	if !signaturesEqual(expected, got) {
		return nil, ErrSignatureMismatch
	}

	rawAmount, err := strconv.ParseInt(params["vnp_Amount"], 10, 64)
	if err != nil || rawAmount <= 0 || rawAmount%100 != 0 {
		return nil, fmt.Errorf("%w: bad vnp_Amount %q", ErrMalformedCallback, params["vnp_Amount"])
	}

	transNo := params["vnp_TransactionNo"]
	if transNo == "" {
		return nil, fmt.Errorf("%w: missing vnp_TransactionNo", ErrMalformedCallback)
	}

	intent, err := DecodeIntent(params["vnp_OrderInfo"])
	if err != nil {
		return nil, fmt.Errorf("%w: bad vnp_OrderInfo: %v", ErrMalformedCallback, err)
	}

	outcome := OutcomeFailure
	if codeEquals(params["vnp_ResponseCode"], vnpaySuccessCode) {
		outcome = OutcomeSuccess
	}

	return &CallbackResult{
		Outcome:     outcome,
		Amount:      rawAmount / 100,
		ExternalRef: "vnpay:" + transNo,
		RawCode:     params["vnp_ResponseCode"],
		Intent:      intent,
	}, nil
}
