package gateway

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
)

// momoSuccessCode is the resultCode the gateway sends for a captured payment.
const momoSuccessCode = 0

// MoMo implements the MoMo-shaped contract: HMAC-SHA256 over a fixed
// alphabetical field ordering, resultCode 0 for success, intent carried in
// extraData.
type MoMo struct {
	endpoint    string
	partnerCode string
	accessKey   string
	secretKey   string
	ipnURL      string
	returnURL   string
}

type MoMoConfig struct {
	Endpoint    string
	PartnerCode string
	AccessKey   string
	SecretKey   string
	IPNURL      string
	ReturnURL   string
}

func NewMoMo(cfg MoMoConfig) *MoMo {
	return &MoMo{
		endpoint:    cfg.Endpoint,
		partnerCode: cfg.PartnerCode,
		accessKey:   cfg.AccessKey,
		secretKey:   cfg.SecretKey,
		ipnURL:      cfg.IPNURL,
		returnURL:   cfg.ReturnURL,
	}
}

func (m *MoMo) Name() string { return "momo" }

func (m *MoMo) BuildPaymentRequest(req PaymentRequest) (string, error) {
	if req.Amount <= 0 {
		return "", fmt.Errorf("payment amount must be positive, got %d", req.Amount)
	}

	extraData, err := req.Intent.Encode()
	if err != nil {
		return "", fmt.Errorf("failed to encode intent: %w", err)
	}

	orderID := uuid.NewString()
	requestID := uuid.NewString()
	requestType := "captureWallet"

	raw := fmt.Sprintf(
		"accessKey=%s&amount=%d&extraData=%s&ipnUrl=%s&orderId=%s&orderInfo=%s&partnerCode=%s&redirectUrl=%s&requestId=%s&requestType=%s",
		m.accessKey, req.Amount, extraData, m.ipnURL, orderID, req.OrderInfo,
		m.partnerCode, m.returnURL, requestID, requestType,
	)
	signature := hmacSHA256Hex(m.secretKey, raw)

	q := url.Values{}
	q.Set("partnerCode", m.partnerCode)
	q.Set("accessKey", m.accessKey)
	q.Set("requestId", requestID)
	q.Set("orderId", orderID)
	q.Set("orderInfo", req.OrderInfo)
	q.Set("amount", strconv.FormatInt(req.Amount, 10))
	q.Set("ipnUrl", m.ipnURL)
	q.Set("redirectUrl", m.returnURL)
	q.Set("extraData", extraData)
	q.Set("requestType", requestType)
	q.Set("signature", signature)

	return m.endpoint + "?" + q.Encode(), nil
}

// VerifyCallback recomputes the IPN signature over the gateway's canonical
// field ordering. Callbacks that fail the check are rejected before any field
// is trusted.
func (m *MoMo) VerifyCallback(params map[string]string) (*CallbackResult, error) {
	raw := fmt.Sprintf(
		"accessKey=%s&amount=%s&extraData=%s&message=%s&orderId=%s&orderInfo=%s&orderType=%s&partnerCode=%s&payType=%s&requestId=%s&responseTime=%s&resultCode=%s&transId=%s",
		m.accessKey, params["amount"], params["extraData"], params["message"],
		params["orderId"], params["orderInfo"], params["orderType"], params["partnerCode"],
		params["payType"], params["requestId"], params["responseTime"],
		params["resultCode"], params["transId"],
	)
	expected := hmacSHA256Hex(m.secretKey, raw)
	if !signaturesEqual(expected, params["signature"]) {
		return nil, ErrSignatureMismatch
	}

	amount, err := strconv.ParseInt(params["amount"], 10, 64)
	if err != nil || amount <= 0 {
		return nil, fmt.Errorf("%w: bad amount %q", ErrMalformedCallback, params["amount"])
	}

	transID := params["transId"]
	if transID == "" {
		return nil, fmt.Errorf("%w: missing transId", ErrMalformedCallback)
	}

	intent, err := DecodeIntent(params["extraData"])
	if err != nil {
		return nil, fmt.Errorf("%w: bad extraData: %v", ErrMalformedCallback, err)
	}

	outcome := OutcomeFailure
	if codeEquals(params["resultCode"], momoSuccessCode) {
		outcome = OutcomeSuccess
	}

	return &CallbackResult{
		Outcome:     outcome,
		Amount:      amount,
		ExternalRef: "momo:" + transID,
		RawCode:     params["resultCode"],
		Intent:      intent,
	}, nil
}
