package payment

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"homestay/internal/auth"
	"homestay/internal/gateway"
	"homestay/internal/logger"
	"homestay/internal/wallet"
)

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

type depositRequest struct {
	Gateway string `json:"gateway" binding:"required,oneof=momo vnpay"`
	Amount  int64  `json:"amount" binding:"required,gt=0"`
}

type withdrawRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// @Summary      Start a wallet deposit through a payment gateway
// @Tags         wallet
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body depositRequest true "deposit request"
// @Success      200 {object} api.RedirectResponse
// @Router       /wallet/deposit [post]
func (h *Handler) Deposit(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	redirect, err := h.svc.InitiateDeposit(c.Request.Context(), userID, req.Gateway, req.Amount, c.ClientIP())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, wallet.ErrInvalidAmount) || errors.Is(err, ErrUnknownGateway) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": "failed to initiate deposit"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"redirect_url": redirect})
}

// @Summary      Request a withdrawal from my wallet
// @Tags         wallet
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body withdrawRequest true "withdraw request"
// @Param        Idempotency-Key header string false "client retry key; repeat deliveries return the original entry"
// @Success      200 {object} wallet.Transaction
// @Router       /wallet/withdraw [post]
func (h *Handler) Withdraw(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Without a client key each delivery is its own request; retry safety
	// needs the client to resend the same key.
	idemKey := c.GetHeader("Idempotency-Key")
	if idemKey == "" {
		idemKey = uuid.NewString()
	}

	entry, err := h.svc.Withdraw(c.Request.Context(), userID, req.Amount, idemKey)
	if err != nil {
		switch {
		case errors.Is(err, ErrRequestInFlight):
			c.JSON(http.StatusConflict, gin.H{"error": "request already in flight"})
		case errors.Is(err, wallet.ErrInsufficientBalance):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient balance"})
		case errors.Is(err, wallet.ErrWalletLocked):
			c.JSON(http.StatusForbidden, gin.H{"error": "wallet is locked"})
		case errors.Is(err, wallet.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process withdrawal"})
		}
		return
	}

	c.JSON(http.StatusOK, entry)
}

// IPN receives server-to-server confirmations. The response body is
// gateway-specific: each gateway keeps retrying until it sees its own
// success shape, so duplicates and already-settled transactions are
// acknowledged as success.
//
// @Summary      Gateway IPN endpoint
// @Tags         payments
// @Accept       json
// @Produce      json
// @Router       /payments/{gateway}/ipn [post]
func (h *Handler) IPN(c *gin.Context) {
	gatewayName := c.Param("gateway")
	params, err := callbackParams(c)
	if err != nil {
		logger.WithError(err).Error("unreadable IPN payload", "gateway", gatewayName)
		c.JSON(http.StatusBadRequest, ipnAck(gatewayName, false))
		return
	}

	if _, err := h.svc.HandleCallback(c.Request.Context(), gatewayName, params); err != nil {
		switch {
		case errors.Is(err, ErrUnknownGateway):
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown gateway"})
		case errors.Is(err, gateway.ErrSignatureMismatch), errors.Is(err, gateway.ErrMalformedCallback):
			c.JSON(http.StatusBadRequest, ipnAck(gatewayName, false))
		default:
			// Transient failure: answer non-success so the gateway retries.
			c.JSON(http.StatusInternalServerError, ipnAck(gatewayName, false))
		}
		return
	}

	c.JSON(http.StatusOK, ipnAck(gatewayName, true))
}

// Return handles the browser redirect after checkout. It only reports the
// verified outcome; the ledger moves on the server-to-server callback alone.
//
// @Summary      Gateway return endpoint
// @Tags         payments
// @Produce      json
// @Router       /payments/{gateway}/return [get]
func (h *Handler) Return(c *gin.Context) {
	gatewayName := c.Param("gateway")
	params := map[string]string{}
	for k, v := range c.Request.URL.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	res, err := h.svc.VerifyReturn(gatewayName, params)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownGateway):
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown gateway"})
		case errors.Is(err, gateway.ErrSignatureMismatch), errors.Is(err, gateway.ErrMalformedCallback):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment confirmation"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify payment confirmation"})
		}
		return
	}

	if res.Outcome == gateway.OutcomeSuccess {
		c.JSON(http.StatusOK, gin.H{"message": "payment successful"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "payment failed"})
}

// callbackParams flattens the delivery into string key-values regardless of
// transport: MoMo posts JSON with numeric fields, VNPay uses query strings.
func callbackParams(c *gin.Context) (map[string]string, error) {
	params := map[string]string{}
	for k, v := range c.Request.URL.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	if c.Request.Method != http.MethodPost || c.Request.ContentLength == 0 {
		return params, nil
	}

	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	for k, v := range body {
		switch t := v.(type) {
		case string:
			params[k] = t
		case json.Number:
			params[k] = t.String()
		case bool:
			if t {
				params[k] = "true"
			} else {
				params[k] = "false"
			}
		case nil:
			params[k] = ""
		}
	}
	return params, nil
}

func ipnAck(gatewayName string, ok bool) gin.H {
	switch gatewayName {
	case "vnpay":
		if ok {
			return gin.H{"RspCode": "00", "Message": "Confirm Success"}
		}
		return gin.H{"RspCode": "97", "Message": "Invalid Checksum"}
	default: // momo
		if ok {
			return gin.H{"resultCode": 0, "message": "success"}
		}
		return gin.H{"resultCode": 1, "message": "failed"}
	}
}
