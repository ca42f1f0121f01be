package booking

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"homestay/internal/auth"
	"homestay/internal/payment"
	"homestay/internal/wallet"
)

type Handler struct {
	svc      Service
	payments payment.Service
}

func NewHandler(svc Service, payments payment.Service) *Handler {
	return &Handler{svc: svc, payments: payments}
}

type createRequest struct {
	HostID     int   `json:"host_id" binding:"required,gt=0"`
	TotalPrice int64 `json:"total_price" binding:"required,gt=0"`
}

type gatewayPayRequest struct {
	Gateway string `json:"gateway" binding:"required,oneof=momo vnpay"`
}

type resolveRefundRequest struct {
	Approve *bool `json:"approve" binding:"required"`
}

// @Summary      Create a booking
// @Tags         bookings
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body createRequest true "booking details"
// @Success      201 {object} Booking
// @Router       /bookings [post]
func (h *Handler) Create(c *gin.Context) {
	guestID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b, err := h.svc.Create(c.Request.Context(), guestID, req.HostID, req.TotalPrice)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create booking"})
		return
	}

	c.JSON(http.StatusCreated, b)
}

// @Summary      Get a booking
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} Booking
// @Router       /bookings/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	guestID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	b, err := h.svc.Get(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load booking"})
		return
	}
	if b.GuestID != guestID && b.HostID != guestID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your booking"})
		return
	}

	c.JSON(http.StatusOK, b)
}

// @Summary      List my bookings
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Success      200 {array} Booking
// @Router       /bookings [get]
func (h *Handler) List(c *gin.Context) {
	guestID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	bookings, err := h.svc.ListByGuest(c.Request.Context(), guestID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load bookings"})
		return
	}

	c.JSON(http.StatusOK, bookings)
}

// @Summary      Pay a booking from my wallet
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} Booking
// @Router       /bookings/{id}/pay [post]
func (h *Handler) PayWithWallet(c *gin.Context) {
	guestID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	b, err := h.svc.PayWithWallet(c.Request.Context(), guestID, id)
	if err != nil {
		h.writePaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, b)
}

// @Summary      Pay a booking through a payment gateway
// @Tags         bookings
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body gatewayPayRequest true "gateway choice"
// @Success      200 {object} api.RedirectResponse
// @Router       /bookings/{id}/pay/gateway [post]
func (h *Handler) PayWithGateway(c *gin.Context) {
	guestID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	var req gatewayPayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b, err := h.svc.Get(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load booking"})
		return
	}
	if b.GuestID != guestID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your booking"})
		return
	}
	if b.PaymentStatus != PaymentPending {
		c.JSON(http.StatusConflict, gin.H{"error": "booking is not awaiting payment"})
		return
	}

	redirect, err := h.payments.InitiateBookingPayment(
		c.Request.Context(), guestID, b.ID, req.Gateway, b.TotalPrice, c.ClientIP())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to initiate payment"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"redirect_url": redirect})
}

// @Summary      Request a refund for a paid booking
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} api.MessageResponse
// @Router       /bookings/{id}/refund [post]
func (h *Handler) RequestRefund(c *gin.Context) {
	guestID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	if err := h.svc.RequestRefund(c.Request.Context(), guestID, id); err != nil {
		h.writePaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "refund requested"})
}

// @Summary      Re-run host settlement for a paid booking (admin)
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} api.MessageResponse
// @Router       /admin/bookings/{id}/settle [post]
func (h *Handler) AdminSettle(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	if err := h.svc.Settle(c.Request.Context(), id); err != nil {
		h.writePaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "settlement recorded"})
}

// @Summary      Resolve a refund request (admin)
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body resolveRefundRequest true "decision"
// @Success      200 {object} Booking
// @Router       /admin/bookings/{id}/refund [post]
func (h *Handler) AdminResolveRefund(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	var req resolveRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b, err := h.svc.ResolveRefund(c.Request.Context(), id, *req.Approve)
	if err != nil {
		h.writePaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, b)
}

func (h *Handler) writePaymentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
	case errors.Is(err, ErrNotBookingOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "not your booking"})
	case errors.Is(err, ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, wallet.ErrInsufficientBalance):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient balance"})
	case errors.Is(err, wallet.ErrWalletLocked):
		c.JSON(http.StatusForbidden, gin.H{"error": "wallet is locked"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process booking payment"})
	}
}
