package wallet

import (
	"net/http"
	"strconv"

	"homestay/internal/auth"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// @Summary      Get my wallet
// @Tags         wallet
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} Wallet
// @Router       /wallet [get]
func (h *Handler) GetWallet(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	w, err := h.svc.GetOrCreate(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load wallet"})
		return
	}

	c.JSON(http.StatusOK, w)
}

// @Summary      List my ledger entries
// @Tags         wallet
// @Security     BearerAuth
// @Produce      json
// @Success      200 {array} Transaction
// @Router       /wallet/transactions [get]
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	txs, err := h.svc.Transactions(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load transactions"})
		return
	}

	c.JSON(http.StatusOK, txs)
}

// @Summary      List all ledger entries (admin)
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Success      200 {array} Transaction
// @Router       /admin/transactions [get]
func (h *Handler) AdminListTransactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	txs, err := h.svc.AllTransactions(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load transactions"})
		return
	}

	c.JSON(http.StatusOK, txs)
}

// @Summary      Lock a wallet (admin)
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} api.MessageResponse
// @Router       /admin/wallets/{userID}/lock [post]
func (h *Handler) AdminLockWallet(c *gin.Context) {
	h.setStatus(c, true)
}

// @Summary      Unlock a wallet (admin)
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} api.MessageResponse
// @Router       /admin/wallets/{userID}/unlock [post]
func (h *Handler) AdminUnlockWallet(c *gin.Context) {
	h.setStatus(c, false)
}

func (h *Handler) setStatus(c *gin.Context, lock bool) {
	userID, err := strconv.Atoi(c.Param("userID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	if lock {
		err = h.svc.Lock(c.Request.Context(), userID)
	} else {
		err = h.svc.Unlock(c.Request.Context(), userID)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update wallet status"})
		return
	}

	msg := "wallet unlocked"
	if lock {
		msg = "wallet locked"
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}
