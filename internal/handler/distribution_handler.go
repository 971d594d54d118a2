package handler

import (
	"net/http"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/logic"
	"github.com/gin-gonic/gin"
)

// DistributionHandler 感谢金和退款处理器
type DistributionHandler struct {
	manager *logic.Manager
}

func NewDistributionHandler(manager *logic.Manager) *DistributionHandler {
	return &DistributionHandler{manager: manager}
}

// SendTokenOfThanks 受益人向投票人发送感谢金
func (h *DistributionHandler) SendTokenOfThanks(c *gin.Context) {
	caller, err := callerOf(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	id, err := projectIdOf(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	shares, err := h.manager.SendTokenOfThanksToSuppliers(c.Request.Context(), caller, id, amount)
	if err != nil {
		LedgerErrorResponse(c, err)
		return
	}
	out := make([]ShareResponse, len(shares))
	for i, s := range shares {
		out[i] = ShareResponse{Account: s.Account.Hex(), Amount: s.Amount.String()}
	}
	SuccessResponse(c, http.StatusOK, "感谢金发送成功", out)
}

// ClaimRefund 投票人领取退款
func (h *DistributionHandler) ClaimRefund(c *gin.Context) {
	caller, err := callerOf(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	id, err := projectIdOf(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	refunded, err := h.manager.ClaimRefund(c.Request.Context(), caller, id)
	if err != nil {
		LedgerErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "退款领取成功", gin.H{"refunded": refunded.String()})
}
