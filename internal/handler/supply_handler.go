package handler

import (
	"net/http"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/logic"
	"github.com/gin-gonic/gin"
)

// SupplyHandler 出资处理器
type SupplyHandler struct {
	manager *logic.Manager
}

func NewSupplyHandler(manager *logic.Manager) *SupplyHandler {
	return &SupplyHandler{manager: manager}
}

// SupplyProject 出资
func (h *SupplyHandler) SupplyProject(c *gin.Context) {
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

	receipt, err := h.manager.SupplyProject(c.Request.Context(), caller, id, amount)
	if err != nil {
		LedgerErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "出资成功", SupplyReceiptResponse{
		Contribution: ToContributionResponse(receipt.Contribution),
		Finalized:    receipt.Finalized,
		StrategyId:   receipt.StrategyId,
	})
}

// RevokeProjectSupply 撤回出资
func (h *SupplyHandler) RevokeProjectSupply(c *gin.Context) {
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

	refunded, err := h.manager.RevokeProjectSupply(c.Request.Context(), caller, id)
	if err != nil {
		LedgerErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "撤回出资成功", gin.H{"refunded": refunded.String()})
}

// GetProjectSupply 获取募集进度
func (h *SupplyHandler) GetProjectSupply(c *gin.Context) {
	id, err := projectIdOf(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	supply, err := h.manager.GetProjectSupply(id)
	if err != nil {
		LedgerErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "获取募集进度成功", SupplyResponse{
		Need: supply.Need.String(),
		Has:  supply.Has.String(),
	})
}

// GetProjectSuppliers 获取出资人列表
func (h *SupplyHandler) GetProjectSuppliers(c *gin.Context) {
	id, err := projectIdOf(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	suppliers, err := h.manager.GetProjectSuppliers(id)
	if err != nil {
		LedgerErrorResponse(c, err)
		return
	}
	out := make([]ContributionResponse, len(suppliers))
	for i, s := range suppliers {
		out[i] = ToContributionResponse(s)
	}
	SuccessResponse(c, http.StatusOK, "获取出资人列表成功", out)
}

// GetProjectSupplierById 获取某个出资人的出资记录
func (h *SupplyHandler) GetProjectSupplierById(c *gin.Context) {
	id, err := projectIdOf(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	supplier, err := parseAddress(c.Param("address"), errInvalidAddress)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	contribution, err := h.manager.GetProjectSupplierById(id, supplier)
	if err != nil {
		LedgerErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "获取出资记录成功", ToContributionResponse(*contribution))
}
