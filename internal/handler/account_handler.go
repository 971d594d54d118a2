package handler

import (
	"math/big"
	"net/http"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/logger"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/logic"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// Crediter 运维充值，由 bank.Ledger 实现
type Crediter interface {
	Credit(account common.Address, amount *big.Int) error
}

// AccountHandler 账户和角色处理器
type AccountHandler struct {
	manager *logic.Manager
	faucet  Crediter // 为 nil 时关闭充值接口
}

func NewAccountHandler(manager *logic.Manager, faucet Crediter) *AccountHandler {
	return &AccountHandler{manager: manager, faucet: faucet}
}

// GetBalance 获取账户余额
func (h *AccountHandler) GetBalance(c *gin.Context) {
	account, err := parseAddress(c.Param("address"), errInvalidAddress)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	SuccessResponse(c, http.StatusOK, "获取余额成功", gin.H{
		"account": account.Hex(),
		"balance": h.manager.BalanceOf(account).String(),
	})
}

// Faucet 运维充值
func (h *AccountHandler) Faucet(c *gin.Context) {
	if h.faucet == nil {
		ErrorResponse(c, http.StatusForbidden, "充值接口未开启")
		return
	}
	account, err := parseAddress(c.Param("address"), errInvalidAddress)
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
	if err != nil || amount == nil || amount.Sign() <= 0 {
		ErrorResponse(c, http.StatusBadRequest, errInvalidAmount.Error())
		return
	}

	if err := h.faucet.Credit(account, amount); err != nil {
		ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("Faucet credited %s to %s", amount, account.Hex())
	SuccessResponse(c, http.StatusOK, "充值成功", gin.H{
		"account": account.Hex(),
		"balance": h.manager.BalanceOf(account).String(),
	})
}

// TransferRegistrarRole 转移项目注册角色
func (h *AccountHandler) TransferRegistrarRole(c *gin.Context) {
	caller, err := callerOf(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	var req TransferRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseAddress(req.To, errInvalidAddress)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.manager.TransferRegistrarRole(c.Request.Context(), caller, to); err != nil {
		LedgerErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "角色转移成功", gin.H{"to": to.Hex()})
}
