package handler

import (
	"net/http"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/logic"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// MilestoneHandler 里程碑处理器
type MilestoneHandler struct {
	manager *logic.Manager
}

func NewMilestoneHandler(manager *logic.Manager) *MilestoneHandler {
	return &MilestoneHandler{manager: manager}
}

// GetMilestones 获取里程碑，status=offered 时只返回待审核的
func (h *MilestoneHandler) GetMilestones(c *gin.Context) {
	id, err := projectIdOf(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	var milestones []model.Milestone
	switch c.Query("status") {
	case "":
		milestones, err = h.manager.GetMilestones(id)
	case model.MilestoneStatusOffered.String():
		milestones, err = h.manager.GetOfferedMilestones(id)
	default:
		ErrorResponse(c, http.StatusBadRequest, "不支持的状态过滤")
		return
	}
	if err != nil {
		LedgerErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "获取里程碑成功", ToMilestoneResponseList(milestones))
}

// OfferMilestones 受益人提议里程碑
func (h *MilestoneHandler) OfferMilestones(c *gin.Context) {
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
	var req OfferMilestonesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	recipient, err := parseAddress(req.Recipient, errInvalidAddress)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	offers := make([]model.MilestoneOffer, 0, len(req.Milestones))
	for _, m := range req.Milestones {
		pct, err := parseAmount(m.AmountPercentage)
		if err != nil {
			ErrorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		offers = append(offers, model.MilestoneOffer{AmountPercentage: pct, Metadata: m.Metadata})
	}

	created, err := h.manager.OfferMilestones(c.Request.Context(), caller, id, recipient, offers)
	if err != nil {
		LedgerErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "里程碑提议成功", ToMilestoneResponseList(created))
}

// ReviewOfferedMilestones 审核所有待审核的里程碑
func (h *MilestoneHandler) ReviewOfferedMilestones(c *gin.Context) {
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
	recipient, decision, ok := bindReview(c)
	if !ok {
		return
	}

	result, err := h.manager.ReviewOfferedMilestones(c.Request.Context(), caller, id, recipient, decision)
	if err != nil {
		LedgerErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "投票成功", ToReviewResponse(result))
}

// SubmitMilestone 受益人提交里程碑成果
func (h *MilestoneHandler) SubmitMilestone(c *gin.Context) {
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
	index, err := indexOf(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	var req SubmitMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	recipient, err := parseAddress(req.Recipient, errInvalidAddress)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.manager.SubmitMilestone(c.Request.Context(), caller, id, recipient, index, req.Metadata); err != nil {
		LedgerErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "里程碑提交成功", gin.H{"index": index})
}

// ReviewSubmitedMilestone 验收已提交的里程碑
func (h *MilestoneHandler) ReviewSubmitedMilestone(c *gin.Context) {
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
	index, err := indexOf(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	recipient, decision, ok := bindReview(c)
	if !ok {
		return
	}

	result, err := h.manager.ReviewSubmitedMilestone(c.Request.Context(), caller, id, recipient, index, decision)
	if err != nil {
		LedgerErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "投票成功", ToReviewResponse(result))
}

// GetMilestoneVotes 获取里程碑当前阶段的投票
func (h *MilestoneHandler) GetMilestoneVotes(c *gin.Context) {
	id, err := projectIdOf(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	index, err := indexOf(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	votes, err := h.manager.GetMilestoneVotes(id, index)
	if err != nil {
		LedgerErrorResponse(c, err)
		return
	}
	out := make([]gin.H, len(votes))
	for i, v := range votes {
		out[i] = gin.H{"elector": v.Elector.Hex(), "decision": v.Decision.String()}
	}
	SuccessResponse(c, http.StatusOK, "获取投票成功", out)
}

func bindReview(c *gin.Context) (recipient common.Address, decision model.Decision, ok bool) {
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	recipient, err := parseAddress(req.Recipient, errInvalidAddress)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	decision, valid := model.ParseDecision(req.Decision)
	if !valid {
		LedgerErrorResponse(c, logic.ErrInvalidDecision)
		return
	}
	return recipient, decision, true
}
