package handler

import (
	"math/big"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/logic"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/model"
)

// 通用响应结构
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data"`
}

// 请求模型，金额和百分比都是十进制字符串

// RegisterProjectRequest 注册项目请求
type RegisterProjectRequest struct {
	Threshold   string         `json:"threshold" binding:"required"`
	Seed        string         `json:"seed"`
	Description string         `json:"description"`
	Metadata    model.Metadata `json:"metadata"`
	Recipient   string         `json:"recipient" binding:"required"`
}

// AmountRequest 出资、感谢金、充值请求
type AmountRequest struct {
	Amount string `json:"amount" binding:"required"`
}

// MilestoneOfferRequest 单个里程碑提议
type MilestoneOfferRequest struct {
	AmountPercentage string         `json:"amountPercentage" binding:"required"`
	Metadata         model.Metadata `json:"metadata"`
}

// OfferMilestonesRequest 提议里程碑请求
type OfferMilestonesRequest struct {
	Recipient  string                  `json:"recipient" binding:"required"`
	Milestones []MilestoneOfferRequest `json:"milestones" binding:"required"`
}

// ReviewRequest 投票请求
type ReviewRequest struct {
	Recipient string `json:"recipient" binding:"required"`
	Decision  string `json:"decision" binding:"required"`
}

// SubmitMilestoneRequest 提交里程碑请求
type SubmitMilestoneRequest struct {
	Recipient string         `json:"recipient" binding:"required"`
	Metadata  model.Metadata `json:"metadata"`
}

// TransferRoleRequest 转移角色请求
type TransferRoleRequest struct {
	To string `json:"to" binding:"required"`
}

// 响应模型

// ProjectResponse 项目响应模型
type ProjectResponse struct {
	Id          string         `json:"id"`
	Threshold   string         `json:"threshold"`
	Recipient   string         `json:"recipient"`
	Owner       string         `json:"owner"`
	Anchor      string         `json:"anchor"`
	Description string         `json:"description"`
	Metadata    model.Metadata `json:"metadata"`
	StrategyId  uint64         `json:"strategyId"`
	Finalized   bool           `json:"finalized"`
}

// SupplyResponse 募集进度
type SupplyResponse struct {
	Need string `json:"need"`
	Has  string `json:"has"`
}

// ContributionResponse 出资记录
type ContributionResponse struct {
	ProjectId string `json:"projectId"`
	Supplier  string `json:"supplier"`
	Amount    string `json:"amount"`
	Index     uint64 `json:"index"`
}

// SupplyReceiptResponse 出资结果
type SupplyReceiptResponse struct {
	Contribution ContributionResponse `json:"contribution"`
	Finalized    bool                 `json:"finalized"`
	StrategyId   uint64               `json:"strategyId,omitempty"`
}

// ElectorResponse 投票人
type ElectorResponse struct {
	Address string `json:"address"`
	Weight  string `json:"weight"`
}

// StrategyResponse 策略实例
type StrategyResponse struct {
	Id             uint64            `json:"id"`
	ProjectId      string            `json:"projectId"`
	Address        string            `json:"address"`
	Recipient      string            `json:"recipient"`
	Electors       []ElectorResponse `json:"electors"`
	OriginalEscrow string            `json:"originalEscrow"`
	Escrow         string            `json:"escrow"`
	Distributed    string            `json:"distributed"`
	Refunded       string            `json:"refunded"`
	RejectedShare  string            `json:"rejectedShare"`
}

// MilestoneResponse 里程碑
type MilestoneResponse struct {
	Index            int                   `json:"index"`
	AmountPercentage string                `json:"amountPercentage"`
	Metadata         model.Metadata        `json:"metadata"`
	Status           model.MilestoneStatus `json:"status"`
}

// TransitionResponse 状态迁移
type TransitionResponse struct {
	Milestone int                   `json:"milestone"`
	From      model.MilestoneStatus `json:"from"`
	To        model.MilestoneStatus `json:"to"`
	Payout    string                `json:"payout,omitempty"`
}

// ReviewResponse 投票结果
type ReviewResponse struct {
	Reviewed    []int                `json:"reviewed"`
	Transitions []TransitionResponse `json:"transitions"`
}

// ShareResponse 一笔分配
type ShareResponse struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

// EventResponse 账本事件
type EventResponse struct {
	Sequence  uint64          `json:"sequence"`
	Kind      model.EventKind `json:"kind"`
	Actor     string          `json:"actor"`
	Amount    string          `json:"amount,omitempty"`
	Milestone int             `json:"milestone"`
	Data      map[string]any  `json:"data,omitempty"`
}

func amountString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

// ToProjectResponse 转换项目
func ToProjectResponse(p *model.Project) ProjectResponse {
	return ProjectResponse{
		Id:          p.Id.Hex(),
		Threshold:   amountString(p.Threshold),
		Recipient:   p.Recipient.Hex(),
		Owner:       p.Owner.Hex(),
		Anchor:      p.Anchor.Hex(),
		Description: p.Description,
		Metadata:    p.Metadata,
		StrategyId:  p.StrategyId,
		Finalized:   p.Finalized(),
	}
}

// ToContributionResponse 转换出资记录
func ToContributionResponse(c model.Contribution) ContributionResponse {
	return ContributionResponse{
		ProjectId: c.ProjectId.Hex(),
		Supplier:  c.Supplier.Hex(),
		Amount:    amountString(c.Amount),
		Index:     c.Index,
	}
}

// ToStrategyResponse 转换策略实例
func ToStrategyResponse(s *model.Strategy) StrategyResponse {
	electors := make([]ElectorResponse, len(s.Electors))
	for i, e := range s.Electors {
		electors[i] = ElectorResponse{Address: e.Address.Hex(), Weight: amountString(e.Weight)}
	}
	return StrategyResponse{
		Id:             s.Id,
		ProjectId:      s.ProjectId.Hex(),
		Address:        s.Address.Hex(),
		Recipient:      s.Recipient.Hex(),
		Electors:       electors,
		OriginalEscrow: amountString(s.OriginalEscrow),
		Escrow:         amountString(s.Escrow),
		Distributed:    amountString(s.Distributed),
		Refunded:       amountString(s.Refunded),
		RejectedShare:  amountString(s.RejectedShare),
	}
}

// ToMilestoneResponseList 转换里程碑列表
func ToMilestoneResponseList(milestones []model.Milestone) []MilestoneResponse {
	out := make([]MilestoneResponse, len(milestones))
	for i, m := range milestones {
		out[i] = MilestoneResponse{
			Index:            m.Index,
			AmountPercentage: amountString(m.AmountPercentage),
			Metadata:         m.Metadata,
			Status:           m.Status,
		}
	}
	return out
}

// ToReviewResponse 转换投票结果
func ToReviewResponse(r *logic.ReviewResult) ReviewResponse {
	out := ReviewResponse{Reviewed: r.Reviewed, Transitions: make([]TransitionResponse, len(r.Transitions))}
	for i, t := range r.Transitions {
		out.Transitions[i] = TransitionResponse{
			Milestone: t.Milestone,
			From:      t.From,
			To:        t.To,
			Payout:    amountString(t.Payout),
		}
	}
	return out
}

// ToEventResponse 转换账本事件
func ToEventResponse(e model.LedgerEvent) EventResponse {
	return EventResponse{
		Sequence:  e.Sequence,
		Kind:      e.Kind,
		Actor:     e.Actor.Hex(),
		Amount:    amountString(e.Amount),
		Milestone: e.Milestone,
		Data:      e.Data,
	}
}
