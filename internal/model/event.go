package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind 账本事件类型
type EventKind string

const (
	EventProjectRegistered  EventKind = "ProjectRegistered"
	EventProjectSupplied    EventKind = "ProjectSupplied"
	EventSupplyRevoked      EventKind = "SupplyRevoked"
	EventPoolFinalized      EventKind = "PoolFinalized"
	EventMilestonesOffered  EventKind = "MilestonesOffered"
	EventOfferReviewed      EventKind = "OfferReviewed"
	EventMilestoneAccepted  EventKind = "MilestoneAccepted"
	EventMilestoneRejected  EventKind = "MilestoneRejected"
	EventMilestoneSubmitted EventKind = "MilestoneSubmitted"
	EventSubmissionReviewed EventKind = "SubmissionReviewed"
	EventSubmissionRejected EventKind = "SubmissionRejected"
	EventMilestoneCompleted EventKind = "MilestoneCompleted"
	EventThanksDistributed  EventKind = "ThanksDistributed"
	EventRefundClaimed      EventKind = "RefundClaimed"
	EventRoleTransferred    EventKind = "RoleTransferred"
)

// LedgerEvent 账本事件，操作提交后发布
type LedgerEvent struct {
	Sequence  uint64         `json:"sequence"`
	ProjectId common.Hash    `json:"project_id"`
	Kind      EventKind      `json:"kind"`
	Actor     common.Address `json:"actor"`
	Amount    *big.Int       `json:"amount,omitempty"`
	Milestone int            `json:"milestone"` // 与里程碑无关时为 -1
	Data      map[string]any `json:"data,omitempty"`
}
