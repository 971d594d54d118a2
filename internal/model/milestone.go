package model

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MilestoneStatus 里程碑状态
type MilestoneStatus uint8

const (
	MilestoneStatusOffered       MilestoneStatus = iota // 已提议，等待出资人审核
	MilestoneStatusAccepted                             // 已接受，等待受益人提交成果
	MilestoneStatusRejected                             // 已拒绝，终态
	MilestoneStatusSubmitted                            // 已提交，等待出资人验收
	MilestoneStatusPendingReview                        // 保留状态，当前没有迁移进入
	MilestoneStatusCompleted                            // 已完成并放款
)

var milestoneStatusNames = map[MilestoneStatus]string{
	MilestoneStatusOffered:       "offered",
	MilestoneStatusAccepted:      "accepted",
	MilestoneStatusRejected:      "rejected",
	MilestoneStatusSubmitted:     "submitted",
	MilestoneStatusPendingReview: "pending_review",
	MilestoneStatusCompleted:     "completed",
}

func (s MilestoneStatus) String() string {
	if name, ok := milestoneStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText 以字符串形式输出状态
func (s MilestoneStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText 从字符串解析状态
func (s *MilestoneStatus) UnmarshalText(text []byte) error {
	status, ok := ParseMilestoneStatus(string(text))
	if !ok {
		return fmt.Errorf("unknown milestone status %q", text)
	}
	*s = status
	return nil
}

// ParseMilestoneStatus 解析状态字符串
func ParseMilestoneStatus(name string) (MilestoneStatus, bool) {
	for status, n := range milestoneStatusNames {
		if n == name {
			return status, true
		}
	}
	return 0, false
}

// PercentageBase 百分比定点数基数，1e18 表示 100%
var PercentageBase = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Milestone 里程碑
type Milestone struct {
	Index            int             `json:"index"`
	AmountPercentage *big.Int        `json:"amount_percentage"`
	Metadata         Metadata        `json:"metadata"`
	Status           MilestoneStatus `json:"status"`
}

// MilestoneOffer 受益人提议的里程碑
type MilestoneOffer struct {
	AmountPercentage *big.Int `json:"amount_percentage"`
	Metadata         Metadata `json:"metadata"`
}

// Decision 投票决定
type Decision uint8

const (
	DecisionNone Decision = iota
	DecisionAccept
	DecisionReject
)

func (d Decision) String() string {
	switch d {
	case DecisionAccept:
		return "accept"
	case DecisionReject:
		return "reject"
	default:
		return "none"
	}
}

// MarshalText 以字符串形式输出投票决定
func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ParseDecision 解析投票决定
func ParseDecision(s string) (Decision, bool) {
	switch s {
	case "accept", "accepted", "approve":
		return DecisionAccept, true
	case "reject", "rejected":
		return DecisionReject, true
	default:
		return DecisionNone, false
	}
}

// Vote 投票记录
type Vote struct {
	MilestoneIndex int            `json:"milestone_index"`
	Elector        common.Address `json:"elector"`
	Decision       Decision       `json:"decision"`
}
