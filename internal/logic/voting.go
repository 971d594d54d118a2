package logic

import (
	"math/big"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/model"
	"github.com/ethereum/go-ethereum/common"
)

// Transition 投票引起的里程碑状态迁移
type Transition struct {
	Milestone int                   `json:"milestone"`
	From      model.MilestoneStatus `json:"from"`
	To        model.MilestoneStatus `json:"to"`
	Payout    *big.Int              `json:"payout,omitempty"`
}

// ReviewResult 一次审核调用的结果
type ReviewResult struct {
	Reviewed    []int        `json:"reviewed"`
	Transitions []Transition `json:"transitions"`
}

// quorum 严格多数 ⌊n/2⌋+1
func quorum(electors int) int {
	return electors/2 + 1
}

// tally 统计当前阶段某个决定的票数，override 用于预判本次投票后的结果
func (s *strategyInstance) tally(index int, decision model.Decision, override *model.Vote) int {
	count := 0
	for elector, d := range s.votes[index] {
		if override != nil && elector == override.Elector {
			continue
		}
		if d == decision {
			count++
		}
	}
	if override != nil && override.Decision == decision {
		count++
	}
	return count
}

func validDecision(d model.Decision) bool {
	return d == model.DecisionAccept || d == model.DecisionReject
}

// reviewOffered 对所有 Offered 里程碑投票，达到多数时立即迁移
func (s *strategyInstance) reviewOffered(caller common.Address, decision model.Decision) (*ReviewResult, error) {
	if !s.isElector(caller) {
		return nil, ErrNotAnElector
	}
	if !validDecision(decision) {
		return nil, ErrInvalidDecision
	}

	var offered []int
	for _, m := range s.milestones {
		if m.Status == model.MilestoneStatusOffered {
			offered = append(offered, m.Index)
		}
	}
	if len(offered) == 0 {
		return nil, ErrNoOfferedMilestones
	}

	unchanged := true
	for _, i := range offered {
		if s.votes[i][caller] != decision {
			unchanged = false
			break
		}
	}
	if unchanged {
		return nil, ErrAlreadyVoted
	}

	q := quorum(len(s.electors))
	result := &ReviewResult{Reviewed: offered}
	for _, i := range offered {
		s.votes[i][caller] = decision
		m := s.milestones[i]

		switch {
		case s.tally(i, model.DecisionAccept, nil) >= q:
			m.Status = model.MilestoneStatusAccepted
			s.votes[i] = make(map[common.Address]model.Decision)
			result.Transitions = append(result.Transitions, Transition{
				Milestone: i, From: model.MilestoneStatusOffered, To: model.MilestoneStatusAccepted,
			})
		case s.tally(i, model.DecisionReject, nil) >= q:
			m.Status = model.MilestoneStatusRejected
			s.rejectedShare.Add(s.rejectedShare, m.AmountPercentage)
			result.Transitions = append(result.Transitions, Transition{
				Milestone: i, From: model.MilestoneStatusOffered, To: model.MilestoneStatusRejected,
			})
		}
	}

	return result, nil
}

// reviewSubmitted 对已提交的里程碑验收投票，通过时放款，拒绝时退回 Accepted
func (s *strategyInstance) reviewSubmitted(caller common.Address, index int, decision model.Decision) (*ReviewResult, error) {
	if !s.isElector(caller) {
		return nil, ErrNotAnElector
	}
	if !validDecision(decision) {
		return nil, ErrInvalidDecision
	}
	m, err := s.milestone(index)
	if err != nil {
		return nil, err
	}
	if m.Status != model.MilestoneStatusSubmitted {
		return nil, ErrInvalidMilestoneState
	}
	if s.votes[index][caller] == decision {
		return nil, ErrAlreadyVoted
	}

	q := quorum(len(s.electors))
	vote := &model.Vote{MilestoneIndex: index, Elector: caller, Decision: decision}

	// 先校验放款是否可行，再修改状态
	var payout *big.Int
	if s.tally(index, model.DecisionAccept, vote) >= q {
		payout = s.payoutFor(m)
		if s.escrow.Cmp(payout) < 0 {
			return nil, ErrInsufficientEscrow
		}
	}

	s.votes[index][caller] = decision
	result := &ReviewResult{Reviewed: []int{index}}

	switch {
	case payout != nil:
		s.escrow.Sub(s.escrow, payout)
		s.distributed.Add(s.distributed, payout)
		m.Status = model.MilestoneStatusCompleted
		result.Transitions = append(result.Transitions, Transition{
			Milestone: index, From: model.MilestoneStatusSubmitted, To: model.MilestoneStatusCompleted,
			Payout: new(big.Int).Set(payout),
		})
	case s.tally(index, model.DecisionReject, nil) >= q:
		m.Status = model.MilestoneStatusAccepted
		s.votes[index] = make(map[common.Address]model.Decision)
		result.Transitions = append(result.Transitions, Transition{
			Milestone: index, From: model.MilestoneStatusSubmitted, To: model.MilestoneStatusAccepted,
		})
	}

	return result, nil
}

// votesOf 当前阶段的投票，按投票人顺序
func (s *strategyInstance) votesOf(index int) ([]model.Vote, error) {
	if _, err := s.milestone(index); err != nil {
		return nil, err
	}
	var out []model.Vote
	for _, e := range s.electors {
		if d, ok := s.votes[index][e.Address]; ok {
			out = append(out, model.Vote{MilestoneIndex: index, Elector: e.Address, Decision: d})
		}
	}
	return out, nil
}
