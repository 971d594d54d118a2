package logic

import (
	"math/big"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/model"
	"github.com/ethereum/go-ethereum/common"
)

// offer 追加受益人提议的里程碑，全部处于 Offered 状态
func (s *strategyInstance) offer(caller common.Address, offers []model.MilestoneOffer) ([]model.Milestone, error) {
	if caller != s.recipient {
		return nil, ErrNotRecipient
	}
	if len(offers) == 0 {
		return nil, ErrInvalidMilestones
	}

	total := new(big.Int).Set(s.allocated)
	for _, o := range offers {
		if o.AmountPercentage == nil || o.AmountPercentage.Sign() <= 0 {
			return nil, ErrInvalidMilestones
		}
		total.Add(total, o.AmountPercentage)
	}
	if total.Cmp(model.PercentageBase) > 0 {
		return nil, ErrPercentageOverflow
	}

	created := make([]model.Milestone, 0, len(offers))
	for _, o := range offers {
		m := &model.Milestone{
			Index:            len(s.milestones),
			AmountPercentage: new(big.Int).Set(o.AmountPercentage),
			Metadata:         o.Metadata,
			Status:           model.MilestoneStatusOffered,
		}
		s.milestones = append(s.milestones, m)
		s.votes = append(s.votes, make(map[common.Address]model.Decision))
		created = append(created, cloneMilestone(m))
	}
	s.allocated = total

	return created, nil
}

// submit 受益人提交里程碑成果，进入验收投票阶段
func (s *strategyInstance) submit(caller common.Address, index int, metadata model.Metadata) error {
	if caller != s.recipient {
		return ErrNotRecipient
	}
	m, err := s.milestone(index)
	if err != nil {
		return err
	}
	if m.Status != model.MilestoneStatusAccepted {
		return ErrInvalidMilestoneState
	}

	m.Metadata = metadata
	m.Status = model.MilestoneStatusSubmitted
	s.votes[index] = make(map[common.Address]model.Decision)
	return nil
}

func (s *strategyInstance) milestone(index int) (*model.Milestone, error) {
	if index < 0 || index >= len(s.milestones) {
		return nil, ErrIndexOutOfRange
	}
	return s.milestones[index], nil
}

// listMilestones 返回指定状态的里程碑副本，status 为 nil 时返回全部
func (s *strategyInstance) listMilestones(status *model.MilestoneStatus) []model.Milestone {
	out := make([]model.Milestone, 0, len(s.milestones))
	for _, m := range s.milestones {
		if status != nil && m.Status != *status {
			continue
		}
		out = append(out, cloneMilestone(m))
	}
	return out
}

func cloneMilestone(m *model.Milestone) model.Milestone {
	c := *m
	c.AmountPercentage = new(big.Int).Set(m.AmountPercentage)
	return c
}
