package logic

import (
	"math/big"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/model"
	"github.com/ethereum/go-ethereum/common"
)

// Share 一笔分配
type Share struct {
	Account common.Address `json:"account"`
	Amount  *big.Int       `json:"amount"`
}

// payoutFor 按原始托管总额计算里程碑放款，不随托管余额减少而变化
func (s *strategyInstance) payoutFor(m *model.Milestone) *big.Int {
	payout := new(big.Int).Mul(s.originalEscrow, m.AmountPercentage)
	return payout.Quo(payout, model.PercentageBase)
}

// thanksShares 按冻结权重拆分感谢金，整除余数归最后一个投票人
func (s *strategyInstance) thanksShares(caller common.Address, amount *big.Int) ([]Share, error) {
	if caller != s.recipient {
		return nil, ErrNotRecipient
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if len(s.electors) == 0 || s.totalWeight.Sign() == 0 {
		return nil, ErrNoElectors
	}

	shares := make([]Share, len(s.electors))
	rest := new(big.Int).Set(amount)
	for i, e := range s.electors {
		var part *big.Int
		if i == len(s.electors)-1 {
			part = rest
		} else {
			part = new(big.Int).Mul(amount, e.Weight)
			part.Quo(part, s.totalWeight)
			rest = new(big.Int).Sub(rest, part)
		}
		shares[i] = Share{Account: e.Address, Amount: part}
	}
	return shares, nil
}

// refundable 投票人按权重可领取的被拒绝里程碑份额，扣除已领取部分
func (s *strategyInstance) refundable(account common.Address) *big.Int {
	if s.totalWeight.Sign() == 0 {
		return new(big.Int)
	}
	entitled := new(big.Int).Mul(s.originalEscrow, s.rejectedShare)
	entitled.Mul(entitled, s.weightOf(account))
	entitled.Quo(entitled, new(big.Int).Mul(model.PercentageBase, s.totalWeight))

	if claimed, ok := s.claimed[account]; ok {
		entitled.Sub(entitled, claimed)
	}
	if entitled.Sign() < 0 {
		return new(big.Int)
	}
	return entitled
}

// claimRefund 记账部分，实际转账由调用方完成
func (s *strategyInstance) claimRefund(caller common.Address) (*big.Int, error) {
	if !s.isElector(caller) {
		return nil, ErrNotAnElector
	}
	due := s.refundable(caller)
	if due.Sign() == 0 {
		return nil, ErrNothingToRefund
	}
	if s.escrow.Cmp(due) < 0 {
		return nil, ErrInsufficientEscrow
	}

	s.escrow.Sub(s.escrow, due)
	s.refunded.Add(s.refunded, due)
	if c, ok := s.claimed[caller]; ok {
		c.Add(c, due)
	} else {
		s.claimed[caller] = new(big.Int).Set(due)
	}
	return due, nil
}
