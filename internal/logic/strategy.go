package logic

import (
	"math/big"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/model"
	"github.com/ethereum/go-ethereum/common"
)

// strategyInstance 项目完成募集后创建的策略实例，持有里程碑、投票和托管资金
type strategyInstance struct {
	id        uint64
	projectId common.Hash
	address   common.Address
	recipient common.Address

	// 完成募集时冻结
	electors    []model.Elector
	electorIdx  map[common.Address]int
	totalWeight *big.Int

	originalEscrow *big.Int
	escrow         *big.Int
	distributed    *big.Int
	refunded       *big.Int

	milestones    []*model.Milestone
	votes         []map[common.Address]model.Decision // 当前阶段的投票，按里程碑
	allocated     *big.Int                            // 已提议里程碑百分比之和
	rejectedShare *big.Int
	claimed       map[common.Address]*big.Int
}

func newStrategyInstance(id uint64, project *model.Project, electors []model.Elector, escrow *big.Int) *strategyInstance {
	s := &strategyInstance{
		id:             id,
		projectId:      project.Id,
		address:        deriveAccount(project.Id, "strategy"),
		recipient:      project.Recipient,
		electors:       electors,
		electorIdx:     make(map[common.Address]int, len(electors)),
		totalWeight:    new(big.Int),
		originalEscrow: new(big.Int).Set(escrow),
		escrow:         new(big.Int).Set(escrow),
		distributed:    new(big.Int),
		refunded:       new(big.Int),
		allocated:      new(big.Int),
		rejectedShare:  new(big.Int),
		claimed:        make(map[common.Address]*big.Int),
	}
	for i, e := range electors {
		s.electorIdx[e.Address] = i
		s.totalWeight.Add(s.totalWeight, e.Weight)
	}
	return s
}

func (s *strategyInstance) isElector(account common.Address) bool {
	_, ok := s.electorIdx[account]
	return ok
}

func (s *strategyInstance) weightOf(account common.Address) *big.Int {
	i, ok := s.electorIdx[account]
	if !ok {
		return new(big.Int)
	}
	return s.electors[i].Weight
}

// snapshot 深拷贝可变部分，转账失败时用于回滚
func (s *strategyInstance) snapshot() *strategyInstance {
	c := *s
	c.escrow = new(big.Int).Set(s.escrow)
	c.distributed = new(big.Int).Set(s.distributed)
	c.refunded = new(big.Int).Set(s.refunded)
	c.allocated = new(big.Int).Set(s.allocated)
	c.rejectedShare = new(big.Int).Set(s.rejectedShare)

	c.milestones = make([]*model.Milestone, len(s.milestones))
	for i, m := range s.milestones {
		mc := *m
		mc.AmountPercentage = new(big.Int).Set(m.AmountPercentage)
		c.milestones[i] = &mc
	}

	c.votes = make([]map[common.Address]model.Decision, len(s.votes))
	for i, v := range s.votes {
		c.votes[i] = make(map[common.Address]model.Decision, len(v))
		for k, d := range v {
			c.votes[i][k] = d
		}
	}

	c.claimed = make(map[common.Address]*big.Int, len(s.claimed))
	for k, v := range s.claimed {
		c.claimed[k] = new(big.Int).Set(v)
	}
	return &c
}

// restore 恢复到快照状态
func (s *strategyInstance) restore(snap *strategyInstance) {
	*s = *snap
}

// view 只读视图
func (s *strategyInstance) view() *model.Strategy {
	electors := make([]model.Elector, len(s.electors))
	for i, e := range s.electors {
		electors[i] = model.Elector{Address: e.Address, Weight: new(big.Int).Set(e.Weight)}
	}
	return &model.Strategy{
		Id:             s.id,
		ProjectId:      s.projectId,
		Address:        s.address,
		Recipient:      s.recipient,
		Electors:       electors,
		OriginalEscrow: new(big.Int).Set(s.originalEscrow),
		Escrow:         new(big.Int).Set(s.escrow),
		Distributed:    new(big.Int).Set(s.distributed),
		Refunded:       new(big.Int).Set(s.refunded),
		RejectedShare:  new(big.Int).Set(s.rejectedShare),
	}
}

// balanced distributed + escrow + refunded == originalEscrow
func (s *strategyInstance) balanced() bool {
	sum := new(big.Int).Add(s.distributed, s.escrow)
	sum.Add(sum, s.refunded)
	return sum.Cmp(s.originalEscrow) == 0
}

// strategyFactory 策略实例仓库，所有访问都经过实例ID
type strategyFactory struct {
	nextId    uint64
	instances map[uint64]*strategyInstance
}

func newStrategyFactory() *strategyFactory {
	return &strategyFactory{instances: make(map[uint64]*strategyInstance)}
}

// create 为项目创建实例，ID从1开始，0表示未绑定
func (f *strategyFactory) create(project *model.Project, electors []model.Elector, escrow *big.Int) *strategyInstance {
	f.nextId++
	s := newStrategyInstance(f.nextId, project, electors, escrow)
	f.instances[s.id] = s
	return s
}

func (f *strategyFactory) get(id uint64) (*strategyInstance, bool) {
	s, ok := f.instances[id]
	return s, ok
}
